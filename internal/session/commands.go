package session

import "strings"

type Command int

const (
	CmdNone Command = iota
	CmdStart
	CmdSubmit
	CmdCancel
	CmdHelp
	CmdStatus
)

// commandAliases maps normalized inbound text to a command. Besides the
// slash forms, a few natural-language equivalents are accepted so users who
// never learned the commands can still drive the flow.
var commandAliases = map[string]Command{
	"/complain":          CmdStart,
	"/new":               CmdStart,
	"file a complaint":   CmdStart,
	"i want to complain": CmdStart,
	"new complaint":      CmdStart,
	"/submit":            CmdSubmit,
	"/done":              CmdSubmit,
	"submit":             CmdSubmit,
	"done":               CmdSubmit,
	"/cancel":            CmdCancel,
	"cancel":             CmdCancel,
	"nevermind":          CmdCancel,
	"/help":              CmdHelp,
	"/start":             CmdHelp,
	"help":               CmdHelp,
	"/status":            CmdStatus,
	"status":             CmdStatus,
}

// ParseCommand normalizes inbound text and maps it to a command.
// Slash commands tolerate a bot-name suffix ("/submit@HRComplaintBot").
func ParseCommand(text string) Command {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if strings.HasPrefix(normalized, "/") {
		if at := strings.IndexByte(normalized, '@'); at > 0 {
			normalized = normalized[:at]
		}
	}
	if cmd, ok := commandAliases[normalized]; ok {
		return cmd
	}
	return CmdNone
}

// IsCommandText reports whether the text would be treated as a command
// rather than complaint content.
func IsCommandText(text string) bool {
	return ParseCommand(text) != CmdNone
}
