package bot

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/voxhr/complaint-bot/internal/session"
	"go.uber.org/zap"
)

// Bot adapts the Telegram transport to the session state machine: it maps
// updates to inbound events, sends the manager's replies, and delivers
// out-of-band pushes.
type Bot struct {
	api     *tgbotapi.BotAPI
	manager *session.Manager
	logger  *zap.Logger
}

func New(token string, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		api:    api,
		logger: logger,
	}, nil
}

// SetManager wires the state machine. Separate from New because the manager
// needs the bot as its notifier.
func (b *Bot) SetManager(manager *session.Manager) {
	b.manager = manager
}

func (b *Bot) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}

		go b.handleMessage(update.Message)
	}

	return nil
}

func (b *Bot) handleMessage(message *tgbotapi.Message) {
	ctx := context.Background()

	inbound := session.Inbound{
		UserID:      message.From.ID,
		DisplayName: displayName(message.From),
		Text:        message.Text,
		MediaNote:   mediaNote(message),
		Timestamp:   time.Unix(int64(message.Date), 0),
	}
	if inbound.Text == "" {
		inbound.Text = message.Caption
	}

	reply := b.manager.HandleMessage(ctx, inbound)
	if reply == "" {
		return
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, reply)
	msg.ReplyToMessageID = message.MessageID
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send reply",
			zap.Error(err),
			zap.Int64("chat_id", message.Chat.ID))
	}
}

// Push implements session.Notifier. Telegram private chats share the user
// id as the chat id, so a push needs no stored reply token.
func (b *Bot) Push(userID int64, text string) {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Error("Failed to send push",
			zap.Error(err),
			zap.Int64("user_id", userID))
	}
}

func displayName(user *tgbotapi.User) string {
	if user == nil {
		return ""
	}
	name := user.FirstName
	if user.LastName != "" {
		name += " " + user.LastName
	}
	if name == "" {
		name = user.UserName
	}
	return name
}

func mediaNote(message *tgbotapi.Message) string {
	switch {
	case len(message.Photo) > 0:
		return "photo"
	case message.Document != nil:
		return "document: " + message.Document.FileName
	case message.Video != nil:
		return "video"
	case message.Voice != nil:
		return "voice message"
	default:
		return ""
	}
}
