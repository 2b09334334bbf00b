package analyzer

import (
	"fmt"
	"strings"
	"time"

	"github.com/voxhr/complaint-bot/internal/models"
)

// responseShape is embedded verbatim in every prompt so the model is
// constrained to produce a parseable, schema-shaped answer.
const responseShape = `{
    "sentiment": {"label": "positive|neutral|negative", "score": -1.0 to 1.0, "confidence": 0.0 to 1.0},
    "classification": {
        "primary_category": "one of the listed categories",
        "secondary_categories": ["up to 3 additional categories"],
        "severity": "low|medium|high|critical",
        "urgency": 1 to 10
    },
    "keywords": [{"word": "keyword", "frequency": 1, "relevance": 0.0 to 1.0}],
    "key_phrases": ["short phrases quoted or paraphrased from the complaint"],
    "emotional_indicators": ["words or expressions signaling the reporter's emotional state"],
    "summary": "2-3 sentence neutral summary",
    "recommended_actions": ["concrete next steps for the reviewer"]
}`

// BuildPrompt constructs the analysis instruction for one submitted
// session. The concatenation order is fixed (duration, participants,
// transcript, output shape) so identical input always yields an identical
// prompt. Only user-authored text is included: bot, system and command
// entries never influence the analysis.
func BuildPrompt(session *models.ComplaintSession, profile *models.UserProfile) string {
	var b strings.Builder

	b.WriteString("You are analyzing an employee complaint filed through a chat bot.\n\n")

	duration := "unknown"
	if session.EndTime != nil {
		duration = session.EndTime.Sub(session.StartTime).Round(time.Second).String()
	}
	fmt.Fprintf(&b, "Complaint %s, session duration %s, %d transcript entries.\n",
		session.ComplaintID, duration, len(session.Transcript))

	name := profile.DisplayName
	if name == "" {
		name = "unknown"
	}
	department := profile.Department
	if department == "" {
		department = "unspecified"
	}
	fmt.Fprintf(&b, "Filed by %s, department %s.\n\n", name, department)

	b.WriteString("Complaint text, in the reporter's own words:\n")
	for _, line := range UserContent(session) {
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteByte('\n')
	}

	b.WriteString("\nAllowed categories: ")
	b.WriteString(strings.Join(models.Categories, ", "))
	b.WriteString(".\n\nRespond with exactly one JSON object of this shape and nothing else:\n")
	b.WriteString(responseShape)
	b.WriteByte('\n')

	return b.String()
}

// UserContent extracts the user-authored text and media lines from a
// transcript, stripping command entries and any leading command token left
// inside a text entry.
func UserContent(session *models.ComplaintSession) []string {
	var lines []string
	for _, e := range session.Transcript {
		if e.Direction != models.DirectionUser {
			continue
		}
		if e.Kind != models.KindText && e.Kind != models.KindMedia {
			continue
		}
		body := strings.TrimSpace(e.Body)
		if strings.HasPrefix(body, "/") {
			if idx := strings.IndexByte(body, ' '); idx > 0 {
				body = strings.TrimSpace(body[idx:])
			} else {
				continue
			}
		}
		if body != "" {
			lines = append(lines, body)
		}
	}
	return lines
}
