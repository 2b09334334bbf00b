package models

import "time"

type SessionStatus string

const (
	StatusOpen      SessionStatus = "open"
	StatusSubmitted SessionStatus = "submitted"
	StatusCancelled SessionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == StatusSubmitted || s == StatusCancelled
}

type Direction string

const (
	DirectionUser   Direction = "user"
	DirectionBot    Direction = "bot"
	DirectionSystem Direction = "system"
)

type EntryKind string

const (
	KindText    EntryKind = "text"
	KindCommand EntryKind = "command"
	KindMedia   EntryKind = "media"
	KindTimeout EntryKind = "timeout"
)

// TranscriptEntry is one line of a session's conversation log. Entries are
// append-only: once written they are never edited or removed.
type TranscriptEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Direction Direction `json:"direction"`
	Kind      EntryKind `json:"kind"`
	Body      string    `json:"body"`
}

// ComplaintSession is one user's attempt at filing a complaint, from the
// initiating command to submit, cancel, or timeout.
type ComplaintSession struct {
	SessionID   string            `json:"session_id"`
	ComplaintID string            `json:"complaint_id"`
	UserID      int64             `json:"user_id"`
	Status      SessionStatus     `json:"status"`
	StartTime   time.Time         `json:"start_time"`
	EndTime     *time.Time        `json:"end_time,omitempty"`
	Department  string            `json:"department,omitempty"`
	Transcript  []TranscriptEntry `json:"transcript"`
}

// UserContentCount counts transcript entries the user authored as free text
// or media, excluding commands. Submit eligibility depends on it.
func (s *ComplaintSession) UserContentCount() int {
	n := 0
	for _, e := range s.Transcript {
		if e.Direction == DirectionUser && (e.Kind == KindText || e.Kind == KindMedia) {
			n++
		}
	}
	return n
}

// UserProfile is the directory entry for a bot user, created lazily on
// first contact.
type UserProfile struct {
	ID          int64     `json:"id"`
	DisplayName string    `json:"display_name"`
	Department  string    `json:"department,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "positive"
	SentimentNeutral  SentimentLabel = "neutral"
	SentimentNegative SentimentLabel = "negative"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// SeverityOrdinal maps a severity to 1-4 for averaging in rollups.
func SeverityOrdinal(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Categories is the closed set a complaint may be classified into. The
// analysis prompt embeds this list verbatim and the sanitizer falls back to
// CategoryOther for anything outside it.
var Categories = []string{
	"harassment",
	"discrimination",
	"compensation",
	"workload",
	"management",
	"work_conditions",
	"interpersonal_conflict",
	"career_growth",
	"company_policy",
	"ethics_violation",
	"other",
}

const CategoryOther = "other"

// ValidCategory reports whether c is in the closed category set.
func ValidCategory(c string) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

type Sentiment struct {
	Label      SentimentLabel `json:"label"`
	Score      float64        `json:"score"`
	Confidence float64        `json:"confidence"`
}

type Classification struct {
	PrimaryCategory     string   `json:"primary_category"`
	SecondaryCategories []string `json:"secondary_categories"`
	Severity            Severity `json:"severity"`
	Urgency             int      `json:"urgency"`
}

type Keyword struct {
	Word      string  `json:"word"`
	Frequency int     `json:"frequency"`
	Relevance float64 `json:"relevance"`
}

// ProcessingMeta records how an analysis was produced, including any
// provider errors that were recovered from during sanitization.
type ProcessingMeta struct {
	Model            string   `json:"model"`
	LatencyMS        int64    `json:"latency_ms"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	Errors           []string `json:"errors,omitempty"`
}

// AnalysisRecord is the immutable enrichment artifact for one submitted
// session. At most one exists per session.
type AnalysisRecord struct {
	SessionID           string         `json:"session_id"`
	ComplaintID         string         `json:"complaint_id"`
	UserID              int64          `json:"user_id"`
	Department          string         `json:"department,omitempty"`
	Sentiment           Sentiment      `json:"sentiment"`
	Classification      Classification `json:"classification"`
	Keywords            []Keyword      `json:"keywords"`
	KeyPhrases          []string       `json:"key_phrases"`
	EmotionalIndicators []string       `json:"emotional_indicators"`
	Summary             string         `json:"summary"`
	RecommendedActions  []string       `json:"recommended_actions"`
	MessageCount        int            `json:"message_count"`
	TranscriptChars     int            `json:"transcript_chars"`
	ProcessingMeta      ProcessingMeta `json:"processing_meta"`
	CreatedAt           time.Time      `json:"created_at"`
}
