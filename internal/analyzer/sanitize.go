package analyzer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/voxhr/complaint-bot/internal/models"
)

// Documented bounds for the analysis schema. The sanitizer is the sole
// authority on schema conformance: nothing downstream trusts the provider's
// claims without passing through here first.
const (
	MaxKeywords            = 15
	MaxKeyPhrases          = 10
	MaxEmotionalIndicators = 10
	MaxSecondaryCategories = 3
	MaxRecommendedActions  = 5
	MaxSummaryLen          = 600
	MaxStringLen           = 160
)

// Sanitize coerces arbitrary provider output into the fixed analysis
// schema. Numeric fields are clamped, unknown enum values fall back to
// safe defaults, arrays and strings are truncated. The only error it can
// return is MalformedResponse, when no JSON object can be recovered at all;
// everything else is repaired rather than rejected.
func Sanitize(raw string) (*models.AnalysisRecord, error) {
	payload, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}

	record := &models.AnalysisRecord{}

	sentiment := asMap(payload["sentiment"])
	record.Sentiment = models.Sentiment{
		Label:      sanitizeSentimentLabel(asString(sentiment["label"])),
		Score:      clamp(asFloat(sentiment["score"]), -1, 1),
		Confidence: clamp(asFloat(sentiment["confidence"]), 0, 1),
	}

	classification := asMap(payload["classification"])
	record.Classification = models.Classification{
		PrimaryCategory:     sanitizeCategory(asString(classification["primary_category"])),
		SecondaryCategories: sanitizeCategories(asStringSlice(classification["secondary_categories"])),
		Severity:            sanitizeSeverity(asString(classification["severity"])),
		Urgency:             clampInt(asInt(classification["urgency"]), 1, 10),
	}

	record.Keywords = sanitizeKeywords(payload["keywords"])
	record.KeyPhrases = truncateStrings(asStringSlice(payload["key_phrases"]), MaxKeyPhrases)
	record.EmotionalIndicators = truncateStrings(asStringSlice(payload["emotional_indicators"]), MaxEmotionalIndicators)
	record.Summary = truncate(asString(payload["summary"]), MaxSummaryLen)
	record.RecommendedActions = truncateStrings(asStringSlice(payload["recommended_actions"]), MaxRecommendedActions)

	return record, nil
}

// extractJSON strips code-fence markup and surrounding prose, then parses
// the first top-level JSON object found.
func extractJSON(raw string) (map[string]any, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.IndexByte(cleaned, '{')
	end := strings.LastIndexByte(cleaned, '}')
	if start < 0 || end <= start {
		return nil, &models.MalformedResponse{Detail: "no JSON object in response"}
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &payload); err != nil {
		return nil, &models.MalformedResponse{Detail: err.Error()}
	}
	return payload, nil
}

func sanitizeSentimentLabel(label string) models.SentimentLabel {
	switch models.SentimentLabel(strings.ToLower(label)) {
	case models.SentimentPositive:
		return models.SentimentPositive
	case models.SentimentNegative:
		return models.SentimentNegative
	default:
		return models.SentimentNeutral
	}
}

func sanitizeCategory(category string) string {
	normalized := strings.ToLower(strings.TrimSpace(category))
	if models.ValidCategory(normalized) {
		return normalized
	}
	return models.CategoryOther
}

func sanitizeCategories(categories []string) []string {
	var result []string
	for _, c := range categories {
		normalized := strings.ToLower(strings.TrimSpace(c))
		if models.ValidCategory(normalized) {
			result = append(result, normalized)
		}
		if len(result) == MaxSecondaryCategories {
			break
		}
	}
	return result
}

func sanitizeSeverity(severity string) models.Severity {
	switch models.Severity(strings.ToLower(severity)) {
	case models.SeverityLow:
		return models.SeverityLow
	case models.SeverityHigh:
		return models.SeverityHigh
	case models.SeverityCritical:
		return models.SeverityCritical
	default:
		return models.SeverityMedium
	}
}

func sanitizeKeywords(value any) []models.Keyword {
	items, ok := value.([]any)
	if !ok {
		return nil
	}

	var keywords []models.Keyword
	for _, item := range items {
		entry := asMap(item)
		word := truncate(strings.TrimSpace(asString(entry["word"])), MaxStringLen)
		if word == "" {
			// A bare string keyword is accepted too.
			word = truncate(strings.TrimSpace(asString(item)), MaxStringLen)
		}
		if word == "" {
			continue
		}

		frequency := asInt(entry["frequency"])
		if frequency < 1 {
			frequency = 1
		}
		keywords = append(keywords, models.Keyword{
			Word:      word,
			Frequency: frequency,
			Relevance: clamp(asFloat(entry["relevance"]), 0, 1),
		})
		if len(keywords) == MaxKeywords {
			break
		}
	}
	return keywords
}

func truncateStrings(values []string, max int) []string {
	var result []string
	for _, v := range values {
		v = truncate(strings.TrimSpace(v), MaxStringLen)
		if v == "" {
			continue
		}
		result = append(result, v)
		if len(result) == max {
			break
		}
	}
	return result
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Min(hi, math.Max(lo, v))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Loose coercion helpers: the provider's JSON is untrusted, so every field
// is pulled out of map[string]any with type repair instead of decoding
// straight into the domain type.

func asMap(value any) map[string]any {
	if m, ok := value.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func asString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func asFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return parsed
		}
	}
	return 0
}

func asInt(value any) int {
	switch v := value.(type) {
	case float64:
		return int(math.Round(v))
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return int(math.Round(parsed))
		}
	}
	return 0
}

func asStringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	var result []string
	for _, item := range items {
		if s := asString(item); s != "" {
			result = append(result, s)
		}
	}
	return result
}
