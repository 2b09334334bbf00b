package analyzer_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxhr/complaint-bot/internal/analyzer"
	"github.com/voxhr/complaint-bot/internal/models"
)

const wellFormed = `{
	"sentiment": {"label": "negative", "score": -0.8, "confidence": 0.9},
	"classification": {
		"primary_category": "workload",
		"secondary_categories": ["management"],
		"severity": "high",
		"urgency": 7
	},
	"keywords": [{"word": "overtime", "frequency": 3, "relevance": 0.95}],
	"key_phrases": ["unpaid overtime"],
	"emotional_indicators": ["frustrated"],
	"summary": "Reporter describes recurring unpaid overtime assigned by their manager.",
	"recommended_actions": ["Review time tracking for the team"]
}`

func TestSanitizeWellFormed(t *testing.T) {
	record, err := analyzer.Sanitize(wellFormed)
	require.NoError(t, err)

	assert.Equal(t, models.SentimentNegative, record.Sentiment.Label)
	assert.InDelta(t, -0.8, record.Sentiment.Score, 1e-9)
	assert.Equal(t, "workload", record.Classification.PrimaryCategory)
	assert.Equal(t, []string{"management"}, record.Classification.SecondaryCategories)
	assert.Equal(t, models.SeverityHigh, record.Classification.Severity)
	assert.Equal(t, 7, record.Classification.Urgency)
	require.Len(t, record.Keywords, 1)
	assert.Equal(t, "overtime", record.Keywords[0].Word)
	assert.Equal(t, 3, record.Keywords[0].Frequency)
}

func TestSanitizeStripsCodeFences(t *testing.T) {
	record, err := analyzer.Sanitize("```json\n" + wellFormed + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "workload", record.Classification.PrimaryCategory)
}

func TestSanitizeIgnoresSurroundingProse(t *testing.T) {
	record, err := analyzer.Sanitize("Here is the analysis you asked for:\n" + wellFormed + "\nLet me know if you need more.")
	require.NoError(t, err)
	assert.Equal(t, models.SentimentNegative, record.Sentiment.Label)
}

func TestSanitizeClampsNumericRanges(t *testing.T) {
	record, err := analyzer.Sanitize(`{
		"sentiment": {"label": "negative", "score": -5.5, "confidence": 3},
		"classification": {"primary_category": "workload", "severity": "high", "urgency": 99},
		"keywords": [{"word": "pay", "frequency": -2, "relevance": 7}]
	}`)
	require.NoError(t, err)

	assert.Equal(t, -1.0, record.Sentiment.Score)
	assert.Equal(t, 1.0, record.Sentiment.Confidence)
	assert.Equal(t, 10, record.Classification.Urgency)
	require.Len(t, record.Keywords, 1)
	assert.Equal(t, 1, record.Keywords[0].Frequency)
	assert.Equal(t, 1.0, record.Keywords[0].Relevance)
}

func TestSanitizeDefaultsUnknownEnums(t *testing.T) {
	record, err := analyzer.Sanitize(`{
		"sentiment": {"label": "furious", "score": 0.1, "confidence": 0.5},
		"classification": {"primary_category": "alien abduction", "severity": "apocalyptic", "urgency": 5}
	}`)
	require.NoError(t, err)

	assert.Equal(t, models.SentimentNeutral, record.Sentiment.Label)
	assert.Equal(t, models.CategoryOther, record.Classification.PrimaryCategory)
	assert.Equal(t, models.SeverityMedium, record.Classification.Severity)
}

func TestSanitizeTruncatesOversizedFields(t *testing.T) {
	var categories []string
	for i := 0; i < 10; i++ {
		categories = append(categories, "management")
	}
	var keywords []string
	for i := 0; i < 40; i++ {
		keywords = append(keywords, fmt.Sprintf(`{"word": "kw%d", "frequency": 1, "relevance": 0.5}`, i))
	}
	longSummary := strings.Repeat("a", 5000)

	record, err := analyzer.Sanitize(fmt.Sprintf(`{
		"classification": {"primary_category": "workload", "secondary_categories": ["%s"], "severity": "low", "urgency": 1},
		"keywords": [%s],
		"summary": "%s"
	}`, strings.Join(categories, `","`), strings.Join(keywords, ","), longSummary))
	require.NoError(t, err)

	assert.Len(t, record.Classification.SecondaryCategories, analyzer.MaxSecondaryCategories)
	assert.Len(t, record.Keywords, analyzer.MaxKeywords)
	assert.Len(t, record.Summary, analyzer.MaxSummaryLen)
}

func TestSanitizeRepairsMistypedFields(t *testing.T) {
	record, err := analyzer.Sanitize(`{
		"sentiment": {"label": "negative", "score": "-0.4", "confidence": "0.8"},
		"classification": {"primary_category": "compensation", "severity": "low", "urgency": "3"},
		"keywords": ["salary", "bonus"],
		"summary": 42
	}`)
	require.NoError(t, err)

	assert.InDelta(t, -0.4, record.Sentiment.Score, 1e-9)
	assert.Equal(t, 3, record.Classification.Urgency)
	require.Len(t, record.Keywords, 2)
	assert.Equal(t, "salary", record.Keywords[0].Word)
	assert.Equal(t, "42", record.Summary)
}

func TestSanitizeEmptyObjectStaysInBounds(t *testing.T) {
	record, err := analyzer.Sanitize("{}")
	require.NoError(t, err)

	assert.Equal(t, models.SentimentNeutral, record.Sentiment.Label)
	assert.Equal(t, models.CategoryOther, record.Classification.PrimaryCategory)
	assert.Equal(t, models.SeverityMedium, record.Classification.Severity)
	assert.Equal(t, 1, record.Classification.Urgency)
	assert.GreaterOrEqual(t, record.Sentiment.Score, -1.0)
	assert.LessOrEqual(t, record.Sentiment.Score, 1.0)
}

func TestSanitizeRejectsNonJSON(t *testing.T) {
	for _, raw := range []string{"", "I cannot analyze this complaint.", "```\nnot json\n```", "{broken"} {
		_, err := analyzer.Sanitize(raw)
		var malformed *models.MalformedResponse
		assert.ErrorAs(t, err, &malformed, "input %q", raw)
	}
}
