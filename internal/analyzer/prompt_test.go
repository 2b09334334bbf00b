package analyzer_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxhr/complaint-bot/internal/analyzer"
	"github.com/voxhr/complaint-bot/internal/models"
)

func sampleSession() *models.ComplaintSession {
	start := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	end := start.Add(7 * time.Minute)
	return &models.ComplaintSession{
		SessionID:   "sess-1",
		ComplaintID: "CMP-2026-03-14-0001",
		UserID:      7,
		Status:      models.StatusSubmitted,
		StartTime:   start,
		EndTime:     &end,
		Department:  "logistics",
		Transcript: []models.TranscriptEntry{
			{Timestamp: start, Direction: models.DirectionUser, Kind: models.KindCommand, Body: "/complain"},
			{Timestamp: start, Direction: models.DirectionBot, Kind: models.KindText, Body: "Your complaint has been opened."},
			{Timestamp: start, Direction: models.DirectionUser, Kind: models.KindText, Body: "my shift schedule changes daily without warning"},
			{Timestamp: start, Direction: models.DirectionUser, Kind: models.KindMedia, Body: "photo: schedule board"},
			{Timestamp: start, Direction: models.DirectionSystem, Kind: models.KindTimeout, Body: "session auto-closed after inactivity timeout"},
		},
	}
}

func sampleProfile() *models.UserProfile {
	return &models.UserProfile{ID: 7, DisplayName: "Dana Rivers", Department: "logistics"}
}

func TestBuildPromptIsDeterministic(t *testing.T) {
	first := analyzer.BuildPrompt(sampleSession(), sampleProfile())
	second := analyzer.BuildPrompt(sampleSession(), sampleProfile())
	assert.Equal(t, first, second)
}

func TestBuildPromptUsesOnlyUserContent(t *testing.T) {
	prompt := analyzer.BuildPrompt(sampleSession(), sampleProfile())

	assert.Contains(t, prompt, "my shift schedule changes daily without warning")
	assert.Contains(t, prompt, "photo: schedule board")
	assert.NotContains(t, prompt, "/complain", "command tokens must not reach the model")
	assert.NotContains(t, prompt, "Your complaint has been opened", "bot lines must not reach the model")
	assert.NotContains(t, prompt, "auto-closed", "system notes must not reach the model")
}

func TestBuildPromptSectionOrder(t *testing.T) {
	prompt := analyzer.BuildPrompt(sampleSession(), sampleProfile())

	duration := strings.Index(prompt, "session duration")
	participants := strings.Index(prompt, "Filed by Dana Rivers")
	transcript := strings.Index(prompt, "my shift schedule")
	shape := strings.Index(prompt, `"sentiment"`)

	require.True(t, duration >= 0 && participants >= 0 && transcript >= 0 && shape >= 0)
	assert.Less(t, duration, participants)
	assert.Less(t, participants, transcript)
	assert.Less(t, transcript, shape)
}

func TestBuildPromptEmbedsAllCategories(t *testing.T) {
	prompt := analyzer.BuildPrompt(sampleSession(), sampleProfile())
	for _, category := range models.Categories {
		assert.Contains(t, prompt, category)
	}
}

func TestUserContentStripsLeadingCommandToken(t *testing.T) {
	session := sampleSession()
	session.Transcript = append(session.Transcript, models.TranscriptEntry{
		Direction: models.DirectionUser,
		Kind:      models.KindText,
		Body:      "/complain my badge was revoked without explanation",
	})

	content := analyzer.UserContent(session)
	assert.Contains(t, content, "my badge was revoked without explanation")
	for _, line := range content {
		assert.False(t, strings.HasPrefix(line, "/"), "line %q keeps a command token", line)
	}
}
