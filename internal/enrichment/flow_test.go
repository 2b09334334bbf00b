package enrichment_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxhr/complaint-bot/internal/enrichment"
	"github.com/voxhr/complaint-bot/internal/models"
	"github.com/voxhr/complaint-bot/internal/session"
	"github.com/voxhr/complaint-bot/internal/storage"
	"go.uber.org/zap"
)

type noopNotifier struct{}

func (noopNotifier) Push(userID int64, text string) {}

// TestSubmitFlowProducesOneAnalysis drives the whole pipeline: a user files
// a complaint through the state machine, submit fires enrichment in the
// background, and exactly one analysis record appears.
func TestSubmitFlowProducesOneAnalysis(t *testing.T) {
	store := storage.NewMemoryStorage()
	provider := &fakeProvider{response: analysisJSON}
	orch := newOrchestrator(store, provider)
	manager := session.NewManager(store, noopNotifier{}, orch.TriggerAsync, zap.NewNop())
	t.Cleanup(manager.Stop)

	send := func(text string) string {
		return manager.HandleMessage(context.Background(), session.Inbound{
			UserID:      7,
			DisplayName: "Dana Rivers",
			Text:        text,
			Timestamp:   time.Now(),
		})
	}

	reply := send("/complain")
	complaintID := regexp.MustCompile(`CMP-\d{4}-\d{2}-\d{2}-\d{4}`).FindString(reply)
	require.NotEmpty(t, complaintID)

	send("my manager assigns unpaid overtime")
	submitReply := send("/submit")
	assert.Contains(t, submitReply, complaintID,
		"submit must confirm immediately, independent of analysis")

	submitted, err := store.ListSessionsByStatus(context.Background(), models.StatusSubmitted, 10, 0)
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Len(t, submitted[0].Transcript, 5)

	require.Eventually(t, func() bool {
		_, err := store.GetAnalysisBySession(context.Background(), submitted[0].SessionID)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	record, err := store.GetAnalysisBySession(context.Background(), submitted[0].SessionID)
	require.NoError(t, err)
	assert.Equal(t, complaintID, record.ComplaintID)
	assert.Equal(t, 1, provider.Calls(), "exactly one analysis per submitted session")
}

func TestSweeperRecoversIdleAndUnanalyzed(t *testing.T) {
	store := storage.NewMemoryStorage()
	provider := &fakeProvider{response: analysisJSON}
	orch := newOrchestrator(store, provider)
	manager := session.NewManager(store, noopNotifier{}, orch.TriggerAsync, zap.NewNop())
	t.Cleanup(manager.Stop)

	// An open session whose timer died with a restart, idle past the
	// timeout, with user content.
	stale := &models.ComplaintSession{
		SessionID:   "sess-stale",
		ComplaintID: "CMP-2026-02-02-0001",
		UserID:      3,
		Status:      models.StatusOpen,
		StartTime:   time.Now().Add(-time.Hour),
		Transcript: []models.TranscriptEntry{
			{Timestamp: time.Now().Add(-time.Hour), Direction: models.DirectionUser, Kind: models.KindCommand, Body: "/complain"},
			{Timestamp: time.Now().Add(-50 * time.Minute), Direction: models.DirectionUser, Kind: models.KindText, Body: "equipment safety checks are being skipped"},
		},
	}
	require.NoError(t, store.CreateSession(context.Background(), stale))

	sweeper := enrichment.NewSweeper(store, orch, manager, 10*time.Minute, 20, zap.NewNop())
	sweeper.RunOnce()

	closed, err := store.GetSession(context.Background(), "sess-stale")
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, closed.Status)

	// The auto-submit trigger is asynchronous; the sweep's catch-up or the
	// trigger itself must leave exactly one record behind.
	require.Eventually(t, func() bool {
		_, err := store.GetAnalysisBySession(context.Background(), "sess-stale")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
}
