package session_test

import (
	"context"
	"errors"
	"math/rand"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voxhr/complaint-bot/internal/models"
	"github.com/voxhr/complaint-bot/internal/session"
	"github.com/voxhr/complaint-bot/internal/storage"
	"go.uber.org/zap"
)

var complaintIDPattern = regexp.MustCompile(`CMP-\d{4}-\d{2}-\d{2}-\d{4}`)

type pushRecorder struct {
	mu     sync.Mutex
	pushes []string
}

func (p *pushRecorder) Push(userID int64, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, text)
}

type enrichRecorder struct {
	mu       sync.Mutex
	sessions []string
}

func (e *enrichRecorder) Trigger(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sessions = append(e.sessions, sessionID)
}

func (e *enrichRecorder) Sessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.sessions...)
}

func newTestManager(t *testing.T) (*session.Manager, *storage.MemoryStorage, *pushRecorder, *enrichRecorder) {
	t.Helper()
	store := storage.NewMemoryStorage()
	pushes := &pushRecorder{}
	enrich := &enrichRecorder{}
	manager := session.NewManager(store, pushes, enrich.Trigger, zap.NewNop())
	t.Cleanup(manager.Stop)
	return manager, store, pushes, enrich
}

func send(manager *session.Manager, userID int64, text string) string {
	return manager.HandleMessage(context.Background(), session.Inbound{
		UserID:      userID,
		DisplayName: "Alex Berg",
		Text:        text,
		Timestamp:   time.Now(),
	})
}

func TestStartCreatesSession(t *testing.T) {
	manager, store, _, _ := newTestManager(t)

	reply := send(manager, 1, "/complain")
	require.Regexp(t, complaintIDPattern, reply)

	open, err := store.GetOpenSessionByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, open.Status)
	assert.Regexp(t, `^CMP-\d{4}-\d{2}-\d{2}-\d{4}$`, open.ComplaintID)
	require.Len(t, open.Transcript, 2)
	assert.Equal(t, models.KindCommand, open.Transcript[0].Kind)
	assert.Equal(t, models.DirectionBot, open.Transcript[1].Direction)
}

func TestDuplicateStartKeepsOneSession(t *testing.T) {
	manager, store, _, _ := newTestManager(t)

	first := send(manager, 1, "/complain")
	second := send(manager, 1, "/complain")

	firstID := complaintIDPattern.FindString(first)
	require.NotEmpty(t, firstID)
	assert.Equal(t, firstID, complaintIDPattern.FindString(second),
		"second start must reference the same complaint id")

	open, err := store.GetOpenSessionByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, firstID, open.ComplaintID)
}

func TestSubmitWithoutContentRejected(t *testing.T) {
	manager, store, _, enrich := newTestManager(t)

	send(manager, 1, "/complain")
	reply := send(manager, 1, "/submit")
	assert.Contains(t, reply, "describe")

	open, err := store.GetOpenSessionByUser(context.Background(), 1)
	require.NoError(t, err, "session must stay open after a rejected submit")
	assert.Equal(t, models.StatusOpen, open.Status)
	assert.Empty(t, enrich.Sessions())
}

func TestSubmitHappyPath(t *testing.T) {
	manager, store, _, enrich := newTestManager(t)

	start := send(manager, 1, "/complain")
	send(manager, 1, "my manager assigns unpaid overtime")
	reply := send(manager, 1, "/submit")

	complaintID := complaintIDPattern.FindString(start)
	require.NotEmpty(t, complaintID)
	assert.Contains(t, reply, complaintID)

	enriched := enrich.Sessions()
	require.Len(t, enriched, 1)

	submitted, err := store.GetSession(context.Background(), enriched[0])
	require.NoError(t, err)
	assert.Equal(t, models.StatusSubmitted, submitted.Status)
	require.NotNil(t, submitted.EndTime)
	assert.Equal(t, complaintID, submitted.ComplaintID)

	// start command, bot ack, user text, bot ack, submit command
	require.Len(t, submitted.Transcript, 5)
	assert.Equal(t, models.KindCommand, submitted.Transcript[0].Kind)
	assert.Equal(t, models.DirectionBot, submitted.Transcript[1].Direction)
	assert.Equal(t, models.KindText, submitted.Transcript[2].Kind)
	assert.Equal(t, "my manager assigns unpaid overtime", submitted.Transcript[2].Body)
	assert.Equal(t, models.DirectionBot, submitted.Transcript[3].Direction)
	assert.Equal(t, models.KindCommand, submitted.Transcript[4].Kind)
}

func TestCancelClosesSession(t *testing.T) {
	manager, store, _, enrich := newTestManager(t)

	send(manager, 1, "/complain")
	send(manager, 1, "something happened")
	reply := send(manager, 1, "/cancel")
	assert.Contains(t, reply, "discarded")

	_, err := store.GetOpenSessionByUser(context.Background(), 1)
	assert.ErrorIs(t, err, models.ErrNotFound)

	cancelled, err := store.ListSessionsByStatus(context.Background(), models.StatusCancelled, 10, 0)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Empty(t, enrich.Sessions(), "cancel must not trigger enrichment")
}

func TestTimeoutWithContentAutoSubmits(t *testing.T) {
	manager, store, pushes, enrich := newTestManager(t)

	send(manager, 1, "/complain")
	send(manager, 1, "the night shift schedule keeps changing without notice")

	manager.ExpireIdleSession(context.Background(), 1)

	submitted, err := store.ListSessionsByStatus(context.Background(), models.StatusSubmitted, 10, 0)
	require.NoError(t, err)
	require.Len(t, submitted, 1)

	last := submitted[0].Transcript[len(submitted[0].Transcript)-1]
	assert.Equal(t, models.KindTimeout, last.Kind)
	assert.Equal(t, models.DirectionSystem, last.Direction)

	assert.Len(t, enrich.Sessions(), 1)
	require.Len(t, pushes.pushes, 1)
	assert.Contains(t, pushes.pushes[0], submitted[0].ComplaintID)
}

func TestTimeoutWithoutContentCancelsSilently(t *testing.T) {
	manager, store, pushes, enrich := newTestManager(t)

	send(manager, 1, "/complain")
	manager.ExpireIdleSession(context.Background(), 1)

	cancelled, err := store.ListSessionsByStatus(context.Background(), models.StatusCancelled, 10, 0)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Empty(t, pushes.pushes, "silent cancel must not notify")
	assert.Empty(t, enrich.Sessions())
}

func TestTimeoutAfterCloseIsNoop(t *testing.T) {
	manager, store, pushes, enrich := newTestManager(t)

	send(manager, 1, "/complain")
	send(manager, 1, "details")
	send(manager, 1, "/submit")

	// Simulates a timer firing after the session already closed.
	manager.ExpireIdleSession(context.Background(), 1)

	submitted, err := store.ListSessionsByStatus(context.Background(), models.StatusSubmitted, 10, 0)
	require.NoError(t, err)
	require.Len(t, submitted, 1)
	assert.Len(t, enrich.Sessions(), 1, "no double submit")
	assert.Empty(t, pushes.pushes)
}

func TestTextOutsideSessionNeverCreatesOne(t *testing.T) {
	manager, store, _, _ := newTestManager(t)

	reply := send(manager, 1, "hello, what can you do?")
	assert.Contains(t, reply, "/complain")

	_, err := store.GetOpenSessionByUser(context.Background(), 1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUnknownCommandNotRecordedAsContent(t *testing.T) {
	manager, store, _, _ := newTestManager(t)

	send(manager, 1, "/complain")
	reply := send(manager, 1, "/frobnicate")
	assert.Contains(t, reply, "/help")

	open, err := store.GetOpenSessionByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, open.Transcript, 2, "unknown command must not become complaint content")
	assert.Zero(t, open.UserContentCount())
}

func TestMediaAppendsMediaEntry(t *testing.T) {
	manager, store, _, _ := newTestManager(t)

	send(manager, 1, "/complain")
	manager.HandleMessage(context.Background(), session.Inbound{
		UserID:    1,
		Text:      "proof attached",
		MediaNote: "photo",
		Timestamp: time.Now(),
	})

	open, err := store.GetOpenSessionByUser(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, open.Transcript, 4)
	assert.Equal(t, models.KindMedia, open.Transcript[2].Kind)
	assert.Equal(t, "photo: proof attached", open.Transcript[2].Body)
}

// TestSingleOpenSessionInvariant replays randomized command sequences and
// checks that no user ever accumulates more than one open session.
func TestSingleOpenSessionInvariant(t *testing.T) {
	manager, store, _, _ := newTestManager(t)

	rng := rand.New(rand.NewSource(42))
	inputs := []string{"/complain", "/submit", "/cancel", "/status", "/help", "some complaint text", "more detail"}

	for i := 0; i < 500; i++ {
		userID := int64(rng.Intn(5) + 1)
		send(manager, userID, inputs[rng.Intn(len(inputs))])

		for user := int64(1); user <= 5; user++ {
			count := 0
			for _, status := range []models.SessionStatus{models.StatusOpen} {
				sessions, err := store.ListSessionsByStatus(context.Background(), status, 100, 0)
				require.NoError(t, err)
				for _, s := range sessions {
					if s.UserID == user {
						count++
					}
				}
			}
			require.LessOrEqual(t, count, 1, "user %d has %d open sessions", user, count)
		}
	}
}

// failingStore injects append failures to verify the no-partial-transition
// degrade path.
type failingStore struct {
	storage.Storage
	failAppend bool
}

func (f *failingStore) AppendTranscript(ctx context.Context, sessionID string, entry models.TranscriptEntry) error {
	if f.failAppend {
		return errors.New("write refused")
	}
	return f.Storage.AppendTranscript(ctx, sessionID, entry)
}

func TestStoreFailureDegradesToApology(t *testing.T) {
	store := &failingStore{Storage: storage.NewMemoryStorage()}
	manager := session.NewManager(store, &pushRecorder{}, nil, zap.NewNop())
	t.Cleanup(manager.Stop)

	send(manager, 1, "/complain")
	store.failAppend = true

	reply := send(manager, 1, "this will not persist")
	assert.Contains(t, reply, "Sorry")
	assert.NotContains(t, reply, "write refused", "internal detail must not leak")

	open, err := store.GetOpenSessionByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, open.Transcript, 2, "failed append must leave the transcript unchanged")
}

func TestTranscriptCapRefusesFurtherContent(t *testing.T) {
	store := storage.NewMemoryStorage()
	manager := session.NewManager(store, &pushRecorder{}, nil, zap.NewNop(),
		session.WithMaxTranscriptEntries(3))
	t.Cleanup(manager.Stop)

	send(manager, 1, "/complain")
	send(manager, 1, "first detail")
	reply := send(manager, 1, "second detail")
	assert.Contains(t, reply, "maximum length")

	open, err := store.GetOpenSessionByUser(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, open.Transcript, 3, "stored transcript never exceeds the cap")
}

func TestParseCommandAliases(t *testing.T) {
	cases := map[string]session.Command{
		"/complain":          session.CmdStart,
		"/COMPLAIN":          session.CmdStart,
		"file a complaint":   session.CmdStart,
		"/submit@SomeBot":    session.CmdSubmit,
		" done ":             session.CmdSubmit,
		"/cancel":            session.CmdCancel,
		"/help":              session.CmdHelp,
		"/status":            session.CmdStatus,
		"my manager is rude": session.CmdNone,
	}
	for text, expected := range cases {
		assert.Equal(t, expected, session.ParseCommand(text), "text %q", text)
	}
}
