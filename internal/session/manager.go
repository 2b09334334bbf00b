package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/voxhr/complaint-bot/internal/models"
	"github.com/voxhr/complaint-bot/internal/storage"
	"go.uber.org/zap"
)

const (
	// DefaultInactivityTimeout closes a session that saw no user activity.
	DefaultInactivityTimeout = 10 * time.Minute
	// DefaultMaxTranscriptEntries bounds stored document growth.
	DefaultMaxTranscriptEntries = 200

	complaintIDRetries = 5
	timeoutNote        = "session auto-closed after inactivity timeout"
)

// Inbound is one chat event delivered by the transport.
type Inbound struct {
	UserID      int64
	DisplayName string
	Text        string
	// MediaNote is a short transport-provided description ("photo",
	// "document: report.pdf") for non-text messages; empty for plain text.
	MediaNote string
	Timestamp time.Time
}

// Notifier delivers out-of-band pushes when no reply token exists,
// e.g. after a timeout auto-submit.
type Notifier interface {
	Push(userID int64, text string)
}

// EnrichTrigger is invoked fire-and-forget once a session is submitted.
// Implementations must not block; the submit reply never waits on analysis.
type EnrichTrigger func(sessionID string)

// Manager is the per-user conversational state machine. It turns inbound
// chat events into session transitions and returns the reply text the
// transport should send.
type Manager struct {
	store    storage.Storage
	logger   *zap.Logger
	notifier Notifier
	enrich   EnrichTrigger

	timeout    time.Duration
	maxEntries int
	timers     *timerRegistry
}

type Option func(*Manager)

func WithInactivityTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

func WithMaxTranscriptEntries(n int) Option {
	return func(m *Manager) { m.maxEntries = n }
}

func NewManager(store storage.Storage, notifier Notifier, enrich EnrichTrigger, logger *zap.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		logger:     logger,
		notifier:   notifier,
		enrich:     enrich,
		timeout:    DefaultInactivityTimeout,
		maxEntries: DefaultMaxTranscriptEntries,
		timers:     newTimerRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Stop disarms all inactivity timers. Sessions left open are picked up by
// the idle sweep after restart.
func (m *Manager) Stop() {
	m.timers.StopAll()
}

// HandleMessage processes one inbound chat event and returns the reply.
// An empty reply means nothing should be sent.
func (m *Manager) HandleMessage(ctx context.Context, msg Inbound) string {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	profile, err := m.store.GetOrCreateUser(ctx, msg.UserID, msg.DisplayName)
	if err != nil {
		m.logger.Error("Failed to resolve user profile",
			zap.Error(err),
			zap.Int64("user_id", msg.UserID))
		return replyApology
	}

	open, err := m.store.GetOpenSessionByUser(ctx, msg.UserID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		m.logger.Error("Failed to look up open session",
			zap.Error(err),
			zap.Int64("user_id", msg.UserID))
		return replyApology
	}

	switch ParseCommand(msg.Text) {
	case CmdStart:
		return m.handleStart(ctx, msg, profile, open)
	case CmdSubmit:
		return m.handleSubmit(ctx, msg, open)
	case CmdCancel:
		return m.handleCancel(ctx, msg, open)
	case CmdHelp:
		return replyHelp
	case CmdStatus:
		return m.handleStatus(open)
	default:
		return m.handleContent(ctx, msg, open)
	}
}

func (m *Manager) handleStart(ctx context.Context, msg Inbound, profile *models.UserProfile, open *models.ComplaintSession) string {
	if open != nil {
		// Duplicate start is activity, not an error: re-ack and re-arm.
		m.armTimer(msg.UserID)
		reply := replyAlreadyOpen(open.ComplaintID)
		m.recordBotReply(ctx, open.SessionID, len(open.Transcript), msg.Timestamp, reply)
		return reply
	}

	complaintID, err := m.generateComplaintID(ctx, msg.Timestamp)
	if err != nil {
		m.logger.Error("Failed to generate complaint id",
			zap.Error(err),
			zap.Int64("user_id", msg.UserID))
		return replyApology
	}

	session := &models.ComplaintSession{
		SessionID:   uuid.Must(uuid.NewV7()).String(),
		ComplaintID: complaintID,
		UserID:      msg.UserID,
		Status:      models.StatusOpen,
		StartTime:   msg.Timestamp,
		Department:  profile.Department,
		Transcript: []models.TranscriptEntry{{
			Timestamp: msg.Timestamp,
			Direction: models.DirectionUser,
			Kind:      models.KindCommand,
			Body:      msg.Text,
		}},
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			// Lost a race with another event for the same user; fall back
			// to the session that won.
			if existing, lookupErr := m.store.GetOpenSessionByUser(ctx, msg.UserID); lookupErr == nil {
				m.armTimer(msg.UserID)
				reply := replyAlreadyOpen(existing.ComplaintID)
				m.recordBotReply(ctx, existing.SessionID, len(existing.Transcript), msg.Timestamp, reply)
				return reply
			}
		}
		m.logger.Error("Failed to create session",
			zap.Error(err),
			zap.Int64("user_id", msg.UserID),
			zap.String("complaint_id", complaintID))
		return replyApology
	}

	m.armTimer(msg.UserID)
	m.logger.Info("Complaint session opened",
		zap.String("session_id", session.SessionID),
		zap.String("complaint_id", complaintID),
		zap.Int64("user_id", msg.UserID))

	reply := replyStarted(complaintID)
	m.recordBotReply(ctx, session.SessionID, len(session.Transcript), msg.Timestamp, reply)
	return reply
}

func (m *Manager) handleContent(ctx context.Context, msg Inbound, open *models.ComplaintSession) string {
	// Unrecognized slash commands are never swallowed as complaint content.
	if msg.MediaNote == "" && strings.HasPrefix(strings.TrimSpace(msg.Text), "/") && !IsCommandText(msg.Text) {
		return replyUnknownCommand
	}

	if open == nil {
		// Informational text outside a session never creates one.
		return replyHelp
	}

	if len(open.Transcript) >= m.maxEntries {
		return replyTranscriptFull
	}

	entry := models.TranscriptEntry{
		Timestamp: msg.Timestamp,
		Direction: models.DirectionUser,
		Kind:      models.KindText,
		Body:      msg.Text,
	}
	if msg.MediaNote != "" {
		entry.Kind = models.KindMedia
		entry.Body = msg.MediaNote
		if msg.Text != "" {
			entry.Body = msg.MediaNote + ": " + msg.Text
		}
	}

	if err := m.store.AppendTranscript(ctx, open.SessionID, entry); err != nil {
		m.logger.Error("Failed to append transcript entry",
			zap.Error(err),
			zap.String("session_id", open.SessionID))
		return replyApology
	}

	m.armTimer(msg.UserID)
	reply := randomAck()
	m.recordBotReply(ctx, open.SessionID, len(open.Transcript)+1, msg.Timestamp, reply)
	return reply
}

func (m *Manager) handleSubmit(ctx context.Context, msg Inbound, open *models.ComplaintSession) string {
	if open == nil {
		return replyNoSession
	}

	if open.UserContentCount() == 0 {
		m.armTimer(msg.UserID)
		m.recordBotReply(ctx, open.SessionID, len(open.Transcript), msg.Timestamp, replyInsufficientDetail)
		return replyInsufficientDetail
	}

	command := models.TranscriptEntry{
		Timestamp: msg.Timestamp,
		Direction: models.DirectionUser,
		Kind:      models.KindCommand,
		Body:      msg.Text,
	}
	if err := m.store.AppendTranscript(ctx, open.SessionID, command); err != nil {
		m.logger.Error("Failed to record submit command",
			zap.Error(err),
			zap.String("session_id", open.SessionID))
		return replyApology
	}

	if err := m.store.CloseSession(ctx, open.SessionID, models.StatusSubmitted, msg.Timestamp); err != nil {
		m.logger.Error("Failed to submit session",
			zap.Error(err),
			zap.String("session_id", open.SessionID))
		return replyApology
	}

	m.timers.Disarm(msg.UserID)
	m.logger.Info("Complaint submitted",
		zap.String("session_id", open.SessionID),
		zap.String("complaint_id", open.ComplaintID),
		zap.Int64("user_id", msg.UserID))

	// Enrichment is detached from the reply path; its outcome is invisible
	// to the submit response.
	if m.enrich != nil {
		m.enrich(open.SessionID)
	}
	return replySubmitted(open.ComplaintID)
}

func (m *Manager) handleCancel(ctx context.Context, msg Inbound, open *models.ComplaintSession) string {
	if open == nil {
		return replyNoSession
	}

	if err := m.store.CloseSession(ctx, open.SessionID, models.StatusCancelled, msg.Timestamp); err != nil {
		m.logger.Error("Failed to cancel session",
			zap.Error(err),
			zap.String("session_id", open.SessionID))
		return replyApology
	}

	m.timers.Disarm(msg.UserID)
	m.logger.Info("Complaint cancelled",
		zap.String("session_id", open.SessionID),
		zap.Int64("user_id", msg.UserID))
	return replyCancelled
}

func (m *Manager) handleStatus(open *models.ComplaintSession) string {
	if open == nil {
		return replyNoSession
	}
	return replyStatus(open.ComplaintID, open.UserContentCount())
}

// recordBotReply appends an outgoing reply to the transcript of a session
// that is still open. entries is the transcript length the reply would land
// after; a reply that would overflow the cap is still sent, just not
// recorded. ErrNotFound means the session closed meanwhile, which is fine.
func (m *Manager) recordBotReply(ctx context.Context, sessionID string, entries int, ts time.Time, text string) {
	if entries >= m.maxEntries {
		return
	}
	entry := models.TranscriptEntry{
		Timestamp: ts,
		Direction: models.DirectionBot,
		Kind:      models.KindText,
		Body:      text,
	}
	if err := m.store.AppendTranscript(ctx, sessionID, entry); err != nil && !errors.Is(err, models.ErrNotFound) {
		m.logger.Warn("Failed to record bot reply",
			zap.Error(err),
			zap.String("session_id", sessionID))
	}
}

func (m *Manager) armTimer(userID int64) {
	m.timers.Arm(userID, m.timeout, func() {
		m.ExpireIdleSession(context.Background(), userID)
	})
}

// ExpireIdleSession applies the inactivity-timeout transition for a user's
// open session: auto-submit when the transcript has user content, silent
// cancel otherwise. It re-checks session state so a concurrent submit or
// cancel makes it a no-op. The idle sweep uses it too, which is what
// recovers sessions whose in-process timer died with a restart.
func (m *Manager) ExpireIdleSession(ctx context.Context, userID int64) {
	m.timers.Disarm(userID)

	open, err := m.store.GetOpenSessionByUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			m.logger.Error("Failed to look up session on timeout",
				zap.Error(err),
				zap.Int64("user_id", userID))
		}
		return
	}

	now := time.Now()
	if open.UserContentCount() == 0 {
		if err := m.store.CloseSession(ctx, open.SessionID, models.StatusCancelled, now); err != nil && !errors.Is(err, models.ErrNotFound) {
			m.logger.Error("Failed to cancel idle session",
				zap.Error(err),
				zap.String("session_id", open.SessionID))
		}
		return
	}

	note := models.TranscriptEntry{
		Timestamp: now,
		Direction: models.DirectionSystem,
		Kind:      models.KindTimeout,
		Body:      timeoutNote,
	}
	if err := m.store.AppendTranscript(ctx, open.SessionID, note); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// The session closed between the lookup and the append.
			return
		}
		m.logger.Error("Failed to record timeout note",
			zap.Error(err),
			zap.String("session_id", open.SessionID))
	}

	if err := m.store.CloseSession(ctx, open.SessionID, models.StatusSubmitted, now); err != nil {
		// ErrNotFound here means the session closed concurrently; nothing
		// to do and nothing to report.
		if !errors.Is(err, models.ErrNotFound) {
			m.logger.Error("Failed to auto-submit idle session",
				zap.Error(err),
				zap.String("session_id", open.SessionID))
		}
		return
	}

	m.logger.Info("Complaint auto-submitted after timeout",
		zap.String("session_id", open.SessionID),
		zap.String("complaint_id", open.ComplaintID),
		zap.Int64("user_id", userID))

	if m.notifier != nil {
		m.notifier.Push(userID, fmt.Sprintf(replyTimeoutSubmitted, open.ComplaintID))
	}
	if m.enrich != nil {
		m.enrich(open.SessionID)
	}
}

// generateComplaintID produces a CMP-YYYY-MM-DD-#### id from a per-day
// sequence, verifying uniqueness against the store with a bounded retry
// that advances the sequence on collision.
func (m *Manager) generateComplaintID(ctx context.Context, now time.Time) (string, error) {
	count, err := m.store.CountSessionsOnDay(ctx, now)
	if err != nil {
		return "", fmt.Errorf("failed to count sessions: %w", err)
	}

	day := now.Format("2006-01-02")
	for attempt := 0; attempt < complaintIDRetries; attempt++ {
		candidate := fmt.Sprintf("CMP-%s-%04d", day, count+1+attempt)
		exists, err := m.store.ComplaintIDExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check complaint id: %w", err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique complaint id after %d attempts", complaintIDRetries)
}
