package enrichment

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voxhr/complaint-bot/internal/analyzer"
	"github.com/voxhr/complaint-bot/internal/models"
	"github.com/voxhr/complaint-bot/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultConcurrency bounds concurrent provider calls in a batch.
	DefaultConcurrency = 2
	// DefaultCompletionDelay is inserted after each batch item to stay
	// under provider rate limits.
	DefaultCompletionDelay = 500 * time.Millisecond

	defaultTriggerTimeout = 2 * time.Minute
)

// Orchestrator turns submitted sessions into analysis records: exactly one
// record per session, produced at most once regardless of how many times a
// session is (re)triggered.
type Orchestrator struct {
	store    storage.Storage
	provider analyzer.Provider
	logger   *zap.Logger

	concurrency     int
	completionDelay time.Duration
}

type Option func(*Orchestrator)

func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithCompletionDelay(d time.Duration) Option {
	return func(o *Orchestrator) { o.completionDelay = d }
}

func NewOrchestrator(store storage.Storage, provider analyzer.Provider, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:           store,
		provider:        provider,
		logger:          logger,
		concurrency:     DefaultConcurrency,
		completionDelay: DefaultCompletionDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TriggerAsync dispatches analysis as a detached background task with its
// own error boundary. The caller never waits on it; a failure here is
// recovered later by the catch-up sweep.
func (o *Orchestrator) TriggerAsync(sessionID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTriggerTimeout)
		defer cancel()

		if _, err := o.Analyze(ctx, sessionID); err != nil {
			o.logger.Error("Background analysis failed",
				zap.Error(err),
				zap.String("session_id", sessionID))
		}
	}()
}

// Analyze produces the analysis record for a submitted session. If a record
// already exists it is returned unchanged: no duplicate analysis, no
// duplicate provider cost.
func (o *Orchestrator) Analyze(ctx context.Context, sessionID string) (*models.AnalysisRecord, error) {
	existing, err := o.store.GetAnalysisBySession(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, &models.StorageError{Op: "get analysis", Err: err}
	}

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		return nil, &models.StorageError{Op: "get session", Err: err}
	}
	if session.Status != models.StatusSubmitted {
		return nil, &models.ValidationError{Reason: "session is " + string(session.Status) + ", not submitted"}
	}

	profile, err := o.store.GetOrCreateUser(ctx, session.UserID, "")
	if err != nil {
		return nil, &models.StorageError{Op: "get user", Err: err}
	}

	prompt := analyzer.BuildPrompt(session, profile)

	start := time.Now()
	completion, err := o.provider.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	var recordedErrors []string
	record, err := analyzer.Sanitize(completion.Text)
	if err != nil {
		// Unusable output still yields a record: the safe schema defaults,
		// with the failure noted in the error list.
		o.logger.Warn("Provider returned malformed analysis, using defaults",
			zap.Error(err),
			zap.String("session_id", sessionID))
		record, _ = analyzer.Sanitize("{}")
		recordedErrors = append(recordedErrors, err.Error())
	}

	content := analyzer.UserContent(session)
	chars := 0
	for _, line := range content {
		chars += len(line)
	}

	record.SessionID = session.SessionID
	record.ComplaintID = session.ComplaintID
	record.UserID = session.UserID
	record.Department = session.Department
	record.MessageCount = len(content)
	record.TranscriptChars = chars
	record.ProcessingMeta = models.ProcessingMeta{
		Model:            completion.Model,
		LatencyMS:        latency.Milliseconds(),
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		TotalTokens:      completion.TotalTokens,
		Errors:           recordedErrors,
	}
	record.CreatedAt = time.Now()

	if err := o.store.SaveAnalysis(ctx, record); err != nil {
		if errors.Is(err, models.ErrAlreadyExists) {
			// A concurrent trigger won the race; its record is the one.
			return o.store.GetAnalysisBySession(ctx, sessionID)
		}
		return nil, &models.StorageError{Op: "save analysis", Err: err}
	}

	o.logger.Info("Analysis record created",
		zap.String("session_id", sessionID),
		zap.String("complaint_id", record.ComplaintID),
		zap.String("category", record.Classification.PrimaryCategory),
		zap.String("sentiment", string(record.Sentiment.Label)),
		zap.Int64("latency_ms", record.ProcessingMeta.LatencyMS))
	return record, nil
}

// BatchResult aggregates per-item outcomes of a batch run.
type BatchResult struct {
	Processed []string
	Skipped   []string
	Errors    map[string]string
}

// AnalyzeBatch processes sessions with a bounded concurrency window and a
// small delay after each completion. One item's failure never aborts the
// batch.
func (o *Orchestrator) AnalyzeBatch(ctx context.Context, sessionIDs []string) *BatchResult {
	result := &BatchResult{Errors: make(map[string]string)}
	var mu sync.Mutex

	group := &errgroup.Group{}
	group.SetLimit(o.concurrency)

	for _, sessionID := range sessionIDs {
		sessionID := sessionID
		group.Go(func() error {
			existed := false
			if _, err := o.store.GetAnalysisBySession(ctx, sessionID); err == nil {
				existed = true
			}

			_, err := o.Analyze(ctx, sessionID)

			mu.Lock()
			switch {
			case err != nil:
				result.Errors[sessionID] = err.Error()
			case existed:
				result.Skipped = append(result.Skipped, sessionID)
			default:
				result.Processed = append(result.Processed, sessionID)
			}
			mu.Unlock()

			if err != nil {
				o.logger.Warn("Batch item failed",
					zap.Error(err),
					zap.String("session_id", sessionID))
			}
			if o.completionDelay > 0 {
				time.Sleep(o.completionDelay)
			}
			return nil
		})
	}
	group.Wait()

	return result
}

// CatchUp finds submitted sessions without an analysis record and processes
// them. It is the recovery path after provider outages.
func (o *Orchestrator) CatchUp(ctx context.Context, limit int) (*BatchResult, error) {
	sessions, err := o.store.ListUnanalyzedSessions(ctx, limit)
	if err != nil {
		return nil, &models.StorageError{Op: "list unanalyzed", Err: err}
	}

	ids := make([]string, len(sessions))
	for i, session := range sessions {
		ids[i] = session.SessionID
	}
	return o.AnalyzeBatch(ctx, ids), nil
}
