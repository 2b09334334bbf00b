package enrichment

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/voxhr/complaint-bot/internal/session"
	"github.com/voxhr/complaint-bot/internal/storage"
	"go.uber.org/zap"
)

// Sweeper periodically closes sessions whose inactivity timer was lost
// (e.g. across a restart) and catches up on submitted sessions that still
// lack an analysis record.
type Sweeper struct {
	cron      *cron.Cron
	store     storage.Storage
	orch      *Orchestrator
	manager   *session.Manager
	logger    *zap.Logger
	idleAfter time.Duration
	batchSize int
}

func NewSweeper(store storage.Storage, orch *Orchestrator, manager *session.Manager, idleAfter time.Duration, batchSize int, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		cron:      cron.New(cron.WithLocation(time.UTC)),
		store:     store,
		orch:      orch,
		manager:   manager,
		logger:    logger,
		idleAfter: idleAfter,
		batchSize: batchSize,
	}
}

// Start schedules the sweep with a cron expression, e.g. "*/10 * * * *".
func (s *Sweeper) Start(schedule string) error {
	if _, err := s.cron.AddFunc(schedule, s.RunOnce); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Sweeper started", zap.String("schedule", schedule))
	return nil
}

func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// RunOnce performs one sweep pass. It is also invocable on demand.
func (s *Sweeper) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	s.expireIdle(ctx)

	result, err := s.orch.CatchUp(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("Catch-up sweep failed", zap.Error(err))
		return
	}
	if len(result.Processed) > 0 || len(result.Errors) > 0 {
		s.logger.Info("Catch-up sweep finished",
			zap.Int("processed", len(result.Processed)),
			zap.Int("skipped", len(result.Skipped)),
			zap.Int("failed", len(result.Errors)))
	}
}

func (s *Sweeper) expireIdle(ctx context.Context) {
	cutoff := time.Now().Add(-s.idleAfter)
	idle, err := s.store.ListOpenSessionsIdleSince(ctx, cutoff)
	if err != nil {
		s.logger.Error("Failed to list idle sessions", zap.Error(err))
		return
	}

	for _, stale := range idle {
		// Same transition as the in-process timer, status re-checked inside.
		s.manager.ExpireIdleSession(ctx, stale.UserID)
	}
}
