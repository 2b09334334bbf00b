package main

import (
	"github.com/voxhr/complaint-bot/internal/analyzer"
	"github.com/voxhr/complaint-bot/internal/bot"
	"github.com/voxhr/complaint-bot/internal/enrichment"
	"github.com/voxhr/complaint-bot/internal/session"
	"github.com/voxhr/complaint-bot/internal/storage"
	"github.com/voxhr/complaint-bot/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		})
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	// Analysis provider and enrichment pipeline
	provider := analyzer.NewOpenAIProvider(
		cfg.OpenAI.APIKey,
		cfg.OpenAI.Model,
		cfg.OpenAI.MaxTokens,
		cfg.OpenAI.Temperature,
	)
	orchestrator := enrichment.NewOrchestrator(store, provider, logger,
		enrichment.WithConcurrency(cfg.Enrichment.Concurrency),
		enrichment.WithCompletionDelay(cfg.Enrichment.CompletionDelay),
	)

	// Transport and state machine; the bot doubles as the timeout notifier
	b, err := bot.New(cfg.Telegram.Token, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	manager := session.NewManager(store, b, orchestrator.TriggerAsync, logger,
		session.WithInactivityTimeout(cfg.Session.InactivityTimeout),
		session.WithMaxTranscriptEntries(cfg.Session.MaxTranscriptEntries),
	)
	defer manager.Stop()
	b.SetManager(manager)

	// Periodic idle-session and catch-up sweep
	sweeper := enrichment.NewSweeper(store, orchestrator, manager,
		cfg.Session.InactivityTimeout, cfg.Enrichment.SweepBatchSize, logger)
	if err := sweeper.Start(cfg.Enrichment.SweepSchedule); err != nil {
		logger.Fatal("Failed to start sweeper", zap.Error(err))
	}
	defer sweeper.Stop()

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
