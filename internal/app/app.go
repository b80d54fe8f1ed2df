// Package app wires configuration into the event store, session store,
// assistant client and dialogue router shared by the server and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/johpaz/smart-calendar-assistant/internal/assistant"
	"github.com/johpaz/smart-calendar-assistant/internal/config"
	"github.com/johpaz/smart-calendar-assistant/internal/dateparse"
	"github.com/johpaz/smart-calendar-assistant/internal/dialogue"
	"github.com/johpaz/smart-calendar-assistant/internal/intent"
	"github.com/johpaz/smart-calendar-assistant/internal/maintenance"
	"github.com/johpaz/smart-calendar-assistant/internal/session"
	"github.com/johpaz/smart-calendar-assistant/internal/store"
)

// App holds the long-lived collaborators built from a Config.
type App struct {
	Events    store.EventStore
	Sessions  session.Store
	Assistant assistant.Client
	Router    *dialogue.Router
	Parser    *dateparse.Parser
	// Location is the zone wall-clock event times are exported and
	// imported in.
	Location *time.Location
	// Maintenance is nil unless events live in SQLite.
	Maintenance *maintenance.Worker

	closers []func() error
	logger  *slog.Logger
}

// Options tweak how New builds an App.
type Options struct {
	// SkipAssistant leaves the assistant disabled even when configured.
	SkipAssistant bool
}

// New builds every collaborator. On error, anything already opened is
// closed before returning.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	var sqlite *store.SQLiteStore
	if cfg.StoreBackend == config.BackendSQLite || cfg.SessionBackend == config.BackendSQLite {
		sqlite, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("initialize database: %w", err)
		}
		a.closers = append(a.closers, sqlite.Close)
		if err = sqlite.Ping(ctx); err != nil {
			return nil, fmt.Errorf("database health check: %w", err)
		}
		logger.Info("Database connected", "path", cfg.DBPath)
	}

	switch cfg.StoreBackend {
	case config.BackendSQLite:
		a.Events = sqlite
	default:
		a.Events = store.NewMemory()
	}
	if cfg.SeedSample {
		if seeder, ok := a.Events.(store.Seeder); ok {
			n, seedErr := seeder.SeedIfEmpty(ctx, store.SampleEvents())
			if seedErr != nil {
				return nil, fmt.Errorf("seed sample events: %w", seedErr)
			}
			if n > 0 {
				logger.Info("Sample events loaded", "count", n)
			}
		}
	}

	switch cfg.SessionBackend {
	case config.BackendSQLite:
		a.Sessions = session.NewRepositoryStore(sqlite)
	default:
		a.Sessions = session.NewMemoryStore()
	}

	if a.Location, err = cfg.Location(); err != nil {
		return nil, err
	}

	ref, err := cfg.Reference()
	if err != nil {
		return nil, err
	}
	if ref != nil {
		a.Parser = dateparse.Fixed(*ref)
	} else {
		a.Parser = dateparse.New(nil)
	}

	lexicon, err := config.LoadLexicon(cfg.LexiconPath)
	if err != nil {
		return nil, err
	}

	a.Assistant = assistant.Unavailable{}
	if cfg.Assistant.Enabled() && !opts.SkipAssistant {
		a.Assistant = connectAssistant(cfg.Assistant, logger)
	}
	a.closers = append(a.closers, func() error { a.Assistant.Close(); return nil })

	a.Router = dialogue.NewRouter(dialogue.Options{
		Sessions:   a.Sessions,
		Events:     a.Events,
		Classifier: intent.NewClassifier(lexicon),
		Parser:     a.Parser,
		Fallback:   a.Assistant,
		Logger:     logger,
	})

	if sqlite != nil && cfg.MaintenanceSchedule != "" {
		var sweeper maintenance.SessionSweeper
		if cfg.SessionBackend == config.BackendSQLite {
			sweeper = sqlite
		}
		a.Maintenance, err = maintenance.New(maintenance.Config{
			Schedule:   cfg.MaintenanceSchedule,
			SessionTTL: cfg.SessionTTL,
		}, sqlite, sweeper, logger)
		if err != nil {
			return nil, err
		}
	}

	logger.Info("Agenda ready",
		"store", cfg.StoreBackend,
		"sessions", cfg.SessionBackend,
		"reference_date", a.Parser.Reference().String(),
		"assistant", cfg.Assistant.Enabled())
	return a, nil
}

// connectAssistant dials the assistant service. A failed connection leaves
// the assistant disabled rather than stopping startup.
func connectAssistant(cfg config.AssistantConfig, logger *slog.Logger) assistant.Client {
	logger.Info("Attempting to connect to assistant service via gRPC", "address", cfg.Address)
	client, err := assistant.NewGrpcClient(assistant.GrpcClientConfig{
		Address:        cfg.Address,
		ConnectTimeout: cfg.ConnectTimeout,
		RequestTimeout: cfg.RequestTimeout,
		MaxTokens:      cfg.MaxTokens,
		Temperature:    cfg.Temperature,
	}, logger)
	if err != nil {
		logger.Warn("Failed to connect to assistant, open conversation and transcription disabled", "error", err)
		return assistant.Unavailable{}
	}
	return client
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}

