// Package maintenance runs periodic housekeeping against the SQLite store.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Optimizer compacts and analyzes the database.
type Optimizer interface {
	Optimize(ctx context.Context) error
}

// SessionSweeper deletes conversation contexts idle for longer than ttl.
type SessionSweeper interface {
	CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error)
}

// Config controls the worker.
type Config struct {
	// Schedule is a cron spec or descriptor such as "@every 1h".
	Schedule string
	// SessionTTL expires idle sessions when positive.
	SessionTTL time.Duration
	// Timeout bounds one run.
	Timeout time.Duration
}

// Worker runs maintenance jobs on a cron schedule.
type Worker struct {
	cron      *cron.Cron
	optimizer Optimizer
	sweeper   SessionSweeper
	cfg       Config
	logger    *slog.Logger

	mu   sync.Mutex
	runs int
}

// New validates the schedule and registers the job. Either collaborator may
// be nil, in which case its step is skipped.
func New(cfg Config, optimizer Optimizer, sweeper SessionSweeper, logger *slog.Logger) (*Worker, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	w := &Worker{
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		optimizer: optimizer,
		sweeper:   sweeper,
		cfg:       cfg,
		logger:    logger,
	}
	if _, err := w.cron.AddFunc(cfg.Schedule, func() { w.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", cfg.Schedule, err)
	}
	return w, nil
}

// Start launches the scheduler and stops it when ctx is done.
func (w *Worker) Start(ctx context.Context) {
	w.cron.Start()
	w.logger.Info("Maintenance worker started", "schedule", w.cfg.Schedule, "session_ttl", w.cfg.SessionTTL)
	go func() {
		<-ctx.Done()
		<-w.cron.Stop().Done()
		w.logger.Info("Maintenance worker shutting down", "reason", ctx.Err())
	}()
}

// RunOnce executes every maintenance step immediately.
func (w *Worker) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	defer cancel()

	started := time.Now()
	if w.sweeper != nil && w.cfg.SessionTTL > 0 {
		deleted, err := w.sweeper.CleanupExpiredSessions(ctx, w.cfg.SessionTTL)
		if err != nil {
			w.logger.Error("Maintenance failed to expire sessions", "error", err)
		} else if deleted > 0 {
			w.logger.Info("Maintenance expired idle sessions", "count", deleted)
		}
	}
	if w.optimizer != nil {
		if err := w.optimizer.Optimize(ctx); err != nil {
			w.logger.Error("Maintenance failed to optimize database", "error", err)
		}
	}

	w.mu.Lock()
	w.runs++
	w.mu.Unlock()
	w.logger.Debug("Maintenance run completed", "duration", time.Since(started))
}

// Runs reports how many times the job has completed.
func (w *Worker) Runs() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runs
}
