package syncer

import (
	"context"
	"log/slog"
	"time"

	errs "github.com/conexa-labs/searchsync/internal/errors"
)

// Scheduler invokes sync runs on a fixed cadence. A run that outlives its
// tick makes the next tick skip (single-flight in the Syncer), never
// queue.
type Scheduler struct {
	syncer   *Syncer
	interval time.Duration
	logger   *slog.Logger
}

// NewScheduler creates a scheduler with the given cadence.
func NewScheduler(syncer *Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{syncer: syncer, interval: interval, logger: logger}
}

// Run ticks until ctx is cancelled. The first run fires immediately so a
// fresh process does not sit idle for a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("sync scheduler started", slog.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sync scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.syncer.RunOnce(ctx)
	switch {
	case err == nil:
	case errs.GetCode(err) == errs.ErrCodeSyncBusy:
		// Already logged by the syncer; skipping a tick is expected.
	case ctx.Err() != nil:
	default:
		s.logger.Error("sync run failed", slog.String("error", err.Error()))
	}
}
