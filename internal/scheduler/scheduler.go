// Package scheduler triggers periodic scans on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"bourbonwatch/internal/scanner"
)

// Scheduler attempts a full scan every interval. It shares the
// orchestrator's exclusivity flag: when a scan is already running the tick
// is skipped, never queued.
type Scheduler struct {
	orch     *scanner.Orchestrator
	log      *slog.Logger
	interval time.Duration
}

// New creates a Scheduler.
func New(orch *scanner.Orchestrator, interval time.Duration, log *slog.Logger) *Scheduler {
	return &Scheduler{orch: orch, log: log, interval: interval}
}

// Run starts the scheduler loop, blocking until ctx is cancelled. The first
// scan fires after one full interval, not immediately.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	err := s.orch.StartFullScan()
	switch {
	case err == nil:
		s.log.Info("scheduled scan started")
	case errors.Is(err, scanner.ErrScanRunning):
		s.log.Info("scheduled scan skipped, one already running")
	default:
		s.log.Error("scheduled scan failed to start", "error", err)
	}
}
