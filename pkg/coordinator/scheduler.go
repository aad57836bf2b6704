package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs cycles on a periodic tick. A tick that fires while the
// previous cycle is still running is skipped rather than queued — cycles
// never overlap in one process.
type Scheduler struct {
	coordinator *Coordinator
	cron        *cron.Cron
	interval    time.Duration
	running     chan struct{}
}

// NewScheduler builds a scheduler over the coordinator. interval must be
// positive; a zero interval disables the tick at the config layer.
func NewScheduler(c *Coordinator, interval time.Duration) *Scheduler {
	return &Scheduler{
		coordinator: c,
		cron:        cron.New(),
		interval:    interval,
		running:     make(chan struct{}, 1),
	}
}

// Start registers the tick and begins firing. The provided context bounds
// each triggered cycle.
func (s *Scheduler) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.interval)
	_, err := s.cron.AddFunc(spec, func() {
		select {
		case s.running <- struct{}{}:
			defer func() { <-s.running }()
		default:
			slog.Warn("cycle tick skipped; previous cycle still running")
			return
		}
		if _, err := s.coordinator.RunCycle(ctx); err != nil {
			slog.Error("scheduled cycle failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule cycle tick: %w", err)
	}
	s.cron.Start()
	slog.Info("cycle scheduler started", "interval", s.interval)
	return nil
}

// Stop halts the tick and waits for an in-flight cycle to finish.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.running <- struct{}{}
	<-s.running
	slog.Info("cycle scheduler stopped")
}
