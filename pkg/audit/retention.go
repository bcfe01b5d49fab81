package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler prunes a sink on a cron schedule.
type Scheduler struct {
	pruner        Pruner
	retentionDays int
	schedule      string
	logger        *slog.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

// NewScheduler returns a scheduler that deletes entries older than
// retentionDays every time schedule fires.
func NewScheduler(p Pruner, retentionDays int, schedule string, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		pruner:        p,
		retentionDays: retentionDays,
		schedule:      schedule,
		logger:        logger.With("component", "audit.retention"),
		cron:          cron.New(),
	}
}

// Start registers the pruning job. It does nothing when the schedule is
// empty or retention is disabled. The scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" || s.retentionDays <= 0 {
		s.logger.Info("audit retention disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runPruning(ctx) }); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", s.schedule, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("audit retention scheduler started",
		"schedule", s.schedule,
		"retention_days", s.retentionDays,
	)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Prune deletes entries older than the retention period now.
func (s *Scheduler) Prune(ctx context.Context) (int64, error) {
	if s.retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	return s.pruner.Prune(ctx, cutoff)
}

func (s *Scheduler) runPruning(ctx context.Context) {
	deleted, err := s.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled audit pruning failed", "error", err)
		return
	}
	s.logger.Info("scheduled audit pruning completed", "deleted_count", deleted)
}

// Stop stops the scheduler and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info("audit retention scheduler stopped")
	}
}

// IsRunning reports whether the job is scheduled.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, or nil.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
