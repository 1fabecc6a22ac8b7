package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// SweepEnqueuer submits a maintenance sweep task to the low-priority queue.
type SweepEnqueuer interface {
	EnqueueSweep(ctx context.Context, taskType string) error
}

// Sweep task type names, mirrored by the queue package. Declared here so
// the scheduler does not import the broker.
const (
	SweepStaleJobsTask     = "sweep:stale_jobs"
	SweepStaleChunksTask   = "sweep:stale_chunks"
	SweepPendingMergesTask = "sweep:pending_merges"
	SweepCleanupChunksTask = "sweep:cleanup_chunks"
	SweepStuckJobsTask     = "sweep:stuck_jobs"
)

// SweepScheduler enqueues recovery sweeps on fixed intervals. Running the
// sweeps through the queue instead of inline keeps one scheduler instance
// from becoming a single point of work and gives sweeps the same logging
// and timeout treatment as any other task.
type SweepScheduler struct {
	scheduler *gocron.Scheduler
	enqueuer  SweepEnqueuer
	logger    *slog.Logger
}

func NewSweepScheduler(enqueuer SweepEnqueuer, logger *slog.Logger) *SweepScheduler {
	return &SweepScheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		enqueuer:  enqueuer,
		logger:    logger,
	}
}

// Start registers the sweep intervals and launches the scheduler in the
// background.
func (s *SweepScheduler) Start() error {
	intervals := []struct {
		every time.Duration
		task  string
	}{
		{5 * time.Minute, SweepStaleJobsTask},
		{1 * time.Minute, SweepStaleChunksTask},
		{2 * time.Minute, SweepPendingMergesTask},
		{1 * time.Hour, SweepCleanupChunksTask},
		{5 * time.Minute, SweepStuckJobsTask},
	}

	for _, iv := range intervals {
		task := iv.task
		_, err := s.scheduler.Every(iv.every).Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.enqueuer.EnqueueSweep(ctx, task); err != nil {
				s.logger.Error("enqueue sweep", "task", task, "error", err)
			}
		})
		if err != nil {
			return err
		}
	}

	s.scheduler.StartAsync()
	s.logger.Info("sweep scheduler started", "sweeps", len(intervals))
	return nil
}

func (s *SweepScheduler) Stop() {
	s.scheduler.Stop()
}
