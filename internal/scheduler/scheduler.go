// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// SyncRunner queues every repository that is due for indexing.
type SyncRunner interface {
	RunSyncCycle(ctx context.Context) (int, error)
}

// Sweeper removes expired work directories.
type Sweeper interface {
	Sweep(ctx context.Context) ([]string, error)
}

// Scheduler wraps gocron scheduler for managing periodic tasks.
type Scheduler struct {
	scheduler gocron.Scheduler
	logger    *slog.Logger
}

// New creates a new scheduler instance.
func New(logger *slog.Logger) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create gocron scheduler: %w", err)
	}
	return &Scheduler{scheduler: s, logger: logger}, nil
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.logger.Info("Starting scheduler", "jobs", len(s.scheduler.Jobs()))
	s.scheduler.Start()
}

// Stop waits for running jobs and shuts the scheduler down.
func (s *Scheduler) Stop() error {
	s.logger.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

// ScheduleSync runs the due-repository sweep every interval, starting immediately.
// Returns the job ID for later management.
func (s *Scheduler) ScheduleSync(ctx context.Context, interval time.Duration, runner SyncRunner) (string, error) {
	return s.schedule(interval, "sync-repositories", func() {
		if _, err := runner.RunSyncCycle(ctx); err != nil {
			s.logger.Error("Scheduled sync failed", "error", err)
		}
	})
}

// ScheduleCleanup runs the work directory sweep every interval, starting immediately.
func (s *Scheduler) ScheduleCleanup(ctx context.Context, interval time.Duration, sweeper Sweeper) (string, error) {
	return s.schedule(interval, "cleanup-index-files", func() {
		removed, err := sweeper.Sweep(ctx)
		if err != nil {
			s.logger.Error("Scheduled cleanup failed", "error", err)
			return
		}
		s.logger.Info("Scheduled cleanup finished", "removed", len(removed))
	})
}

func (s *Scheduler) schedule(interval time.Duration, name string, fn func()) (string, error) {
	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create %s job: %w", name, err)
	}
	return job.ID().String(), nil
}
