package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Scheduler runs named tasks at fixed intervals.
type Scheduler struct {
	inner  gocron.Scheduler
	logger *zap.Logger
}

// NewScheduler creates an idle scheduler. Call Start after registering tasks.
func NewScheduler(logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	inner, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	return &Scheduler{inner: inner, logger: logger}, nil
}

// Every registers task to run each interval. Overlapping runs of the same task are skipped.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, task func(context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	job, err := s.inner.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			task(ctx)
			s.logger.Debug("scheduled task finished", zap.String("task", name), zap.Duration("took", time.Since(start)))
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	s.logger.Info("scheduled task registered", zap.String("task", name), zap.String("job_id", job.ID().String()), zap.Duration("interval", interval))
	return nil
}

// Tasks returns the number of registered tasks.
func (s *Scheduler) Tasks() int {
	return len(s.inner.Jobs())
}

// Start begins running registered tasks.
func (s *Scheduler) Start() {
	s.inner.Start()
}

// Shutdown stops the scheduler and waits for running tasks.
func (s *Scheduler) Shutdown() error {
	return s.inner.Shutdown()
}
