package usecase

import (
	"context"
	"log/slog"
	"time"

	"ACRScanner/internal/ports"
)

// Scheduler wires the interval driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	opts     RunOptions
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring full pipeline runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, opts RunOptions, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, pipeline: pipeline, opts: opts, logger: logger.With("component", "scheduler")}
}

// Start registers the pipeline with the provided scheduler. A failed run is
// logged and the next tick resumes from what was persisted.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		s.logger.Info("scheduled run triggered", "at", trigger.Format(time.RFC3339))
		if err := s.pipeline.Run(ctx, s.opts); err != nil {
			s.logger.Error("scheduled run failed", "error", err)
		}
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
