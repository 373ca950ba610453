package scheduler

import (
	"context"
	"sync"
	"time"

	"ACRScanner/internal/config"
	"ACRScanner/internal/ports"
)

const defaultInterval = 24 * time.Hour

// IntervalScheduler runs a job immediately and then on every tick of a fixed interval.
type IntervalScheduler struct {
	interval time.Duration
	location *time.Location

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*IntervalScheduler)(nil)

// NewIntervalScheduler builds a scheduler from configuration.
func NewIntervalScheduler(cfg config.SchedulerConfig) *IntervalScheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &IntervalScheduler{interval: interval, location: cfg.Location()}
}

// Start begins ticking; a second Start while running is a no-op.
// Jobs run on the scheduler goroutine, so a slow run delays the next tick.
func (s *IntervalScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		job(time.Now().In(s.location))
		for {
			select {
			case t := <-ticker.C:
				job(t.In(s.location))
			case <-ctx.Done():
				return
			case <-stop:
				return
			}
		}
	}()

	return nil
}

// Stop halts the ticker goroutine and waits for a running job to return
// or ctx to expire.
func (s *IntervalScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
