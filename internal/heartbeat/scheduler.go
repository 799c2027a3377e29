// Package heartbeat drives the periodic policy evaluation.
package heartbeat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Func is invoked on every tick.
type Func func(ctx context.Context)

// Scheduler owns a single recurring timer. A ticker's period cannot be
// changed in place, so Reschedule cancels the running loop and starts a
// new one under the same lock: at no point are two loops or zero loops
// armed. A tick already running in the old loop is left to finish.
type Scheduler struct {
	mu      sync.Mutex
	fn      Func
	period  time.Duration
	ctx     context.Context
	stop    chan struct{}
	running bool
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("heartbeat already started")

// NewScheduler creates a stopped scheduler that will call fn.
func NewScheduler(fn Func, logger *slog.Logger) *Scheduler {
	return &Scheduler{fn: fn, logger: logger}
}

// Period converts a heartbeat expressed in minutes.
func Period(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}

// Start arms the timer. Ticks stop when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context, period time.Duration) error {
	if period <= 0 {
		return errors.New("heartbeat period must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyStarted
	}

	s.ctx = ctx
	s.period = period
	s.running = true
	s.armLocked()
	s.logger.Info("Heartbeat armed", "period", period)
	return nil
}

// Reschedule replaces the timer with one of the given period. On a stopped
// scheduler it only records the period for the next Start.
func (s *Scheduler) Reschedule(period time.Duration) {
	if period <= 0 {
		s.logger.Warn("Ignoring non-positive heartbeat period", "period", period)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.period
	s.period = period
	if !s.running {
		return
	}

	close(s.stop)
	s.armLocked()
	s.logger.Info("Heartbeat rescheduled", "old_period", old, "new_period", period)
}

// Period returns the current tick period.
func (s *Scheduler) Period() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.period
}

// Stop disarms the timer and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		close(s.stop)
		s.running = false
	}
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *Scheduler) armLocked() {
	stop := make(chan struct{})
	s.stop = stop

	s.wg.Add(1)
	go s.loop(s.ctx, s.period, stop)
}

func (s *Scheduler) loop(ctx context.Context, period time.Duration, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			// Cancellation may race with the tick; cancellation wins.
			select {
			case <-stop:
				return
			default:
			}
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Heartbeat handler panicked", "panic", r)
		}
	}()
	s.fn(ctx)
}
