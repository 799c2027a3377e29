package policy

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/runnerr0/tabsentry/internal/history"
	"github.com/runnerr0/tabsentry/internal/tabs"
)

// State is the countdown state machine position.
type State string

const (
	StateIdle     State = "idle"
	StateCounting State = "counting"
	StateClosing  State = "closing"
	StateAborted  State = "aborted"
)

// Outcome is how a finished cycle ended.
type Outcome string

const (
	OutcomePending Outcome = ""
	OutcomeClosed  Outcome = "closed"
	OutcomeAborted Outcome = "aborted"
	OutcomeFailed  Outcome = "failed"
)

// Ticker is the slice of time.Ticker the countdown uses.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// NewTickerFunc builds a Ticker firing every d.
type NewTickerFunc func(d time.Duration) Ticker

type stdTicker struct{ t *time.Ticker }

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop() { s.t.Stop() }

func newStdTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

// Cycle is one eviction attempt: a countdown on a selected victim that ends
// with the tab closed or the attempt abandoned.
type Cycle struct {
	ID        string
	Victim    tabs.Tab
	StartedAt time.Time

	mu        sync.Mutex
	state     State
	remaining int
	outcome   Outcome
	err       error

	done chan struct{}
}

// Done is closed once the cycle has ended and the engine is idle again.
func (c *Cycle) Done() <-chan struct{} { return c.done }

// State returns the current state machine position.
func (c *Cycle) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining is the countdown value last shown on the badge.
func (c *Cycle) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Outcome returns how the cycle ended, or OutcomePending while it runs.
func (c *Cycle) Outcome() Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.outcome
}

// Err is the error that made the cycle fail, if any.
func (c *Cycle) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Cycle) set(state State, remaining int) {
	c.mu.Lock()
	c.state = state
	c.remaining = remaining
	c.mu.Unlock()
}

func (c *Cycle) finish(outcome Outcome, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if outcome == OutcomeAborted {
		c.state = StateAborted
	} else {
		c.state = StateIdle
	}
	c.outcome = outcome
	c.err = err
}

// countdown drives Counting(n) -> Closing -> Idle, or Counting(n) ->
// Aborted -> Idle when the feature is switched off mid-count. It owns the
// in-progress flag and releases it on every path.
func (e *Engine) countdown(ctx context.Context, c *Cycle) {
	logger := e.logger.With("cycle_id", c.ID, "tab_id", c.Victim.ID)

	defer close(c.done)
	defer e.release(c)

	n := e.opts.CountdownStart
	c.set(StateCounting, n)
	e.setBadge(ctx, strconv.Itoa(n))
	logger.Info("Countdown started", "from", n, "url", c.Victim.URL)

	ticker := e.opts.NewTicker(e.opts.Interval)
	defer ticker.Stop()

	for n > 0 {
		select {
		case <-ctx.Done():
			logger.Info("Countdown cancelled", "remaining", n)
			c.finish(OutcomeAborted, ctx.Err())
			e.setBadge(context.Background(), "")
			return
		case <-ticker.C():
		}

		if !e.settings.Get().Enabled {
			logger.Info("Countdown aborted, feature disabled", "remaining", n)
			c.finish(OutcomeAborted, nil)
			e.setBadge(ctx, "")
			return
		}

		n--
		c.set(StateCounting, n)
		if n > 0 {
			e.setBadge(ctx, strconv.Itoa(n))
		}
	}

	c.set(StateClosing, 0)
	if _, err := e.recorder.Record(ctx, history.Closed{
		TabID: c.Victim.ID,
		URL:   c.Victim.URL,
		Title: c.Victim.Title,
	}); err != nil {
		logger.Warn("Victim not recorded in history", "error", err)
	}

	if err := e.browser.RemoveTab(ctx, c.Victim.ID); err != nil {
		if errors.Is(err, tabs.ErrInvalidReference) {
			logger.Info("Victim already gone", "error", err)
		} else {
			logger.Error("Failed to close victim", "error", err)
		}
		c.finish(OutcomeFailed, err)
	} else {
		logger.Info("Idle tab closed", "url", c.Victim.URL)
		c.finish(OutcomeClosed, nil)
	}
	e.setBadge(ctx, "")
}
