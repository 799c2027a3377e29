// Package policy decides which tab to close when too many are open and
// runs the visible countdown that precedes the close.
package policy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/runnerr0/tabsentry/internal/config"
	"github.com/runnerr0/tabsentry/internal/history"
	"github.com/runnerr0/tabsentry/internal/settings"
	"github.com/runnerr0/tabsentry/internal/tabs"
)

// SettingsSource returns the current policy settings.
type SettingsSource interface {
	Get() settings.Settings
}

// LockChecker reports tabs exempt from eviction.
type LockChecker interface {
	IsLocked(id tabs.TabID) bool
}

// ActivitySource reports when a tab was last used.
type ActivitySource interface {
	LastActive(id tabs.TabID) (time.Time, bool)
}

// Recorder writes a closed tab into the history.
type Recorder interface {
	Record(ctx context.Context, c history.Closed) (bool, error)
}

// Options configure the engine. Zero values take defaults.
type Options struct {
	Scope          string
	ExemptDomains  []string
	CountdownStart int
	Interval       time.Duration
	Now            func() time.Time
	NewTicker      NewTickerFunc
}

// OptionsFromConfig maps the policy config section.
func OptionsFromConfig(c config.PolicyConfig) (Options, error) {
	interval, err := c.Interval()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Scope:          c.Scope,
		ExemptDomains:  c.ExemptDomains,
		CountdownStart: c.CountdownSeconds,
		Interval:       interval,
	}, nil
}

func (o *Options) applyDefaults() {
	d := config.DefaultConfig().Policy
	if o.Scope == "" {
		o.Scope = d.Scope
	}
	if o.ExemptDomains == nil {
		o.ExemptDomains = d.ExemptDomains
	}
	if o.CountdownStart <= 0 {
		o.CountdownStart = d.CountdownSeconds
	}
	if o.Interval <= 0 {
		o.Interval = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewTicker == nil {
		o.NewTicker = newStdTicker
	}
}

// Engine evaluates the eviction policy on each heartbeat. At most one
// cycle runs at a time; a heartbeat that finds one in progress is a no-op.
type Engine struct {
	browser  tabs.Browser
	settings SettingsSource
	locks    LockChecker
	activity ActivitySource
	recorder Recorder
	opts     Options
	logger   *slog.Logger

	inProgress atomic.Bool

	mu      sync.Mutex
	current *Cycle
	last    *Cycle
}

// NewEngine creates an idle engine.
func NewEngine(browser tabs.Browser, s SettingsSource, locks LockChecker, activity ActivitySource, recorder Recorder, opts Options, logger *slog.Logger) *Engine {
	opts.applyDefaults()
	return &Engine{
		browser:  browser,
		settings: s,
		locks:    locks,
		activity: activity,
		recorder: recorder,
		opts:     opts,
		logger:   logger,
	}
}

// OnHeartbeat runs one policy evaluation. It returns the started cycle, or
// nil when nothing needs closing. Errors are logged, never returned, so
// the heartbeat keeps ticking.
func (e *Engine) OnHeartbeat(ctx context.Context) *Cycle {
	s := e.settings.Get()
	if !s.Enabled {
		return nil
	}
	if !e.inProgress.CompareAndSwap(false, true) {
		e.logger.Debug("Eviction cycle in progress, skipping heartbeat")
		return nil
	}

	victim, ok := e.evaluate(ctx, s)
	if !ok {
		e.inProgress.Store(false)
		return nil
	}

	c := &Cycle{
		ID:        uuid.NewString(),
		Victim:    victim,
		StartedAt: e.opts.Now(),
		state:     StateCounting,
		remaining: e.opts.CountdownStart,
		done:      make(chan struct{}),
	}
	e.mu.Lock()
	e.current = c
	e.mu.Unlock()

	go e.countdown(ctx, c)
	return c
}

func (e *Engine) evaluate(ctx context.Context, s settings.Settings) (tabs.Tab, bool) {
	q := tabs.Query{CurrentWindow: e.opts.Scope != config.ScopeAllWindows}
	open, err := e.browser.QueryTabs(ctx, q)
	if err != nil {
		if errors.Is(err, tabs.ErrNoBrowser) {
			e.logger.Debug("No browser connected, skipping heartbeat")
		} else {
			e.logger.Error("Failed to enumerate tabs", "error", err)
		}
		return tabs.Tab{}, false
	}
	if len(open) <= s.ThresholdCount {
		return tabs.Tab{}, false
	}

	candidates := e.candidates(open)
	if len(candidates) == 0 {
		e.logger.Debug("Over threshold but no evictable tab", "open", len(open), "threshold", s.ThresholdCount)
		return tabs.Tab{}, false
	}

	victim, ok := SelectVictim(candidates, e.opts.Now(), s.IdleThreshold())
	if ok {
		e.logger.Debug("Victim selected",
			"tab_id", victim.ID,
			"open", len(open),
			"threshold", s.ThresholdCount,
			"candidates", len(candidates),
		)
	}
	return victim, ok
}

// candidates drops pinned, locked, URL-less and exempt tabs.
func (e *Engine) candidates(open []tabs.Tab) []Candidate {
	out := make([]Candidate, 0, len(open))
	for _, t := range open {
		if t.Pinned || t.URL == "" || e.locks.IsLocked(t.ID) {
			continue
		}
		exempt, err := e.isExempt(t.URL)
		if err != nil {
			e.logger.Debug("Skipping tab with unparseable URL", "tab_id", t.ID, "error", err)
			continue
		}
		if exempt {
			continue
		}

		last, seen := e.activity.LastActive(t.ID)
		out = append(out, Candidate{Tab: t, LastActive: last, Seen: seen})
	}
	return out
}

func (e *Engine) isExempt(rawURL string) (bool, error) {
	host, err := tabs.Hostname(rawURL)
	if err != nil {
		return false, err
	}
	if host == "" {
		return false, nil
	}
	host = strings.ToLower(host)
	for _, d := range e.opts.ExemptDomains {
		if d != "" && strings.Contains(host, strings.ToLower(d)) {
			return true, nil
		}
	}
	return false, nil
}

func (e *Engine) release(c *Cycle) {
	e.mu.Lock()
	if e.current == c {
		e.current = nil
	}
	e.last = c
	e.mu.Unlock()
	e.inProgress.Store(false)
}

func (e *Engine) setBadge(ctx context.Context, text string) {
	if err := e.browser.SetBadge(ctx, text); err != nil {
		e.logger.Debug("Badge update failed", "text", text, "error", err)
	}
}

// Status summarises the engine for diagnostics.
type Status struct {
	State       State      `json:"state"`
	CycleID     string     `json:"cycleId,omitempty"`
	VictimID    tabs.TabID `json:"victimId,omitempty"`
	VictimURL   string     `json:"victimUrl,omitempty"`
	Remaining   int        `json:"remaining,omitempty"`
	LastOutcome Outcome    `json:"lastOutcome,omitempty"`
	LastCycleAt time.Time  `json:"lastCycleAt,omitempty"`
}

// Status returns the running cycle, if any, and how the last one ended.
func (e *Engine) Status() Status {
	e.mu.Lock()
	cur, last := e.current, e.last
	e.mu.Unlock()

	st := Status{State: StateIdle}
	if cur != nil {
		st.State = cur.State()
		st.CycleID = cur.ID
		st.VictimID = cur.Victim.ID
		st.VictimURL = cur.Victim.URL
		st.Remaining = cur.Remaining()
	}
	if last != nil {
		st.LastOutcome = last.Outcome()
		st.LastCycleAt = last.StartedAt
	}
	return st
}

// String implements fmt.Stringer for log output.
func (s Status) String() string {
	if s.State == StateIdle {
		return string(StateIdle)
	}
	return fmt.Sprintf("%s tab=%d remaining=%d", s.State, s.VictimID, s.Remaining)
}
