// Package daemon wires the tab manager together: it reacts to browser
// events, answers commands from UI clients and owns the process lifetime.
package daemon

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/runnerr0/tabsentry/internal/activity"
	"github.com/runnerr0/tabsentry/internal/bridge"
	"github.com/runnerr0/tabsentry/internal/history"
	"github.com/runnerr0/tabsentry/internal/locks"
	"github.com/runnerr0/tabsentry/internal/policy"
	"github.com/runnerr0/tabsentry/internal/settings"
	"github.com/runnerr0/tabsentry/internal/storage"
	"github.com/runnerr0/tabsentry/internal/tabs"
)

// Pinger checks that persisted state is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

var _ Pinger = (*sql.DB)(nil)

// StatsSource reports database statistics.
type StatsSource interface {
	GetStats(ctx context.Context) (*storage.Stats, error)
}

// Connections reports the bridge state.
type Connections interface {
	Connections() int
	HasBrowser() bool
}

// PeriodSource reports the heartbeat period.
type PeriodSource interface {
	Period() time.Duration
}

// Deps are the components a Daemon coordinates. Optional fields may be nil.
type Deps struct {
	Tracker  *activity.Tracker
	Locks    *locks.Registry
	Settings *settings.Store
	History  *history.History
	Engine   *policy.Engine
	Browser  tabs.Browser

	Pinger      Pinger
	Stats       StatsSource
	Connections Connections
	Heartbeat   PeriodSource
	Version     string
}

// Daemon handles bridge events and commands.
type Daemon struct {
	Deps
	startedAt time.Time
	logger    *slog.Logger
}

var _ bridge.Handler = (*Daemon)(nil)

// New creates a daemon over deps.
func New(deps Deps, logger *slog.Logger) *Daemon {
	return &Daemon{Deps: deps, startedAt: time.Now(), logger: logger}
}

// HandleEvent updates the tracker and history from a tab lifecycle event.
func (d *Daemon) HandleEvent(ctx context.Context, ev bridge.Event) {
	switch ev.Type {
	case bridge.EventTabCreated:
		d.Tracker.RecordNavigation(ev.TabID, ev.URL, ev.Title)

	case bridge.EventTabUpdated:
		if ev.Status == bridge.StatusComplete {
			d.Tracker.RecordNavigation(ev.TabID, ev.URL, ev.Title)
		}

	case bridge.EventTabActivated:
		d.Tracker.RecordActivity(ev.TabID)

	case bridge.EventWindowFocusChanged:
		if ev.WindowID == tabs.WindowNone {
			return
		}
		active, err := d.Browser.QueryTabs(ctx, tabs.Query{Active: true, WindowID: ev.WindowID})
		if err != nil {
			d.logger.Debug("Failed to resolve focused tab", "window_id", ev.WindowID, "error", err)
			return
		}
		if len(active) > 0 {
			d.Tracker.RecordActivity(active[0].ID)
		}

	case bridge.EventTabRemoved:
		// Record before forgetting: the tracker holds the only copy of the URL.
		if _, err := d.History.Record(ctx, history.Closed{TabID: ev.TabID, URL: ev.URL, Title: ev.Title}); err != nil {
			d.logger.Warn("Closed tab not recorded", "tab_id", ev.TabID, "error", err)
		}
		d.Tracker.Forget(ev.TabID)

	default:
		d.logger.Debug("Unknown event", "type", ev.Type)
	}
}
