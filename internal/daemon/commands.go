package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/runnerr0/tabsentry/internal/policy"
	"github.com/runnerr0/tabsentry/internal/settings"
	"github.com/runnerr0/tabsentry/internal/storage"
	"github.com/runnerr0/tabsentry/internal/tabs"
)

// Command names accepted by Dispatch.
const (
	CmdLockTab         = "lockTab"
	CmdUnlockTab       = "unlockTab"
	CmdRestoreTab      = "restoreTab"
	CmdDeleteClosedTab = "deleteClosedTab"
	CmdRefreshSettings = "refreshSettings"
	CmdNotify          = "notify"
	CmdListClosedTabs  = "listClosedTabs"
	CmdClearClosedTabs = "clearClosedTabs"
	CmdGetSettings     = "getSettings"
	CmdSaveSettings    = "saveSettings"
	CmdListLockedTabs  = "listLockedTabs"
)

// ErrPingFailed is the error reported for a failed liveness check.
var ErrPingFailed = errors.New("ping failed")

// ErrBadCommand marks a command that is unknown or missing arguments.
var ErrBadCommand = errors.New("bad command")

// Command is a request from a UI client. Only the fields its Name needs
// are read.
type Command struct {
	Name     string          `json:"name"`
	TabID    tabs.TabID      `json:"tabId,omitempty"`
	URL      string          `json:"url,omitempty"`
	Time     *time.Time      `json:"time,omitempty"`
	Filter   string          `json:"filter,omitempty"`
	Settings *settings.Patch `json:"settings,omitempty"`
}

// Response answers a Command. A command is acknowledged only after its
// effect is persisted.
type Response struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// ClearResult is the data of a clearClosedTabs response.
type ClearResult struct {
	Removed int64 `json:"removed"`
}

// DeleteResult is the data of a deleteClosedTab response.
type DeleteResult struct {
	Removed bool `json:"removed"`
}

// Dispatch executes cmd and wraps the outcome in a Response.
func (d *Daemon) Dispatch(ctx context.Context, cmd Command) Response {
	data, err := d.execute(ctx, cmd)
	if err != nil {
		return Response{OK: false, Error: err.Error()}
	}
	return Response{OK: true, Data: data}
}

// HandleCommand implements bridge.Handler.
func (d *Daemon) HandleCommand(ctx context.Context, name string, payload json.RawMessage) interface{} {
	var cmd Command
	if len(payload) > 0 && string(payload) != "null" {
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return Response{OK: false, Error: fmt.Sprintf("%v: %v", ErrBadCommand, err)}
		}
	}
	cmd.Name = name
	return d.Dispatch(ctx, cmd)
}

func (d *Daemon) execute(ctx context.Context, cmd Command) (interface{}, error) {
	d.logger.Debug("Command received", "name", cmd.Name)

	switch cmd.Name {
	case CmdLockTab:
		if cmd.TabID == 0 {
			return nil, fmt.Errorf("%w: %s requires tabId", ErrBadCommand, cmd.Name)
		}
		return nil, d.Locks.Lock(ctx, cmd.TabID)

	case CmdUnlockTab:
		if cmd.TabID == 0 {
			return nil, fmt.Errorf("%w: %s requires tabId", ErrBadCommand, cmd.Name)
		}
		return nil, d.Locks.Unlock(ctx, cmd.TabID)

	case CmdListLockedTabs:
		return d.Locks.List(), nil

	case CmdRestoreTab:
		at, err := entryRef(cmd)
		if err != nil {
			return nil, err
		}
		return nil, d.History.Restore(ctx, cmd.URL, at)

	case CmdDeleteClosedTab:
		at, err := entryRef(cmd)
		if err != nil {
			return nil, err
		}
		removed, err := d.History.Delete(ctx, cmd.URL, at)
		if err != nil {
			return nil, err
		}
		return DeleteResult{Removed: removed}, nil

	case CmdListClosedTabs:
		return d.History.List(ctx, cmd.Filter)

	case CmdClearClosedTabs:
		n, err := d.History.Clear(ctx)
		if err != nil {
			return nil, err
		}
		return ClearResult{Removed: n}, nil

	case CmdRefreshSettings:
		return d.Settings.Reload(ctx)

	case CmdGetSettings:
		return d.Settings.Get(), nil

	case CmdSaveSettings:
		if cmd.Settings == nil {
			return nil, fmt.Errorf("%w: %s requires settings", ErrBadCommand, cmd.Name)
		}
		s, err := d.Settings.Save(ctx, cmd.Settings.Apply(d.Settings.Get()))
		if err != nil {
			return nil, err
		}
		return s, nil

	case CmdNotify:
		if err := d.ping(ctx); err != nil {
			d.logger.Warn("Ping failed", "error", err)
			return nil, ErrPingFailed
		}
		return "pong", nil

	default:
		return nil, fmt.Errorf("%w: unknown command %q", ErrBadCommand, cmd.Name)
	}
}

func entryRef(cmd Command) (time.Time, error) {
	if cmd.URL == "" || cmd.Time == nil || cmd.Time.IsZero() {
		return time.Time{}, fmt.Errorf("%w: %s requires url and time", ErrBadCommand, cmd.Name)
	}
	return *cmd.Time, nil
}

func (d *Daemon) ping(ctx context.Context) error {
	if d.Pinger == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.Pinger.PingContext(ctx)
}

// Status is a point-in-time summary of the daemon.
type Status struct {
	Version          string            `json:"version"`
	StartedAt        time.Time         `json:"startedAt"`
	BrowserConnected bool              `json:"browserConnected"`
	Connections      int               `json:"connections"`
	HeartbeatPeriod  string            `json:"heartbeatPeriod"`
	Settings         settings.Settings `json:"settings"`
	Engine           policy.Status     `json:"engine"`
	LockedTabs       int               `json:"lockedTabs"`
	TrackedTabs      int               `json:"trackedTabs"`
	Stats            *storage.Stats    `json:"stats,omitempty"`
}

// Status collects the current daemon state.
func (d *Daemon) Status(ctx context.Context) Status {
	st := Status{
		Version:     d.Version,
		StartedAt:   d.startedAt,
		Settings:    d.Settings.Get(),
		Engine:      d.Engine.Status(),
		LockedTabs:  len(d.Locks.List()),
		TrackedTabs: len(d.Tracker.Snapshot()),
	}
	if d.Connections != nil {
		st.BrowserConnected = d.Connections.HasBrowser()
		st.Connections = d.Connections.Connections()
	}
	if d.Heartbeat != nil {
		st.HeartbeatPeriod = d.Heartbeat.Period().String()
	}
	if d.Stats != nil {
		stats, err := d.Stats.GetStats(ctx)
		if err != nil {
			d.logger.Warn("Failed to read stats", "error", err)
		} else {
			st.Stats = stats
		}
	}
	return st
}
