package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tabsentry/internal/daemon"
	"github.com/runnerr0/tabsentry/internal/logging"
	"github.com/runnerr0/tabsentry/internal/settings"
	"github.com/runnerr0/tabsentry/internal/storage"
)

// Execute implements the go-flags Commander interface for SettingsCommand.
func (c *SettingsCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, db, _, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWith(store, newClient(cfg))
}

func (c *SettingsCommand) changes() bool {
	return c.Threshold != nil || c.Idle != nil || c.Heartbeat != nil || c.Enable || c.Disable
}

// executeWith writes the settings record directly, then asks a running
// daemon to reload it. A daemon that misses the request still picks the
// change up through its store watcher.
func (c *SettingsCommand) executeWith(store *storage.SQLiteStore, client *daemon.Client) error {
	if c.Enable && c.Disable {
		return fmt.Errorf("--enable and --disable are mutually exclusive")
	}

	ctx := context.Background()
	st := settings.NewStore(store, logging.NewModuleLogger("cli", "settings"))
	current, err := st.Reload(ctx)
	if err != nil {
		return err
	}

	if c.changes() {
		next := current
		if c.Threshold != nil {
			next.ThresholdCount = *c.Threshold
		}
		if c.Idle != nil {
			next.IdleMinutes = *c.Idle
		}
		if c.Heartbeat != nil {
			next.HeartbeatMinutes = *c.Heartbeat
		}
		if c.Enable {
			next.Enabled = true
		}
		if c.Disable {
			next.Enabled = false
		}

		current, err = st.Save(ctx, next)
		if err != nil {
			return err
		}

		if client != nil {
			refreshCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
			_ = client.Do(refreshCtx, daemon.Command{Name: daemon.CmdRefreshSettings}, nil)
			cancel()
		}
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(current)
	}
	enabled := "off"
	if current.Enabled {
		enabled = "on"
	}
	fmt.Printf("Enabled:       %s\n", enabled)
	fmt.Printf("Max tabs:      %d\n", current.ThresholdCount)
	fmt.Printf("Idle after:    %d min\n", current.IdleMinutes)
	fmt.Printf("Heartbeat:     %g min (%s)\n", current.HeartbeatMinutes, current.HeartbeatPeriod())
	return nil
}
