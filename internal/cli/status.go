package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/tabsentry/internal/daemon"
	"github.com/runnerr0/tabsentry/internal/storage"
)

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version       string         `json:"version"`
	DatabasePath  string         `json:"database_path"`
	DaemonRunning bool           `json:"daemon_running"`
	Daemon        *daemon.Status `json:"daemon,omitempty"`
	Stats         *storage.Stats `json:"stats"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	store, db, dbPath, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	defer store.Close()

	return c.executeWith(store, newClient(cfg), dbPath)
}

// executeWith runs status against a provided store and daemon client (for testing).
func (c *StatusCommand) executeWith(store *storage.SQLiteStore, client *daemon.Client, dbPath string) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	// A daemon that is down is reported, not an error.
	var live *daemon.Status
	if client != nil {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		live, _ = client.Status(probeCtx)
		cancel()
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(statusJSON{
			Version:       c.version,
			DatabasePath:  dbPath,
			DaemonRunning: live != nil,
			Daemon:        live,
			Stats:         stats,
		})
	}
	c.printHuman(stats, live, dbPath)
	return nil
}

func (c *StatusCommand) printHuman(stats *storage.Stats, live *daemon.Status, dbPath string) {
	fmt.Println("tabsentry status")
	fmt.Println("================")
	fmt.Printf("Version:       %s\n", c.version)
	fmt.Printf("Database:      %s (%s)\n", dbPath, formatBytes(stats.DatabaseSizeBytes))
	fmt.Printf("Closed tabs:   %d\n", stats.ClosedTabs)
	if stats.ClosedTabs > 0 {
		fmt.Printf("Oldest:        %s\n", stats.OldestClosed.Local().Format("2006-01-02 15:04"))
		fmt.Printf("Newest:        %s\n", stats.NewestClosed.Local().Format("2006-01-02 15:04"))
	}
	fmt.Printf("Locked tabs:   %d\n", stats.LockedTabs)

	if len(stats.TopDomains) > 0 {
		fmt.Println()
		fmt.Println("Most closed:")
		for _, d := range stats.TopDomains {
			fmt.Printf("  %-30s %d\n", d.Domain, d.Count)
		}
	}

	fmt.Println()
	if live == nil {
		fmt.Println("Daemon:        not running")
		return
	}
	fmt.Println("Daemon:        running")
	fmt.Printf("Uptime:        %s\n", time.Since(live.StartedAt).Round(time.Second))
	if live.BrowserConnected {
		fmt.Println("Browser:       connected")
	} else {
		fmt.Println("Browser:       not connected")
	}
	fmt.Printf("Clients:       %d\n", live.Connections)
	fmt.Printf("Heartbeat:     %s\n", live.HeartbeatPeriod)

	s := live.Settings
	enabled := "off"
	if s.Enabled {
		enabled = "on"
	}
	fmt.Printf("Policy:        %s, max %d tabs, idle after %dm\n", enabled, s.ThresholdCount, s.IdleMinutes)
	fmt.Printf("Engine:        %s\n", live.Engine)
	if live.Engine.LastOutcome != "" {
		fmt.Printf("Last cycle:    %s (%s)\n", live.Engine.LastOutcome, formatAge(live.Engine.LastCycleAt, time.Now()))
	}
	fmt.Printf("Tracked tabs:  %d\n", live.TrackedTabs)
}
