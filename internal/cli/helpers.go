package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/runnerr0/tabsentry/internal/config"
	"github.com/runnerr0/tabsentry/internal/daemon"
	"github.com/runnerr0/tabsentry/internal/storage"
)

// loadConfig reads --config if given, otherwise the default config file,
// creating it with defaults on first use.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals != nil && globals.Config != "" {
		cfg, err := config.Load(globals.Config)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadOrCreate()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured database with migrations applied.
func openStore(cfg *config.Config) (*storage.SQLiteStore, *sql.DB, string, error) {
	dbPath, err := cfg.Storage.DBPath()
	if err != nil {
		return nil, nil, "", err
	}
	store, db, err := storage.Open(dbPath, cfg.Storage.SQLiteJournalMode)
	if err != nil {
		return nil, nil, "", err
	}
	return store, db, dbPath, nil
}

// newClient returns a client for the configured daemon. The timeout leaves
// room for one browser round trip on the daemon side.
func newClient(cfg *config.Config) *daemon.Client {
	return daemon.NewClient(cfg.Daemon.Addr(), cfg.Daemon.RequestTimeout()+5*time.Second)
}

// requireDaemon rewrites an unreachable-daemon error into a hint.
func requireDaemon(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, daemon.ErrUnreachable) {
		return fmt.Errorf("%w (start it with: tabsentry serve)", err)
	}
	return err
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseEntryTime accepts the close time exactly as history --json prints it.
func parseEntryTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want RFC 3339, as printed by history --json): %w", s, err)
	}
	return t, nil
}

// formatAge formats how long ago t was, like "3m ago".
func formatAge(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < 0:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
