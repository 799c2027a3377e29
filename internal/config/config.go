package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default config file path.
const DefaultConfigPath = "~/.config/tabsentry/config.yaml"

// Scope values for PolicyConfig.Scope.
const (
	ScopeCurrentWindow = "current_window"
	ScopeAllWindows    = "all_windows"
)

// Config holds all tabsentry daemon configuration. Policy thresholds the
// user edits at runtime (tab count, idle minutes, heartbeat, enabled) are
// not here: they live in the store and are owned by the settings package.
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Daemon  DaemonConfig  `yaml:"daemon"`
	Policy  PolicyConfig  `yaml:"policy"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

type StorageConfig struct {
	Path              string `yaml:"path"`
	SQLiteFile        string `yaml:"sqlite_file"`
	SQLiteJournalMode string `yaml:"sqlite_journal_mode"`
	WatchDebounceMS   int    `yaml:"watch_debounce_ms"`
}

type DaemonConfig struct {
	Host             string `yaml:"host"`
	Port             int    `yaml:"port"`
	RequestTimeoutMS int    `yaml:"request_timeout_ms"`
	MaxRequestSize   int64  `yaml:"max_request_size"`
}

type PolicyConfig struct {
	Scope             string   `yaml:"scope"`
	ExemptDomains     []string `yaml:"exempt_domains"`
	CountdownSeconds  int      `yaml:"countdown_seconds"`
	CountdownInterval string   `yaml:"countdown_interval"`
}

type HistoryConfig struct {
	MaxEntries          int      `yaml:"max_entries"`
	DedupeWindowSeconds int      `yaml:"dedupe_window_seconds"`
	DedupeCapacity      int      `yaml:"dedupe_capacity"`
	RecentWindowSeconds int      `yaml:"recent_window_seconds"`
	InternalSchemes     []string `yaml:"internal_schemes"`
	NormalizeURLs       bool     `yaml:"normalize_urls"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Load reads a YAML config file at path and merges it with defaults.
// Returns an error if the file cannot be read or contains invalid YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Policy.Scope {
	case ScopeCurrentWindow, ScopeAllWindows:
	default:
		return fmt.Errorf("invalid policy.scope %q (use %s or %s)", c.Policy.Scope, ScopeCurrentWindow, ScopeAllWindows)
	}
	if c.Policy.CountdownSeconds < 0 {
		return fmt.Errorf("policy.countdown_seconds must be >= 0, got %d", c.Policy.CountdownSeconds)
	}
	if _, err := c.Policy.Interval(); err != nil {
		return err
	}
	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("history.max_entries must be > 0, got %d", c.History.MaxEntries)
	}
	if c.Daemon.Port <= 0 || c.Daemon.Port > 65535 {
		return fmt.Errorf("daemon.port out of range: %d", c.Daemon.Port)
	}
	return nil
}

// Interval parses CountdownInterval.
func (p PolicyConfig) Interval() (time.Duration, error) {
	d, err := time.ParseDuration(p.CountdownInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid policy.countdown_interval %q: %w", p.CountdownInterval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("policy.countdown_interval must be positive, got %s", d)
	}
	return d, nil
}

// DedupeWindow is the per-tab-id de-duplication window.
func (h HistoryConfig) DedupeWindow() time.Duration {
	return time.Duration(h.DedupeWindowSeconds) * time.Second
}

// RecentWindow is the same-URL recency window.
func (h HistoryConfig) RecentWindow() time.Duration {
	return time.Duration(h.RecentWindowSeconds) * time.Second
}

// RequestTimeout bounds one browser primitive round trip.
func (d DaemonConfig) RequestTimeout() time.Duration {
	return time.Duration(d.RequestTimeoutMS) * time.Millisecond
}

// Addr is the host:port the daemon listens on.
func (d DaemonConfig) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

// DBPath resolves the SQLite database path, expanding a leading ~.
func (s StorageConfig) DBPath() (string, error) {
	dir, err := expandPath(s.Path)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, s.SQLiteFile), nil
}

// expandPath replaces a leading ~ with the user's home directory.
func expandPath(path string) (string, error) {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

// LoadOrCreate loads the config from the default path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreate() (*Config, error) {
	path, err := expandPath(DefaultConfigPath)
	if err != nil {
		return nil, err
	}
	return LoadOrCreateAt(path)
}

// LoadOrCreateAt loads the config from the given path. If the file does
// not exist, it creates the directory structure and writes defaults.
func LoadOrCreateAt(path string) (*Config, error) {
	path, err := expandPath(path)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := DefaultConfig()

		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}

		data, err := yaml.Marshal(cfg)
		if err != nil {
			return nil, fmt.Errorf("marshaling default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("writing default config: %w", err)
		}

		return cfg, nil
	}

	return Load(path)
}
