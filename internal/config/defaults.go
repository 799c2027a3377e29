package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:              "~/.config/tabsentry",
			SQLiteFile:        "tabsentry.db",
			SQLiteJournalMode: "wal",
			WatchDebounceMS:   250,
		},
		Daemon: DaemonConfig{
			Host:             "127.0.0.1",
			Port:             8731,
			RequestTimeoutMS: 5000,
			MaxRequestSize:   1 << 20,
		},
		Policy: PolicyConfig{
			Scope:             ScopeCurrentWindow,
			ExemptDomains:     DefaultExemptDomains(),
			CountdownSeconds:  5,
			CountdownInterval: "1s",
		},
		History: HistoryConfig{
			MaxEntries:          50,
			DedupeWindowSeconds: 6,
			DedupeCapacity:      256,
			RecentWindowSeconds: 3,
			InternalSchemes:     DefaultInternalSchemes(),
			NormalizeURLs:       true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
	}
}
