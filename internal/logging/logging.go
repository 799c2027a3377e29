// Package logging bootstraps the process-wide slog logger and hands out
// per-component loggers.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/runnerr0/tabsentry/internal/config"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	closer        io.Closer
)

// Init configures the default logger. An empty File logs to stdout.
func Init(cfg config.LoggingConfig) error {
	var out io.Writer = os.Stdout
	var c io.Closer

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out, c = f, f
	}

	logger := New(out, cfg.Level, cfg.Format)

	mu.Lock()
	if closer != nil {
		closer.Close()
	}
	defaultLogger, closer = logger, c
	mu.Unlock()

	slog.SetDefault(logger)
	return nil
}

// New builds a logger writing to out. Format "json" selects the JSON
// handler, anything else the text handler.
func New(out io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	if strings.ToLower(format) == "json" {
		h = slog.NewJSONHandler(out, opts)
	} else {
		h = slog.NewTextHandler(out, opts)
	}
	return slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "tabsentry")}))
}

// Get returns the default logger, falling back to slog's default before Init.
func Get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if defaultLogger == nil {
		return slog.Default()
	}
	return defaultLogger
}

// NewModuleLogger returns a logger tagged with module and component.
func NewModuleLogger(module, component string) *slog.Logger {
	return Get().With(
		slog.String("module", module),
		slog.String("component", component),
	)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a config level name onto slog levels; unknown names are info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
