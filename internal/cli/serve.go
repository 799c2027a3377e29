package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/runnerr0/tabsentry/internal/daemon"
	"github.com/runnerr0/tabsentry/internal/logging"
)

// Execute implements the go-flags Commander interface for ServeCommand.
func (c *ServeCommand) Execute(args []string) error {
	cfg, err := loadConfig(c.globals)
	if err != nil {
		return err
	}
	if c.Port != 0 {
		cfg.Daemon.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
	if c.globals != nil && c.globals.Verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := logging.Init(cfg.Logging); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := daemon.NewRuntime(ctx, cfg, c.version)
	if err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	defer rt.Close()

	logging.NewModuleLogger("cli", "serve").Info("tabsentry starting", "version", c.version, "addr", cfg.Daemon.Addr())
	return rt.Run(ctx)
}
