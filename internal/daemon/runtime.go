package daemon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/runnerr0/tabsentry/internal/activity"
	"github.com/runnerr0/tabsentry/internal/bridge"
	"github.com/runnerr0/tabsentry/internal/config"
	"github.com/runnerr0/tabsentry/internal/heartbeat"
	"github.com/runnerr0/tabsentry/internal/history"
	"github.com/runnerr0/tabsentry/internal/locks"
	"github.com/runnerr0/tabsentry/internal/logging"
	"github.com/runnerr0/tabsentry/internal/policy"
	"github.com/runnerr0/tabsentry/internal/settings"
	"github.com/runnerr0/tabsentry/internal/storage"
	"github.com/runnerr0/tabsentry/internal/watch"
)

// Runtime is the process context: every component, created once in
// dependency order and released together.
type Runtime struct {
	Config *config.Config
	DBPath string

	DB        *sql.DB
	Store     *storage.SQLiteStore
	Tracker   *activity.Tracker
	Locks     *locks.Registry
	Settings  *settings.Store
	Bridge    *bridge.Server
	History   *history.History
	Engine    *policy.Engine
	Daemon    *Daemon
	Heartbeat *heartbeat.Scheduler
	Watcher   *watch.Watcher
	HTTP      *HTTPServer

	logger *slog.Logger
}

// NewRuntime opens the store and builds every component. Nothing runs
// until Run.
func NewRuntime(ctx context.Context, cfg *config.Config, version string) (_ *Runtime, err error) {
	rt := &Runtime{Config: cfg, logger: logging.NewModuleLogger("daemon", "runtime")}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	rt.DBPath, err = cfg.Storage.DBPath()
	if err != nil {
		return nil, err
	}
	rt.Store, rt.DB, err = storage.Open(rt.DBPath, cfg.Storage.SQLiteJournalMode)
	if err != nil {
		return nil, err
	}

	rt.Tracker = activity.NewTracker(nil)

	rt.Locks = locks.NewRegistry(rt.Store, logging.NewModuleLogger("locks", "registry"))
	if err := rt.Locks.Load(ctx); err != nil {
		return nil, err
	}

	rt.Settings = settings.NewStore(rt.Store, logging.NewModuleLogger("settings", "store"))
	if _, err := rt.Settings.Reload(ctx); err != nil {
		return nil, err
	}

	rt.Bridge = bridge.NewServer(bridge.Options{
		RequestTimeout: cfg.Daemon.RequestTimeout(),
		MaxMessageSize: cfg.Daemon.MaxRequestSize,
	}, logging.NewModuleLogger("bridge", "server"))

	rt.History = history.New(rt.Store, rt.Tracker, rt.Bridge, rt.Bridge,
		history.OptionsFromConfig(cfg.History), logging.NewModuleLogger("history", "queue"))

	policyOpts, err := policy.OptionsFromConfig(cfg.Policy)
	if err != nil {
		return nil, err
	}
	rt.Engine = policy.NewEngine(rt.Bridge, rt.Settings, rt.Locks, rt.Tracker, rt.History,
		policyOpts, logging.NewModuleLogger("policy", "engine"))

	rt.Heartbeat = heartbeat.NewScheduler(func(ctx context.Context) {
		rt.Engine.OnHeartbeat(ctx)
	}, logging.NewModuleLogger("heartbeat", "scheduler"))
	rt.Settings.SetRescheduler(rt.Heartbeat)

	rt.Daemon = New(Deps{
		Tracker:     rt.Tracker,
		Locks:       rt.Locks,
		Settings:    rt.Settings,
		History:     rt.History,
		Engine:      rt.Engine,
		Browser:     rt.Bridge,
		Pinger:      rt.DB,
		Stats:       rt.Store,
		Connections: rt.Bridge,
		Heartbeat:   rt.Heartbeat,
		Version:     version,
	}, logging.NewModuleLogger("daemon", "handler"))
	rt.Bridge.SetHandler(rt.Daemon)

	rt.Watcher, err = watch.New(watch.Config{
		DBPath:   rt.DBPath,
		Debounce: time.Duration(cfg.Storage.WatchDebounceMS) * time.Millisecond,
	}, rt.onExternalChange, logging.NewModuleLogger("watch", "db"))
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	router := NewRouter(rt.Daemon, rt.Bridge, cfg.Daemon.MaxRequestSize)
	rt.HTTP = NewHTTPServer(cfg.Daemon.Addr(), router, logging.NewModuleLogger("http", "server"))

	return rt, nil
}

// onExternalChange reloads settings after another process wrote the store.
func (rt *Runtime) onExternalChange() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := rt.Settings.Reload(ctx); err != nil {
		rt.logger.Warn("Reload after external change failed", "error", err)
	}
}

// Run starts the heartbeat, the watcher and the HTTP server, and blocks
// until ctx is done or the server fails.
func (rt *Runtime) Run(ctx context.Context) error {
	if err := rt.Heartbeat.Start(ctx, rt.Settings.Get().HeartbeatPeriod()); err != nil {
		return err
	}
	if err := rt.Watcher.Start(); err != nil {
		rt.logger.Warn("External change watcher unavailable", "error", err)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- rt.HTTP.Start() }()

	rt.logger.Info("Daemon running", "addr", rt.Config.Daemon.Addr(), "db", rt.DBPath)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rt.HTTP.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

// Close stops every component in reverse creation order.
func (rt *Runtime) Close() error {
	if rt.Heartbeat != nil {
		rt.Heartbeat.Stop()
	}
	if rt.Watcher != nil {
		rt.Watcher.Stop()
	}
	if rt.Bridge != nil {
		rt.Bridge.Close()
	}
	if rt.History != nil {
		rt.History.Close()
	}
	if rt.Store != nil {
		rt.Store.Close()
	}
	if rt.DB != nil {
		return rt.DB.Close()
	}
	return nil
}
