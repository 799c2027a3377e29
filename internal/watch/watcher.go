// Package watch reports changes made to the database by other processes,
// such as `tabsentry settings set`, so the daemon can reload.
package watch

import (
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config selects what to watch.
type Config struct {
	// DBPath is the SQLite database file. Its directory is watched, and
	// events on the file or its -wal/-journal siblings count as changes.
	DBPath string
	// Debounce coalesces bursts of writes into one callback.
	Debounce time.Duration
}

// Watcher calls onChange at most once per debounce window after the
// database changed on disk.
type Watcher struct {
	cfg      Config
	onChange func()
	watcher  *fsnotify.Watcher
	logger   *slog.Logger

	debounceMu sync.Mutex
	timer      *time.Timer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a stopped watcher.
func New(cfg Config, onChange func(), logger *slog.Logger) (*Watcher, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("watch: database path required")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		cfg:      cfg,
		onChange: onChange,
		watcher:  fw,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching the database directory.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.cfg.DBPath)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("Watching database for external changes", "dir", dir, "debounce", w.cfg.Debounce)

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop ends watching and cancels a pending callback.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		w.wg.Wait()

		w.debounceMu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.debounceMu.Unlock()
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(ev) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(w.cfg.DBPath)
	name := filepath.Base(ev.Name)
	return name == base || strings.HasPrefix(name, base+"-")
}

func (w *Watcher) schedule() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.cfg.Debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.onChange()
	})
}
