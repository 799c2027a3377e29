// Package history maintains the bounded, de-duplicated list of closed tabs.
//
// Every mutation goes through one FIFO queue drained by a single worker
// goroutine, so a manual close and a policy close of the same tab cannot
// interleave their read-modify-write of the persisted list.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/runnerr0/tabsentry/internal/config"
	"github.com/runnerr0/tabsentry/internal/dedup"
	"github.com/runnerr0/tabsentry/internal/storage"
	"github.com/runnerr0/tabsentry/internal/tabs"
)

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = errors.New("history closed")

// Store is the slice of storage.Store the history needs.
type Store interface {
	ListClosedTabs(ctx context.Context, filter string) ([]storage.ClosedTab, error)
	LatestClosedTab(ctx context.Context) (*storage.ClosedTab, error)
	PushClosedTab(ctx context.Context, entry storage.ClosedTab, max int) error
	DeleteClosedTab(ctx context.Context, url string, at time.Time) (bool, error)
	ClearClosedTabs(ctx context.Context) (int64, error)
}

// Resolver supplies the last known URL and title of a tab.
type Resolver interface {
	Lookup(id tabs.TabID) (url, title string, ok bool)
}

// Notifier broadcasts that the history changed. tabs.ErrNoListener is
// expected and ignored.
type Notifier interface {
	NotifyRefresh(ctx context.Context) error
}

// Closed describes a tab to record. A zero TabID means the caller only
// knows the URL; an empty URL means resolve it from the tab id.
type Closed struct {
	TabID tabs.TabID
	URL   string
	Title string
}

// Options tune the history. Zero values are replaced by defaults.
type Options struct {
	MaxEntries      int
	DedupeWindow    time.Duration
	DedupeCapacity  int
	RecentWindow    time.Duration
	InternalSchemes []string
	NormalizeURLs   bool
	Now             func() time.Time
}

// OptionsFromConfig maps the history config section.
func OptionsFromConfig(c config.HistoryConfig) Options {
	return Options{
		MaxEntries:      c.MaxEntries,
		DedupeWindow:    c.DedupeWindow(),
		DedupeCapacity:  c.DedupeCapacity,
		RecentWindow:    c.RecentWindow(),
		InternalSchemes: c.InternalSchemes,
		NormalizeURLs:   c.NormalizeURLs,
	}
}

func (o *Options) applyDefaults() {
	d := config.DefaultConfig().History
	if o.MaxEntries <= 0 {
		o.MaxEntries = d.MaxEntries
	}
	if o.DedupeWindow <= 0 {
		o.DedupeWindow = d.DedupeWindow()
	}
	if o.DedupeCapacity <= 0 {
		o.DedupeCapacity = d.DedupeCapacity
	}
	if o.RecentWindow <= 0 {
		o.RecentWindow = d.RecentWindow()
	}
	if o.InternalSchemes == nil {
		o.InternalSchemes = d.InternalSchemes
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

type task struct {
	ctx    context.Context
	run    func(ctx context.Context) error
	result chan error
}

// History is the closed-tab list. Create it with New and release it with
// Close.
type History struct {
	store    Store
	resolver Resolver
	opener   tabs.Opener
	notifier Notifier
	opts     Options
	logger   *slog.Logger

	recentIDs *dedup.Window[tabs.TabID]

	tasks     chan task
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts the history worker. notifier may be nil.
func New(store Store, resolver Resolver, opener tabs.Opener, notifier Notifier, opts Options, logger *slog.Logger) *History {
	opts.applyDefaults()
	h := &History{
		store:     store,
		resolver:  resolver,
		opener:    opener,
		notifier:  notifier,
		opts:      opts,
		logger:    logger,
		recentIDs: dedup.NewWindow[tabs.TabID](opts.DedupeWindow, opts.DedupeCapacity),
		tasks:     make(chan task),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go h.worker()
	return h
}

func (h *History) worker() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			return
		case t := <-h.tasks:
			if err := t.ctx.Err(); err != nil {
				t.result <- err
				continue
			}
			t.result <- t.run(t.ctx)
		}
	}
}

// enqueue runs fn on the worker after every previously queued task and
// waits for its result.
func (h *History) enqueue(ctx context.Context, fn func(ctx context.Context) error) error {
	t := task{ctx: ctx, run: fn, result: make(chan error, 1)}
	select {
	case h.tasks <- t:
	case <-h.quit:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-t.result
}

// Close stops the worker after the task in progress.
func (h *History) Close() {
	h.closeOnce.Do(func() { close(h.quit) })
	<-h.done
}

// Record adds a closed tab at the head of the history. It reports whether
// an entry was written: unknown tabs, internal pages and anything inside a
// de-duplication window are skipped without error.
func (h *History) Record(ctx context.Context, c Closed) (bool, error) {
	var written bool
	err := h.enqueue(ctx, func(ctx context.Context) error {
		var err error
		written, err = h.record(ctx, c)
		return err
	})
	if err != nil {
		h.logger.Error("Failed to record closed tab", "tab_id", c.TabID, "url", c.URL, "error", err)
	}
	return written, err
}

func (h *History) record(ctx context.Context, c Closed) (bool, error) {
	url, title := c.URL, c.Title
	if url == "" && c.TabID != 0 && h.resolver != nil {
		url, title, _ = h.resolver.Lookup(c.TabID)
	} else if title == "" && c.TabID != 0 && h.resolver != nil {
		if knownURL, knownTitle, ok := h.resolver.Lookup(c.TabID); ok && knownURL == url {
			title = knownTitle
		}
	}
	if url == "" {
		h.logger.Debug("No URL known for closed tab", "tab_id", c.TabID)
		return false, nil
	}
	if IsInternal(url, h.opts.InternalSchemes) {
		h.logger.Debug("Skipping internal page", "tab_id", c.TabID, "url", url)
		return false, nil
	}

	if h.opts.NormalizeURLs {
		url = NormalizeURL(url)
	}
	if title == "" {
		title = tabs.DisplayTitle(url, "")
	}

	now := h.opts.Now()
	if c.TabID != 0 && h.recentIDs.Seen(c.TabID, now) {
		h.logger.Debug("Tab recorded moments ago, skipping", "tab_id", c.TabID)
		return false, nil
	}

	latest, err := h.store.LatestClosedTab(ctx)
	if err != nil {
		return false, fmt.Errorf("record closed tab: %w", err)
	}
	if latest != nil && latest.URL == url {
		if age := now.Sub(latest.Time); age >= 0 && age < h.opts.RecentWindow {
			h.logger.Debug("Same URL recorded moments ago, skipping", "url", url)
			return false, nil
		}
	}

	entry := storage.ClosedTab{URL: url, Title: title, Time: now}
	if err := h.store.PushClosedTab(ctx, entry, h.opts.MaxEntries); err != nil {
		return false, fmt.Errorf("record closed tab: %w", err)
	}
	if c.TabID != 0 {
		h.recentIDs.Mark(c.TabID, now)
	}

	h.logger.Info("Closed tab recorded", "tab_id", c.TabID, "url", url)
	h.notify(ctx)
	return true, nil
}

// Restore reopens url and then removes the {url, at} entry. When the tab
// cannot be opened the entry is kept so the caller can retry.
func (h *History) Restore(ctx context.Context, url string, at time.Time) error {
	if h.opener == nil {
		return fmt.Errorf("restore %s: %w", url, tabs.ErrNoBrowser)
	}
	if err := h.opener.CreateTab(ctx, url); err != nil {
		return fmt.Errorf("restore %s: %w", url, err)
	}

	if _, err := h.Delete(ctx, url, at); err != nil {
		return fmt.Errorf("restore %s: %w", url, err)
	}
	return nil
}

// Delete removes the {url, at} entry. It is a no-op if absent.
func (h *History) Delete(ctx context.Context, url string, at time.Time) (bool, error) {
	var removed bool
	err := h.enqueue(ctx, func(ctx context.Context) error {
		var err error
		removed, err = h.store.DeleteClosedTab(ctx, url, at)
		if err != nil {
			return err
		}
		if removed {
			h.notify(ctx)
		}
		return nil
	})
	if err != nil {
		h.logger.Error("Failed to delete closed tab", "url", url, "error", err)
		return false, fmt.Errorf("delete closed tab: %w", err)
	}
	return removed, nil
}

// Clear empties the history and returns the number of entries dropped.
func (h *History) Clear(ctx context.Context) (int64, error) {
	var n int64
	err := h.enqueue(ctx, func(ctx context.Context) error {
		var err error
		n, err = h.store.ClearClosedTabs(ctx)
		if err != nil {
			return err
		}
		h.notify(ctx)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("clear closed tabs: %w", err)
	}
	h.logger.Info("Closed-tab history cleared", "removed", n)
	return n, nil
}

// List returns a snapshot of the history, most recent first, filtered by a
// case-insensitive substring of title or URL.
func (h *History) List(ctx context.Context, filter string) ([]storage.ClosedTab, error) {
	return h.store.ListClosedTabs(ctx, filter)
}

func (h *History) notify(ctx context.Context) {
	if h.notifier == nil {
		return
	}
	if err := h.notifier.NotifyRefresh(ctx); err != nil && !errors.Is(err, tabs.ErrNoListener) {
		h.logger.Warn("Refresh notification failed", "error", err)
	}
}
