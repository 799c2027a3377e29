// Package activity keeps the in-memory record of when each tab was last
// used and what it last showed. Nothing here is persisted: tab ids are only
// meaningful for the lifetime of the browser process.
package activity

import (
	"sort"
	"sync"
	"time"

	"github.com/runnerr0/tabsentry/internal/tabs"
)

// Entry is what the tracker knows about one tab. A zero LastActive means
// no activity has been observed yet.
type Entry struct {
	URL        string    `json:"url,omitempty"`
	Title      string    `json:"title,omitempty"`
	LastActive time.Time `json:"lastActive,omitempty"`
}

// Tracker maps tab ids to their last activity and last known URL/title.
type Tracker struct {
	mu      sync.Mutex
	entries map[tabs.TabID]*Entry
	now     func() time.Time
}

// NewTracker creates an empty Tracker. now may be nil, meaning time.Now.
func NewTracker(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		entries: make(map[tabs.TabID]*Entry),
		now:     now,
	}
}

func (t *Tracker) entryLocked(id tabs.TabID) *Entry {
	e, ok := t.entries[id]
	if !ok {
		e = &Entry{}
		t.entries[id] = e
	}
	return e
}

// RecordActivity marks id as used now. Called on tab activation and on
// window focus resolved to that window's active tab.
func (t *Tracker) RecordActivity(id tabs.TabID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entryLocked(id).LastActive = t.now()
}

// RecordNavigation stores the URL and title id finished loading. An empty
// title falls back to the URL host, or to the URL itself if unparseable.
// An empty URL is ignored.
func (t *Tracker) RecordNavigation(id tabs.TabID, url, title string) {
	if url == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entryLocked(id)
	e.URL = url
	e.Title = tabs.DisplayTitle(url, title)
}

// LastActive returns when id was last used, if ever observed.
func (t *Tracker) LastActive(id tabs.TabID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok || e.LastActive.IsZero() {
		return time.Time{}, false
	}
	return e.LastActive, true
}

// Lookup returns the last known URL and title of id.
func (t *Tracker) Lookup(id tabs.TabID) (url, title string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, found := t.entries[id]
	if !found || e.URL == "" {
		return "", "", false
	}
	return e.URL, e.Title, true
}

// Forget drops everything known about id.
func (t *Tracker) Forget(id tabs.TabID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, id)
}

// TrackedTab pairs an id with its entry for snapshots.
type TrackedTab struct {
	ID tabs.TabID `json:"id"`
	Entry
}

// Snapshot returns a copy of every tracked tab ordered by id.
func (t *Tracker) Snapshot() []TrackedTab {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]TrackedTab, 0, len(t.entries))
	for id, e := range t.entries {
		out = append(out, TrackedTab{ID: id, Entry: *e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
