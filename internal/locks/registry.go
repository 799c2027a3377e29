// Package locks holds the set of tabs exempt from automatic closing.
package locks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/runnerr0/tabsentry/internal/tabs"
)

// Persister is the slice of storage.Store the registry needs.
type Persister interface {
	LoadLockedTabs(ctx context.Context) ([]tabs.TabID, error)
	SaveLockedTabs(ctx context.Context, ids []tabs.TabID) error
}

// Registry is the persisted lock set. Lock and Unlock return only after the
// new set is persisted, so a reader after an acknowledged command sees it.
// Locking only gates eviction; manual closes are unaffected.
type Registry struct {
	mu     sync.Mutex // held across mutate + persist to keep command order
	ids    map[tabs.TabID]struct{}
	store  Persister
	logger *slog.Logger
}

// NewRegistry creates an empty registry. Call Load before use.
func NewRegistry(store Persister, logger *slog.Logger) *Registry {
	return &Registry{
		ids:    make(map[tabs.TabID]struct{}),
		store:  store,
		logger: logger,
	}
}

// Load replaces the in-memory set with the persisted one. A store that has
// never been written yields an empty set.
func (r *Registry) Load(ctx context.Context) error {
	ids, err := r.store.LoadLockedTabs(ctx)
	if err != nil {
		return fmt.Errorf("load locked tabs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = make(map[tabs.TabID]struct{}, len(ids))
	for _, id := range ids {
		r.ids[id] = struct{}{}
	}
	r.logger.Info("Lock registry loaded", "locked", len(ids))
	return nil
}

// Lock exempts id from eviction and persists the set.
func (r *Registry) Lock(ctx context.Context, id tabs.TabID) error {
	return r.update(ctx, id, true)
}

// Unlock removes the exemption for id and persists the set. Unlocking an
// unknown or stale id is not an error.
func (r *Registry) Unlock(ctx context.Context, id tabs.TabID) error {
	return r.update(ctx, id, false)
}

func (r *Registry) update(ctx context.Context, id tabs.TabID, locked bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, was := r.ids[id]
	if locked {
		r.ids[id] = struct{}{}
	} else {
		delete(r.ids, id)
	}

	if err := r.persistLocked(ctx); err != nil {
		// Keep memory and store in agreement.
		if was {
			r.ids[id] = struct{}{}
		} else {
			delete(r.ids, id)
		}
		return err
	}

	r.logger.Debug("Lock state changed", "tab_id", id, "locked", locked)
	return nil
}

// Persist writes the current set to the store.
func (r *Registry) Persist(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persistLocked(ctx)
}

func (r *Registry) persistLocked(ctx context.Context) error {
	if err := r.store.SaveLockedTabs(ctx, r.sortedLocked()); err != nil {
		return fmt.Errorf("persist locked tabs: %w", err)
	}
	return nil
}

// IsLocked reports whether id is exempt from eviction.
func (r *Registry) IsLocked(id tabs.TabID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// List returns the locked ids in ascending order.
func (r *Registry) List() []tabs.TabID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

func (r *Registry) sortedLocked() []tabs.TabID {
	out := make([]tabs.TabID, 0, len(r.ids))
	for id := range r.ids {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
