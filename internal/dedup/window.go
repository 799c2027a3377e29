// Package dedup provides a bounded, time-windowed "seen recently" set.
package dedup

import (
	"container/list"
	"sync"
	"time"
)

// Window remembers keys for a fixed time-to-live. It holds at most
// capacity keys; when full, the oldest-recorded key is evicted first.
// Expired keys are pruned lazily on every call, so no timer is involved
// and callers pass the current time explicitly.
type Window[K comparable] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	ll       *list.List // front = newest
	m        map[K]*list.Element
}

type windowNode[K comparable] struct {
	key  K
	seen time.Time
}

// NewWindow creates a Window. A non-positive capacity defaults to 256.
func NewWindow[K comparable](ttl time.Duration, capacity int) *Window[K] {
	if capacity <= 0 {
		capacity = 256
	}
	return &Window[K]{
		ttl:      ttl,
		capacity: capacity,
		ll:       list.New(),
		m:        make(map[K]*list.Element, capacity),
	}
}

// Seen reports whether k was marked within the window ending at now.
func (w *Window[K]) Seen(k K, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	_, ok := w.m[k]
	return ok
}

// Mark records k at now, refreshing it if already present.
func (w *Window[K]) Mark(k K, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	if e, ok := w.m[k]; ok {
		e.Value.(*windowNode[K]).seen = now
		w.ll.MoveToFront(e)
		return
	}

	w.m[k] = w.ll.PushFront(&windowNode[K]{key: k, seen: now})
	for w.ll.Len() > w.capacity {
		w.removeLocked(w.ll.Back())
	}
}

// CheckAndMark marks k and reports whether it had already been seen
// within the window. The check and the mark are atomic.
func (w *Window[K]) CheckAndMark(k K, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pruneLocked(now)
	if _, ok := w.m[k]; ok {
		return true
	}

	w.m[k] = w.ll.PushFront(&windowNode[K]{key: k, seen: now})
	for w.ll.Len() > w.capacity {
		w.removeLocked(w.ll.Back())
	}
	return false
}

// Forget drops k.
func (w *Window[K]) Forget(k K) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.m[k]; ok {
		w.removeLocked(e)
	}
}

// Len returns the number of keys currently held, expired or not.
func (w *Window[K]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ll.Len()
}

// pruneLocked drops keys older than ttl. The list is ordered newest first
// so pruning stops at the first live entry from the back.
func (w *Window[K]) pruneLocked(now time.Time) {
	for e := w.ll.Back(); e != nil; e = w.ll.Back() {
		if now.Sub(e.Value.(*windowNode[K]).seen) < w.ttl {
			return
		}
		w.removeLocked(e)
	}
}

func (w *Window[K]) removeLocked(e *list.Element) {
	w.ll.Remove(e)
	delete(w.m, e.Value.(*windowNode[K]).key)
}
