package userlock

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Registry hands out one exclusion scope per user so mutations to a user's
// buffer are serialized first-come-first-served while different users
// proceed in parallel. Entries are created lazily and evicted once idle.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	idleTTL time.Duration
}

type entry struct {
	sem      *semaphore.Weighted
	refs     int
	lastUsed time.Time
}

// New returns a registry whose idle entries become evictable after idleTTL.
func New(idleTTL time.Duration) *Registry {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &Registry{
		entries: make(map[string]*entry),
		idleTTL: idleTTL,
	}
}

// Acquire blocks until the user's lock is held or ctx ends. The returned
// release function must be called on every exit path.
func (r *Registry) Acquire(ctx context.Context, userID string) (func(), error) {
	r.mu.Lock()
	e, ok := r.entries[userID]
	if !ok {
		e = &entry{sem: semaphore.NewWeighted(1)}
		r.entries[userID] = e
	}
	e.refs++
	r.mu.Unlock()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		r.put(e)
		return nil, err
	}
	var once sync.Once
	release := func() {
		once.Do(func() {
			e.sem.Release(1)
			r.put(e)
		})
	}
	return release, nil
}

// put drops a reference. Unused entries stay in the map until EvictIdle so
// a waiter arriving moments later finds the same semaphore.
func (r *Registry) put(e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e.refs--
	e.lastUsed = time.Now()
}

// EvictIdle drops entries with no holders or waiters that have been unused
// for the idle TTL. Returns the number evicted.
func (r *Registry) EvictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for id, e := range r.entries {
		if e.refs == 0 && now.Sub(e.lastUsed) >= r.idleTTL {
			delete(r.entries, id)
			evicted++
		}
	}
	return evicted
}

// Len reports how many user entries are currently tracked.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
