package shutdown

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// CleanupFunc releases one resource. It should honour ctx's deadline and be
// safe to call more than once.
type CleanupFunc func(ctx context.Context) error

// Priorities used by main when registering cleanup. Lower runs first.
const (
	PriorityHTTPServer = 10 // stop accepting requests, close websockets
	PriorityController = 20 // abandon the in-flight job, stop tickers
	PriorityHistory    = 30 // drain queued history rows
	PriorityDatabase   = 40
	PriorityLogger     = 90
)

type registryEntry struct {
	name     string
	priority int
	seq      int
	fn       CleanupFunc
}

// Registry holds named cleanup handlers and runs them once, ordered by
// priority. Handlers with equal priority run in registration order.
type Registry struct {
	mu      sync.Mutex
	entries []registryEntry
	closed  bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a handler. Registering after Run is a no-op.
func (r *Registry) Register(name string, priority int, fn CleanupFunc) {
	if fn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.entries = append(r.entries, registryEntry{
		name:     name,
		priority: priority,
		seq:      len(r.entries),
		fn:       fn,
	})
}

// Run executes every handler with ctx and returns the failures, each wrapped
// with the handler's name. All handlers run even when earlier ones fail.
// Only the first call does anything.
func (r *Registry) Run(ctx context.Context) []error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	entries := r.sortedLocked()
	r.mu.Unlock()

	var errs []error
	for _, e := range entries {
		if err := e.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
		}
	}
	return errs
}

// Names lists handler names in execution order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	entries := r.sortedLocked()
	r.mu.Unlock()

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.name
	}
	return names
}

// Count returns the number of registered handlers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// IsClosed reports whether Run has been called.
func (r *Registry) IsClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func (r *Registry) sortedLocked() []registryEntry {
	sorted := make([]registryEntry, len(r.entries))
	copy(sorted, r.entries)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].priority != sorted[j].priority {
			return sorted[i].priority < sorted[j].priority
		}
		return sorted[i].seq < sorted[j].seq
	})
	return sorted
}
