package keyedlock

import (
	"context"
	"sync"
	"time"
)

// entry is a single named mutex, implemented as a buffered channel of
// capacity 1: a filled channel means the lock is free. refs counts the
// number of goroutines that currently hold a pointer to this entry
// (either holding the lock or waiting on it), so the registry knows when
// it's safe to garbage-collect the entry.
type entry struct {
	sem  chan struct{}
	refs int
}

func newEntry() *entry {
	e := &entry{sem: make(chan struct{}, 1)}
	e.sem <- struct{}{}
	return e
}

func (e *entry) acquire(ctx context.Context, timeout time.Duration) (bool, error) {
	if timeout <= 0 {
		select {
		case <-e.sem:
			return true, nil
		default:
			return false, nil
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-e.sem:
		return true, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, nil
	}
}

func (e *entry) release() {
	e.sem <- struct{}{}
}

// Registry is the default, in-process Lock implementation: a
// refcounted map of named mutexes with lazy creation and GC of idle
// entries. Safe for concurrent use.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// TryExecute implements Lock.
func (r *Registry) TryExecute(ctx context.Context, name string, timeout time.Duration, body func(ctx context.Context) error) (bool, error) {
	e := r.ref(name)

	acquired, err := e.acquire(ctx, timeout)
	if !acquired {
		r.unref(name, e)
		return false, err
	}

	defer func() {
		e.release()
		r.unref(name, e)
	}()

	return true, body(ctx)
}

// ref looks up (or creates) the entry for name and increments its
// refcount, all under the registry mutex so a concurrent unref can never
// delete an entry another goroutine is about to wait on.
func (r *Registry) ref(name string) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[name]
	if !ok {
		e = newEntry()
		r.entries[name] = e
	}
	e.refs++
	return e
}

// unref decrements the entry's refcount and removes it from the map once
// no goroutine holds or awaits it. The identity check (cur == e) guards
// against a rare sequence where the entry was already replaced.
func (r *Registry) unref(name string, e *entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		if cur, ok := r.entries[name]; ok && cur == e {
			delete(r.entries, name)
		}
	}
}
