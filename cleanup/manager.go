// Package cleanup defines the metadata + eviction contract the
// coordinator relies on for LRU bookkeeping and space reservation, and
// ships a reference, size-bounded LRU implementation.
package cleanup

import (
	"context"
	"time"

	"github.com/pixelforge/derivcache/keyedlock"
	"github.com/pixelforge/derivcache/pathbuilder"
)

// ReserveResult is the outcome of a TryReserveSpace call.
type ReserveResult struct {
	Success bool
	Message string
}

// Manager is the external metadata + eviction collaborator. The
// coordination core only depends on this interface; callers may supply
// any implementation backed by whatever persistent store they run,
// typically a database in a real deployment.
type Manager interface {
	// NotifyUsed is a fire-and-forget update of LRU recency for entry.
	NotifyUsed(entry pathbuilder.Entry)

	// GetContentType looks up the stored content-type for entry, if any.
	GetContentType(ctx context.Context, entry pathbuilder.Entry) (contentType string, ok bool)

	// TryReserveSpace ensures bytes can be written for entry under the
	// cache-size limit, evicting other entries when allowEviction is
	// true. Implementations must take per-key locks from evictLocks
	// before evicting a candidate, so they never evict a file while a
	// flush for the same key holds that lock. The coordinator's read
	// paths do not take these locks.
	TryReserveSpace(ctx context.Context, entry pathbuilder.Entry, contentType string, bytes int64, allowEviction bool, evictLocks keyedlock.Lock) (ReserveResult, error)

	// MarkFileCreated persists a metadata row recording that entry now
	// exists on disk (or was attempted). Called unconditionally after a
	// write attempt regardless of its outcome.
	MarkFileCreated(entry pathbuilder.Entry, contentType string, bytes int64, at time.Time)
}
