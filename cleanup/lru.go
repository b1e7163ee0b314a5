package cleanup

import (
	"container/list"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pixelforge/derivcache/keyedlock"
	"github.com/pixelforge/derivcache/pathbuilder"
)

// record is the in-memory metadata row for one cached entry.
type record struct {
	entry       pathbuilder.Entry
	contentType string
	size        int64
	createdAt   time.Time
	elem        *list.Element // element.Value is stringKey; front = most recently used
}

// LRU is a reference Manager implementation: an in-memory, size-bounded
// least-recently-used index, backed by a per-file key:value metadata
// sidecar. container/list drives the recency order.
//
// Eviction takes evictAndWriteLocks for each candidate before removing
// it, so it never races a flush (reserve + write) of the same key. The
// coordinator's read paths do not take this lock.
type LRU struct {
	maxBytes         int64
	evictLockTimeout time.Duration
	logger           *slog.Logger

	mu        sync.Mutex
	usedBytes int64
	order     *list.List
	index     map[string]*record

	lookups singleflight.Group
}

// Option configures an LRU.
type Option func(*LRU)

// WithEvictLockTimeout sets how long TryReserveSpace waits to acquire
// each eviction candidate's evict-and-write lock before skipping it in
// favor of the next-oldest candidate. Default 50ms.
func WithEvictLockTimeout(d time.Duration) Option {
	return func(l *LRU) { l.evictLockTimeout = d }
}

// WithLogger sets the logger used for eviction warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *LRU) { l.logger = logger }
}

// NewLRU creates an LRU bounded at maxBytes. maxBytes <= 0 means
// unbounded: TryReserveSpace always succeeds and nothing is ever evicted.
func NewLRU(maxBytes int64, opts ...Option) *LRU {
	l := &LRU{
		maxBytes:         maxBytes,
		evictLockTimeout: 50 * time.Millisecond,
		logger:           slog.Default(),
		order:            list.New(),
		index:            make(map[string]*record),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NotifyUsed implements Manager.
func (l *LRU) NotifyUsed(entry pathbuilder.Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.index[entry.StringKey]
	if !ok {
		return
	}
	l.order.MoveToFront(r.elem)
}

// GetContentType implements Manager.
func (l *LRU) GetContentType(ctx context.Context, entry pathbuilder.Entry) (string, bool) {
	v, err, _ := l.lookups.Do(entry.StringKey, func() (interface{}, error) {
		l.mu.Lock()
		r, ok := l.index[entry.StringKey]
		l.mu.Unlock()
		if ok {
			return r.contentType, nil
		}

		ct, ok, err := readMetadataContentType(entry.PhysicalPath)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", errNotFound
		}
		return ct, nil
	})
	if err != nil {
		return "", false
	}
	return v.(string), true
}

var errNotFound = fmt.Errorf("cleanup: no metadata for entry")

// TryReserveSpace implements Manager.
func (l *LRU) TryReserveSpace(ctx context.Context, entry pathbuilder.Entry, contentType string, bytes int64, allowEviction bool, evictLocks keyedlock.Lock) (ReserveResult, error) {
	if l.maxBytes <= 0 {
		return ReserveResult{Success: true}, nil
	}

	l.mu.Lock()
	deficit := l.usedBytes + bytes - l.maxBytes
	l.mu.Unlock()

	if deficit <= 0 {
		return ReserveResult{Success: true}, nil
	}

	if !allowEviction {
		return ReserveResult{Success: false, Message: "cache full and eviction not allowed on this path"}, nil
	}

	freed, err := l.evictAtLeast(ctx, deficit, entry.StringKey, evictLocks)
	if err != nil {
		return ReserveResult{}, err
	}
	if freed < deficit {
		return ReserveResult{Success: false, Message: fmt.Sprintf("could not evict enough space: needed %d, freed %d", deficit, freed)}, nil
	}
	return ReserveResult{Success: true}, nil
}

// evictAtLeast walks the LRU tail evicting candidates (skipping
// excludeKey, the entry being written) until at least `need` bytes have
// been freed, there's nothing left to try, or the attempt budget runs
// out. The budget bounds the walk at twice the current entry count in
// attempts overall: a candidate whose evict-and-write lock is busy is
// rotated to the front and tried again once the walk comes back to it,
// so a cache where every candidate stays locked degrades to a
// reservation failure instead of
// spinning forever -- this method also runs on background flushes,
// whose context never cancels.
func (l *LRU) evictAtLeast(ctx context.Context, need int64, excludeKey string, evictLocks keyedlock.Lock) (int64, error) {
	var freed int64

	l.mu.Lock()
	attempts := 2 * l.order.Len()
	l.mu.Unlock()

	for freed < need && attempts > 0 {
		if err := ctx.Err(); err != nil {
			return freed, err
		}
		attempts--

		l.mu.Lock()
		elem := l.order.Back()
		for elem != nil && elem.Value.(string) == excludeKey {
			elem = elem.Prev()
		}
		if elem == nil {
			l.mu.Unlock()
			return freed, nil
		}
		key := elem.Value.(string)
		r := l.index[key]
		l.mu.Unlock()

		evicted, err := evictLocks.TryExecute(ctx, key, l.evictLockTimeout, func(ctx context.Context) error {
			return l.evictLocked(r)
		})
		if err != nil {
			return freed, fmt.Errorf("cleanup: evict %s: %w", key, err)
		}
		if !evicted {
			// Busy right now (a flush of this key holds its
			// evict-and-write lock); try the next-oldest candidate
			// instead of blocking indefinitely on this one.
			l.mu.Lock()
			l.order.MoveToFront(elem)
			l.mu.Unlock()
			continue
		}
		freed += r.size
	}
	return freed, nil
}

func (l *LRU) evictLocked(r *record) error {
	if err := os.Remove(r.entry.PhysicalPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	_ = os.Remove(metadataPath(r.entry.PhysicalPath))

	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.index[r.entry.StringKey]; ok && cur == r {
		l.order.Remove(r.elem)
		delete(l.index, r.entry.StringKey)
		l.usedBytes -= r.size
	}
	return nil
}

// MarkFileCreated implements Manager.
func (l *LRU) MarkFileCreated(entry pathbuilder.Entry, contentType string, bytes int64, at time.Time) {
	l.mu.Lock()
	if existing, ok := l.index[entry.StringKey]; ok {
		l.usedBytes -= existing.size
		l.order.Remove(existing.elem)
	}
	elem := l.order.PushFront(entry.StringKey)
	r := &record{entry: entry, contentType: contentType, size: bytes, createdAt: at, elem: elem}
	l.index[entry.StringKey] = r
	l.usedBytes += bytes
	l.mu.Unlock()

	if err := writeMetadata(entry.PhysicalPath, contentType, bytes, at); err != nil {
		l.logger.Warn("cleanup: failed to persist metadata", "key", entry.StringKey, "error", err)
	}
}

func metadataPath(physicalPath string) string {
	return physicalPath + ".meta"
}

func writeMetadata(physicalPath, contentType string, size int64, at time.Time) error {
	metaPath := metadataPath(physicalPath)
	content := fmt.Sprintf("content-type:%s\nsize:%d\ntime:%d\n", contentType, size, at.Unix())

	tmpPath := metaPath + ".tmp"
	if err := os.WriteFile(tmpPath, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write temp metadata: %w", err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename metadata: %w", err)
	}
	return nil
}

func readMetadataContentType(physicalPath string) (string, bool, error) {
	data, err := os.ReadFile(metadataPath(physicalPath))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read metadata: %w", err)
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if ct, ok := strings.CutPrefix(line, "content-type:"); ok {
			return ct, true, nil
		}
	}
	return "", false, nil
}
