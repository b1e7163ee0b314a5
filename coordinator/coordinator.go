package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pixelforge/derivcache/artifact"
	"github.com/pixelforge/derivcache/cleanup"
	"github.com/pixelforge/derivcache/filewriter"
	"github.com/pixelforge/derivcache/keyedlock"
	"github.com/pixelforge/derivcache/metrics"
	"github.com/pixelforge/derivcache/mirror"
	"github.com/pixelforge/derivcache/pathbuilder"
	"github.com/pixelforge/derivcache/writequeue"
)

// Producer synthesizes an artifact's bytes and content-type on a cache
// miss. It must honor ctx cancellation.
type Producer func(ctx context.Context) (data []byte, contentType string, err error)

// Config holds the coordination tunables: how long to wait on each lock
// domain, whether a full queue falls back to a synchronous write, and
// what happens when the queue lock itself times out.
type Config struct {
	// MaxQueuedBytes bounds memory used by unflushed WriteBuffers.
	// <= 0 disables async queuing entirely (every enqueue is QueueFull).
	MaxQueuedBytes int64
	// WaitForIdenticalRequests bounds queue-lock and
	// evict-and-write-lock acquisition.
	WaitForIdenticalRequests time.Duration
	// WaitForIdenticalDiskWrites bounds the file-write lock and the
	// file-locked read retry loop.
	WaitForIdenticalDiskWrites time.Duration
	// WriteSynchronouslyWhenQueueFull: if true, a full queue performs
	// the flush inline instead of returning an uncached Miss.
	WriteSynchronouslyWhenQueueFull bool
	// FailOnEnqueueLockTimeout: if true, a queue-lock timeout fails the
	// request instead of invoking the producer uncached.
	FailOnEnqueueLockTimeout bool
}

// Coordinator is the public GetOrCreate entry point, composing the
// lock registries, write queue, file writer, and cleanup manager.
type Coordinator struct {
	cfg Config

	queueLocks         keyedlock.Lock
	fileWriteLocks     keyedlock.Lock
	evictAndWriteLocks keyedlock.Lock

	queue       *writequeue.Queue
	fileWriter  *filewriter.Writer
	pathBuilder pathbuilder.Builder
	cleanup     cleanup.Manager
	metrics     *metrics.Recorder
	mirror      mirror.Target
	logger      *slog.Logger
}

// New builds a Coordinator from its collaborators. metricsRecorder and
// mirrorTarget may be nil to disable recording and replication,
// respectively.
func New(
	cfg Config,
	queueLocks, fileWriteLocks, evictAndWriteLocks keyedlock.Lock,
	pathBuilder pathbuilder.Builder,
	fileWriter *filewriter.Writer,
	cleanupMgr cleanup.Manager,
	metricsRecorder *metrics.Recorder,
	mirrorTarget mirror.Target,
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		cfg:                cfg,
		queueLocks:         queueLocks,
		fileWriteLocks:     fileWriteLocks,
		evictAndWriteLocks: evictAndWriteLocks,
		queue:              writequeue.New(cfg.MaxQueuedBytes),
		fileWriter:         fileWriter,
		pathBuilder:        pathBuilder,
		cleanup:            cleanupMgr,
		metrics:            metricsRecorder,
		mirror:             mirrorTarget,
		logger:             logger,
	}
}

// AwaitAll blocks until every background flush task spawned before this
// call completes. The host should call this during graceful shutdown.
func (c *Coordinator) AwaitAll() {
	c.queue.AwaitAll()
}

// Shutdown drains in-flight background flushes, honoring ctx so a host
// can bound how long it waits during process teardown. The underlying
// drain (writequeue.AwaitAll) is not itself cancelable -- once a flush
// task has been spawned it runs to completion regardless of ctx -- so
// ctx only bounds how long Shutdown itself waits before returning, not
// the flush tasks.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.AwaitAll()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports the detail-code histogram and latency/size quantiles
// gathered so far. Returns the zero Snapshot if metrics recording is
// disabled.
func (c *Coordinator) Stats() metrics.Snapshot {
	if c.metrics == nil {
		return metrics.Snapshot{}
	}
	return c.metrics.Snapshot()
}

// GetOrCreate returns cached bytes for key from disk or the in-flight
// write queue, or invokes producer and persists the result. Concurrent
// identical-key calls are deduplicated through the queue lock.
//
// wantContentType controls whether a disk hit pays for a metadata
// lookup to recover the stored content-type; when false, disk hits
// return an empty ContentType. Paths that already know the
// content-type (memory hits, fresh produces) return it either way.
func (c *Coordinator) GetOrCreate(ctx context.Context, key []byte, producer Producer, wantContentType bool) (result CacheResult, err error) {
	start := time.Now()
	entry := c.pathBuilder.Derive(key)

	defer func() {
		if c.metrics == nil {
			return
		}
		detail := result.Detail
		if detail == "" {
			detail = Unknown
		}
		wasHit := detail == DiskHit || detail == ContendedDiskHit || detail == MemoryHit
		c.metrics.RecordOutcome(string(detail), time.Since(start), wasHit, result.Size)
	}()

	// Step 1: fire-and-forget LRU touch.
	c.cleanup.NotifyUsed(entry)

	// Step 2: fast, non-blocking disk probe.
	if stream, probeErr := fastProbe(entry.PhysicalPath); probeErr != nil {
		return CacheResult{}, fmt.Errorf("coordinator: disk probe %s: %w", entry.RelativePath, probeErr)
	} else if stream != nil {
		var contentType string
		if wantContentType {
			contentType, _ = c.cleanup.GetContentType(ctx, entry)
		}
		result = CacheResult{Detail: DiskHit, Stream: stream, ContentType: contentType}
		return result, nil
	}

	// Step 3: acquire the queue lock.
	var producerErr error
	ran, lockErr := c.queueLocks.TryExecute(ctx, entry.StringKey, c.cfg.WaitForIdenticalRequests, func(ctx context.Context) error {
		result, producerErr = c.getOrCreateLocked(ctx, entry, producer, wantContentType)
		return producerErr
	})
	if !ran {
		return c.handleQueueLockTimeout(ctx, entry, producer, lockErr)
	}
	if producerErr != nil {
		return CacheResult{}, producerErr
	}
	return result, nil
}

// handleQueueLockTimeout decides what a caller gets when the queue lock
// itself cannot be acquired in time: a fresh uncached artifact, or an
// explicit failure, depending on FailOnEnqueueLockTimeout.
func (c *Coordinator) handleQueueLockTimeout(ctx context.Context, entry pathbuilder.Entry, producer Producer, lockErr error) (CacheResult, error) {
	if lockErr != nil {
		// Cancelled while waiting for the queue lock.
		return CacheResult{}, lockErr
	}

	if c.cfg.FailOnEnqueueLockTimeout {
		return CacheResult{Detail: QueueLockTimeoutAndFailed}, nil
	}

	data, contentType, err := producer(ctx)
	if err != nil {
		return CacheResult{}, err
	}
	return CacheResult{
		Detail:      QueueLockTimeoutAndCreated,
		Stream:      nopCloser{bytes.NewReader(data)},
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

// getOrCreateLocked is the queue-locked section of GetOrCreate, run
// with this key's queue lock held.
func (c *Coordinator) getOrCreateLocked(ctx context.Context, entry pathbuilder.Entry, producer Producer, wantContentType bool) (CacheResult, error) {
	// 4a: memory hit.
	if existing, ok := c.queue.Get(entry.StringKey); ok {
		return CacheResult{Detail: MemoryHit, Stream: nopCloser{existing.GetReader()}, ContentType: existing.ContentType(), Size: existing.UsedBytes()}, nil
	}

	// 4b: synchronized disk re-check, with the file-locked retry loop.
	stream, detail, err := probeWithRetry(ctx, c.fileWriteLocks, entry.StringKey, entry.PhysicalPath, c.cfg.WaitForIdenticalDiskWrites)
	if err != nil {
		return CacheResult{}, fmt.Errorf("coordinator: synchronized disk probe %s: %w", entry.RelativePath, err)
	}
	if stream != nil {
		var contentType string
		if wantContentType {
			contentType, _ = c.cleanup.GetContentType(ctx, entry)
		}
		return CacheResult{Detail: detail, Stream: stream, ContentType: contentType}, nil
	}

	// 4c: invoke the producer.
	data, contentType, err := producer(ctx)
	if err != nil {
		return CacheResult{}, err
	}

	// 4d/4e: build the buffer and the provisional result.
	buf := artifact.New(entry.StringKey, artifact.Artifact{Bytes: data, ContentType: contentType}, time.Now())
	result := CacheResult{Detail: Miss, Stream: nopCloser{buf.GetReader()}, ContentType: contentType, Size: buf.UsedBytes()}

	// 4f/4g: enqueue, or fall back to a synchronous flush on QueueFull.
	status := c.queue.Enqueue(buf, func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("coordinator: panic in background flush", "key", entry.StringKey, "panic", r)
			}
		}()
		// A cancelled caller never cancels its own background flush:
		// run with a fresh, uncancelable context.
		c.flush(context.Background(), buf, entry, false, time.Since(buf.CreatedAt()))
	})

	if status == writequeue.QueueFull {
		if c.cfg.WriteSynchronouslyWhenQueueFull {
			result.Detail = c.flush(ctx, buf, entry, true, time.Since(buf.CreatedAt()))
		}
		// else: leave result.Detail == Miss; caller still gets the bytes.
	}

	return result, nil
}
