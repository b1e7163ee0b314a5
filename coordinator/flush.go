package coordinator

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/pixelforge/derivcache/artifact"
	"github.com/pixelforge/derivcache/filewriter"
	"github.com/pixelforge/derivcache/pathbuilder"
)

// flush is shared by the async (spawned) and synchronous (queue-full,
// inline) paths. It always returns a DetailCode, never a raw error: by
// the time flush runs, the caller already holds its reader from the
// WriteBuffer, so failures here are logged and reported as detail codes
// rather than propagated.
//
// It acquires evictAndWriteLocks[entry.StringKey] with the
// identical-requests timeout; if that can't be acquired in time it
// returns EvictAndWriteLockTimedOut without running flushInner at all.
func (c *Coordinator) flush(ctx context.Context, buf *artifact.WriteBuffer, entry pathbuilder.Entry, queueFull bool, dataCreationElapsed time.Duration) DetailCode {
	var detail DetailCode

	ran, _ := c.evictAndWriteLocks.TryExecute(ctx, entry.StringKey, c.cfg.WaitForIdenticalRequests, func(ctx context.Context) error {
		detail = c.flushInner(ctx, buf, entry, queueFull, dataCreationElapsed)
		return nil
	})
	if !ran {
		return EvictAndWriteLockTimedOut
	}
	return detail
}

func (c *Coordinator) flushInner(ctx context.Context, buf *artifact.WriteBuffer, entry pathbuilder.Entry, queueFull bool, dataCreationElapsed time.Duration) DetailCode {
	contentType := buf.ContentType()
	usedBytes := buf.UsedBytes()

	// Step 1: background flushes never evict; only the synchronous
	// (queue-full) path may, and also when async queuing is disabled
	// entirely.
	allowEviction := queueFull || c.cfg.MaxQueuedBytes <= 0

	reserve, err := c.cleanup.TryReserveSpace(ctx, entry, contentType, usedBytes, allowEviction, c.evictAndWriteLocks)
	if err != nil {
		c.logger.Error("coordinator: reserve space failed", "key", entry.StringKey, "error", err)
		return CacheEvictionFailed
	}
	if !reserve.Success {
		c.logger.Warn("coordinator: eviction could not free enough space", "key", entry.StringKey, "message", reserve.Message)
		return CacheEvictionFailed
	}

	// Only the synchronous (queue-full) path re-verifies existence
	// before writing; the background path already raced past its
	// re-check, and a redundant write there resolves as
	// FileAlreadyExists at rename time anyway.
	verifyExistsFirst := queueFull

	result, writeErr := c.fileWriter.TryWrite(ctx, entry, contentType, func(dst io.Writer) error {
		_, err := dst.Write(buf.Bytes())
		return err
	}, verifyExistsFirst, c.cfg.WaitForIdenticalDiskWrites)

	var detail DetailCode
	if writeErr != nil {
		c.logger.Error("coordinator: write failed", "key", entry.StringKey, "error", writeErr, "elapsed_since_creation", dataCreationElapsed)
		// No dedicated exhaustive detail code covers an unexpected
		// (non-timeout) I/O error here; WriteTimedOut is the closest
		// "did not persist, no specific eviction reason" fit.
		detail = WriteTimedOut
	} else {
		switch result {
		case filewriter.FileCreated:
			detail = WriteSucceeded
		case filewriter.FileAlreadyExists:
			detail = FileAlreadyExists
		case filewriter.LockTimeout:
			detail = WriteTimedOut
		default:
			detail = Unknown
		}
	}

	// Called unconditionally regardless of write outcome: the metadata
	// row records that something is (or was being) materialized for
	// this key, idempotent per key.
	c.cleanup.MarkFileCreated(entry, contentType, usedBytes, time.Now())

	if detail == WriteSucceeded && c.mirror != nil {
		c.mirrorUpload(entry.StringKey, contentType, buf.Bytes())
	}

	return detail
}

// mirrorUpload best-effort replicates a freshly-written artifact to the
// configured mirror.Target. Spawned on its own goroutine so it never
// blocks GetOrCreate, including the synchronous (queue-full) flush path
// which runs inline on the caller's goroutine. Replication is not a
// durability guarantee: a mirror failure is logged and otherwise
// ignored.
func (c *Coordinator) mirrorUpload(stringKey, contentType string, data []byte) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("coordinator: panic in mirror upload", "key", stringKey, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WaitForIdenticalDiskWrites)
		defer cancel()
		if err := c.mirror.Upload(ctx, stringKey, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
			c.logger.Warn("coordinator: mirror upload failed", "key", stringKey, "error", err)
		}
	}()
}
