package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pixelforge/derivcache/cleanup"
	"github.com/pixelforge/derivcache/coordinator"
	"github.com/pixelforge/derivcache/filewriter"
	"github.com/pixelforge/derivcache/keyedlock"
	"github.com/pixelforge/derivcache/metrics"
	"github.com/pixelforge/derivcache/mirror"
	"github.com/pixelforge/derivcache/pathbuilder"
)

// buildLogger creates the process-wide slog.Logger, text-handler at
// Info by default and Debug when -debug is set.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildFileWriteLocks selects the lock registry implementation for the
// file-write lock domain, per -dedupe. This is the one domain where
// cross-process exclusion matters: the write queue and its queue locks
// are per-process in-memory structures, but the temp-write + rename
// sequence touches the (possibly shared) cache directory itself, so
// fslock mode puts OS-level advisory locks around it.
func buildFileWriteLocks() (keyedlock.Lock, error) {
	switch dedupeType {
	case "memory", "":
		return keyedlock.NewRegistry(), nil
	case "fslock", "fs":
		return keyedlock.NewFlockRegistry(dedupeLockDir)
	case "noop":
		return keyedlock.NewNoop(), nil
	default:
		return nil, fmt.Errorf("unknown dedupe type: %s (supported: memory, fslock, noop)", dedupeType)
	}
}

// buildMirror selects and wraps the optional replication target, per
// -mirror. Returns (nil, nil) when mirroring is disabled.
func buildMirror(ctx context.Context, logger *slog.Logger) (mirror.Target, error) {
	var target mirror.Target
	var err error

	switch mirrorType {
	case "":
		return nil, nil
	case "s3":
		if mirrorBucket == "" {
			return nil, fmt.Errorf("mirror bucket is required for s3 mirror (set via -mirror-bucket or MIRROR_BUCKET)")
		}
		target, err = mirror.NewS3(ctx, mirrorBucket, mirrorPrefix)
	case "gcs":
		if mirrorBucket == "" {
			return nil, fmt.Errorf("mirror bucket is required for gcs mirror (set via -mirror-bucket or MIRROR_BUCKET)")
		}
		target, err = mirror.NewGCS(ctx, mirrorBucket, mirrorPrefix)
	default:
		return nil, fmt.Errorf("unknown mirror type: %s (supported: s3, gcs)", mirrorType)
	}
	if err != nil {
		return nil, err
	}

	if mirrorLZ4 {
		target = mirror.NewLZ4(target)
	}
	if mirrorErrorRate > 0 {
		target = mirror.NewError(target, mirrorErrorRate, time.Now().UnixNano())
		logger.Warn("mirror error injection enabled", "rate", mirrorErrorRate)
	}
	if debug {
		target = mirror.NewDebug(target, logger)
	}
	return target, nil
}

// buildCoordinator wires every flag-selected collaborator into a
// coordinator.Coordinator.
func buildCoordinator(ctx context.Context, logger *slog.Logger) (*coordinator.Coordinator, error) {
	fileWriteLocks, err := buildFileWriteLocks()
	if err != nil {
		return nil, fmt.Errorf("build file-write locks: %w", err)
	}
	queueLocks := keyedlock.NewRegistry()
	evictAndWriteLocks := keyedlock.NewRegistry()

	pb := pathbuilder.NewDefault(cacheDir)

	var compressor *filewriter.Compressor
	if compress {
		compressor = filewriter.NewCompressor()
	}
	var fw *filewriter.Writer
	if moveIntoPlace {
		fw = filewriter.New(fileWriteLocks, nil, compressor, logger)
	} else {
		fw = filewriter.NewDirect(fileWriteLocks, compressor, logger)
	}

	mgr := cleanup.NewLRU(maxCacheBytes, cleanup.WithLogger(logger))

	recorder, err := metrics.NewRecorder()
	if err != nil {
		return nil, fmt.Errorf("build metrics recorder: %w", err)
	}

	mirrorTarget, err := buildMirror(ctx, logger)
	if err != nil {
		return nil, fmt.Errorf("build mirror: %w", err)
	}

	cfg := coordinator.Config{
		MaxQueuedBytes:                  maxQueuedBytes,
		WaitForIdenticalRequests:        time.Duration(waitIdenticalReqMs) * time.Millisecond,
		WaitForIdenticalDiskWrites:      time.Duration(waitIdenticalDiskMs) * time.Millisecond,
		WriteSynchronouslyWhenQueueFull: syncOnQueueFull,
		FailOnEnqueueLockTimeout:        failOnLockTimeout,
	}

	return coordinator.New(cfg, queueLocks, fileWriteLocks, evictAndWriteLocks, pb, fw, mgr, recorder, mirrorTarget, logger), nil
}
