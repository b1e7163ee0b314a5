package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pixelforge/derivcache/metrics"
)

// runServe builds a coordinator and blocks until SIGINT/SIGTERM, then
// drains in-flight background flushes before exiting. There is no
// network listener here: the HTTP layer that would call GetOrCreate per
// request is the host's own middleware. This subcommand exists to prove
// the wiring and give operators a long-running process to smoke test
// against a real cache directory.
func runServe() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := buildLogger()

	coord, err := buildCoordinator(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building coordinator: %v\n", err)
		os.Exit(1)
	}

	logger.Info("derivcached started",
		"cache_dir", cacheDir,
		"max_cache_bytes", maxCacheBytes,
		"max_queued_bytes", maxQueuedBytes,
		"dedupe", dedupeType,
		"mirror", mirrorType,
	)

	<-ctx.Done()
	logger.Info("shutdown signal received, draining background flushes")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := coord.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown drain did not complete cleanly", "error", err)
	}

	if printStats {
		printSnapshot(coord.Stats())
	}
}

func printSnapshot(s metrics.Snapshot) {
	fmt.Fprintf(os.Stdout, "Cache statistics:\n")
	for code, count := range s.Counts {
		fmt.Fprintf(os.Stdout, "  %-32s %d\n", code, count)
	}
	fmt.Fprintf(os.Stdout, "  latency p50: %s  p99: %s\n", s.LatencyP50, s.LatencyP99)
	fmt.Fprintf(os.Stdout, "  hit size p50: %s  miss size p50: %s\n", metrics.FormatBytes(s.HitSizeP50), metrics.FormatBytes(s.MissSizeP50))
}
