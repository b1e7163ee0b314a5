package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pixelforge/derivcache/mirror"
)

// runClear removes the on-disk cache tree and, if a mirror is
// configured, clears it too.
func runClear() {
	logger := buildLogger()
	ctx := context.Background()

	if err := clearLocalCache(cacheDir); err != nil {
		fmt.Fprintf(os.Stderr, "Error clearing local cache: %v\n", err)
		os.Exit(1)
	}

	target, err := buildMirror(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building mirror: %v\n", err)
		os.Exit(1)
	}
	if target != nil {
		if err := clearMirror(ctx, target); err != nil {
			fmt.Fprintf(os.Stderr, "Error clearing mirror: %v\n", err)
			os.Exit(1)
		}
	}

	fmt.Fprintf(os.Stdout, "Cache cleared successfully\n")
}

func clearMirror(ctx context.Context, target mirror.Target) error {
	defer target.Close()
	return target.Clear(ctx)
}

// clearLocalCache removes every entry from the local cache directory.
// os.RemoveAll is idempotent: it doesn't error if the path is already
// gone.
func clearLocalCache(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove cache directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("recreate cache directory: %w", err)
	}
	return nil
}
