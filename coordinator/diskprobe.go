package coordinator

import (
	"context"
	"io"
	"time"

	"github.com/pixelforge/derivcache/filewriter"
	"github.com/pixelforge/derivcache/ioerr"
	"github.com/pixelforge/derivcache/keyedlock"
)

// openForRead is a seam over filewriter.OpenForRead so tests can
// simulate a locked-file condition without needing a real OS-level
// sharing violation.
var openForRead = filewriter.OpenForRead

// retryPollInterval is the per-iteration wait in the file-locked retry
// loop: min(15ms, timeout/3), so even a very short timeout gets at
// least a couple of attempts.
func retryPollInterval(timeout time.Duration) time.Duration {
	third := timeout / 3
	if third < 15*time.Millisecond {
		return third
	}
	return 15 * time.Millisecond
}

// fastProbe is the no-lock, non-blocking disk check (step 2 of
// GetOrCreate). A nil reader with a nil error means "no hit, keep
// going"; the caller falls through to the queue-locked path rather
// than waiting on a locked file here.
func fastProbe(path string) (io.ReadCloser, error) {
	f, err := openForRead(path)
	if err == nil {
		return f, nil
	}
	switch ioerr.Classify(err) {
	case ioerr.NotFound, ioerr.Locked:
		return nil, nil
	default:
		return nil, err
	}
}

// probeWithRetry is the synchronized re-check (step 4b): a plain open
// attempt, and only on a file-locked error does it enter the retry
// loop, itself run inside the per-key file-write lock so it never
// races the very writer it's waiting on. Returns (nil reader, "", nil)
// for "no hit, fall through to the producer", with no error.
func probeWithRetry(ctx context.Context, fileWriteLocks keyedlock.Lock, stringKey, path string, timeout time.Duration) (io.ReadCloser, DetailCode, error) {
	f, err := openForRead(path)
	if err == nil {
		return f, DiskHit, nil
	}

	switch ioerr.Classify(err) {
	case ioerr.NotFound:
		return nil, "", nil
	case ioerr.Locked:
		// fall through to the retry loop below
	default:
		return nil, "", err
	}

	var (
		result  io.ReadCloser
		loopErr error
	)
	ran, lockErr := fileWriteLocks.TryExecute(ctx, stringKey, timeout, func(ctx context.Context) error {
		result, loopErr = retryLoop(ctx, path, timeout)
		return loopErr
	})
	if !ran {
		if lockErr != nil {
			// Cancelled while waiting on the file-write lock.
			return nil, "", lockErr
		}
		// Timed out. The contended re-check is best-effort: a timeout
		// here is a miss, not an error, and the producer path takes
		// over.
		return nil, "", nil
	}
	if loopErr != nil {
		return nil, "", loopErr
	}
	if result == nil {
		return nil, "", nil
	}
	return result, ContendedDiskHit, nil
}

// retryLoop polls path every retryPollInterval(timeout) until the
// cumulative wait exceeds timeout, treating Locked errors as transient.
func retryLoop(ctx context.Context, path string, timeout time.Duration) (io.ReadCloser, error) {
	interval := retryPollInterval(timeout)
	deadline := time.Now().Add(timeout)

	for {
		f, err := openForRead(path)
		if err == nil {
			return f, nil
		}

		switch ioerr.Classify(err) {
		case ioerr.NotFound:
			return nil, nil
		case ioerr.Locked:
			// transient; keep polling unless we're out of time
		default:
			return nil, err
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}
