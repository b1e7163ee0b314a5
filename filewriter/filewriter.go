// Package filewriter writes an artifact to disk via a temp file plus
// atomic rename, under a per-key file-write lock.
package filewriter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pixelforge/derivcache/keyedlock"
	"github.com/pixelforge/derivcache/pathbuilder"
)

// Result is the outcome of a TryWrite call.
type Result int

const (
	// FileCreated means the artifact was written and renamed into place.
	FileCreated Result = iota
	// FileAlreadyExists means another writer (or a verify-exists-first
	// check) found the destination already occupied; the temp file was
	// cleaned up.
	FileAlreadyExists
	// LockTimeout means the file-write lock for this key could not be
	// acquired in time.
	LockTimeout
)

func (r Result) String() string {
	switch r {
	case FileCreated:
		return "FileCreated"
	case FileAlreadyExists:
		return "FileAlreadyExists"
	case LockTimeout:
		return "LockTimeout"
	default:
		return "Unknown"
	}
}

// MoveOverwriteFunc atomically replaces dest with the contents of
// tempPath, e.g. a platform-specific API that can overwrite an existing
// destination where a plain rename cannot. Optional; when nil, the
// writer falls back to rename-if-not-exists.
type MoveOverwriteFunc func(tempPath, dest string) error

// Writer writes artifacts to disk, serializing same-key writers through
// an injected keyedlock.Lock and optionally zstd-compressing the body
// per Compressor.
type Writer struct {
	locks         keyedlock.Lock
	moveOverwrite MoveOverwriteFunc
	compressor    *Compressor
	logger        *slog.Logger
	moveIntoPlace bool
}

// New creates a Writer that stages each artifact in a sibling temp file
// and renames it into place. compressor may be nil to disable
// compression.
func New(locks keyedlock.Lock, moveOverwrite MoveOverwriteFunc, compressor *Compressor, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{locks: locks, moveOverwrite: moveOverwrite, compressor: compressor, logger: logger, moveIntoPlace: true}
}

// NewDirect creates a Writer that writes straight to the destination
// path instead of staging through a temp file + rename. A crashed
// writer can leave a partial file behind, so this is only appropriate
// on filesystems where rename is more expensive than that risk (some
// network mounts). compressor may be nil to disable compression.
func NewDirect(locks keyedlock.Lock, compressor *Compressor, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{locks: locks, compressor: compressor, logger: logger, moveIntoPlace: false}
}

// TryWrite writes the bytes streamProducer emits to entry.PhysicalPath,
// under the per-key file-write lock with the given timeout.
//
//  1. If verifyExistsFirst and the file already exists, returns
//     FileAlreadyExists without calling streamProducer.
//  2. Creates the parent directory hierarchy if missing.
//  3. Writes to a sibling temporary path (optionally zstd-compressed).
//  4. If a MoveOverwriteFunc is configured it's used; otherwise, if the
//     destination exists, returns FileAlreadyExists and removes the temp
//     file; otherwise renames temp -> destination.
//
// A Writer built with NewDirect skips steps 3-4 and streams straight
// into an exclusively-created destination file instead.
//
// Any I/O error is returned, not swallowed.
func (w *Writer) TryWrite(ctx context.Context, entry pathbuilder.Entry, contentType string, streamProducer func(io.Writer) error, verifyExistsFirst bool, timeout time.Duration) (Result, error) {
	var (
		result Result
		werr   error
	)

	ran, lockErr := w.locks.TryExecute(ctx, entry.StringKey, timeout, func(ctx context.Context) error {
		result, werr = w.writeLocked(entry, contentType, streamProducer, verifyExistsFirst)
		return werr
	})
	if !ran {
		if lockErr != nil {
			return LockTimeout, lockErr
		}
		return LockTimeout, nil
	}
	return result, werr
}

func (w *Writer) writeLocked(entry pathbuilder.Entry, contentType string, streamProducer func(io.Writer) error, verifyExistsFirst bool) (Result, error) {
	if verifyExistsFirst {
		if _, err := os.Stat(entry.PhysicalPath); err == nil {
			return FileAlreadyExists, nil
		} else if !os.IsNotExist(err) {
			return 0, fmt.Errorf("filewriter: stat %s: %w", entry.PhysicalPath, err)
		}
	}

	dir := filepath.Dir(entry.PhysicalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("filewriter: create directory %s: %w", dir, err)
	}

	if !w.moveIntoPlace {
		return w.writeDirect(entry, contentType, streamProducer)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("filewriter: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	removeTemp := true
	defer func() {
		if removeTemp {
			if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
				w.logger.Warn("filewriter: failed to remove temp file", "path", tmpPath, "error", err)
			}
		}
	}()

	writeErr := w.writeBody(tmp, contentType, streamProducer)
	closeErr := tmp.Close()
	if writeErr != nil {
		return 0, fmt.Errorf("filewriter: write %s: %w", tmpPath, writeErr)
	}
	if closeErr != nil {
		return 0, fmt.Errorf("filewriter: close %s: %w", tmpPath, closeErr)
	}

	if w.moveOverwrite != nil {
		if err := w.moveOverwrite(tmpPath, entry.PhysicalPath); err != nil {
			return 0, fmt.Errorf("filewriter: move %s -> %s: %w", tmpPath, entry.PhysicalPath, err)
		}
		removeTemp = false
		return FileCreated, nil
	}

	if _, err := os.Stat(entry.PhysicalPath); err == nil {
		return FileAlreadyExists, nil
	} else if !os.IsNotExist(err) {
		return 0, fmt.Errorf("filewriter: stat %s: %w", entry.PhysicalPath, err)
	}

	if err := os.Rename(tmpPath, entry.PhysicalPath); err != nil {
		return 0, fmt.Errorf("filewriter: rename %s -> %s: %w", tmpPath, entry.PhysicalPath, err)
	}
	removeTemp = false
	return FileCreated, nil
}

// writeDirect opens the destination exclusively and streams the body
// straight into it, no temp file. An existing destination reports
// FileAlreadyExists; a failed write removes the partial file.
func (w *Writer) writeDirect(entry pathbuilder.Entry, contentType string, streamProducer func(io.Writer) error) (Result, error) {
	f, err := os.OpenFile(entry.PhysicalPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return FileAlreadyExists, nil
		}
		return 0, fmt.Errorf("filewriter: create %s: %w", entry.PhysicalPath, err)
	}

	writeErr := w.writeBody(f, contentType, streamProducer)
	closeErr := f.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		if rmErr := os.Remove(entry.PhysicalPath); rmErr != nil && !os.IsNotExist(rmErr) {
			w.logger.Warn("filewriter: failed to remove partial file", "path", entry.PhysicalPath, "error", rmErr)
		}
		return 0, fmt.Errorf("filewriter: write %s: %w", entry.PhysicalPath, writeErr)
	}
	return FileCreated, nil
}

func (w *Writer) writeBody(dest io.Writer, contentType string, streamProducer func(io.Writer) error) error {
	if w.compressor != nil && w.compressor.ShouldCompress(contentType) {
		return w.compressor.Encode(dest, streamProducer)
	}
	return streamProducer(dest)
}
