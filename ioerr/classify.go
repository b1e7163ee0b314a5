// Package ioerr classifies raw I/O errors from opening a cache file into
// the handful of outcomes the coordination engine needs to distinguish:
// the file isn't there, the file is held by another process in a way
// that makes it transiently unreadable, or something unexpected happened.
package ioerr

import (
	"errors"
	"io/fs"
)

// Kind is the outcome of classifying an error returned from opening or
// stat-ing a cache file.
type Kind int

const (
	// Other is any error that isn't NotFound or Locked. It propagates to
	// the caller unchanged.
	Other Kind = iota
	// NotFound means the file does not exist (or vanished between a stat
	// and an open).
	NotFound
	// Locked means the file exists but couldn't be opened because
	// another process (or the OS) is holding a sharing/advisory lock on
	// it. This is treated as transient and retried.
	Locked
)

// Classify inspects err and returns which Kind it represents. A nil err
// classifies as Other; callers should only call Classify on a non-nil
// error.
func Classify(err error) Kind {
	if err == nil {
		return Other
	}
	if errors.Is(err, fs.ErrNotExist) {
		return NotFound
	}
	// A permission error is treated as transient here, the same way the
	// retry loop treats UnauthorizedAccess: some filesystems surface a
	// lock held by another process as EACCES rather than EBUSY/EAGAIN.
	if errors.Is(err, fs.ErrPermission) {
		return Locked
	}
	if isLocked(err) {
		return Locked
	}
	return Other
}
