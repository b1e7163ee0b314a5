//go:build unix

package ioerr

import (
	"errors"
	"syscall"
)

// isLocked reports whether err corresponds to one of the Linux errnos a
// shared-read open can fail with when another process holds the file in
// a way that makes it transiently unreadable: EAGAIN (11), EACCES (13),
// or EBUSY (16). EACCES is not really EPERM, but on some network
// filesystems (NFS, some FUSE backends) a lock conflict is reported this
// way, so it stays in the set.
func isLocked(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EAGAIN, syscall.EACCES, syscall.EBUSY:
		return true
	default:
		return false
	}
}
