//go:build windows

package ioerr

import (
	"errors"
	"syscall"
)

// isLocked reports whether err is a Windows sharing or lock violation.
// syscall.Errno on Windows carries the raw Win32 error code, so this
// compares the low 16 bits against ERROR_SHARING_VIOLATION (0x20) and
// ERROR_LOCK_VIOLATION (0x21).
func isLocked(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno & 0xFFFF {
	case 0x20, 0x21:
		return true
	default:
		return false
	}
}
