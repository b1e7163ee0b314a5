//go:build unix

package ioerr

import (
	"errors"
	"io/fs"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, Other},
		{"not exist", fs.ErrNotExist, NotFound},
		{"wrapped not exist", &fs.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}, NotFound},
		{"permission", &fs.PathError{Op: "open", Path: "/x", Err: syscall.EACCES}, Locked},
		{"eagain", &fs.PathError{Op: "open", Path: "/x", Err: syscall.EAGAIN}, Locked},
		{"ebusy", &fs.PathError{Op: "open", Path: "/x", Err: syscall.EBUSY}, Locked},
		{"eio", &fs.PathError{Op: "open", Path: "/x", Err: syscall.EIO}, Other},
		{"plain error", errors.New("boom"), Other},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Classify(c.err); got != c.want {
				t.Errorf("Classify(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}
