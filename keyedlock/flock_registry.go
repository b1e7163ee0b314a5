package keyedlock

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// FlockRegistry is a Lock implementation backed by filesystem advisory
// locks, for deployments where more than one derivcached process shares
// the same cache directory (e.g. over NFS). It provides the same
// per-name mutual exclusion as Registry, just enforced at the OS level
// instead of in-process.
type FlockRegistry struct {
	lockDir string
}

// NewFlockRegistry creates a FlockRegistry rooted at lockDir. If lockDir
// is empty it defaults to os.TempDir()/derivcache-locks.
func NewFlockRegistry(lockDir string) (*FlockRegistry, error) {
	if lockDir == "" {
		lockDir = filepath.Join(os.TempDir(), "derivcache-locks")
	}
	if err := os.MkdirAll(lockDir, 0o755); err != nil {
		return nil, fmt.Errorf("keyedlock: create lock directory: %w", err)
	}
	return &FlockRegistry{lockDir: lockDir}, nil
}

func (r *FlockRegistry) pathFor(name string) string {
	sum := sha256.Sum256([]byte(name))
	return filepath.Join(r.lockDir, hex.EncodeToString(sum[:])+".lock")
}

// TryExecute implements Lock.
func (r *FlockRegistry) TryExecute(ctx context.Context, name string, timeout time.Duration, body func(ctx context.Context) error) (bool, error) {
	fileLock := flock.New(r.pathFor(name))

	var acquired bool
	var err error
	if timeout <= 0 {
		acquired, err = fileLock.TryLock()
	} else {
		lockCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		acquired, err = fileLock.TryLockContext(lockCtx, 10*time.Millisecond)
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			// The acquisition deadline elapsed, not the caller's ctx: a
			// plain timeout, reported the same way Registry reports one.
			return false, nil
		}
		return false, fmt.Errorf("keyedlock: acquire flock for %q: %w", name, err)
	}
	if !acquired {
		return false, nil
	}
	defer fileLock.Unlock()

	return true, body(ctx)
}
