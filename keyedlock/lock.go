// Package keyedlock provides named-mutex registries: at most one body
// runs per name at a time, with a bounded wait and cooperative
// cancellation. The coordinator uses three logically disjoint registries
// (queue locks, file-write locks, evict-and-write locks) built from the
// same Lock contract.
package keyedlock

import (
	"context"
	"time"
)

// Lock acquires a mutex uniquely associated with name, runs body with
// the lock held, and releases it.
//
// TryExecute returns (true, err) if body ran, where err is whatever body
// returned. It returns (false, nil) if the lock could not be acquired
// within timeout. It returns (false, ctx.Err()) if ctx is cancelled
// while waiting for the lock. A timeout <= 0 means try once without
// waiting.
//
// Cancellation of ctx after body has started is body's own
// responsibility to observe; TryExecute does not interrupt a running
// body.
type Lock interface {
	TryExecute(ctx context.Context, name string, timeout time.Duration, body func(ctx context.Context) error) (bool, error)
}
