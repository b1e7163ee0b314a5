package mirror

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
)

// Error wraps any Target and randomly fails a configured fraction of
// calls, for exercising the coordinator's "mirroring is best-effort,
// never fatal" handling in tests.
type Error struct {
	target    Target
	errorRate float64

	rng   *rand.Rand
	rngMu sync.Mutex
}

// NewError wraps target, failing calls with probability errorRate
// (clamped to [0, 1]).
func NewError(target Target, errorRate float64, seed int64) *Error {
	if errorRate < 0 {
		errorRate = 0
	}
	if errorRate > 1 {
		errorRate = 1
	}
	return &Error{target: target, errorRate: errorRate, rng: rand.New(rand.NewSource(seed))}
}

func (e *Error) shouldError() bool {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64() < e.errorRate
}

// Upload implements Target.
func (e *Error) Upload(ctx context.Context, key string, body io.Reader, bodySize int64, contentType string) error {
	if e.shouldError() {
		return fmt.Errorf("mirror error target: simulated Upload error (rate %.2f%%)", e.errorRate*100)
	}
	return e.target.Upload(ctx, key, body, bodySize, contentType)
}

// Clear implements Target.
func (e *Error) Clear(ctx context.Context) error {
	if e.shouldError() {
		return fmt.Errorf("mirror error target: simulated Clear error (rate %.2f%%)", e.errorRate*100)
	}
	return e.target.Clear(ctx)
}

// Close implements Target.
func (e *Error) Close() error {
	if e.shouldError() {
		return fmt.Errorf("mirror error target: simulated Close error (rate %.2f%%)", e.errorRate*100)
	}
	return e.target.Close()
}
