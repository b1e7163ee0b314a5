// Package metrics records latency and size quantiles plus per-outcome
// counters for the coordination engine.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
)

// defaultRelativeAccuracy matches DDSketch's own documented default
// recommendation for general-purpose latency tracking (1% relative
// error), the same value DataDog's own client libraries default to.
const defaultRelativeAccuracy = 0.01

// Recorder accumulates request outcomes: one counter per detail code,
// plus latency and served-size distributions. Safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	counts   map[string]int64
	latency  *ddsketch.DDSketch
	sizeHit  *ddsketch.DDSketch
	sizeMiss *ddsketch.DDSketch
}

// NewRecorder creates an empty Recorder.
func NewRecorder() (*Recorder, error) {
	latency, err := ddsketch.NewDefaultDDSketch(defaultRelativeAccuracy)
	if err != nil {
		return nil, fmt.Errorf("metrics: new latency sketch: %w", err)
	}
	sizeHit, err := ddsketch.NewDefaultDDSketch(defaultRelativeAccuracy)
	if err != nil {
		return nil, fmt.Errorf("metrics: new hit-size sketch: %w", err)
	}
	sizeMiss, err := ddsketch.NewDefaultDDSketch(defaultRelativeAccuracy)
	if err != nil {
		return nil, fmt.Errorf("metrics: new miss-size sketch: %w", err)
	}
	return &Recorder{
		counts:   make(map[string]int64),
		latency:  latency,
		sizeHit:  sizeHit,
		sizeMiss: sizeMiss,
	}, nil
}

// RecordOutcome increments the counter for detailCode and adds duration
// to the latency sketch. wasHit additionally routes bytesServed into
// the hit- or miss-size sketch (a cache miss that still produced bytes,
// e.g. a freshly generated derivative, is tracked separately from a
// served hit so the two populations don't skew each other's quantiles).
func (r *Recorder) RecordOutcome(detailCode string, duration time.Duration, wasHit bool, bytesServed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counts[detailCode]++
	r.latency.Add(duration.Seconds())

	if bytesServed <= 0 {
		return
	}
	if wasHit {
		r.sizeHit.Add(float64(bytesServed))
	} else {
		r.sizeMiss.Add(float64(bytesServed))
	}
}

// Snapshot is a point-in-time read of recorder state.
type Snapshot struct {
	Counts      map[string]int64
	LatencyP50  time.Duration
	LatencyP99  time.Duration
	HitSizeP50  int64
	MissSizeP50 int64
}

// Snapshot returns the current counters and latency/size quantiles.
func (r *Recorder) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := make(map[string]int64, len(r.counts))
	for k, v := range r.counts {
		counts[k] = v
	}

	p50, _ := r.latency.GetValueAtQuantile(0.50)
	p99, _ := r.latency.GetValueAtQuantile(0.99)
	hitP50, _ := r.sizeHit.GetValueAtQuantile(0.50)
	missP50, _ := r.sizeMiss.GetValueAtQuantile(0.50)

	return Snapshot{
		Counts:      counts,
		LatencyP50:  time.Duration(p50 * float64(time.Second)),
		LatencyP99:  time.Duration(p99 * float64(time.Second)),
		HitSizeP50:  int64(hitP50),
		MissSizeP50: int64(missP50),
	}
}

// formatBytes renders a byte count the way a human reads it, e.g. for
// log lines and stats summaries.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatBytes is the exported entry point used by cmd/derivcached.
func FormatBytes(n int64) string { return formatBytes(n) }
