package metrics

import (
	"testing"
	"time"
)

func TestRecorderCountsOutcomes(t *testing.T) {
	r, err := NewRecorder()
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	r.RecordOutcome("memory_hit", 2*time.Millisecond, true, 1024)
	r.RecordOutcome("memory_hit", 3*time.Millisecond, true, 2048)
	r.RecordOutcome("disk_miss_then_created", 50*time.Millisecond, false, 4096)

	snap := r.Snapshot()
	if snap.Counts["memory_hit"] != 2 {
		t.Errorf("Counts[memory_hit] = %d, want 2", snap.Counts["memory_hit"])
	}
	if snap.Counts["disk_miss_then_created"] != 1 {
		t.Errorf("Counts[disk_miss_then_created] = %d, want 1", snap.Counts["disk_miss_then_created"])
	}
}

func TestRecorderLatencyQuantilesTrackMagnitude(t *testing.T) {
	r, err := NewRecorder()
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	for i := 0; i < 100; i++ {
		r.RecordOutcome("memory_hit", time.Millisecond, true, 100)
	}
	for i := 0; i < 5; i++ {
		r.RecordOutcome("disk_hit", 500*time.Millisecond, true, 100)
	}

	snap := r.Snapshot()
	if snap.LatencyP50 > 5*time.Millisecond {
		t.Errorf("LatencyP50 = %v, want close to 1ms (dominant population)", snap.LatencyP50)
	}
	if snap.LatencyP99 < 100*time.Millisecond {
		t.Errorf("LatencyP99 = %v, want to reflect the slow tail", snap.LatencyP99)
	}
}

func TestRecorderSeparatesHitAndMissSizes(t *testing.T) {
	r, err := NewRecorder()
	if err != nil {
		t.Fatalf("NewRecorder() error = %v", err)
	}

	r.RecordOutcome("memory_hit", time.Millisecond, true, 1_000_000)
	r.RecordOutcome("disk_miss_then_created", 10*time.Millisecond, false, 10)

	snap := r.Snapshot()
	if snap.HitSizeP50 < 500_000 {
		t.Errorf("HitSizeP50 = %d, want near 1_000_000", snap.HitSizeP50)
	}
	if snap.MissSizeP50 > 100 {
		t.Errorf("MissSizeP50 = %d, want near 10", snap.MissSizeP50)
	}
}

func TestFormatBytes(t *testing.T) {
	cases := []struct {
		n    int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
	}
	for _, c := range cases {
		if got := FormatBytes(c.n); got != c.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", c.n, got, c.want)
		}
	}
}
