package writequeue

import (
	"sync"
	"testing"
	"time"

	"github.com/pixelforge/derivcache/artifact"
)

func buf(key string, n int) *artifact.WriteBuffer {
	return artifact.New(key, artifact.Artifact{Bytes: make([]byte, n), ContentType: "image/png"}, time.Now())
}

func TestEnqueueWithinBudget(t *testing.T) {
	q := New(100)

	done := make(chan struct{})
	status := q.Enqueue(buf("a", 10), func() { close(done) })
	if status != Enqueued {
		t.Fatalf("Enqueue() = %v, want Enqueued", status)
	}

	if _, ok := q.Get("a"); !ok {
		t.Error("Get(a) missing right after Enqueue")
	}
	if got := q.QueuedBytes(); got != 10 {
		t.Errorf("QueuedBytes() = %d, want 10", got)
	}

	<-done
	q.AwaitAll()

	if _, ok := q.Get("a"); ok {
		t.Error("Get(a) still present after flush task completed")
	}
	if got := q.QueuedBytes(); got != 0 {
		t.Errorf("QueuedBytes() after completion = %d, want 0", got)
	}
}

func TestEnqueueOverBudgetIsQueueFull(t *testing.T) {
	q := New(5)
	status := q.Enqueue(buf("a", 10), func() {})
	if status != QueueFull {
		t.Fatalf("Enqueue() = %v, want QueueFull", status)
	}
	if _, ok := q.Get("a"); ok {
		t.Error("Get(a) should be absent after QueueFull")
	}
}

func TestZeroBudgetDisablesQueuing(t *testing.T) {
	q := New(0)
	status := q.Enqueue(buf("a", 0), func() { t.Fatal("flush task should not run") })
	if status != QueueFull {
		t.Fatalf("Enqueue() with MaxQueueBytes=0 = %v, want QueueFull", status)
	}
}

func TestAwaitAllDrainsConcurrentFlushes(t *testing.T) {
	q := New(1 << 20)

	const n = 20
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})

	for i := 0; i < n; i++ {
		key := string(rune('a' + i))
		q.Enqueue(buf(key, 1), func() {
			started.Done()
			<-release
		})
	}

	started.Wait()
	close(release)
	q.AwaitAll()

	if got := q.QueuedBytes(); got != 0 {
		t.Errorf("QueuedBytes() after AwaitAll = %d, want 0", got)
	}
}
