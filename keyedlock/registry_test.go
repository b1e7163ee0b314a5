package keyedlock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRegistrySerializesSameName(t *testing.T) {
	r := NewRegistry()

	var (
		wg      sync.WaitGroup
		running int32
		maxSeen int32
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ran, err := r.TryExecute(context.Background(), "same-key", time.Second, func(ctx context.Context) error {
				n := atomic.AddInt32(&running, 1)
				defer atomic.AddInt32(&running, -1)
				for {
					cur := atomic.LoadInt32(&maxSeen)
					if n <= cur || atomic.CompareAndSwapInt32(&maxSeen, cur, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				return nil
			})
			if err != nil || !ran {
				t.Errorf("TryExecute() = %v, %v; want true, nil", ran, err)
			}
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("max concurrent bodies for same name = %d, want 1", maxSeen)
	}
}

func TestRegistryDifferentNamesRunInParallel(t *testing.T) {
	r := NewRegistry()

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		name := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ran, err := r.TryExecute(context.Background(), name, time.Second, func(ctx context.Context) error {
				time.Sleep(20 * time.Millisecond)
				return nil
			})
			if err != nil || !ran {
				t.Errorf("TryExecute(%q) = %v, %v; want true, nil", name, ran, err)
			}
		}()
	}

	began := time.Now()
	close(start)
	wg.Wait()
	if elapsed := time.Since(began); elapsed > 60*time.Millisecond {
		t.Errorf("distinct-key bodies took %v, expected them to run concurrently (~20ms)", elapsed)
	}
}

func TestRegistryTimeout(t *testing.T) {
	r := NewRegistry()

	holderStarted := make(chan struct{})
	release := make(chan struct{})
	go func() {
		r.TryExecute(context.Background(), "busy", time.Second, func(ctx context.Context) error {
			close(holderStarted)
			<-release
			return nil
		})
	}()
	<-holderStarted

	ran, err := r.TryExecute(context.Background(), "busy", 20*time.Millisecond, func(ctx context.Context) error {
		t.Fatal("body should not have run while the lock was held")
		return nil
	})
	close(release)

	if ran {
		t.Errorf("TryExecute() ran = true, want false (timeout)")
	}
	if err != nil {
		t.Errorf("TryExecute() err = %v, want nil on plain timeout", err)
	}
}

func TestRegistryCancellation(t *testing.T) {
	r := NewRegistry()

	holderStarted := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	go func() {
		r.TryExecute(context.Background(), "busy", time.Second, func(ctx context.Context) error {
			close(holderStarted)
			<-release
			return nil
		})
	}()
	<-holderStarted

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	ran, err := r.TryExecute(ctx, "busy", time.Second, func(ctx context.Context) error {
		t.Fatal("body should not have run")
		return nil
	})
	if ran {
		t.Error("TryExecute() ran = true, want false")
	}
	if err == nil {
		t.Error("TryExecute() err = nil, want context.Canceled")
	}
}

func TestRegistryEntriesAreGCed(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < 3; i++ {
		_, err := r.TryExecute(context.Background(), "transient", time.Second, func(ctx context.Context) error {
			return nil
		})
		if err != nil {
			t.Fatalf("TryExecute() err = %v", err)
		}
	}

	r.mu.Lock()
	n := len(r.entries)
	r.mu.Unlock()
	if n != 0 {
		t.Errorf("len(entries) = %d, want 0 after all holders released", n)
	}
}

// TestRegistryNoLostWakeup exercises a waiter racing the release+GC of
// the entry it's about to wait on: GC must never leave the waiter
// blocked forever on a semaphore nobody will ever signal again.
func TestRegistryNoLostWakeup(t *testing.T) {
	r := NewRegistry()

	for round := 0; round < 200; round++ {
		var wg sync.WaitGroup
		wg.Add(2)

		go func() {
			defer wg.Done()
			r.TryExecute(context.Background(), "race", time.Second, func(ctx context.Context) error {
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			ran, err := r.TryExecute(context.Background(), "race", time.Second, func(ctx context.Context) error {
				return nil
			})
			if err != nil || !ran {
				t.Errorf("round %d: TryExecute() = %v, %v; want true, nil", round, ran, err)
			}
		}()

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("round %d: deadlocked, lost wakeup", round)
		}
	}
}
