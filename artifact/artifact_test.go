package artifact

import (
	"io"
	"sync"
	"testing"
	"time"
)

func TestWriteBufferConcurrentReaders(t *testing.T) {
	buf := New("key", Artifact{Bytes: []byte("hello derivative"), ContentType: "image/png"}, time.Now())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := buf.GetReader()
			got, err := io.ReadAll(r)
			if err != nil {
				t.Errorf("ReadAll: %v", err)
				return
			}
			if string(got) != "hello derivative" {
				t.Errorf("ReadAll = %q, want %q", got, "hello derivative")
			}
		}()
	}
	wg.Wait()
}

func TestWriteBufferUsedBytes(t *testing.T) {
	buf := New("key", Artifact{Bytes: make([]byte, 42), ContentType: "image/webp"}, time.Now())
	if got := buf.UsedBytes(); got != 42 {
		t.Errorf("UsedBytes() = %d, want 42", got)
	}
}

func TestWriteBufferIndependentCursors(t *testing.T) {
	buf := New("key", Artifact{Bytes: []byte("0123456789"), ContentType: "image/png"}, time.Now())

	r1 := buf.GetReader()
	r2 := buf.GetReader()

	b := make([]byte, 4)
	if _, err := r1.Read(b); err != nil {
		t.Fatal(err)
	}
	if string(b) != "0123" {
		t.Errorf("r1 first read = %q, want 0123", b)
	}

	b2 := make([]byte, 4)
	if _, err := r2.Read(b2); err != nil {
		t.Fatal(err)
	}
	if string(b2) != "0123" {
		t.Errorf("r2 first read = %q, want 0123 (independent cursor)", b2)
	}
}
