package mirror

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
)

type fakeTarget struct {
	uploads [][]byte
	cleared bool
	failing bool
}

func (f *fakeTarget) Upload(ctx context.Context, key string, body io.Reader, bodySize int64, contentType string) error {
	if f.failing {
		return errors.New("fake upload failure")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.uploads = append(f.uploads, data)
	return nil
}

func (f *fakeTarget) Clear(ctx context.Context) error {
	f.cleared = true
	return nil
}

func (f *fakeTarget) Close() error { return nil }

func TestLZ4RoundTripsThroughUnderlyingTarget(t *testing.T) {
	fake := &fakeTarget{}
	target := NewLZ4(fake)

	payload := bytes.Repeat([]byte("mirror-me"), 500)
	if err := target.Upload(context.Background(), "k1", bytes.NewReader(payload), int64(len(payload)), "application/json"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if len(fake.uploads) != 1 {
		t.Fatalf("got %d uploads, want 1", len(fake.uploads))
	}
	if bytes.Equal(fake.uploads[0], payload) {
		t.Error("expected the underlying target to receive lz4-compressed bytes, got the raw payload")
	}
}

func TestDebugWrapperPassesThroughResult(t *testing.T) {
	fake := &fakeTarget{}
	target := NewDebug(fake, nil)

	if err := target.Upload(context.Background(), "k1", bytes.NewReader([]byte("x")), 1, "text/plain"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(fake.uploads) != 1 {
		t.Fatalf("got %d uploads, want 1", len(fake.uploads))
	}

	if err := target.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if !fake.cleared {
		t.Error("expected underlying Clear to be called")
	}
}

func TestErrorWrapperAlwaysFailsAtRateOne(t *testing.T) {
	fake := &fakeTarget{}
	target := NewError(fake, 1.0, 42)

	if err := target.Upload(context.Background(), "k1", bytes.NewReader([]byte("x")), 1, "text/plain"); err == nil {
		t.Fatal("Upload() error = nil, want simulated failure at error rate 1.0")
	}
	if len(fake.uploads) != 0 {
		t.Errorf("underlying target should not have been called, got %d uploads", len(fake.uploads))
	}
}

func TestErrorWrapperNeverFailsAtRateZero(t *testing.T) {
	fake := &fakeTarget{}
	target := NewError(fake, 0.0, 42)

	for i := 0; i < 20; i++ {
		if err := target.Upload(context.Background(), "k1", bytes.NewReader([]byte("x")), 1, "text/plain"); err != nil {
			t.Fatalf("Upload() error = %v, want nil at error rate 0.0", err)
		}
	}
	if len(fake.uploads) != 20 {
		t.Errorf("got %d uploads, want 20", len(fake.uploads))
	}
}
