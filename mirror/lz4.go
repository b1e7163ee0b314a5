package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/pierrec/lz4/v4"
)

// LZ4 wraps a Target and lz4-compresses every upload body in flight.
// Mirror egress is bandwidth, not CPU, bound for this workload, so a
// fast block compressor that trades ratio for speed (lz4, rather than
// the filewriter package's zstd) is the better fit here.
type LZ4 struct {
	target Target
}

// NewLZ4 wraps target with lz4 upload compression.
func NewLZ4(target Target) *LZ4 {
	return &LZ4{target: target}
}

// Upload implements Target. The compressed body replaces the original;
// contentType is passed through unchanged since it describes the
// logical artifact, not its wire encoding. Nothing in the uploaded
// object records that its body is lz4-compressed, and this module has
// no code that reads mirrored objects back.
func (l *LZ4) Upload(ctx context.Context, key string, body io.Reader, bodySize int64, contentType string) error {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := io.Copy(w, body); err != nil {
		return fmt.Errorf("mirror lz4: compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("mirror lz4: close encoder: %w", err)
	}

	return l.target.Upload(ctx, key, &buf, int64(buf.Len()), contentType)
}

// Clear implements Target.
func (l *LZ4) Clear(ctx context.Context) error { return l.target.Clear(ctx) }

// Close implements Target.
func (l *LZ4) Close() error { return l.target.Close() }
