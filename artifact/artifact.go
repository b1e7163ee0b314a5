// Package artifact holds the in-memory representation of a cacheable
// image derivative: its bytes, its content-type, and the WriteBuffer
// that owns them while they're pending a disk flush.
package artifact

import (
	"bytes"
	"io"
	"time"
)

// Artifact is the (bytes, content-type) pair a producer callback
// returns. Bytes is never mutated after construction.
type Artifact struct {
	Bytes       []byte
	ContentType string
}

// Len returns the artifact's size in bytes.
func (a Artifact) Len() int64 {
	return int64(len(a.Bytes))
}

// WriteBuffer is a single pending artifact: immutable once constructed,
// readable concurrently by any number of callers via independent
// io.ReadSeeker views over the shared byte slice.
type WriteBuffer struct {
	stringKey string
	artifact  Artifact
	createdAt time.Time
}

// New constructs a WriteBuffer for stringKey holding art. createdAt is
// captured at construction time, used by the flush path to report how
// long the artifact sat between production and disk write.
func New(stringKey string, art Artifact, createdAt time.Time) *WriteBuffer {
	return &WriteBuffer{stringKey: stringKey, artifact: art, createdAt: createdAt}
}

// StringKey returns the lock/queue index key this buffer was created for.
func (b *WriteBuffer) StringKey() string { return b.stringKey }

// ContentType returns the artifact's content-type.
func (b *WriteBuffer) ContentType() string { return b.artifact.ContentType }

// CreatedAt returns the time the buffer was constructed.
func (b *WriteBuffer) CreatedAt() time.Time { return b.createdAt }

// UsedBytes returns the artifact length, i.e. the memory this buffer
// counts against the write queue's byte budget. It does not include
// struct overhead.
func (b *WriteBuffer) UsedBytes() int64 { return b.artifact.Len() }

// GetReader returns a fresh, independent read-only view over the
// artifact's bytes. Multiple concurrent readers are safe: the
// underlying bytes never change after construction, and each reader has
// its own cursor.
func (b *WriteBuffer) GetReader() io.ReadSeeker {
	return bytes.NewReader(b.artifact.Bytes)
}

// Bytes exposes the underlying artifact bytes directly, for callers
// (like the flush path) that need to copy them elsewhere rather than
// stream them through a reader.
func (b *WriteBuffer) Bytes() []byte { return b.artifact.Bytes }
