// Package writequeue holds the bounded-by-bytes set of pending
// WriteBuffers awaiting a disk flush, keyed by fingerprint string.
package writequeue

import (
	"sync"

	"github.com/pixelforge/derivcache/artifact"
)

// Status is the outcome of an Enqueue call.
type Status int

const (
	// Enqueued means the buffer was added and its flush task spawned.
	Enqueued Status = iota
	// QueueFull means the buffer was not added: either the byte budget
	// was exhausted, or async queuing is disabled (MaxQueueBytes <= 0).
	QueueFull
)

// Queue is a map from string key to WriteBuffer plus a running byte
// total, with spawned flush tasks tracked for graceful shutdown.
type Queue struct {
	maxQueueBytes int64

	mu          sync.Mutex
	entries     map[string]*artifact.WriteBuffer
	queuedBytes int64

	tasks sync.WaitGroup
}

// New creates a Queue with the given byte budget. maxQueueBytes <= 0
// disables async queuing: every Enqueue call returns QueueFull.
func New(maxQueueBytes int64) *Queue {
	return &Queue{
		maxQueueBytes: maxQueueBytes,
		entries:       make(map[string]*artifact.WriteBuffer),
	}
}

// Get returns the pending WriteBuffer for key, if any. O(1).
func (q *Queue) Get(stringKey string) (*artifact.WriteBuffer, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	buf, ok := q.entries[stringKey]
	return buf, ok
}

// QueuedBytes returns the current sum of UsedBytes across all pending
// buffers.
func (q *Queue) QueuedBytes() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.queuedBytes
}

// Enqueue attempts to add buf to the queue. If it fits under the byte
// budget, it's inserted, queuedBytes is updated, and flushTask is run in
// a new goroutine; when flushTask returns, whatever it did, the entry is
// removed and queuedBytes decremented.
//
// If it doesn't fit (or MaxQueueBytes <= 0), Enqueue returns QueueFull
// without adding anything and without running flushTask.
func (q *Queue) Enqueue(buf *artifact.WriteBuffer, flushTask func()) Status {
	q.mu.Lock()
	if q.maxQueueBytes <= 0 || q.queuedBytes+buf.UsedBytes() > q.maxQueueBytes {
		q.mu.Unlock()
		return QueueFull
	}

	key := buf.StringKey()
	q.entries[key] = buf
	q.queuedBytes += buf.UsedBytes()
	q.mu.Unlock()

	q.tasks.Add(1)
	go func() {
		defer q.tasks.Done()
		defer q.remove(key, buf.UsedBytes())
		flushTask()
	}()

	return Enqueued
}

func (q *Queue) remove(key string, usedBytes int64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.entries, key)
	q.queuedBytes -= usedBytes
}

// AwaitAll blocks until every flush task spawned by Enqueue before this
// call returns has completed. Flush tasks enqueued concurrently with (or
// after) the call may or may not be awaited by it.
func (q *Queue) AwaitAll() {
	q.tasks.Wait()
}
