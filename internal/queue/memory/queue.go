// Package memory provides the in-process run queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/maturion/ingest/internal/ingest"
)

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan ingest.RunRequest
	mu     sync.RWMutex
	closed bool
}

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan ingest.RunRequest, capacity)}
}

// Enqueue pushes a run into the queue or returns when the context ends.
// The read lock is held across the send so Close cannot close the channel
// under a pending enqueue.
func (q *Queue) Enqueue(ctx context.Context, run ingest.RunRequest) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ingest.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- run:
		return nil
	}
}

// Dequeue pops the next run, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (ingest.RunRequest, error) {
	select {
	case <-ctx.Done():
		return ingest.RunRequest{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case run, ok := <-q.ch:
		if !ok {
			return ingest.RunRequest{}, ingest.ErrQueueClosed
		}
		return run, nil
	}
}

// Close closes the underlying channel for shutdown. Runs already queued can
// still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
