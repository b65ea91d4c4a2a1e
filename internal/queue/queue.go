// Package queue provides the bounded in-memory queues connecting pipeline
// stages. A full queue blocks producers, applying backpressure instead of
// growing memory unboundedly.
package queue

import (
	"context"
	"fmt"
	"sync"
)

// Queue is a bounded queue with context-aware operations.
type Queue[T any] struct {
	ch      chan T
	closeMu sync.Mutex
	closed  bool
}

// New constructs a queue with the provided capacity.
func New[T any](capacity int) *Queue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue[T]{ch: make(chan T, capacity)}
}

// Enqueue pushes an item, blocking while the queue is full until capacity
// frees up or the context ends.
func (q *Queue[T]) Enqueue(ctx context.Context, item T) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item. ok is false once the queue is closed and
// drained, signaling consumers to exit.
func (q *Queue[T]) Dequeue(ctx context.Context) (item T, ok bool, err error) {
	var zero T
	select {
	case <-ctx.Done():
		return zero, false, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, open := <-q.ch:
		if !open {
			return zero, false, nil
		}
		return item, true, nil
	}
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int { return len(q.ch) }

// Close marks the queue complete for consumers. Safe to call multiple times.
func (q *Queue[T]) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
