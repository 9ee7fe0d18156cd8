// Package memory provides the bounded in-process study key queue.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/geo-harvester/internal/geo"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch      chan geo.StudyKey
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch: make(chan geo.StudyKey, capacity),
	}
}

// Enqueue pushes a key into the queue or returns if the context ends.
// Enqueue after Close returns ErrClosed; only the producer may call Close.
func (q *Queue) Enqueue(ctx context.Context, key geo.StudyKey) error {
	q.closeMu.Lock()
	closed := q.closed
	q.closeMu.Unlock()
	if closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- key:
		return nil
	}
}

// Dequeue pops the next key, respecting context cancellation. Keys enqueued
// before Close are still delivered.
func (q *Queue) Dequeue(ctx context.Context) (geo.StudyKey, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case key, ok := <-q.ch:
		if !ok {
			return "", ErrClosed
		}
		return key, nil
	}
}

// Len reports the number of buffered keys.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close marks the end of input. It is safe to call more than once.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
