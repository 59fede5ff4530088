package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

type Queue[T any] interface {
	Push(ctx context.Context, item T) error
	Pop(ctx context.Context) (T, error)
	PopTimeout(ctx context.Context, timeout time.Duration) (T, error)
	Size() int
	Close() error
}

// InMemoryQueue is a FIFO bounded by capacity. Push blocks while the queue
// is full; Pop blocks while it is empty and open.
type InMemoryQueue[T any] struct {
	items    []T
	capacity int
	mu       sync.Mutex
	changed  chan struct{}
	closed   bool
}

// NewInMemoryQueue creates a queue holding at most capacity items. A
// non-positive capacity means unbounded.
func NewInMemoryQueue[T any](capacity int) *InMemoryQueue[T] {
	return &InMemoryQueue[T]{
		items:    make([]T, 0),
		capacity: capacity,
		changed:  make(chan struct{}),
	}
}

func (q *InMemoryQueue[T]) Push(ctx context.Context, item T) error {
	q.mu.Lock()
	for {
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		if q.capacity <= 0 || len(q.items) < q.capacity {
			break
		}

		wait := q.changed
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
		q.mu.Lock()
	}

	q.items = append(q.items, item)
	q.broadcast()
	q.mu.Unlock()
	return nil
}

func (q *InMemoryQueue[T]) Pop(ctx context.Context) (T, error) {
	return q.pop(ctx, nil)
}

// PopTimeout waits at most timeout for an item and returns ErrQueueEmpty
// when none arrived.
func (q *InMemoryQueue[T]) PopTimeout(ctx context.Context, timeout time.Duration) (T, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	return q.pop(ctx, timer.C)
}

func (q *InMemoryQueue[T]) pop(ctx context.Context, timeout <-chan time.Time) (T, error) {
	var zero T

	q.mu.Lock()
	for len(q.items) == 0 {
		if q.closed {
			q.mu.Unlock()
			return zero, ErrQueueClosed
		}

		wait := q.changed
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timeout:
			return zero, ErrQueueEmpty
		case <-wait:
		}
		q.mu.Lock()
	}

	item := q.items[0]
	q.items[0] = zero
	q.items = q.items[1:]
	q.broadcast()
	q.mu.Unlock()

	return item, nil
}

func (q *InMemoryQueue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops further pushes. Items already queued can still be popped.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.broadcast()

	return nil
}

// broadcast wakes every waiter. Must be called with mu held.
func (q *InMemoryQueue[T]) broadcast() {
	close(q.changed)
	q.changed = make(chan struct{})
}
