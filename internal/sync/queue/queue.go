// Package queue is the bounded hand-off between task producers and the processor pool.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"vectorsync-backend/internal/sync/domain"
)

var (
	// ErrQueueFull is returned by TryEnqueue when the queue is at capacity
	ErrQueueFull = errors.New("task queue is full")
	// ErrQueueClosed is returned once the queue has been shut down
	ErrQueueClosed = errors.New("task queue is closed")
)

// DefaultCapacity is used when a non-positive capacity is requested
const DefaultCapacity = 10000

// Queue is a bounded buffered channel of document tasks. It is safe for concurrent
// producers and consumers; capacity is its only backpressure mechanism.
type Queue struct {
	tasks  chan domain.DocumentTask
	closed atomic.Bool
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]int
}

// New creates a queue with the given capacity
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		tasks:   make(chan domain.DocumentTask, capacity),
		done:    make(chan struct{}),
		pending: make(map[string]int),
	}
}

// Enqueue blocks until the task is accepted, ctx is done or the queue is closed
func (q *Queue) Enqueue(ctx context.Context, task domain.DocumentTask) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	q.track(task.UserID, 1)
	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		q.track(task.UserID, -1)
		return ctx.Err()
	case <-q.done:
		q.track(task.UserID, -1)
		return ErrQueueClosed
	}
}

// TryEnqueue adds the task without blocking
func (q *Queue) TryEnqueue(task domain.DocumentTask) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}
	q.track(task.UserID, 1)
	select {
	case q.tasks <- task:
		return nil
	default:
		q.track(task.UserID, -1)
		return ErrQueueFull
	}
}

// Dequeue waits up to timeout for a task. ok is false on timeout, ctx cancellation
// or when the queue is closed.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (domain.DocumentTask, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case task := <-q.tasks:
		q.track(task.UserID, -1)
		return task, true
	case <-ctx.Done():
		return domain.DocumentTask{}, false
	case <-q.done:
		return domain.DocumentTask{}, false
	case <-timer.C:
		return domain.DocumentTask{}, false
	}
}

// Close rejects further enqueues and wakes blocked producers and consumers.
// Tasks still buffered are dropped; the next scan rediscovers them.
func (q *Queue) Close() {
	if q.closed.CompareAndSwap(false, true) {
		close(q.done)
	}
}

// Closed reports whether Close has been called
func (q *Queue) Closed() bool {
	return q.closed.Load()
}

// Len returns the number of buffered tasks
func (q *Queue) Len() int {
	return len(q.tasks)
}

// Cap returns the queue capacity
func (q *Queue) Cap() int {
	return cap(q.tasks)
}

// PendingFor returns the number of buffered tasks owned by userID
func (q *Queue) PendingFor(userID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending[userID]
}

// track adjusts the per-user count. Producers count before the send, so Dequeue
// never takes a task that has not been counted.
func (q *Queue) track(userID string, delta int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.pending[userID] + delta
	if n <= 0 {
		delete(q.pending, userID)
		return
	}
	q.pending[userID] = n
}
