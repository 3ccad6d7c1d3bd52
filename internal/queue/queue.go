// Package queue implements the admission-controlled FIFO that sits between
// submitters and workers.
package queue

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrFull is returned by TryEnqueue when a bounded queue is at capacity.
	ErrFull = errors.New("queue: full")
	// ErrClosed is returned when adding to a closed queue.
	ErrClosed = errors.New("queue: closed")
	// ErrEmpty is returned by ReplaceOldest when there is nothing to replace.
	ErrEmpty = errors.New("queue: empty")
)

// WaitResult tells a waiter why Wait returned.
type WaitResult int

const (
	// Ready means at least one item was queued when Wait returned.
	// Another waiter may still claim it first.
	Ready WaitResult = iota
	// TimedOut means the timeout elapsed with nothing queued.
	TimedOut
	// Closed means the queue is closed and empty.
	Closed
)

// Queue is a FIFO guarded by one mutex and one condition variable.
// A capacity of 0 means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	nonEmpty *sync.Cond
	items    []T
	head     int
	capacity int
	closed   bool
}

// New creates a queue with the given capacity (0 = unbounded).
func New[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	q := &Queue[T]{capacity: capacity}
	q.nonEmpty = sync.NewCond(&q.mu)
	return q
}

// TryEnqueue appends v without blocking and wakes one waiter.
func (q *Queue[T]) TryEnqueue(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if q.full() {
		return ErrFull
	}

	q.push(v)
	q.nonEmpty.Signal()
	return nil
}

// ReplaceOldest removes the oldest item and enqueues v in its place. Both
// steps happen under a single lock acquisition so no other producer can take
// the freed slot. It fails with ErrEmpty, leaving v out of the queue, when
// there is nothing to remove.
func (q *Queue[T]) ReplaceOldest(v T) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var old T
	if q.closed {
		return old, ErrClosed
	}
	if q.empty() {
		return old, ErrEmpty
	}

	old = q.pop()
	q.push(v)
	q.nonEmpty.Signal()
	return old, nil
}

// TryDequeue removes the oldest item without blocking.
func (q *Queue[T]) TryDequeue() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.empty() {
		var zero T
		return zero, false
	}
	return q.pop(), true
}

// Wait blocks until an item is queued, the queue is closed, or timeout
// elapses. A negative timeout waits without limit. The predicate is checked
// under the lock both before sleeping and after every wakeup, so spurious
// and stolen wakeups are harmless.
func (q *Queue[T]) Wait(timeout time.Duration) WaitResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if timeout < 0 {
		for q.empty() && !q.closed {
			q.nonEmpty.Wait()
		}
		return q.result()
	}

	deadline := time.Now().Add(timeout)
	for q.empty() && !q.closed {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return TimedOut
		}

		// sync.Cond has no timed wait; a timer broadcast bounds the sleep.
		timer := time.AfterFunc(remaining, func() {
			q.mu.Lock()
			q.nonEmpty.Broadcast()
			q.mu.Unlock()
		})
		q.nonEmpty.Wait()
		timer.Stop()
	}
	return q.result()
}

// Wake wakes every waiter without changing the queue.
func (q *Queue[T]) Wake() {
	q.mu.Lock()
	q.nonEmpty.Broadcast()
	q.mu.Unlock()
}

// Close stops admission and wakes every waiter. Items already queued stay
// available to TryDequeue and Drain. It reports false if already closed.
func (q *Queue[T]) Close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.closed = true
	q.nonEmpty.Broadcast()
	return true
}

// Drain removes and returns every queued item in FIFO order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]T, 0, q.size())
	for q.size() > 0 {
		out = append(out, q.pop())
	}
	return out
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size()
}

// Cap returns the configured capacity (0 = unbounded).
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// IsEmpty reports whether nothing is queued.
func (q *Queue[T]) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.empty()
}

func (q *Queue[T]) result() WaitResult {
	if q.size() > 0 {
		return Ready
	}
	return Closed
}

func (q *Queue[T]) size() int {
	return len(q.items) - q.head
}

func (q *Queue[T]) empty() bool {
	return q.size() == 0
}

func (q *Queue[T]) full() bool {
	return q.capacity > 0 && q.size() >= q.capacity
}

func (q *Queue[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *Queue[T]) pop() T {
	var zero T
	v := q.items[q.head]
	q.items[q.head] = zero
	q.head++

	// Compact once the consumed prefix dominates the backing array.
	if q.head > 32 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		clear(q.items[n:])
		q.items = q.items[:n]
		q.head = 0
	}
	return v
}
