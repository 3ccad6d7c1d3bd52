package types

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrCancelled is the error a cancelled future resolves with.
var ErrCancelled = errors.New("task cancelled")

// State is the lifecycle position of a Future.
type State int32

const (
	// StatePending means the task has not been claimed by a worker yet.
	StatePending State = iota
	// StateRunning means a worker claimed the task and is executing it.
	StateRunning
	// StateDone means a value or an error has been stored.
	StateDone
	// StateCancelled means the task was cancelled before it ever ran.
	StateCancelled

	// stateResolving is held by the single goroutine that won the right to
	// write the outcome. Readers observe it as StateRunning.
	stateResolving
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Completer is the type-erased write side of a Future. Workers only ever see
// this interface, which keeps the queue and the worker loop non-generic.
type Completer interface {
	ID() int64
	Start() bool
	Resolve(value any, err error) bool
	Cancel() bool
	IsReady() bool
}

// Future represents the eventual result of a submitted task.
// The outcome is written exactly once; any number of goroutines may read it
// after Done is closed.
type Future[R any] struct {
	id    int64
	state atomic.Int32
	done  chan struct{}
	value R
	err   error
}

// NewFuture creates a pending future with the given task id.
func NewFuture[R any](id int64) *Future[R] {
	return &Future[R]{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the id of the task this future belongs to.
func (f *Future[R]) ID() int64 {
	return f.id
}

// State returns the current lifecycle state.
func (f *Future[R]) State() State {
	s := State(f.state.Load())
	if s == stateResolving {
		return StateRunning
	}
	return s
}

// Start moves the future from pending to running. It reports false if the
// future was cancelled or resolved first, in which case the task must not run.
func (f *Future[R]) Start() bool {
	return f.state.CompareAndSwap(int32(StatePending), int32(StateRunning))
}

// Complete stores the outcome if nothing has been stored yet.
// It reports whether this call won; later calls are discarded.
func (f *Future[R]) Complete(value R, err error) bool {
	for {
		s := f.state.Load()
		if s != int32(StatePending) && s != int32(StateRunning) {
			return false
		}
		if f.state.CompareAndSwap(s, int32(stateResolving)) {
			break
		}
	}

	f.value = value
	f.err = err
	f.state.Store(int32(StateDone))
	close(f.done)
	return true
}

// Resolve is the type-erased form of Complete. A value that is not an R is
// stored as the zero value.
func (f *Future[R]) Resolve(value any, err error) bool {
	v, _ := value.(R)
	return f.Complete(v, err)
}

// Cancel resolves a pending future with ErrCancelled. A task that has
// already started cannot be cancelled.
func (f *Future[R]) Cancel() bool {
	if !f.state.CompareAndSwap(int32(StatePending), int32(stateResolving)) {
		return false
	}

	f.err = ErrCancelled
	f.state.Store(int32(StateCancelled))
	close(f.done)
	return true
}

// Get blocks until the outcome is available.
func (f *Future[R]) Get() (R, error) {
	<-f.done
	return f.value, f.err
}

// GetWithContext waits for the outcome or for ctx to end, whichever is first.
func (f *Future[R]) GetWithContext(ctx context.Context) (R, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// GetWithTimeout waits at most d for the outcome.
func (f *Future[R]) GetWithTimeout(d time.Duration) (R, error) {
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return f.GetWithContext(ctx)
}

// TryGet returns the outcome without blocking. ready is false while the task
// is still pending or running.
func (f *Future[R]) TryGet() (value R, err error, ready bool) {
	select {
	case <-f.done:
		return f.value, f.err, true
	default:
		var zero R
		return zero, nil, false
	}
}

// Done returns a channel that is closed once the outcome is stored.
func (f *Future[R]) Done() <-chan struct{} {
	return f.done
}

// IsReady reports whether the outcome is available.
func (f *Future[R]) IsReady() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// IsCancelled reports whether the future was cancelled before running.
func (f *Future[R]) IsCancelled() bool {
	return f.State() == StateCancelled
}
