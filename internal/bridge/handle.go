package bridge

import (
	"context"
)

// Handle is the cross-goroutine view of a spawned coroutine's outcome.
type Handle struct {
	done  chan struct{}
	value any
	err   error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func (h *Handle) resolve(value any, err error) {
	h.value = value
	h.err = err
	close(h.done)
}

// Done is closed once the coroutine has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the coroutine returns or ctx ends. Giving up does not
// stop the coroutine; cancel the context it was spawned with for that.
func (h *Handle) Wait(ctx context.Context) (any, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunOnce runs coro to completion on a fresh loop that lives only for this
// call.
func RunOnce(ctx context.Context, name string, coro Coroutine) (any, error) {
	loop := NewLoop(name, nil)
	loop.Start()
	defer loop.Stop()

	h, err := loop.Spawn(ctx, coro)
	if err != nil {
		return nil, err
	}
	return h.Wait(context.Background())
}
