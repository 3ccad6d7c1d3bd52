// Package bridge runs coroutine-style tasks on a single cooperative
// scheduling context.
//
// A Loop owns one dedicated goroutine that hands out a baton. A coroutine
// runs only while it holds the baton and gives it back at its explicit
// suspension points (Co.Await, Co.Sleep, Co.Yield) or when it returns, so at
// most one coroutine body executes at any instant. Blocking work passed to
// Co.Await runs off the baton, which lets other coroutines make progress.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable is returned when work is handed to a loop that is not
// running.
var ErrUnavailable = errors.New("event loop is not available")

// Coroutine is a computation that runs on a Loop.
type Coroutine func(ctx context.Context, co *Co) (any, error)

// Loop is a single cooperative scheduling context.
type Loop struct {
	name   string
	logger *zap.Logger

	ready   chan *Co
	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	running   atomic.Bool

	inFlight atomic.Int64
	holders  atomic.Int32
}

// NewLoop creates a loop that is not yet running.
func NewLoop(name string, logger *zap.Logger) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		name:    name,
		logger:  logger,
		ready:   make(chan *Co, 256),
		ctx:     ctx,
		cancel:  cancel,
		stopped: make(chan struct{}),
	}
}

// Name returns the loop name.
func (l *Loop) Name() string {
	return l.name
}

// Start launches the scheduling goroutine. Calling it again is a no-op.
func (l *Loop) Start() {
	l.startOnce.Do(func() {
		if l.ctx.Err() != nil {
			return
		}
		l.started.Store(true)
		l.running.Store(true)
		go l.run()
		l.logger.Debug("event loop started", zap.String("loop", l.name))
	})
}

// Stop ends the scheduling goroutine and waits for it to exit. Coroutines
// still waiting for the baton resolve with ErrUnavailable. A coroutine that
// holds the baton keeps running on its own goroutine, but it is never
// granted the baton again.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.running.Store(false)
		l.cancel()
		if l.started.Load() {
			<-l.stopped
		}
		l.logger.Debug("event loop stopped",
			zap.String("loop", l.name),
			zap.Int64("abandoned", l.inFlight.Load()))
	})
}

// Running reports whether the loop accepts new coroutines.
func (l *Loop) Running() bool {
	return l.running.Load()
}

// InFlight returns the number of spawned coroutines that have not finished.
func (l *Loop) InFlight() int64 {
	return l.inFlight.Load()
}

// Spawn schedules coro on the loop and returns a handle to its outcome.
// It fails with ErrUnavailable if the loop is not running.
func (l *Loop) Spawn(ctx context.Context, coro Coroutine) (*Handle, error) {
	if !l.Running() {
		return nil, ErrUnavailable
	}

	h := newHandle()
	co := &Co{
		loop:     l,
		ctx:      ctx,
		resume:   make(chan struct{}),
		released: make(chan struct{}, 1),
	}

	l.inFlight.Add(1)
	go co.main(coro, h)
	return h, nil
}

func (l *Loop) run() {
	defer close(l.stopped)

	for {
		select {
		case co := <-l.ready:
			select {
			case co.resume <- struct{}{}:
			case <-l.ctx.Done():
				return
			}

			select {
			case <-co.released:
			case <-l.ctx.Done():
				return
			}

		case <-l.ctx.Done():
			return
		}
	}
}

// Co is the handle a running coroutine uses to suspend itself.
type Co struct {
	loop     *Loop
	ctx      context.Context
	resume   chan struct{}
	released chan struct{}
	holding  bool
}

// Context returns the context the coroutine was spawned with.
func (c *Co) Context() context.Context {
	return c.ctx
}

// Await gives up the baton, runs fn on the coroutine's own goroutine and
// waits for the baton again before returning fn's error.
func (c *Co) Await(fn func(ctx context.Context) error) error {
	c.release()
	err := fn(c.ctx)
	if aerr := c.acquire(); aerr != nil {
		return aerr
	}
	return err
}

// Sleep suspends the coroutine for d without holding the baton. It returns
// early with the context error if the coroutine's context ends.
func (c *Co) Sleep(d time.Duration) error {
	return c.Await(func(ctx context.Context) error {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Yield lets every other ready coroutine run before this one continues.
func (c *Co) Yield() error {
	c.release()
	return c.acquire()
}

func (c *Co) main(coro Coroutine, h *Handle) {
	defer c.loop.inFlight.Add(-1)

	if err := c.acquire(); err != nil {
		h.resolve(nil, err)
		return
	}

	var (
		value any
		err   error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				buf := make([]byte, 4096)
				n := runtime.Stack(buf, false)
				err = fmt.Errorf("coroutine panic: %v\nstack trace:\n%s", r, buf[:n])
			}
		}()
		value, err = coro(c.ctx, c)
	}()

	c.release()
	h.resolve(value, err)
}

// acquire queues the coroutine and blocks until the loop grants the baton.
func (c *Co) acquire() error {
	select {
	case c.loop.ready <- c:
	case <-c.loop.ctx.Done():
		return ErrUnavailable
	}

	select {
	case <-c.resume:
		c.holding = true
		c.loop.holders.Add(1)
		return nil
	case <-c.loop.ctx.Done():
		return ErrUnavailable
	}
}

func (c *Co) release() {
	if !c.holding {
		return
	}
	c.holding = false
	c.loop.holders.Add(-1)

	// The buffer only stays full if the loop stopped while we held the baton.
	select {
	case c.released <- struct{}{}:
	default:
	}
}
