package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/utkarsh5026/elasticpool/internal/algorithms"
	"github.com/utkarsh5026/elasticpool/internal/bridge"
	"github.com/utkarsh5026/elasticpool/internal/queue"
)

// shutdownGrace is the extra wait after the shutdown timeout expires.
const shutdownGrace = 100 * time.Millisecond

// State is the pool lifecycle position.
type State int32

const (
	StateRunning State = iota
	StateShuttingDown
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Pool is an adaptive worker pool. Workers grow from MinWorkers toward
// MaxWorkers under load and retire after KeepAlive of idleness. Plain tasks
// run on workers; coroutine tasks are dispatched by workers onto a single
// event loop owned by the pool.
type Pool struct {
	cfg     Config
	logger  *zap.Logger
	queue   *queue.Queue[*taskRecord]
	reg     *registry
	loop    *bridge.Loop
	limiter *rate.Limiter
	backoff algorithms.Policy
	metrics *counters

	state  atomic.Int32
	nextID atomic.Int64

	baseCtx    context.Context
	cancelBase context.CancelFunc

	shutdownOnce sync.Once
	stopped      chan struct{}
}

// New validates the configuration, starts MinWorkers workers and the event
// loop, and returns a running pool.
func New(opts ...Option) (*Pool, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = defaultLogger()
	}
	logger = logger.With(zap.String("pool", cfg.Name))

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:        cfg,
		logger:     logger,
		queue:      queue.New[*taskRecord](cfg.QueueCapacity),
		loop:       bridge.NewLoop(cfg.Name+"-loop", logger),
		backoff:    cfg.backoffPolicy(),
		baseCtx:    ctx,
		cancelBase: cancel,
		stopped:    make(chan struct{}),
	}
	if cfg.MetricsEnabled {
		p.metrics = &counters{}
	}
	if cfg.RateLimit > 0 {
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}

	p.reg = newRegistry(cfg.Name, cfg.MinWorkers, cfg.MaxWorkers, func(w *worker) {
		go p.runWorker(w)
	})

	p.loop.Start()
	p.reg.start()

	logger.Info("pool started",
		zap.Int("min_workers", cfg.MinWorkers),
		zap.Int("max_workers", cfg.MaxWorkers),
		zap.Int("queue_capacity", cfg.QueueCapacity),
		zap.Stringer("reject_policy", cfg.RejectPolicy))
	return p, nil
}

// Config returns a copy of the configuration the pool runs with.
func (p *Pool) Config() Config {
	return p.cfg
}

// State returns the current lifecycle state.
func (p *Pool) State() State {
	return State(p.state.Load())
}

// Done is closed once every worker has exited and the event loop stopped.
func (p *Pool) Done() <-chan struct{} {
	return p.stopped
}

// Submit queues fn and returns a future for its result. It never blocks.
// The only synchronous error is ErrPoolShutdown (or ErrNilTask); every
// other outcome, rejection included, is delivered through the future.
func Submit[R any](p *Pool, fn Func[R]) (*Future[R], error) {
	if fn == nil {
		return nil, ErrNilTask
	}
	rec, fut := newSyncRecord(p.nextID.Add(1), fn, p.cfg.TaskTimeout)
	if err := p.admit(rec); err != nil {
		return nil, err
	}
	return fut, nil
}

// SubmitCoroutine queues coro to run on the pool's event loop and returns a
// future for its result.
func SubmitCoroutine[R any](p *Pool, coro Coroutine[R]) (*Future[R], error) {
	if coro == nil {
		return nil, ErrNilTask
	}
	rec, fut := newAsyncRecord(p.nextID.Add(1), coro, p.cfg.TaskTimeout)
	if err := p.admit(rec); err != nil {
		return nil, err
	}
	return fut, nil
}

// SubmitAsync submits coro and waits for its result. If ctx ends first the
// task is cancelled if it has not started, and ctx's error is returned.
func SubmitAsync[R any](ctx context.Context, p *Pool, coro Coroutine[R]) (R, error) {
	fut, err := SubmitCoroutine(p, coro)
	if err != nil {
		var zero R
		return zero, err
	}
	return await(ctx, fut)
}

// RunAsync runs a plain function on a worker and waits for its result,
// letting a caller that must not block on the work hand it to the pool.
func RunAsync[R any](ctx context.Context, p *Pool, fn Func[R]) (R, error) {
	fut, err := Submit(p, fn)
	if err != nil {
		var zero R
		return zero, err
	}
	return await(ctx, fut)
}

func await[R any](ctx context.Context, fut *Future[R]) (R, error) {
	select {
	case <-fut.Done():
		return fut.Get()
	case <-ctx.Done():
		if !fut.Cancel() && fut.IsReady() {
			return fut.Get()
		}
		var zero R
		return zero, ctx.Err()
	}
}

// admit enqueues rec or applies the reject policy.
func (p *Pool) admit(rec *taskRecord) error {
	if p.State() != StateRunning {
		return ErrPoolShutdown
	}

	err := p.queue.TryEnqueue(rec)
	switch {
	case err == nil:
		p.reg.maybeGrow(p.queue.Len())
		return nil
	case errors.Is(err, queue.ErrClosed):
		return ErrPoolShutdown
	}
	return p.reject(rec)
}

// reject applies the configured policy to rec after the queue reported full.
func (p *Pool) reject(rec *taskRecord) error {
	p.metrics.rejected()
	p.logger.Debug("queue full, applying reject policy",
		zap.Int64("task", rec.id),
		zap.Stringer("policy", p.cfg.RejectPolicy))

	switch p.cfg.RejectPolicy {
	case RejectDiscard:
		if rec.future.Cancel() {
			p.metrics.cancelled()
		}

	case RejectDiscardOldest:
		old, err := p.queue.ReplaceOldest(rec)
		switch {
		case errors.Is(err, queue.ErrClosed):
			return ErrPoolShutdown
		case errors.Is(err, queue.ErrEmpty):
			// Workers drained the queue after it reported full.
			rec.future.Resolve(nil, ErrRejectedExecution)
			return nil
		}
		if old.future.Cancel() {
			p.metrics.cancelled()
		}
		p.reg.maybeGrow(p.queue.Len())

	case RejectCallerRuns:
		p.runOnCaller(rec)

	default:
		rec.future.Resolve(nil, ErrRejectedExecution)
	}
	return nil
}

// runOnCaller executes rec on the submitting goroutine. Plain tasks run
// without the task timeout; coroutines get a short-lived loop of their own
// so the caller never waits on the pool's loop.
func (p *Pool) runOnCaller(rec *taskRecord) {
	if !rec.future.Start() {
		return
	}

	info := rec.info("caller")
	p.callHook(func() {
		if p.cfg.BeforeTaskStart != nil {
			p.cfg.BeforeTaskStart(info)
		}
	})

	var (
		value any
		err   error
	)
	if rec.kind == KindAsync {
		value, err = bridge.RunOnce(p.baseCtx, p.cfg.Name+"-caller-loop", rec.async)
	} else {
		value, err = p.invokeWithRetry(p.baseCtx, rec, info)
	}

	p.finish(rec, info, value, err)
}

// Shutdown stops the pool. The first call moves it to ShuttingDown: new
// submissions fail, tasks still queued resolve with ErrPoolShutdown, and
// tasks already running finish. Later calls do nothing and return nil.
//
// With wait, Shutdown blocks until the pool is stopped or timeout (plus a
// short grace period) passes, returning ErrShutdownTimeout in the latter
// case. Without wait it cancels the context given to running tasks and
// returns at once. A timeout <= 0 uses Config.ShutdownTimeout, where 0
// means no limit. The event loop is always stopped after the last worker
// exits, and Done is closed then.
func (p *Pool) Shutdown(wait bool, timeout time.Duration) error {
	first := false
	p.shutdownOnce.Do(func() { first = true })
	if !first {
		return nil
	}

	if timeout <= 0 {
		timeout = p.cfg.ShutdownTimeout
	}

	p.state.Store(int32(StateShuttingDown))
	p.logger.Info("pool shutting down", zap.Bool("wait", wait), zap.Duration("timeout", timeout))

	p.reg.close()
	p.queue.Close()

	go func() {
		p.reg.wait()
		p.loop.Stop()
		p.cancelBase()
		p.state.Store(int32(StateStopped))
		close(p.stopped)
		p.logger.Info("pool stopped")
	}()

	if !wait {
		p.cancelBase()
		return nil
	}

	if err := waitUntil(p.stopped, timeout); err != nil {
		if waitUntil(p.stopped, shutdownGrace) == nil {
			return nil
		}
		p.cancelBase()
		p.logger.Warn("shutdown timed out with workers still running",
			zap.Int("workers", p.reg.counts().total),
			zap.String("loop", p.loop.Name()),
			zap.Int64("coroutines", p.loop.InFlight()))
		return err
	}
	return nil
}

// Close shuts the pool down using Config.ShutdownWait and
// Config.ShutdownTimeout.
func (p *Pool) Close() error {
	return p.Shutdown(p.cfg.ShutdownWait, p.cfg.ShutdownTimeout)
}

// waitUntil blocks until either the done channel is closed or the timeout is reached.
func waitUntil(d <-chan struct{}, timeout time.Duration) error {
	if timeout <= 0 {
		<-d
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-d:
		return nil
	case <-timer.C:
		return ErrShutdownTimeout
	}
}
