// Package pool provides an adaptive worker pool for plain and
// coroutine-style tasks.
//
// A Pool keeps between MinWorkers and MaxWorkers workers. It starts with
// the minimum, adds a worker whenever queued work outnumbers idle workers,
// and lets workers above the minimum retire after KeepAlive of idleness.
//
// # Basic Usage
//
//	p, err := pool.New(pool.WithMinWorkers(2), pool.WithMaxWorkers(8))
//	if err != nil {
//	    return err
//	}
//	defer p.Close()
//
//	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
//	    return 42, nil
//	})
//	if err != nil {
//	    return err // only ErrPoolShutdown
//	}
//	v, err := fut.Get()
//
// # Coroutine Tasks
//
// Coroutine tasks all share one event loop and run one at a time. They give
// up the loop at co.Await, co.Sleep and co.Yield:
//
//	v, err := pool.SubmitAsync(ctx, p, func(ctx context.Context, co *pool.Co) (string, error) {
//	    if err := co.Sleep(10 * time.Millisecond); err != nil {
//	        return "", err
//	    }
//	    return "done", nil
//	})
//
// # Backpressure
//
// With WithQueueCapacity the queue is bounded and a full queue triggers the
// reject policy: RejectAbort, RejectDiscard, RejectDiscardOldest or
// RejectCallerRuns.
//
// # Timeouts
//
// WithTaskTimeout bounds every task. A task that overruns resolves with
// ErrTaskTimeout; its body keeps running with a cancelled context and
// whatever it returns later is discarded.
//
// # Shutdown
//
// Shutdown(wait, timeout) stops admission, resolves queued tasks with
// ErrPoolShutdown and lets running tasks finish. Close uses the configured
// defaults, so a pool can be released with defer.
//
// # Retry and Rate Limiting
//
//	p, _ := pool.New(
//	    pool.WithRetryPolicy(3, 100*time.Millisecond),
//	    pool.WithBackoff(pool.BackoffJittered, 5*time.Second, 0.2),
//	    pool.WithRateLimit(50, 10),
//	)
//
// Build with -tags debug to get a development zap logger by default.
package pool
