package pool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/utkarsh5026/elasticpool/internal/bridge"
	"github.com/utkarsh5026/elasticpool/internal/cpu"
	"github.com/utkarsh5026/elasticpool/internal/queue"
)

// runWorker is the body of every worker goroutine: wait for work, claim one
// task, execute it, repeat. It returns when the queue is closed and empty,
// or when the worker retires after an idle keep-alive period.
func (p *Pool) runWorker(w *worker) {
	defer p.reg.remove(w)

	log := p.logger.With(zap.String("worker", w.name))
	log.Debug("worker started")

	if p.cfg.CPUAffinity {
		release, err := cpu.Pin(w.id - 1)
		defer release()
		if err != nil {
			log.Warn("cpu pinning failed", zap.Error(err))
		}
	}

	p.runWorkerInit(log)

	for {
		timeout := time.Duration(-1)
		if p.reg.aboveMin() {
			timeout = p.cfg.KeepAlive
		}

		switch p.queue.Wait(timeout) {
		case queue.Closed:
			log.Debug("worker exiting")
			return

		case queue.TimedOut:
			if p.queue.IsEmpty() && p.reg.tryRetire(w) {
				log.Debug("worker retired after keep-alive")
				return
			}
			continue
		}

		rec, ok := p.queue.TryDequeue()
		if !ok {
			// Another worker claimed it first.
			continue
		}

		if p.State() != StateRunning {
			p.abandon(rec)
			for _, rest := range p.queue.Drain() {
				p.abandon(rest)
			}
			continue
		}

		p.reg.setBusy(w)
		p.execute(rec, w.name)
		p.reg.setIdle(w)
	}
}

func (p *Pool) runWorkerInit(log *zap.Logger) {
	if p.cfg.WorkerInit == nil {
		return
	}

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError(r)
			}
		}()
		return p.cfg.WorkerInit()
	}()
	if err != nil {
		log.Error("worker initializer failed", zap.Error(err))
	}
}

// abandon resolves a task that was still queued when shutdown began.
func (p *Pool) abandon(rec *taskRecord) {
	if rec.future.Resolve(nil, ErrPoolShutdown) {
		p.metrics.failed()
	}
}

// execute runs rec on the current goroutine and resolves its future.
func (p *Pool) execute(rec *taskRecord, workerName string) {
	if !rec.future.Start() {
		// Cancelled while queued.
		p.metrics.cancelled()
		return
	}

	info := rec.info(workerName)
	p.callHook(func() {
		if p.cfg.BeforeTaskStart != nil {
			p.cfg.BeforeTaskStart(info)
		}
	})

	var (
		value any
		err   error
	)
	if p.limiter != nil {
		err = p.limiter.Wait(p.baseCtx)
	}
	if err == nil {
		value, err = p.runBounded(rec, info)
	}

	p.finish(rec, info, value, err)
}

// finish resolves the future, records the outcome and runs the end hook.
func (p *Pool) finish(rec *taskRecord, info TaskInfo, value any, err error) {
	if !rec.future.Resolve(value, err) {
		return
	}

	switch {
	case err == nil:
		p.metrics.completed()
	case errors.Is(err, ErrTaskTimeout):
		p.metrics.timedOut()
		p.metrics.failed()
	default:
		p.metrics.failed()
	}

	if errors.Is(err, ErrTaskPanicked) {
		p.logger.Warn("task panicked", zap.Int64("task", rec.id), zap.String("worker", info.Worker), zap.Error(err))
	}

	p.callHook(func() {
		if p.cfg.OnTaskEnd != nil {
			p.cfg.OnTaskEnd(info, err)
		}
	})
}

type outcome struct {
	value any
	err   error
}

// runBounded enforces the task timeout. The body runs on its own goroutine
// so the worker can give up at the deadline; a result arriving after that
// lands in a buffered channel nobody reads.
func (p *Pool) runBounded(rec *taskRecord, info TaskInfo) (any, error) {
	if rec.timeout <= 0 {
		return p.invoke(p.baseCtx, rec, info, p.loop)
	}

	ctx, cancel := context.WithTimeout(p.baseCtx, rec.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		v, err := p.invoke(ctx, rec, info, p.loop)
		done <- outcome{v, err}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(rec.timeout)
		}
		return o.value, o.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, timeoutError(rec.timeout)
		}
		// The pool stopped without waiting; the body decides how to finish.
		o := <-done
		return o.value, o.err
	}
}

func timeoutError(d time.Duration) error {
	return fmt.Errorf("%w after %s", ErrTaskTimeout, d)
}

// invoke runs the task body once, or several times for plain tasks with a
// retry policy. Coroutine tasks are handed to loop.
func (p *Pool) invoke(ctx context.Context, rec *taskRecord, info TaskInfo, loop *bridge.Loop) (any, error) {
	if rec.kind == KindAsync {
		h, err := loop.Spawn(ctx, rec.async)
		if err != nil {
			return nil, err
		}
		return h.Wait(context.Background())
	}
	return p.invokeWithRetry(ctx, rec, info)
}

func (p *Pool) invokeWithRetry(ctx context.Context, rec *taskRecord, info TaskInfo) (any, error) {
	attempts := max(p.cfg.MaxAttempts, 1)
	if attempts == 1 {
		return rec.sync(ctx)
	}

	strategy := p.backoff.New()
	var (
		lastErr error
		made    int
	)

	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt
		v, err := rec.sync(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err

		if attempt == attempts || ctx.Err() != nil {
			break
		}

		p.callHook(func() {
			if p.cfg.OnRetry != nil {
				p.cfg.OnRetry(info, attempt, err)
			}
		})

		delay := strategy.Next(attempt-1, err)
		p.logger.Debug("retrying task",
			zap.Int64("task", rec.id),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))

		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("retry aborted after %d attempts: %w", attempt, lastErr)
			}
		}
	}

	return nil, fmt.Errorf("task failed after %d attempts: %w", made, lastErr)
}

// callHook runs a user hook, keeping its panics away from the worker.
func (p *Pool) callHook(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task hook panicked", zap.Any("panic", r))
		}
	}()
	fn()
}
