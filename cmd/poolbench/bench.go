package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/utkarsh5026/elasticpool/config"
	"github.com/utkarsh5026/elasticpool/pool"
)

var errSynthetic = errors.New("synthetic failure")

// outcomes tallies how the submitted futures resolved, as seen by the caller.
type outcomes struct {
	succeeded atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
	cancelled atomic.Int64
	timedOut  atomic.Int64
	abandoned atomic.Int64
}

func (o *outcomes) record(err error) {
	switch {
	case err == nil:
		o.succeeded.Add(1)
	case errors.Is(err, pool.ErrRejectedExecution):
		o.rejected.Add(1)
	case errors.Is(err, pool.ErrTaskCancelled):
		o.cancelled.Add(1)
	case errors.Is(err, pool.ErrTaskTimeout):
		o.timedOut.Add(1)
	case errors.Is(err, pool.ErrPoolShutdown):
		o.abandoned.Add(1)
	default:
		o.failed.Add(1)
	}
}

type result struct {
	elapsed time.Duration
	tasks   int
	outcome *outcomes
}

// runWorkload submits w.Tasks tasks, mixing plain and coroutine tasks by
// w.AsyncRatio, and waits for every future. progress is called once per
// resolved future.
func runWorkload(ctx context.Context, p *pool.Pool, w config.Workload, progress func()) (*result, error) {
	ctx, cancel := context.WithTimeout(ctx, w.SubmitTimeout)
	defer cancel()

	out := &outcomes{}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(256)

	for i := range w.Tasks {
		if err := gctx.Err(); err != nil {
			break
		}

		fail := rand.Float64() < w.FailureRatio
		var fut *pool.Future[int]
		var err error
		if rand.Float64() < w.AsyncRatio {
			fut, err = pool.SubmitCoroutine(p, func(ctx context.Context, co *pool.Co) (int, error) {
				if err := co.Sleep(w.TaskDuration); err != nil {
					return 0, err
				}
				if fail {
					return 0, errSynthetic
				}
				return i, nil
			})
		} else {
			fut, err = pool.Submit(p, func(ctx context.Context) (int, error) {
				select {
				case <-time.After(w.TaskDuration):
				case <-ctx.Done():
					return 0, ctx.Err()
				}
				if fail {
					return 0, errSynthetic
				}
				return i, nil
			})
		}
		if err != nil {
			return nil, err
		}

		g.Go(func() error {
			_, err := fut.GetWithContext(gctx)
			if err != nil && errors.Is(err, gctx.Err()) {
				return err
			}
			out.record(err)
			if progress != nil {
				progress()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &result{elapsed: time.Since(start), tasks: w.Tasks, outcome: out}, nil
}
