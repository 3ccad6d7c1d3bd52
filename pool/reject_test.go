package pool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/utkarsh5026/elasticpool/pool"
)

// occupy blocks the pool's only worker until the returned func is called.
func occupy(t *testing.T, p *pool.Pool) (release func()) {
	t.Helper()
	gate := make(chan struct{})
	started := make(chan struct{})

	if _, err := pool.Submit(p, func(ctx context.Context) (int, error) {
		close(started)
		<-gate
		return 0, nil
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("blocking task never started")
	}
	return func() { close(gate) }
}

func fill(t *testing.T, p *pool.Pool, n int) []*pool.Future[int] {
	t.Helper()
	futures := make([]*pool.Future[int], n)
	for i := range futures {
		fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
			return i, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		futures[i] = fut
	}
	return futures
}

func TestReject_Abort(t *testing.T) {
	p := newPool(t, pool.WithWorkers(1), pool.WithQueueCapacity(2), pool.WithMetrics(true))
	release := occupy(t, p)

	queued := fill(t, p, 2)

	var ran atomic.Bool
	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) {
		ran.Store(true)
		return 1, nil
	})
	if err != nil {
		t.Fatalf("abort must not fail synchronously, got %v", err)
	}
	if !fut.IsReady() {
		t.Fatal("rejected future should already be resolved")
	}
	if _, err := fut.Get(); !errors.Is(err, pool.ErrRejectedExecution) {
		t.Errorf("expected ErrRejectedExecution, got %v", err)
	}

	release()
	for i, q := range queued {
		if v, err := q.Get(); err != nil || v != i {
			t.Errorf("queued task %d: got %v %v", i, v, err)
		}
	}
	if ran.Load() {
		t.Error("rejected task must never run")
	}

	m, _ := p.Metrics()
	if m.RejectedTasks != 1 {
		t.Errorf("expected 1 rejection, got %d", m.RejectedTasks)
	}
}

func TestReject_Discard(t *testing.T) {
	p := newPool(t, pool.WithWorkers(1), pool.WithQueueCapacity(1), pool.WithRejectPolicy(pool.RejectDiscard), pool.WithMetrics(true))
	release := occupy(t, p)
	defer release()

	fill(t, p, 1)

	fut, err := pool.Submit(p, func(ctx context.Context) (int, error) { return 1, nil })
	if err != nil {
		t.Fatal(err)
	}
	if !fut.IsCancelled() {
		t.Fatal("discarded future should be cancelled")
	}
	if _, err := fut.Get(); !errors.Is(err, pool.ErrTaskCancelled) {
		t.Errorf("expected ErrTaskCancelled, got %v", err)
	}

	m, _ := p.Metrics()
	if m.RejectedTasks != 1 || m.CancelledTasks != 1 {
		t.Errorf("expected rejected=1 cancelled=1, got %+v", m)
	}
}

func TestReject_DiscardOldest(t *testing.T) {
	const k = 3
	p := newPool(t, pool.WithWorkers(1), pool.WithQueueCapacity(k), pool.WithRejectPolicy(pool.RejectDiscardOldest), pool.WithMetrics(true))
	release := occupy(t, p)

	queued := fill(t, p, k)

	newest, err := pool.Submit(p, func(ctx context.Context) (int, error) { return 100, nil })
	if err != nil {
		t.Fatal(err)
	}

	m, _ := p.Metrics()
	if m.QueueSize != k {
		t.Errorf("expected exactly %d queued tasks, got %d", k, m.QueueSize)
	}
	if !queued[0].IsCancelled() {
		t.Fatal("the oldest queued task should be cancelled")
	}
	for i := 1; i < k; i++ {
		if queued[i].IsReady() {
			t.Errorf("queued task %d should still be pending", i)
		}
	}

	release()

	for i := 1; i < k; i++ {
		if v, err := queued[i].Get(); err != nil || v != i {
			t.Errorf("queued task %d: got %v %v", i, v, err)
		}
	}
	if v, err := newest.Get(); err != nil || v != 100 {
		t.Errorf("newest task: got %v %v", v, err)
	}
}

func TestReject_CallerRuns(t *testing.T) {
	p := newPool(t, pool.WithWorkers(1), pool.WithQueueCapacity(1), pool.WithRejectPolicy(pool.RejectCallerRuns), pool.WithMetrics(true))
	release := occupy(t, p)
	defer release()

	fill(t, p, 1)

	t.Run("plain task runs before Submit returns", func(t *testing.T) {
		var ranOnCaller atomic.Bool
		fut, err := pool.Submit(p, func(ctx context.Context) (string, error) {
			ranOnCaller.Store(true)
			return "ran on caller", nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if !ranOnCaller.Load() || !fut.IsReady() {
			t.Fatal("task should have completed on the submitting goroutine")
		}
		if v, _ := fut.Get(); v != "ran on caller" {
			t.Errorf("unexpected value %q", v)
		}
	})

	t.Run("coroutine runs on a temporary loop", func(t *testing.T) {
		fut, err := pool.SubmitCoroutine(p, func(ctx context.Context, co *pool.Co) (int, error) {
			if err := co.Yield(); err != nil {
				return 0, err
			}
			return 5, nil
		})
		if err != nil {
			t.Fatal(err)
		}
		if !fut.IsReady() {
			t.Fatal("coroutine should have completed before Submit returned")
		}
		if v, err := fut.Get(); err != nil || v != 5 {
			t.Errorf("expected 5, got %v %v", v, err)
		}
	})

	m, _ := p.Metrics()
	if m.RejectedTasks != 2 {
		t.Errorf("caller-runs invocations count as rejections, got %d", m.RejectedTasks)
	}
	if m.CompletedTasks != 2 {
		t.Errorf("expected 2 completed tasks, got %d", m.CompletedTasks)
	}
}
