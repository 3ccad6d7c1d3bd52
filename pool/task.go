package pool

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/utkarsh5026/elasticpool/internal/bridge"
	"github.com/utkarsh5026/elasticpool/internal/types"
)

// Future is the result handle returned for every submitted task.
type Future[R any] = types.Future[R]

// Co is what a coroutine task uses to suspend itself on the event loop.
type Co = bridge.Co

// Func is a plain task. ctx is cancelled when the task times out or the pool
// shuts down without waiting.
type Func[R any] func(ctx context.Context) (R, error)

// Coroutine is a task that runs on the pool's event loop and must only block
// through co.Await, co.Sleep or co.Yield.
type Coroutine[R any] func(ctx context.Context, co *Co) (R, error)

// TaskKind tags a task as plain or coroutine.
type TaskKind int

const (
	KindSync TaskKind = iota
	KindAsync
)

func (k TaskKind) String() string {
	if k == KindAsync {
		return "async"
	}
	return "sync"
}

// TaskInfo is passed to the task hooks.
type TaskInfo struct {
	ID        int64
	Kind      TaskKind
	Worker    string
	QueueWait time.Duration
}

type taskRecord struct {
	id        int64
	kind      TaskKind
	sync      func(ctx context.Context) (any, error)
	async     bridge.Coroutine
	future    types.Completer
	timeout   time.Duration
	createdAt time.Time
}

func (t *taskRecord) info(worker string) TaskInfo {
	return TaskInfo{
		ID:        t.id,
		Kind:      t.kind,
		Worker:    worker,
		QueueWait: time.Since(t.createdAt),
	}
}

// panicError converts a recovered panic into an error carrying the stack.
func panicError(r any) error {
	buf := make([]byte, 4096)
	n := runtime.Stack(buf, false)
	return fmt.Errorf("%w: %v\nstack trace:\n%s", ErrTaskPanicked, r, buf[:n])
}

func newSyncRecord[R any](id int64, fn Func[R], timeout time.Duration) (*taskRecord, *Future[R]) {
	fut := types.NewFuture[R](id)
	return &taskRecord{
		id:   id,
		kind: KindSync,
		sync: func(ctx context.Context) (v any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = panicError(r)
				}
			}()
			return fn(ctx)
		},
		future:    fut,
		timeout:   timeout,
		createdAt: time.Now(),
	}, fut
}

func newAsyncRecord[R any](id int64, coro Coroutine[R], timeout time.Duration) (*taskRecord, *Future[R]) {
	fut := types.NewFuture[R](id)
	return &taskRecord{
		id:   id,
		kind: KindAsync,
		async: func(ctx context.Context, co *bridge.Co) (v any, err error) {
			defer func() {
				if r := recover(); r != nil {
					err = panicError(r)
				}
			}()
			return coro(ctx, co)
		},
		future:    fut,
		timeout:   timeout,
		createdAt: time.Now(),
	}, fut
}
