package pool

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Process submits one task per item and returns the results in input order.
// The first failure cancels ctx for the remaining tasks and is returned.
// Tasks that have not started when that happens are cancelled.
func Process[T, R any](ctx context.Context, p *Pool, items []T, fn func(ctx context.Context, item T) (R, error)) ([]R, error) {
	if fn == nil {
		return nil, ErrNilTask
	}

	g, gctx := errgroup.WithContext(ctx)
	results := make([]R, len(items))

	for i, item := range items {
		fut, err := Submit(p, func(tctx context.Context) (R, error) {
			runCtx, cancel := context.WithCancel(tctx)
			defer cancel()
			stop := context.AfterFunc(gctx, cancel)
			defer stop()

			return fn(runCtx, item)
		})
		if err != nil {
			return nil, multierr.Append(err, g.Wait())
		}

		g.Go(func() error {
			v, err := await(gctx, fut)
			if err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
