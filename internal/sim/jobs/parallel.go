// Package jobs runs bulk-parallel work over index ranges. Each index owns its
// own result slot, so workers never share mutable state.
package jobs

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// DefaultBatch is the number of consecutive indices handed to one worker.
const DefaultBatch = 64

// ParallelFor calls fn once for every index in [0, n), using at most workers
// goroutines (<= 0 means GOMAXPROCS). Indices are split into contiguous
// batches of DefaultBatch. The first error cancels the remaining batches and
// is returned.
func ParallelFor(ctx context.Context, n, workers int, fn func(ctx context.Context, i int) error) error {
	return ParallelForBatch(ctx, n, workers, DefaultBatch, fn)
}

func ParallelForBatch(ctx context.Context, n, workers, batch int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if batch <= 0 {
		batch = DefaultBatch
	}

	// Small inputs run inline.
	if n <= batch || workers == 1 {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(ctx, i); err != nil {
				return err
			}
		}
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for lo := 0; lo < n; lo += batch {
		lo := lo
		hi := lo + batch
		if hi > n {
			hi = n
		}
		eg.Go(func() error {
			for i := lo; i < hi; i++ {
				if err := egCtx.Err(); err != nil {
					return err
				}
				if err := fn(egCtx, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return eg.Wait()
}
