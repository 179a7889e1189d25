package payrun

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEach calls fn for 0..n-1 on at most workers goroutines. The first error
// cancels the context passed to the remaining calls and is returned.
// Indexes not yet started when ctx ends are skipped.
func forEach(ctx context.Context, workers, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := 0; i < n; i++ {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
