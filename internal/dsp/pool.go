package dsp

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Pool bounds per-channel parallelism.
type Pool struct {
	workers int
}

// NewPool returns a pool with the given limit; non-positive means NumCPU.
func NewPool(workers int) Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return Pool{workers: workers}
}

// Workers reports the concurrency limit.
func (p Pool) Workers() int {
	if p.workers <= 0 {
		return 1
	}
	return p.workers
}

// Each runs fn for every channel index in [0, n). The first error cancels
// the remaining work.
func (p Pool) Each(ctx context.Context, n int, fn func(ctx context.Context, c int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Workers())
	for c := 0; c < n; c++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, c)
		})
	}
	return g.Wait()
}
