package evo

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Pool bounds how many independent evaluations run at once. A nil *Pool is
// valid and runs every task serially on the caller's goroutine.
type Pool struct {
	workers int
	closed  atomic.Bool
}

// NewPool returns a pool of the given width; non-positive widths use
// GOMAXPROCS.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return &Pool{workers: workers}
}

func (p *Pool) Workers() int {
	if p == nil {
		return 1
	}
	return p.workers
}

// Map runs fn(ctx, i) for i in [0, n). The first error cancels the context
// handed to the remaining tasks and is returned once all have stopped.
func (p *Pool) Map(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if p != nil && p.closed.Load() {
		return ErrPoolClosed
	}
	if p == nil || p.workers == 1 {
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
	eg.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			return fn(egCtx, i)
		})
	}
	return eg.Wait()
}

// Close rejects later Map calls. Calls already running finish normally.
func (p *Pool) Close() error {
	if p == nil {
		return nil
	}
	p.closed.Store(true)
	return nil
}
