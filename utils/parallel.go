// Package utils contains helpers shared by the native backends and the CLI.
package utils

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelFactor controls the max level of parallelization. Tests may lower it to keep
// aggregate runtimes down.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// RowWorkFunc processes rows [from, to).
type RowWorkFunc func(ctx context.Context, from, to int) error

// GroupRowsParallel splits rows into at most ParallelFactor contiguous bands and runs work on each
// band in its own goroutine. The first error cancels the context handed to the other bands and
// is returned. A panic in a band is returned as an error.
func GroupRowsParallel(ctx context.Context, rows int, work RowWorkFunc) error {
	if rows <= 0 {
		return nil
	}
	groups := ParallelFactor
	if groups > rows {
		groups = rows
	}
	band := rows / groups
	extra := rows % groups

	g, gctx := errgroup.WithContext(ctx)
	from := 0
	for i := 0; i < groups; i++ {
		to := from + band
		if i < extra {
			to++
		}
		bandFrom, bandTo := from, to
		g.Go(func() (err error) {
			defer func() {
				if thePanic := recover(); thePanic != nil {
					err = fmt.Errorf("got panic processing rows %d-%d: %v", bandFrom, bandTo, thePanic)
				}
			}()
			if err := gctx.Err(); err != nil {
				return err
			}
			return work(gctx, bandFrom, bandTo)
		})
		from = to
	}
	return g.Wait()
}

// ParallelForEachPixel calls f for every (x, y) in a width x height grid, one band of rows per
// goroutine.
func ParallelForEachPixel(ctx context.Context, width, height int, f func(x, y int)) error {
	return GroupRowsParallel(ctx, height, func(ctx context.Context, from, to int) error {
		for y := from; y < to; y++ {
			for x := 0; x < width; x++ {
				f(x, y)
			}
		}
		return ctx.Err()
	})
}
