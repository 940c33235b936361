package utils

import (
	"context"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// ParallelFactor controls the max level of parallelization. This might be useful
// to set in tests where too much parallelism actually slows tests down in
// aggregate.
var ParallelFactor = runtime.GOMAXPROCS(0)

func init() {
	if ParallelFactor <= 0 {
		ParallelFactor = 1
	}
}

// MapInParallel calls fn on every item, at most ParallelFactor at a time, and returns the results
// in item order. A panicking call is recovered and reported through onPanic, leaving the zero
// value in its slot.
func MapInParallel[T, R any](
	ctx context.Context,
	items []T,
	fn func(ctx context.Context, item T) R,
	onPanic func(item T, err error),
) []R {
	results := make([]R, len(items))
	var group errgroup.Group
	group.SetLimit(ParallelFactor)
	for idx, item := range items {
		idx, item := idx, item
		group.Go(func() (err error) {
			defer func() {
				if thePanic := recover(); thePanic != nil {
					err = errors.Errorf("got panic running something in parallel: %v", thePanic)
					if onPanic != nil {
						onPanic(item, err)
					}
				}
			}()
			results[idx] = fn(ctx, item)
			return nil
		})
	}
	//nolint:errcheck
	group.Wait()
	return results
}
