package utils

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.viam.com/test"
	gutils "go.viam.com/utils"
)

func TestMapInParallel(t *testing.T) {
	old := ParallelFactor
	ParallelFactor = 4
	defer func() { ParallelFactor = old }()

	wait100ms := func(ctx context.Context, x int) int {
		gutils.SelectContextOrWait(ctx, 100*time.Millisecond)
		return x * 2
	}

	start := time.Now()
	results := MapInParallel(context.Background(), []int{1, 2, 3, 4}, wait100ms, nil)
	elapsed := time.Since(start)
	test.That(t, results, test.ShouldResemble, []int{2, 4, 6, 8})
	test.That(t, elapsed, test.ShouldBeLessThan, 300*time.Millisecond)

	var mu sync.Mutex
	var panicked []string
	results = MapInParallel(context.Background(), []int{1, 2, 3}, func(ctx context.Context, x int) int {
		if x == 2 {
			panic("stuck bus")
		}
		return x
	}, func(item int, err error) {
		mu.Lock()
		defer mu.Unlock()
		test.That(t, item, test.ShouldEqual, 2)
		panicked = append(panicked, err.Error())
	})
	test.That(t, results, test.ShouldResemble, []int{1, 0, 3})
	test.That(t, panicked, test.ShouldResemble, []string{"got panic running something in parallel: stuck bus"})

	test.That(t, MapInParallel(context.Background(), []int{}, wait100ms, nil), test.ShouldBeEmpty)
}
