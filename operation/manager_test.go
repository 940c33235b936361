package operation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
	"go.viam.com/test"
)

func TestSingleOperationManager(t *testing.T) {
	ctx := context.Background()
	som := SingleOperationManager{}

	test.That(t, som.NewTimedWaitOp(ctx, time.Millisecond), test.ShouldBeTrue)
	test.That(t, som.OpRunning(), test.ShouldBeFalse)

	t.Run("nested operation does not cancel parent", func(t *testing.T) {
		ctx1, close1 := som.NewNamed(ctx, "intake")
		defer close1()
		ctx2, close2 := som.New(ctx1)
		defer close2()
		test.That(t, ctx1.Err(), test.ShouldBeNil)

		outer, ok := Get(ctx1)
		test.That(t, ok, test.ShouldBeTrue)
		inner, ok := Get(ctx2)
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, inner.ID, test.ShouldEqual, outer.ID)
		test.That(t, outer.Name, test.ShouldEqual, "intake")

		current, ok := som.Current()
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, current.ID, test.ShouldEqual, outer.ID)
	})

	t.Run("cancelling on different context works", func(t *testing.T) {
		var res atomic.Bool

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			res.Store(som.NewTimedWaitOp(context.Background(), 10*time.Second))
		}()

		for !som.OpRunning() {
			time.Sleep(time.Millisecond)
		}

		test.That(t, som.NewTimedWaitOp(ctx, time.Millisecond), test.ShouldBeTrue)

		wg.Wait()
		test.That(t, res.Load(), test.ShouldBeFalse)
	})

	t.Run("WaitForSuccess", func(t *testing.T) {
		var count atomic.Int64

		err := som.WaitForSuccess(
			ctx,
			time.Millisecond,
			func(ctx context.Context) (bool, error) {
				return count.Inc() == 5, nil
			},
		)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, count.Load(), test.ShouldEqual, int64(5))
	})

	_, ok := Get(ctx)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestWaitUsesClock(t *testing.T) {
	mock := clock.NewMock()
	som := SingleOperationManager{Clock: mock}

	done := make(chan bool)
	go func() {
		done <- som.NewTimedWaitOp(context.Background(), time.Minute)
	}()
	for !som.OpRunning() {
		time.Sleep(time.Millisecond)
	}
	current, ok := som.Current()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, current.Started, test.ShouldEqual, mock.Now())

	// the timer may not be armed yet, so keep advancing until the wait returns
	for {
		mock.Add(time.Minute)
		select {
		case finished := <-done:
			test.That(t, finished, test.ShouldBeTrue)
			return
		case <-time.After(time.Millisecond):
		}
	}
}

func TestWaitCancelled(t *testing.T) {
	som := SingleOperationManager{Clock: clock.NewMock()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.That(t, som.Wait(ctx, time.Hour), test.ShouldBeFalse)
	test.That(t, som.Wait(context.Background(), 0), test.ShouldBeTrue)
}
