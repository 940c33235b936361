// Package operation ensures only one long-running operation is in progress at a time.
package operation

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
)

// Operation describes an operation started by a SingleOperationManager.
type Operation struct {
	ID      uuid.UUID
	Name    string
	Started time.Time
}

// SingleOperationManager ensures only 1 operation is happening a time
// An operation can be nested, so if there is already an operation in progress,
// it can have sub-operations without an issue.
type SingleOperationManager struct {
	// Clock is used for waits and start times; the wall clock is used when nil.
	Clock clock.Clock

	mu        sync.Mutex
	currentOp *anOp
}

type somCtxKey byte

const somCtxKeySingleOp = somCtxKey(iota)

// Get returns the operation ctx belongs to, if any.
func Get(ctx context.Context) (Operation, bool) {
	op, ok := ctx.Value(somCtxKeySingleOp).(*anOp)
	if !ok {
		return Operation{}, false
	}
	return op.info, true
}

func (sm *SingleOperationManager) clock() clock.Clock {
	if sm.Clock == nil {
		return clock.New()
	}
	return sm.Clock
}

// CancelRunning cancel's a current operation unless it's mine.
func (sm *SingleOperationManager) CancelRunning(ctx context.Context) {
	if ctx.Value(somCtxKeySingleOp) != nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.cancelInLock(ctx)
}

// OpRunning returns if there is a current operation.
func (sm *SingleOperationManager) OpRunning() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.currentOp != nil
}

// Current returns the operation in progress, if any.
func (sm *SingleOperationManager) Current() (Operation, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.currentOp == nil {
		return Operation{}, false
	}
	return sm.currentOp.info, true
}

// New creates a new operation, cancels previous, returns a new context and function to call when done.
func (sm *SingleOperationManager) New(ctx context.Context) (context.Context, func()) {
	return sm.NewNamed(ctx, "")
}

// NewNamed is New with a name recorded on the operation.
func (sm *SingleOperationManager) NewNamed(ctx context.Context, name string) (context.Context, func()) {
	// handle nested ops
	if ctx.Value(somCtxKeySingleOp) != nil {
		return ctx, func() {}
	}

	sm.mu.Lock()

	// first cancel any old operation
	sm.cancelInLock(ctx)

	theOp := &anOp{info: Operation{ID: uuid.New(), Name: name, Started: sm.clock().Now()}}

	ctx = context.WithValue(ctx, somCtxKeySingleOp, theOp)

	theOp.ctx, theOp.cancelFunc = context.WithCancel(ctx)
	sm.currentOp = theOp
	sm.mu.Unlock()

	return theOp.ctx, func() {
		theOp.cancelFunc()
		sm.mu.Lock()
		if theOp == sm.currentOp {
			sm.currentOp = nil
		}
		sm.mu.Unlock()
	}
}

// Wait blocks for dur on the manager's clock. It returns true if the wait finished and false if
// ctx was cancelled first.
func (sm *SingleOperationManager) Wait(ctx context.Context, dur time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if dur <= 0 {
		return true
	}
	timer := sm.clock().Timer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// NewTimedWaitOp returns true if it finished, false if cancelled.
// If there are other operations pending, this will cancel them.
func (sm *SingleOperationManager) NewTimedWaitOp(ctx context.Context, dur time.Duration) bool {
	ctx, finish := sm.New(ctx)
	defer finish()

	return sm.Wait(ctx, dur)
}

// WaitForSuccess will call testFunc every pollTime until it returns true or an error.
func (sm *SingleOperationManager) WaitForSuccess(
	ctx context.Context,
	pollTime time.Duration,
	testFunc func(ctx context.Context) (bool, error),
) error {
	ctx, finish := sm.New(ctx)
	defer finish()

	for {
		res, err := testFunc(ctx)
		if err != nil {
			return err
		}
		if res {
			return nil
		}

		if !sm.Wait(ctx, pollTime) {
			return ctx.Err()
		}
	}
}

func (sm *SingleOperationManager) cancelInLock(ctx context.Context) {
	myOp := ctx.Value(somCtxKeySingleOp)
	op := sm.currentOp

	if op == nil || myOp == op {
		return
	}

	op.cancelFunc()

	sm.currentOp = nil
}

type anOp struct {
	info       Operation
	ctx        context.Context
	cancelFunc context.CancelFunc
}
