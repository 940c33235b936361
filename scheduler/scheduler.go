// Package scheduler runs named callbacks on a fixed period.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/team3128/motorhal/logging"
)

// A Scheduler runs registered functions periodically until it is stopped.
type Scheduler interface {
	// AddPeriodic registers fn to run every period. Tasks added after Start begin immediately.
	AddPeriodic(name string, period time.Duration, fn func(ctx context.Context)) error
	Start()
	Stop() error
}

// ErrStopped is returned when a task is added to a scheduler that was stopped.
var ErrStopped = errors.New("scheduler is stopped")

func validateTask(name string, period time.Duration, fn func(ctx context.Context)) error {
	if fn == nil {
		return errors.Errorf("periodic task %q has no function", name)
	}
	if period <= 0 {
		return errors.Errorf("periodic task %q needs a positive period, got %v", name, period)
	}
	return nil
}

// runTask runs one iteration of a task, logging instead of propagating a panic.
func runTask(ctx context.Context, logger logging.Logger, name string, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("periodic task panicked", "task", name, "panic", fmt.Sprint(r))
		}
	}()
	fn(ctx)
}
