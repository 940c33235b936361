package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"

	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/utils"
)

type tickerTask struct {
	name   string
	period time.Duration
	fn     func(ctx context.Context)
}

// TickerScheduler runs each task in its own goroutine driven by a clock ticker.
type TickerScheduler struct {
	clk    clock.Clock
	logger logging.Logger

	mu      sync.Mutex
	pending []tickerTask
	workers utils.StoppableWorkers
	started atomic.Bool
	stopped atomic.Bool
}

// NewTickerScheduler returns a scheduler driven by clk. Pass clock.New() outside of tests.
func NewTickerScheduler(clk clock.Clock, logger logging.Logger) *TickerScheduler {
	return &TickerScheduler{
		clk:     clk,
		logger:  logger.Sublogger("scheduler"),
		workers: utils.NewStoppableWorkers(),
	}
}

// AddPeriodic registers fn to run every period.
func (s *TickerScheduler) AddPeriodic(name string, period time.Duration, fn func(ctx context.Context)) error {
	if err := validateTask(name, period, fn); err != nil {
		return err
	}
	if s.stopped.Load() {
		return ErrStopped
	}
	task := tickerTask{name: name, period: period, fn: fn}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started.Load() {
		s.pending = append(s.pending, task)
		return nil
	}
	s.launch(task)
	return nil
}

func (s *TickerScheduler) launch(task tickerTask) {
	s.logger.Debugw("starting periodic task", "task", task.name, "period", task.period)
	ticker := s.clk.Ticker(task.period)
	s.workers.AddWorkers(func(ctx context.Context) {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			runTask(ctx, s.logger, task.name, task.fn)
		}
	})
}

// Start begins running every registered task. Calling it more than once has no effect.
func (s *TickerScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped.Load() || !s.started.CompareAndSwap(false, true) {
		return
	}
	for _, task := range s.pending {
		s.launch(task)
	}
	s.pending = nil
}

// Stop halts every task and waits for running iterations to return.
func (s *TickerScheduler) Stop() error {
	s.stopped.Store(true)
	s.workers.Stop()
	return nil
}
