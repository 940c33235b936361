package scheduler

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/pkg/errors"

	"github.com/team3128/motorhal/logging"
)

// gocronLogger lets gocron report through our logger.
type gocronLogger struct {
	logger logging.Logger
}

func (l gocronLogger) Debug(msg string, args ...any) { l.logger.Debugw(msg, args...) }
func (l gocronLogger) Error(msg string, args ...any) { l.logger.Errorw(msg, args...) }
func (l gocronLogger) Info(msg string, args ...any)  { l.logger.Infow(msg, args...) }
func (l gocronLogger) Warn(msg string, args ...any)  { l.logger.Warnw(msg, args...) }

// CronScheduler runs tasks as gocron duration jobs. A task whose previous run has not finished
// skips the overlapping slot.
type CronScheduler struct {
	scheduler gocron.Scheduler
	logger    logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCronScheduler returns a gocron-backed scheduler.
func NewCronScheduler(logger logging.Logger) (*CronScheduler, error) {
	cronLogger := logger.Sublogger("cron")
	scheduler, err := gocron.NewScheduler(gocron.WithLogger(gocronLogger{cronLogger}))
	if err != nil {
		return nil, errors.Wrap(err, "cannot create cron scheduler")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		scheduler: scheduler,
		logger:    cronLogger,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// AddPeriodic registers fn as a duration job.
func (s *CronScheduler) AddPeriodic(name string, period time.Duration, fn func(ctx context.Context)) error {
	if err := validateTask(name, period, fn); err != nil {
		return err
	}
	if s.ctx.Err() != nil {
		return ErrStopped
	}
	j, err := s.scheduler.NewJob(
		gocron.DurationJob(period),
		gocron.NewTask(func() {
			runTask(s.ctx, s.logger, name, fn)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return errors.Wrapf(err, "cannot schedule periodic task %q", name)
	}
	s.logger.Debugw("created periodic job", "task", name, "period", period, "id", j.ID())
	return nil
}

// Start starts the underlying gocron scheduler.
func (s *CronScheduler) Start() {
	s.scheduler.Start()
}

// Stop cancels running tasks and shuts gocron down, waiting for jobs to return.
func (s *CronScheduler) Stop() error {
	s.cancel()
	return s.scheduler.Shutdown()
}
