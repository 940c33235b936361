package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	// register motor backends.
	_ "github.com/team3128/motorhal/components/motor/register"
	"github.com/team3128/motorhal/config"
	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/robot"
	"github.com/team3128/motorhal/scheduler"
	"github.com/team3128/motorhal/tester"
)

const (
	defaultLogMaxSizeMB  = 10
	defaultLogMaxBackups = 3
)

// session holds what every command that touches a config needs.
type session struct {
	cfg    *config.Config
	logger logging.Logger
	closer func() error
}

// newSession builds the logger from flags, reads the config and then applies the config's own
// log settings where no flag overrides them.
func newSession(c *cli.Context) (*session, error) {
	path := c.String(configFlag)
	if path == "" {
		return nil, errors.Errorf("a config file is required; pass --%s", configFlag)
	}

	logger := logging.NewBlankLogger("motorhal")
	logger.AddAppender(logging.NewWriterAppender(c.App.ErrWriter))
	logger.SetLevel(logging.INFO)

	cfg, err := config.Read(c.Context, path, logger)
	if err != nil {
		return nil, err
	}

	if cfg.Log.Level != "" {
		level, err := logging.LevelFromString(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		logger.SetLevel(level)
	}
	if c.Bool(debugFlag) {
		logger.SetLevel(logging.DEBUG)
	}

	s := &session{cfg: cfg, logger: logger, closer: func() error { return nil }}
	logFile := lo.Ternary(c.String(logFileFlag) != "", c.String(logFileFlag), cfg.Log.File)
	if logFile != "" {
		appender := logging.NewFileAppender(logFile,
			lo.Ternary(cfg.Log.MaxSizeMB > 0, cfg.Log.MaxSizeMB, defaultLogMaxSizeMB),
			lo.Ternary(cfg.Log.MaxBackups > 0, cfg.Log.MaxBackups, defaultLogMaxBackups))
		logger.AddAppender(appender)
		s.closer = appender.Close
	}
	return s, nil
}

func (s *session) Close() error {
	return multierr.Combine(s.logger.Sync(), s.closer())
}

func (s *session) newScheduler() (scheduler.Scheduler, error) {
	if s.cfg.Scheduler == config.SchedulerCron {
		return scheduler.NewCronScheduler(s.logger)
	}
	return scheduler.NewTickerScheduler(clock.New(), s.logger), nil
}

// withRobot builds the robot, calls fn and tears everything down again.
func (s *session) withRobot(ctx context.Context, fn func(r *robot.Robot, sched scheduler.Scheduler) error) (err error) {
	sched, err := s.newScheduler()
	if err != nil {
		return err
	}
	r, err := robot.New(ctx, s.cfg, sched, clock.New(), s.logger)
	if err != nil {
		return multierr.Combine(err, sched.Stop())
	}
	defer func() {
		err = multierr.Combine(err, sched.Stop(), r.Close(context.Background()))
	}()
	return fn(r, sched)
}

// ValidateAction is the corresponding action for 'validate'.
func ValidateAction(c *cli.Context) (err error) {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close())
	}()

	infof(c.App.Writer, "%s is valid: %d motors, %d diagnostics",
		c.String(configFlag), len(s.cfg.Motors), len(s.cfg.Diagnostics))
	for _, dc := range s.cfg.Diagnostics {
		if mc, ok := s.cfg.FindMotor(dc.Motor); ok && mc.Follow != "" {
			warningf(c.App.Writer, "system %q checks follower %q; run it without the follower sweep",
				dc.System, dc.Motor)
		}
	}
	return nil
}

// SchemaAction is the corresponding action for 'schema'.
func SchemaAction(c *cli.Context) error {
	raw, err := json.MarshalIndent(config.Schema(), "", "  ")
	if err != nil {
		return err
	}
	printf(c.App.Writer, "%s", raw)
	return nil
}

// StatusAction is the corresponding action for 'status'.
func StatusAction(c *cli.Context) (err error) {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close())
	}()

	return s.withRobot(c.Context, func(r *robot.Robot, _ scheduler.Scheduler) error {
		// bring followers in line before reading them
		if err := r.Synchronizer().Tick(c.Context); err != nil {
			warningf(c.App.Writer, "follower sweep: %v", err)
		}
		printf(c.App.Writer, "%s", statusTable(r.Status(c.Context)))
		return nil
	})
}

func statusTable(statuses []robot.MotorStatus) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Motor", "Model", "Leader", "Mode", "Command", "Output", "Position", "Velocity", "Current", "Error"})
	for _, status := range statuses {
		errStr := ""
		if status.Err != nil {
			errStr = status.Err.Error()
		}
		t.AppendRow(table.Row{
			status.Name,
			status.Model,
			status.Leader,
			status.Mode,
			fmt.Sprintf("%.3f", status.Command),
			fmt.Sprintf("%.3f", status.Output),
			fmt.Sprintf("%.3f", status.Position),
			fmt.Sprintf("%.3f", status.Velocity),
			fmt.Sprintf("%.1f", status.Current),
			errStr,
		})
	}
	return t.Render()
}

// DiagnoseAction is the corresponding action for 'diagnose'.
func DiagnoseAction(c *cli.Context) (err error) {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close())
	}()

	// the follower sweep stays off so each check sees only its own command
	return s.withRobot(c.Context, func(r *robot.Robot, _ scheduler.Scheduler) error {
		systems := r.Tester().Systems()
		if requested := c.StringSlice(systemFlag); len(requested) > 0 {
			if unknown, _ := lo.Difference(requested, systems); len(unknown) > 0 {
				return errors.Errorf("no diagnostics configured for %v", unknown)
			}
			systems = requested
		}
		if len(systems) == 0 {
			warningf(c.App.Writer, "no diagnostics configured")
			return nil
		}

		var reports []tester.Report
		for _, system := range systems {
			if _, err := r.Tester().Run(c.Context, system); err != nil {
				return err
			}
			report, err := r.Tester().LastReport(system)
			if err != nil {
				return err
			}
			reports = append(reports, report)
		}
		printf(c.App.Writer, "%s", reportTable(reports))

		failed := lo.Filter(reports, func(report tester.Report, _ int) bool { return report.State != tester.Passed })
		if len(failed) > 0 {
			return cli.Exit(fmt.Sprintf("%d of %d systems failed", len(failed), len(reports)), 1)
		}
		return nil
	})
}

func reportTable(reports []tester.Report) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"System", "Test", "State", "Elapsed", "Error"})
	for _, report := range reports {
		t.AppendRow(table.Row{report.System, "", colorState(report.State), "", ""})
		for _, result := range report.Results {
			errStr := ""
			if result.Err != nil {
				errStr = result.Err.Error()
			}
			t.AppendRow(table.Row{"", result.Name, colorState(result.State), result.Elapsed.Round(time.Millisecond), errStr})
		}
	}
	return t.Render()
}

// RunAction is the corresponding action for 'run'.
func RunAction(c *cli.Context) (err error) {
	s, err := newSession(c)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Combine(err, s.Close())
	}()

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if d := c.Duration(durationFlag); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	return s.withRobot(ctx, func(r *robot.Robot, sched scheduler.Scheduler) error {
		sched.Start()
		infof(c.App.Writer, "running %d motors; interrupt to stop", len(r.MotorNames()))
		<-ctx.Done()
		infof(c.App.Writer, "stopping")
		return nil
	})
}
