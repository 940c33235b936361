// Package robot assembles the motors, follower synchronizer and diagnostics described by a
// config.
package robot

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/team3128/motorhal/components/motor"
	"github.com/team3128/motorhal/config"
	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/operation"
	"github.com/team3128/motorhal/scheduler"
	"github.com/team3128/motorhal/tester"
	"github.com/team3128/motorhal/utils"
)

// Robot owns the motors built from a config.
type Robot struct {
	cfg    *config.Config
	clk    clock.Clock
	logger logging.Logger

	motors map[string]*motor.Motor
	models map[string]string
	syncer *motor.Synchronizer
	tester *tester.Tester
	waiter *operation.SingleOperationManager
}

// New builds every configured motor, applies its setup, wires follow relationships, starts the
// follower sweep on sched and registers the configured diagnostics. cfg must have been validated.
func New(
	ctx context.Context,
	cfg *config.Config,
	sched scheduler.Scheduler,
	clk clock.Clock,
	logger logging.Logger,
	testerOpts ...tester.Option,
) (_ *Robot, err error) {
	r := &Robot{
		cfg:    cfg,
		clk:    clk,
		logger: logger,
		motors: map[string]*motor.Motor{},
		models: map[string]string{},
		syncer: motor.NewSynchronizer(logger),
		tester: tester.New(clk, logger, testerOpts...),
		waiter: &operation.SingleOperationManager{Clock: clk},
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, r.Close(ctx))
		}
	}()

	for _, mc := range cfg.Motors {
		m, err := r.newMotor(ctx, mc)
		if err != nil {
			return nil, err
		}
		r.motors[mc.Name] = m
		r.models[mc.Name] = mc.Model
	}

	for _, mc := range cfg.Motors {
		if mc.Follow == "" {
			continue
		}
		leader, ok := r.motors[mc.Follow]
		if !ok {
			return nil, errors.Errorf("motor %q follows unknown motor %q", mc.Name, mc.Follow)
		}
		if err := r.motors[mc.Name].Follow(leader); err != nil {
			return nil, err
		}
	}

	period, err := cfg.SyncPeriodDuration()
	if err != nil {
		return nil, err
	}
	if err := r.syncer.StartWithPeriod(sched, period); err != nil {
		return nil, err
	}

	for _, dc := range cfg.Diagnostics {
		if err := r.addDiagnostic(dc); err != nil {
			return nil, err
		}
	}
	logger.Infow("robot ready", "motors", len(r.motors), "followers", len(cfg.Motors)-len(r.unfollowed()),
		"systems", r.tester.Systems())
	return r, nil
}

func (r *Robot) unfollowed() []config.MotorConfig {
	return lo.Filter(r.cfg.Motors, func(mc config.MotorConfig, _ int) bool { return mc.Follow == "" })
}

func (r *Robot) newMotor(ctx context.Context, mc config.MotorConfig) (*motor.Motor, error) {
	backend, err := motor.NewBackend(ctx, mc.Model, mc.Name, mc.Attributes, r.logger)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot build motor %q", mc.Name)
	}
	m := motor.NewMotor(mc.Name, backend, r.syncer, r.logger)
	if err := applySetup(ctx, m, mc); err != nil {
		return nil, multierr.Combine(
			errors.Wrapf(err, "cannot set up motor %q", mc.Name),
			utils.TryClose(ctx, backend))
	}
	return m, nil
}

func applySetup(ctx context.Context, m *motor.Motor, mc config.MotorConfig) error {
	if err := m.SetInverted(ctx, mc.Inverted); err != nil {
		return err
	}
	if err := m.SetNeutralMode(ctx, mc.NeutralModeOrDefault()); err != nil {
		return err
	}
	if mc.UnitConversionFactor != 0 {
		if err := m.SetUnitConversionFactor(mc.UnitConversionFactor); err != nil {
			return err
		}
	}
	if mc.TimeConversionFactor != 0 {
		if err := m.SetTimeConversionFactor(mc.TimeConversionFactor); err != nil {
			return err
		}
	}
	if mc.Continuous != nil {
		m.EnableContinuousInput(mc.Continuous.Min, mc.Continuous.Max)
	}
	if mc.CurrentLimit > 0 {
		if err := m.SetCurrentLimit(ctx, mc.CurrentLimit); err != nil {
			return err
		}
	}
	if mc.VoltageCompensation > 0 {
		if err := m.EnableVoltageCompensation(ctx, mc.VoltageCompensation); err != nil {
			return err
		}
	}
	if mc.DefaultStatusFrames {
		if err := m.SetDefaultStatusFrames(ctx); err != nil {
			return err
		}
	}
	return nil
}

// addDiagnostic registers a check that drives the motor at the configured power, waits for it
// to settle, samples the applied output and passes when the mean sample is within tolerance.
// Waits run as operations on r.waiter, so a new diagnostic interrupts one left running.
func (r *Robot) addDiagnostic(dc config.DiagnosticConfig) error {
	m, ok := r.motors[dc.Motor]
	if !ok {
		return errors.Errorf("diagnostic for system %q uses unknown motor %q", dc.System, dc.Motor)
	}
	settle, err := dc.SettleDuration()
	if err != nil {
		return err
	}
	timeout, err := dc.TimeoutDuration()
	if err != nil {
		return err
	}
	interval, err := dc.SampleIntervalDuration()
	if err != nil {
		return err
	}
	samples := dc.SamplesOrDefault()
	tolerance := dc.ToleranceOrDefault()
	power := dc.Power

	var (
		mu       sync.Mutex
		measured stats.Float64Data
	)
	return r.tester.AddTest(dc.System, tester.UnitTest{
		Name: fmt.Sprintf("%s at %v", dc.Motor, power),
		Action: tester.ActionFunc(func(ctx context.Context) (err error) {
			defer func() {
				// always leave the motor at neutral, even when interrupted
				err = multierr.Combine(err, m.SetOutput(context.Background(), 0))
			}()
			mu.Lock()
			measured = measured[:0]
			mu.Unlock()

			if err := m.SetOutput(ctx, power); err != nil {
				return err
			}
			if !r.waiter.NewTimedWaitOp(ctx, settle) {
				return ctx.Err()
			}
			return r.waiter.WaitForSuccess(ctx, interval, func(ctx context.Context) (bool, error) {
				output, err := m.AppliedOutput(ctx)
				if err != nil {
					return false, err
				}
				mu.Lock()
				defer mu.Unlock()
				measured = append(measured, output)
				return len(measured) >= samples, nil
			})
		}),
		PassCondition: func() bool {
			mu.Lock()
			defer mu.Unlock()
			mean, err := measured.Mean()
			if err != nil {
				r.logger.Warnw("no applied output samples", "system", dc.System, "motor", dc.Motor, "error", err)
				return false
			}
			spread, _ := measured.StandardDeviation()
			if diff := mean - power; diff > tolerance || diff < -tolerance {
				r.logger.Warnw("applied output out of tolerance", "system", dc.System, "motor", dc.Motor,
					"want", power, "got", mean, "stddev", spread, "samples", len(measured), "tolerance", tolerance)
				return false
			}
			r.logger.Debugw("applied output within tolerance", "system", dc.System, "motor", dc.Motor,
				"got", mean, "stddev", spread, "samples", len(measured))
			return true
		},
		Timeout: timeout,
	})
}

// Motor returns the motor with the given name.
func (r *Robot) Motor(name string) (*motor.Motor, bool) {
	m, ok := r.motors[name]
	return m, ok
}

// MotorNames returns every motor name in sorted order.
func (r *Robot) MotorNames() []string {
	names := lo.Keys(r.motors)
	sort.Strings(names)
	return names
}

// Synchronizer returns the follower synchronizer.
func (r *Robot) Synchronizer() *motor.Synchronizer {
	return r.syncer
}

// Tester returns the diagnostic tester.
func (r *Robot) Tester() *tester.Tester {
	return r.tester
}

// Close stops any running diagnostic, puts every motor at neutral and closes backends that
// need it. The scheduler is owned by the caller and must be stopped first.
func (r *Robot) Close(ctx context.Context) error {
	r.tester.Close()
	errs := utils.MapInParallel(ctx, r.MotorNames(), func(ctx context.Context, name string) error {
		m := r.motors[name]
		return multierr.Combine(m.SetOutput(ctx, 0), utils.TryClose(ctx, m.Backend()))
	}, func(name string, err error) {
		r.logger.Errorw("closing motor panicked", "motor", name, "error", err)
	})
	return multierr.Combine(errs...)
}
