// Package tester runs named suites of diagnostic unit tests, one suite at a time, and reports
// each system's result.
//
// A suite passes when all of its unit tests pass in order. A unit test fails when its action
// returns an error, its timeout elapses, it is interrupted, or its pass condition is false once
// the action completes. The first failing unit test ends the suite.
package tester

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/operation"
	"github.com/team3128/motorhal/utils"
)

// State is the outcome of a suite or unit test.
type State int

const (
	// Failed is also the state of a system that has never run.
	Failed State = iota
	Running
	Passed
)

func (s State) String() string {
	switch s {
	case Failed:
		return "FAILED"
	case Running:
		return "RUNNING"
	case Passed:
		return "PASSED"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrUnknownSystem is returned for a system with no registered unit tests.
	ErrUnknownSystem = errors.New("no tests registered for system")
	// ErrPassConditionFailed is recorded when an action completes but its pass condition is false.
	ErrPassConditionFailed = errors.New("pass condition not met")
	// ErrNoTests is logged when a suite is run with no unit tests.
	ErrNoTests = errors.New("suite has no unit tests")
)

// An Action is the work a unit test performs. It should return promptly once ctx is done.
type Action interface {
	Run(ctx context.Context) error
}

// ActionFunc adapts a function to an Action.
type ActionFunc func(ctx context.Context) error

// Run calls f(ctx).
func (f ActionFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// A UnitTest is one step of a suite. A nil PassCondition always passes and a zero Timeout
// never expires.
type UnitTest struct {
	Name          string
	Action        Action
	PassCondition func() bool
	Timeout       time.Duration
}

// A Dashboard receives every change of a system's state.
type Dashboard interface {
	Publish(system string, state State)
}

// DashboardFunc adapts a function to a Dashboard.
type DashboardFunc func(system string, state State)

// Publish calls f(system, state).
func (f DashboardFunc) Publish(system string, state State) {
	f(system, state)
}

// Result is the outcome of one unit test in a run.
type Result struct {
	Name    string
	State   State
	Err     error
	Elapsed time.Duration
}

// Report describes the latest run of a system.
type Report struct {
	System  string
	RunID   uuid.UUID
	State   State
	Started time.Time
	Results []Result
}

type suite struct {
	name   string
	tests  []UnitTest
	state  State
	report Report
}

// An Option configures a Tester.
type Option func(*Tester)

// WithDashboard publishes state changes to d.
func WithDashboard(d Dashboard) Option {
	return func(t *Tester) {
		t.dashboard = d
	}
}

// Tester holds diagnostic suites keyed by system name.
type Tester struct {
	clk       clock.Clock
	logger    logging.Logger
	dashboard Dashboard

	opMgr   *operation.SingleOperationManager
	workers utils.StoppableWorkers

	mu     sync.Mutex
	order  []string
	suites map[string]*suite
}

// New returns an empty Tester.
func New(clk clock.Clock, logger logging.Logger, opts ...Option) *Tester {
	t := &Tester{
		clk:     clk,
		logger:  logger.Sublogger("tester"),
		opMgr:   &operation.SingleOperationManager{Clock: clk},
		workers: utils.NewStoppableWorkers(),
		suites:  map[string]*suite{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tester) publish(system string, state State) {
	if t.dashboard != nil {
		t.dashboard.Publish(system, state)
	}
}

// AddTest appends a unit test to system's suite, creating the suite on first use.
func (t *Tester) AddTest(system string, test UnitTest) error {
	if system == "" {
		return errors.New("system name is required")
	}
	if test.Name == "" {
		return errors.Errorf("unit test for system %q needs a name", system)
	}
	if test.Timeout < 0 {
		return errors.Errorf("unit test %q has negative timeout %v", test.Name, test.Timeout)
	}

	t.mu.Lock()
	s, ok := t.suites[system]
	if !ok {
		s = &suite{name: system, state: Failed}
		t.suites[system] = s
		t.order = append(t.order, system)
	}
	s.tests = append(s.tests, test)
	t.mu.Unlock()

	if !ok {
		t.publish(system, Failed)
	}
	return nil
}

// Systems returns every system with a suite, in the order they were added.
func (t *Tester) Systems() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.order...)
}

// State returns the state of system's most recent run.
func (t *Tester) State(system string) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.suites[system]
	if !ok {
		return Failed, errors.Wrapf(ErrUnknownSystem, "%q", system)
	}
	return s.state, nil
}

// States returns the state of every system.
func (t *Tester) States() map[string]State {
	t.mu.Lock()
	defer t.mu.Unlock()
	states := make(map[string]State, len(t.suites))
	for name, s := range t.suites {
		states[name] = s.state
	}
	return states
}

// LastReport returns the report of system's most recent run.
func (t *Tester) LastReport(system string) (Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.suites[system]
	if !ok {
		return Report{}, errors.Wrapf(ErrUnknownSystem, "%q", system)
	}
	report := s.report
	report.Results = append([]Result(nil), s.report.Results...)
	return report, nil
}

// begin marks system as running under runID and returns a snapshot of its tests.
func (t *Tester) begin(system string, runID uuid.UUID) ([]UnitTest, error) {
	t.mu.Lock()
	s, ok := t.suites[system]
	if !ok {
		t.mu.Unlock()
		return nil, errors.Wrapf(ErrUnknownSystem, "%q", system)
	}
	s.state = Running
	s.report = Report{System: system, RunID: runID, State: Running, Started: t.clk.Now()}
	tests := append([]UnitTest(nil), s.tests...)
	t.mu.Unlock()

	t.publish(system, Running)
	return tests, nil
}

// record stores a unit test result unless a newer run of the same system has started.
func (t *Tester) record(system string, runID uuid.UUID, result Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.suites[system]; s.report.RunID == runID {
		s.report.Results = append(s.report.Results, result)
	}
}

func (t *Tester) finish(system string, runID uuid.UUID, state State) {
	t.mu.Lock()
	s := t.suites[system]
	current := s.report.RunID == runID
	if current {
		s.state = state
		s.report.State = state
	}
	t.mu.Unlock()

	if current {
		t.publish(system, state)
	}
}

// Run executes system's suite and returns its final state. Starting a run interrupts any run
// already in progress, which then ends Failed.
func (t *Tester) Run(ctx context.Context, system string) (State, error) {
	ctx, done := t.opMgr.NewNamed(ctx, system)
	defer done()
	op, _ := operation.Get(ctx)

	tests, err := t.begin(system, op.ID)
	if err != nil {
		return Failed, err
	}
	logger := t.logger.Sublogger(system)
	logger.Infow("suite running", "run", op.ID.String(), "tests", len(tests))

	state := Passed
	if len(tests) == 0 {
		logger.Warnw("unit test failed", "run", op.ID.String(), "error", ErrNoTests)
		state = Failed
	}
	for _, ut := range tests {
		result := t.runUnit(ctx, logger, ut)
		t.record(system, op.ID, result)
		if result.State != Passed {
			state = Failed
			break
		}
	}

	t.finish(system, op.ID, state)
	logger.Infow("suite finished", "run", op.ID.String(), "state", state.String())
	return state, nil
}

func (t *Tester) runUnit(ctx context.Context, logger logging.Logger, ut UnitTest) Result {
	logger.Infow("unit test running", "test", ut.Name)
	start := t.clk.Now()

	unitCtx, cancel := ctx, context.CancelFunc(func() {})
	if ut.Timeout > 0 {
		unitCtx, cancel = t.clk.WithTimeout(ctx, ut.Timeout)
	}
	defer cancel()

	err := runAction(unitCtx, ut.Action)
	switch {
	case ctx.Err() != nil:
		err = errors.Wrap(ctx.Err(), "interrupted")
	case unitCtx.Err() != nil:
		err = errors.Errorf("timed out after %v", ut.Timeout)
	case err != nil:
	case ut.PassCondition != nil && !ut.PassCondition():
		err = ErrPassConditionFailed
	}

	result := Result{Name: ut.Name, State: Passed, Err: err, Elapsed: t.clk.Since(start)}
	if err != nil {
		result.State = Failed
		logger.Warnw("unit test failed", "test", ut.Name, "error", err)
	} else {
		logger.Debugw("unit test passed", "test", ut.Name, "elapsed", result.Elapsed)
	}
	return result
}

// runAction runs action until it returns or ctx is done. An action that ignores ctx is left to
// finish in the background.
func runAction(ctx context.Context, action Action) error {
	if action == nil {
		return ctx.Err()
	}
	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				errCh <- errors.Errorf("action panicked: %v", r)
			}
		}()
		errCh <- action.Run(ctx)
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunTest starts system's suite in the background, as a dashboard button would.
func (t *Tester) RunTest(system string) error {
	if _, err := t.State(system); err != nil {
		return err
	}
	t.workers.AddWorkers(func(ctx context.Context) {
		if _, err := t.Run(ctx, system); err != nil {
			t.logger.Errorw("background run failed", "system", system, "error", err)
		}
	})
	return nil
}

// Running reports whether a suite is in progress.
func (t *Tester) Running() bool {
	return t.opMgr.OpRunning()
}

// Close interrupts any running suite and waits for background runs to return.
func (t *Tester) Close() {
	t.opMgr.CancelRunning(context.Background())
	t.workers.Stop()
}
