// Package motor defines a single control surface over heterogeneous motor controllers.
//
// A Motor wraps a vendor Backend and adds unit conversion, continuous (wrap-around) positions and
// suppression of repeated commands. Motors can follow a leader; a Synchronizer copies each
// leader's applied output to its followers once per period.
//
// Example:
//
//	syncer := motor.NewSynchronizer(logger)
//	left := motor.NewMotor("left", leftBackend, syncer, logger)
//	right := motor.NewMotor("right", rightBackend, syncer, logger)
//	if err := right.Follow(left); err != nil {
//		return err
//	}
//	if err := syncer.Start(sched); err != nil {
//		return err
//	}
//	// Drive at half power; right mirrors it on the next sweep.
//	left.SetOutput(ctx, 0.5)
package motor

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/utils"
)

// NominalVoltage is the battery voltage that maps to full percent output in SetVoltage.
const NominalVoltage = 12.0

// ControlMode selects how a commanded value is interpreted.
type ControlMode int

const (
	// PercentOutput drives the motor open loop with a duty cycle in [-1, 1].
	PercentOutput ControlMode = iota
	// Velocity runs the controller's closed-loop speed control.
	Velocity
	// Position runs the controller's closed-loop position control.
	Position
)

func (mode ControlMode) String() string {
	switch mode {
	case PercentOutput:
		return "PercentOutput"
	case Velocity:
		return "Velocity"
	case Position:
		return "Position"
	}
	return "Unknown"
}

// NeutralMode is the motor's behavior when no output is applied.
type NeutralMode int

const (
	// Brake shorts the motor leads so it resists motion.
	Brake NeutralMode = iota
	// Coast lets the motor spin freely.
	Coast
)

func (mode NeutralMode) String() string {
	switch mode {
	case Brake:
		return "brake"
	case Coast:
		return "coast"
	}
	return "unknown"
}

// ParseNeutralMode parses "brake" or "coast", case-insensitively.
func ParseNeutralMode(s string) (NeutralMode, error) {
	switch strings.ToLower(s) {
	case "brake":
		return Brake, nil
	case "coast":
		return Coast, nil
	}
	return Brake, errors.Errorf("unknown neutral mode %q, expected brake or coast", s)
}

type command struct {
	value       float64
	mode        ControlMode
	feedForward float64
}

// A Motor is the unified control surface for one physical actuator. It is safe for use from
// multiple goroutines; commands to a single motor are serialized.
type Motor struct {
	name    string
	backend Backend
	syncer  *Synchronizer
	logger  logging.Logger

	mu         sync.Mutex
	converter  UnitConverter
	continuous ContinuousRange
	// last is the most recent command that reached the backend. A new motor is considered to be
	// at neutral percent output.
	last command
}

// NewMotor wraps backend. The synchronizer may be nil, in which case Follow is unavailable.
func NewMotor(name string, backend Backend, syncer *Synchronizer, logger logging.Logger) *Motor {
	return &Motor{
		name:      name,
		backend:   backend,
		syncer:    syncer,
		logger:    logger.Sublogger(name),
		converter: NewUnitConverter(),
		last:      command{mode: PercentOutput},
	}
}

// Name returns the motor's name.
func (m *Motor) Name() string {
	return m.name
}

// Backend returns the wrapped backend.
func (m *Motor) Backend() Backend {
	return m.backend
}

// SetVoltage drives the motor at volts, mapped to percent output against NominalVoltage.
func (m *Motor) SetVoltage(ctx context.Context, volts float64) error {
	return m.SetOutput(ctx, volts/NominalVoltage)
}

// SetOutput drives the motor open loop; output is clamped to [-1, 1].
func (m *Motor) SetOutput(ctx context.Context, output float64) error {
	return m.Command(ctx, output, PercentOutput)
}

// Command sets the motor state with no feed-forward.
func (m *Motor) Command(ctx context.Context, value float64, mode ControlMode) error {
	return m.CommandWithFeedForward(ctx, value, mode, 0)
}

// CommandWithFeedForward sets the motor state. value is in caller units for the given mode and
// feedForward is in volts. A command identical to the last one that reached the backend is
// dropped without touching the bus. A command whose write fails is not remembered, so it can be
// issued again. NaN or infinite inputs are rejected with ErrNonFiniteCommand.
func (m *Motor) CommandWithFeedForward(ctx context.Context, value float64, mode ControlMode, feedForward float64) error {
	if !utils.IsFinite(value) || !utils.IsFinite(feedForward) {
		return errors.Wrapf(ErrNonFiniteCommand, "motor %q %s command (value %v, feed-forward %v)",
			m.name, mode, value, feedForward)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := command{value: value, mode: mode, feedForward: feedForward}
	if next == m.last {
		return nil
	}

	var err error
	switch mode {
	case PercentOutput:
		err = m.backend.SetPercentOutput(ctx, utils.Clamp(value, -1, 1))
	case Velocity:
		err = m.backend.SetVelocity(ctx, m.converter.ToNativeVelocity(value), feedForward)
	case Position:
		rotations, wrapErr := m.continuous.Wrap(m.converter.ToNativePosition(value))
		if wrapErr != nil {
			m.logger.Errorw("refusing position command", "position", value, "error", wrapErr)
			return errors.Wrapf(wrapErr, "motor %q", m.name)
		}
		err = m.backend.SetPosition(ctx, rotations, feedForward)
	default:
		return NewUnknownControlModeError(mode)
	}
	if err != nil {
		return errors.Wrapf(err, "motor %q %s command", m.name, mode)
	}

	m.last = next
	return nil
}

// LastCommand returns the last command that reached the backend.
func (m *Motor) LastCommand() (value float64, mode ControlMode, feedForward float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last.value, m.last.mode, m.last.feedForward
}

// EnableContinuousInput makes the motor treat [min, max) as circular so position targets take the
// shortest path. The bounds may be given in either order; the last call wins.
func (m *Motor) EnableContinuousInput(min, max float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.continuous.Enable(min, max)
	if m.continuous.ZeroWidth() {
		m.logger.Warnw("continuous input range has zero width; position commands and reads will fail",
			"min", min, "max", max)
	}
}

// DisableContinuousInput returns the motor to an unbounded position range.
func (m *Motor) DisableContinuousInput() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.continuous.Disable()
}

// ContinuousRange returns the current continuous range configuration.
func (m *Motor) ContinuousRange() ContinuousRange {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.continuous
}

// SetUnitConversionFactor changes the units positions are measured in, e.g. 360 for degrees.
// It applies to later reads and writes only.
func (m *Motor) SetUnitConversionFactor(factor float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.converter.SetUnit(factor)
}

// SetTimeConversionFactor changes the time base velocities are measured in, e.g. 60 for
// per-second units. It applies to later reads and writes only.
func (m *Motor) SetTimeConversionFactor(factor float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.converter.SetTime(factor)
}

// UnitConverter returns a copy of the current conversion factors.
func (m *Motor) UnitConverter() UnitConverter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.converter
}

func (m *Motor) policy() (UnitConverter, ContinuousRange) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.converter, m.continuous
}

// ResetPosition redefines the current position, in caller units.
func (m *Motor) ResetPosition(ctx context.Context, position float64) error {
	converter, _ := m.policy()
	if err := m.backend.ResetRawPosition(ctx, converter.ToNativePosition(position)); err != nil {
		return errors.Wrapf(err, "motor %q reset position", m.name)
	}
	return nil
}

// Position returns the current position in caller units, wrapped into the continuous range when
// one is enabled.
func (m *Motor) Position(ctx context.Context) (float64, error) {
	converter, continuous := m.policy()
	raw, err := m.backend.RawPosition(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "motor %q position", m.name)
	}
	position, err := continuous.Wrap(converter.FromNativePosition(raw))
	if err != nil {
		m.logger.Errorw("cannot report position", "raw", raw, "error", err)
		return 0, errors.Wrapf(err, "motor %q", m.name)
	}
	return position, nil
}

// Velocity returns the current velocity in caller units.
func (m *Motor) Velocity(ctx context.Context) (float64, error) {
	converter, _ := m.policy()
	raw, err := m.backend.RawVelocity(ctx)
	if err != nil {
		return 0, errors.Wrapf(err, "motor %q velocity", m.name)
	}
	return converter.FromNativeVelocity(raw), nil
}

// AppliedOutput returns the duty cycle the controller is applying, in [-1, 1].
func (m *Motor) AppliedOutput(ctx context.Context) (float64, error) {
	return m.backend.AppliedOutput(ctx)
}

// StallCurrent returns the current drawn by the motor.
func (m *Motor) StallCurrent(ctx context.Context) (float64, error) {
	return m.backend.StallCurrent(ctx)
}

// SetNeutralMode sets the motor's behavior when no output is applied.
func (m *Motor) SetNeutralMode(ctx context.Context, mode NeutralMode) error {
	switch mode {
	case Brake:
		return m.backend.SetBrakeMode(ctx)
	case Coast:
		return m.backend.SetCoastMode(ctx)
	}
	return NewUnknownNeutralModeError(mode)
}

// SetInverted flips the motor's positive direction.
func (m *Motor) SetInverted(ctx context.Context, inverted bool) error {
	return m.backend.SetInverted(ctx, inverted)
}

// EnableVoltageCompensation keeps output consistent while the battery is above volts.
func (m *Motor) EnableVoltageCompensation(ctx context.Context, volts float64) error {
	return m.backend.EnableVoltageCompensation(ctx, volts)
}

// SetCurrentLimit limits the current the controller supplies, in amps.
func (m *Motor) SetCurrentLimit(ctx context.Context, amps int) error {
	return m.backend.SetCurrentLimit(ctx, amps)
}

// SetDefaultStatusFrames applies the team's default status frame rates.
func (m *Motor) SetDefaultStatusFrames(ctx context.Context) error {
	return m.backend.SetDefaultStatusFrames(ctx)
}

// Native returns the vendor controller handle.
func (m *Motor) Native() interface{} {
	return m.backend.Native()
}

// Follow makes this motor mirror leader's applied output on every synchronizer sweep.
func (m *Motor) Follow(leader *Motor) error {
	if m.syncer == nil {
		return errors.Wrapf(ErrNoSynchronizer, "motor %q", m.name)
	}
	return m.syncer.Register(leader, m)
}
