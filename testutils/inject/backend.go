// Package inject provides test doubles whose behavior can be swapped per method.
package inject

import (
	"context"

	"github.com/team3128/motorhal/components/motor"
)

// Backend is an injected motor backend. Each Func field, when set, replaces the corresponding
// method; otherwise the call falls through to the embedded Backend.
type Backend struct {
	motor.Backend
	SetInvertedFunc               func(ctx context.Context, inverted bool) error
	SetPercentOutputFunc          func(ctx context.Context, speed float64) error
	SetVelocityFunc               func(ctx context.Context, rpm, feedForward float64) error
	SetPositionFunc               func(ctx context.Context, rotations, feedForward float64) error
	ResetRawPositionFunc          func(ctx context.Context, rotations float64) error
	RawPositionFunc               func(ctx context.Context) (float64, error)
	RawVelocityFunc               func(ctx context.Context) (float64, error)
	SetBrakeModeFunc              func(ctx context.Context) error
	SetCoastModeFunc              func(ctx context.Context) error
	EnableVoltageCompensationFunc func(ctx context.Context, volts float64) error
	SetCurrentLimitFunc           func(ctx context.Context, amps int) error
	SetDefaultStatusFramesFunc    func(ctx context.Context) error
	AppliedOutputFunc             func(ctx context.Context) (float64, error)
	StallCurrentFunc              func(ctx context.Context) (float64, error)
	NativeFunc                    func() interface{}
}

// NewBackend returns a new injected backend wrapping b, which may be nil if every method used
// by the test is injected.
func NewBackend(b motor.Backend) *Backend {
	return &Backend{Backend: b}
}

// SetInverted calls the injected SetInverted or the real version.
func (b *Backend) SetInverted(ctx context.Context, inverted bool) error {
	if b.SetInvertedFunc == nil {
		return b.Backend.SetInverted(ctx, inverted)
	}
	return b.SetInvertedFunc(ctx, inverted)
}

// SetPercentOutput calls the injected SetPercentOutput or the real version.
func (b *Backend) SetPercentOutput(ctx context.Context, speed float64) error {
	if b.SetPercentOutputFunc == nil {
		return b.Backend.SetPercentOutput(ctx, speed)
	}
	return b.SetPercentOutputFunc(ctx, speed)
}

// SetVelocity calls the injected SetVelocity or the real version.
func (b *Backend) SetVelocity(ctx context.Context, rpm, feedForward float64) error {
	if b.SetVelocityFunc == nil {
		return b.Backend.SetVelocity(ctx, rpm, feedForward)
	}
	return b.SetVelocityFunc(ctx, rpm, feedForward)
}

// SetPosition calls the injected SetPosition or the real version.
func (b *Backend) SetPosition(ctx context.Context, rotations, feedForward float64) error {
	if b.SetPositionFunc == nil {
		return b.Backend.SetPosition(ctx, rotations, feedForward)
	}
	return b.SetPositionFunc(ctx, rotations, feedForward)
}

// ResetRawPosition calls the injected ResetRawPosition or the real version.
func (b *Backend) ResetRawPosition(ctx context.Context, rotations float64) error {
	if b.ResetRawPositionFunc == nil {
		return b.Backend.ResetRawPosition(ctx, rotations)
	}
	return b.ResetRawPositionFunc(ctx, rotations)
}

// RawPosition calls the injected RawPosition or the real version.
func (b *Backend) RawPosition(ctx context.Context) (float64, error) {
	if b.RawPositionFunc == nil {
		return b.Backend.RawPosition(ctx)
	}
	return b.RawPositionFunc(ctx)
}

// RawVelocity calls the injected RawVelocity or the real version.
func (b *Backend) RawVelocity(ctx context.Context) (float64, error) {
	if b.RawVelocityFunc == nil {
		return b.Backend.RawVelocity(ctx)
	}
	return b.RawVelocityFunc(ctx)
}

// SetBrakeMode calls the injected SetBrakeMode or the real version.
func (b *Backend) SetBrakeMode(ctx context.Context) error {
	if b.SetBrakeModeFunc == nil {
		return b.Backend.SetBrakeMode(ctx)
	}
	return b.SetBrakeModeFunc(ctx)
}

// SetCoastMode calls the injected SetCoastMode or the real version.
func (b *Backend) SetCoastMode(ctx context.Context) error {
	if b.SetCoastModeFunc == nil {
		return b.Backend.SetCoastMode(ctx)
	}
	return b.SetCoastModeFunc(ctx)
}

// EnableVoltageCompensation calls the injected EnableVoltageCompensation or the real version.
func (b *Backend) EnableVoltageCompensation(ctx context.Context, volts float64) error {
	if b.EnableVoltageCompensationFunc == nil {
		return b.Backend.EnableVoltageCompensation(ctx, volts)
	}
	return b.EnableVoltageCompensationFunc(ctx, volts)
}

// SetCurrentLimit calls the injected SetCurrentLimit or the real version.
func (b *Backend) SetCurrentLimit(ctx context.Context, amps int) error {
	if b.SetCurrentLimitFunc == nil {
		return b.Backend.SetCurrentLimit(ctx, amps)
	}
	return b.SetCurrentLimitFunc(ctx, amps)
}

// SetDefaultStatusFrames calls the injected SetDefaultStatusFrames or the real version.
func (b *Backend) SetDefaultStatusFrames(ctx context.Context) error {
	if b.SetDefaultStatusFramesFunc == nil {
		return b.Backend.SetDefaultStatusFrames(ctx)
	}
	return b.SetDefaultStatusFramesFunc(ctx)
}

// AppliedOutput calls the injected AppliedOutput or the real version.
func (b *Backend) AppliedOutput(ctx context.Context) (float64, error) {
	if b.AppliedOutputFunc == nil {
		return b.Backend.AppliedOutput(ctx)
	}
	return b.AppliedOutputFunc(ctx)
}

// StallCurrent calls the injected StallCurrent or the real version.
func (b *Backend) StallCurrent(ctx context.Context) (float64, error) {
	if b.StallCurrentFunc == nil {
		return b.Backend.StallCurrent(ctx)
	}
	return b.StallCurrentFunc(ctx)
}

// Native calls the injected Native or the real version.
func (b *Backend) Native() interface{} {
	if b.NativeFunc == nil {
		return b.Backend.Native()
	}
	return b.NativeFunc()
}
