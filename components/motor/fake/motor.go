// Package fake implements a loopback motor backend with no physics.
package fake

import (
	"context"
	"math"
	"sync"

	"go.uber.org/atomic"

	"github.com/team3128/motorhal/components/motor"
	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/utils"
)

// Model is the registered model name of the fake backend.
const Model = "fake"

const defaultMaxRPM = 100

// Config describes the configuration of a fake backend.
type Config struct {
	MaxRPM       float64 `json:"max_rpm,omitempty"`
	StallCurrent float64 `json:"stall_current,omitempty"`
}

func init() {
	motor.RegisterBackend(Model, motor.BackendRegistration{
		Constructor: func(ctx context.Context, name string, conf interface{}, logger logging.Logger) (motor.Backend, error) {
			cfg, err := utils.AssertType[*Config](conf)
			if err != nil {
				return nil, err
			}
			return NewBackend(name, cfg, logger), nil
		},
		AttributeMapConverter: func(attributes utils.AttributeMap) (interface{}, error) {
			return utils.TransformAttributeMap[*Config](attributes)
		},
	})
}

var _ motor.Backend = &Backend{}

// A Backend remembers what it was told and reports it back. A position command moves the raw
// position straight to the target and a velocity command reports rpm / max_rpm as applied output.
type Backend struct {
	name   string
	logger logging.Logger
	maxRPM float64

	mu           sync.Mutex
	inverted     bool
	output       float64
	rpm          float64
	position     float64
	feedForward  float64
	neutral      motor.NeutralMode
	compVolts    float64
	currentLimit int
	stallCurrent float64
	statusFrames bool

	writes atomic.Int64
}

// NewBackend returns a fake backend. A nil config or a zero max_rpm falls back to defaults.
func NewBackend(name string, cfg *Config, logger logging.Logger) *Backend {
	if cfg == nil {
		cfg = &Config{}
	}
	b := &Backend{
		name:         name,
		logger:       logger.Sublogger("fake"),
		maxRPM:       cfg.MaxRPM,
		stallCurrent: cfg.StallCurrent,
	}
	if b.maxRPM == 0 {
		b.logger.Infof("max_rpm not provided to fake motor %q, defaulting to %v", name, defaultMaxRPM)
		b.maxRPM = defaultMaxRPM
	}
	return b
}

// Writes returns the number of commands that reached this backend.
func (b *Backend) Writes() int64 {
	return b.writes.Load()
}

// SetStallCurrent changes the current StallCurrent reports.
func (b *Backend) SetStallCurrent(amps float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stallCurrent = amps
}

// Inverted reports the last inversion setting.
func (b *Backend) Inverted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inverted
}

// NeutralMode reports the last neutral mode setting.
func (b *Backend) NeutralMode() motor.NeutralMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.neutral
}

// FeedForward reports the feed-forward of the last closed-loop command.
func (b *Backend) FeedForward() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.feedForward
}

// VoltageCompensation reports the last voltage compensation setting, zero when disabled.
func (b *Backend) VoltageCompensation() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compVolts
}

// CurrentLimit reports the last current limit.
func (b *Backend) CurrentLimit() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLimit
}

// StatusFramesSet reports whether SetDefaultStatusFrames was called.
func (b *Backend) StatusFramesSet() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.statusFrames
}

func (b *Backend) SetInverted(ctx context.Context, inverted bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inverted = inverted
	return nil
}

func (b *Backend) SetPercentOutput(ctx context.Context, speed float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes.Inc()
	b.logger.Debugf("motor %q percent output %f", b.name, speed)
	b.output = utils.Clamp(speed, -1, 1)
	b.rpm = b.output * b.maxRPM
	b.feedForward = 0
	return nil
}

func (b *Backend) SetVelocity(ctx context.Context, rpm, feedForward float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes.Inc()
	b.logger.Debugf("motor %q velocity %f rpm", b.name, rpm)
	b.rpm = rpm
	b.output = utils.Clamp(rpm/b.maxRPM, -1, 1)
	b.feedForward = feedForward
	return nil
}

func (b *Backend) SetPosition(ctx context.Context, rotations, feedForward float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes.Inc()
	b.logger.Debugf("motor %q position %f rotations", b.name, rotations)
	b.position = rotations
	b.output = 0
	b.rpm = 0
	b.feedForward = feedForward
	return nil
}

func (b *Backend) ResetRawPosition(ctx context.Context, rotations float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.position = rotations
	return nil
}

func (b *Backend) RawPosition(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.position, nil
}

func (b *Backend) RawVelocity(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rpm, nil
}

func (b *Backend) SetBrakeMode(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.neutral = motor.Brake
	return nil
}

func (b *Backend) SetCoastMode(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.neutral = motor.Coast
	return nil
}

func (b *Backend) EnableVoltageCompensation(ctx context.Context, volts float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.compVolts = volts
	return nil
}

func (b *Backend) SetCurrentLimit(ctx context.Context, amps int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.currentLimit = amps
	return nil
}

func (b *Backend) SetDefaultStatusFrames(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.statusFrames = true
	return nil
}

func (b *Backend) AppliedOutput(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.output, nil
}

// StallCurrent reports the configured stall current scaled by how hard the motor is driven.
func (b *Backend) StallCurrent(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stallCurrent * math.Abs(b.output), nil
}

// Native returns the backend itself; there is no vendor handle.
func (b *Backend) Native() interface{} {
	return b
}
