// Package dimensionengineering contains a motor backend for Dimension Engineering Sabertooth
// controllers driven in packetized serial mode.
package dimensionengineering

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"github.com/team3128/motorhal/components/motor"
	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/utils"
)

// https://www.dimensionengineering.com/datasheets/Sabertooth2x60.pdf

// Model is the registered model name of the Sabertooth backend.
const Model = "de-sabertooth"

// controllers is global to all instances, mapped by serial device.
var (
	globalMu       sync.Mutex
	controllers    = map[string]*controller{}
	validBaudRates = []int{115200, 38400, 19200, 9600, 2400}

	openPort = func(options serial.OpenOptions) (io.ReadWriteCloser, error) {
		return serial.Open(options)
	}
)

// controller is common across all Sabertooth backends sharing a serial device.
type controller struct {
	mu           sync.Mutex
	port         io.ReadWriteCloser
	serialDevice string
	logger       logging.Logger
	activeAxes   map[int]bool
	address      int // 128-135
}

// Config describes one channel of a Sabertooth controller.
type Config struct {
	// path to /dev/ttyXXXX file
	SerialPath string `json:"serial_path"`
	BaudRate   int    `json:"serial_baud_rate,omitempty"`

	// Valid values are 128-135
	SerialAddress int `json:"serial_address"`

	// Valid values are 1/2
	MotorChannel int `json:"motor_channel"`

	// Flip the direction of the signal sent to the controller, for motors wired backwards.
	DirectionFlip bool `json:"dir_flip,omitempty"`
	RampValue     int  `json:"controller_ramp_value,omitempty"`

	// The freewheel speed of the motor, used to estimate velocity from output.
	MaxRPM float64 `json:"max_rpm,omitempty"`

	// Outputs with a smaller magnitude stop the motor, to prevent stalls.
	MinPowerPct float64 `json:"min_power_pct,omitempty"`
	MaxPowerPct float64 `json:"max_power_pct,omitempty"`
}

func (cfg *Config) populateDefaults() {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 9600
	}
	if cfg.MaxPowerPct == 0.0 {
		cfg.MaxPowerPct = 1.0
	}
}

// Validate checks the config after defaults are applied.
func (cfg *Config) Validate() error {
	var errs error
	if cfg.SerialPath == "" {
		errs = multierr.Append(errs, errors.New("serial_path is required"))
	}
	if cfg.MotorChannel != 1 && cfg.MotorChannel != 2 {
		errs = multierr.Append(errs,
			errors.Errorf("invalid channel %v, acceptable values are 1 and 2", cfg.MotorChannel))
	}
	if cfg.SerialAddress < 128 || cfg.SerialAddress > 135 {
		errs = multierr.Append(errs, errors.New("invalid address, acceptable values are 128 thru 135"))
	}
	if !lo.Contains(validBaudRates, cfg.BaudRate) {
		errs = multierr.Append(errs,
			errors.Errorf("invalid baud_rate, acceptable values are %v", validBaudRates))
	}
	if cfg.MinPowerPct < 0.0 || cfg.MinPowerPct > cfg.MaxPowerPct {
		errs = multierr.Append(errs, errors.New("invalid min_power_pct, acceptable values are 0 to max_power_pct"))
	}
	if cfg.MaxPowerPct > 1.0 {
		errs = multierr.Append(errs, errors.New("invalid max_power_pct, acceptable values are min_power_pct to 1.0"))
	}
	if cfg.RampValue < 0 || cfg.RampValue > 80 {
		errs = multierr.Append(errs, errors.New("invalid controller_ramp_value, acceptable values are 0 to 80"))
	}
	return errors.Wrap(errs, "error validating sabertooth controller config")
}

func init() {
	motor.RegisterBackend(Model, motor.BackendRegistration{
		Constructor: func(ctx context.Context, name string, conf interface{}, logger logging.Logger) (motor.Backend, error) {
			cfg, err := utils.AssertType[*Config](conf)
			if err != nil {
				return nil, err
			}
			return NewBackend(ctx, name, cfg, logger)
		},
		AttributeMapConverter: func(attributes utils.AttributeMap) (interface{}, error) {
			cfg, err := utils.TransformAttributeMap[*Config](attributes)
			if err != nil {
				return nil, err
			}
			cfg.populateDefaults()
			if err := cfg.Validate(); err != nil {
				return nil, err
			}
			return cfg, nil
		},
	})
}

func newController(cfg *Config, logger logging.Logger) (*controller, error) {
	port, err := openPort(serial.OpenOptions{
		PortName:          cfg.SerialPath,
		BaudRate:          uint(cfg.BaudRate),
		DataBits:          8,
		StopBits:          1,
		MinimumReadSize:   1,
		RTSCTSFlowControl: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open sabertooth serial port %q", cfg.SerialPath)
	}
	return &controller{
		port:         port,
		serialDevice: cfg.SerialPath,
		logger:       logger,
		activeAxes:   map[int]bool{1: false, 2: false},
		address:      cfg.SerialAddress,
	}, nil
}

// Must be run inside a lock.
func (c *controller) sendCmd(cmd *command) error {
	_, err := c.port.Write(cmd.ToPacket())
	return err
}

var _ motor.Backend = &Backend{}

// A Backend drives one channel of a Sabertooth. The controller has no feedback, so reads report
// what was last commanded.
type Backend struct {
	name   string
	logger logging.Logger
	c      *controller

	channel     int
	dirFlip     bool
	minPowerPct float64
	maxPowerPct float64
	maxRPM      float64

	// guarded by c.mu
	inverted        bool
	currentPowerPct float64
	closed          bool
}

// NewBackend claims a channel on the controller at cfg.SerialPath, opening the port if this is
// the first channel used on it, and stops the motor.
func NewBackend(ctx context.Context, name string, cfg *Config, logger logging.Logger) (*Backend, error) {
	globalMu.Lock()
	defer globalMu.Unlock()

	cfg.populateDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctrl, ok := controllers[cfg.SerialPath]
	if !ok {
		newCtrl, err := newController(cfg, logger.Sublogger("sabertooth"))
		if err != nil {
			return nil, err
		}
		controllers[cfg.SerialPath] = newCtrl
		ctrl = newCtrl
	}

	ctrl.mu.Lock()
	defer ctrl.mu.Unlock()

	if ctrl.address != cfg.SerialAddress {
		return nil, errors.Errorf("serial device %q already drives address %d, not %d",
			cfg.SerialPath, ctrl.address, cfg.SerialAddress)
	}
	if ctrl.activeAxes[cfg.MotorChannel] {
		return nil, errors.Errorf("axis %d is already in use", cfg.MotorChannel)
	}

	b := &Backend{
		name:        name,
		logger:      logger.Sublogger("sabertooth"),
		c:           ctrl,
		channel:     cfg.MotorChannel,
		dirFlip:     cfg.DirectionFlip,
		minPowerPct: cfg.MinPowerPct,
		maxPowerPct: cfg.MaxPowerPct,
		maxRPM:      cfg.MaxRPM,
	}

	stopCmd, err := newCommand(ctrl.address, singleForward, b.channel, 0x00)
	if err != nil {
		return nil, err
	}
	if err := ctrl.sendCmd(stopCmd); err != nil {
		return nil, errors.Wrapf(err, "cannot stop sabertooth channel %d", b.channel)
	}
	if cfg.RampValue > 0 {
		rampCmd, err := newCommand(ctrl.address, setRamping, b.channel, byte(cfg.RampValue))
		if err != nil {
			return nil, err
		}
		if err := ctrl.sendCmd(rampCmd); err != nil {
			return nil, errors.Wrapf(err, "cannot set sabertooth ramping")
		}
	}
	ctrl.activeAxes[b.channel] = true
	return b, nil
}

func (b *Backend) String() string {
	return fmt.Sprintf("channel %d on sabertooth %d", b.channel, b.c.address)
}

// Close stops the motor and releases the channel. The serial port closes with its last channel.
func (b *Backend) Close(ctx context.Context) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	b.c.mu.Lock()
	defer b.c.mu.Unlock()

	if b.closed {
		return nil
	}
	err := b.setPower(0)
	b.closed = true
	b.c.activeAxes[b.channel] = false
	if lo.Contains(lo.Values(b.c.activeAxes), true) {
		return err
	}
	if closeErr := b.c.port.Close(); closeErr != nil {
		err = multierr.Combine(err, errors.Wrap(closeErr, "error closing serial connection"))
	}
	delete(controllers, b.c.serialDevice)
	b.c.logger.Debugw("closed serial port", "path", b.c.serialDevice)
	return err
}

// Must be run inside a lock.
func (b *Backend) setPower(powerPct float64) error {
	if b.closed {
		return errors.Errorf("%s is closed", b)
	}
	if !utils.IsFinite(powerPct) {
		return errors.Errorf("%s cannot apply non-finite power %v", b, powerPct)
	}
	if math.Abs(powerPct) < b.minPowerPct {
		powerPct = 0
	}
	powerPct = utils.Clamp(powerPct, -b.maxPowerPct, b.maxPowerPct)

	rawSpeed := math.Abs(powerPct * maxSpeed)
	switch {
	case rawSpeed < 0.1:
		b.logger.Debugf("motor %q speed is nearly 0", b.name)
	case b.maxPowerPct == 1 && rawSpeed > maxSpeed-0.1:
		b.logger.Debugf("motor %q speed is nearly the max", b.name)
	}

	code := singleForward
	if powerPct != 0 && (powerPct < 0) != (b.dirFlip != b.inverted) {
		code = singleBackwards
	}
	cmd, err := newCommand(b.c.address, code, b.channel, byte(int(rawSpeed)))
	if err != nil {
		return err
	}
	if err := b.c.sendCmd(cmd); err != nil {
		return errors.Wrapf(err, "cannot write to %s", b)
	}
	b.currentPowerPct = powerPct
	return nil
}

func (b *Backend) SetInverted(ctx context.Context, inverted bool) error {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	b.inverted = inverted
	return nil
}

func (b *Backend) SetPercentOutput(ctx context.Context, speed float64) error {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.setPower(speed)
}

// SetVelocity drives the motor open loop at rpm / max_rpm. Feed-forward volts are added as a
// fraction of nominal battery voltage.
func (b *Backend) SetVelocity(ctx context.Context, rpm, feedForward float64) error {
	if b.maxRPM == 0 {
		return motor.NewUnsupportedError("velocity control without max_rpm", b.String())
	}
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.setPower(rpm/b.maxRPM + feedForward/motor.NominalVoltage)
}

func (b *Backend) SetPosition(ctx context.Context, rotations, feedForward float64) error {
	return motor.NewUnsupportedError("position control", b.String())
}

func (b *Backend) ResetRawPosition(ctx context.Context, rotations float64) error {
	return motor.NewUnsupportedError("resetting position", b.String())
}

// RawPosition is always zero; the controller has no encoder input in packetized mode.
func (b *Backend) RawPosition(ctx context.Context) (float64, error) {
	return 0, nil
}

// RawVelocity estimates speed from the commanded output and max_rpm.
func (b *Backend) RawVelocity(ctx context.Context) (float64, error) {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.currentPowerPct * b.maxRPM, nil
}

// SetBrakeMode is a no-op; the controller brakes regeneratively at zero output.
func (b *Backend) SetBrakeMode(ctx context.Context) error {
	return nil
}

func (b *Backend) SetCoastMode(ctx context.Context) error {
	return motor.NewUnsupportedError("coast mode", b.String())
}

func (b *Backend) EnableVoltageCompensation(ctx context.Context, volts float64) error {
	return motor.NewUnsupportedError("voltage compensation", b.String())
}

func (b *Backend) SetCurrentLimit(ctx context.Context, amps int) error {
	return motor.NewUnsupportedError("current limiting", b.String())
}

// SetDefaultStatusFrames is a no-op; the controller sends no status frames.
func (b *Backend) SetDefaultStatusFrames(ctx context.Context) error {
	return nil
}

// AppliedOutput returns the last output sent to the controller.
func (b *Backend) AppliedOutput(ctx context.Context) (float64, error) {
	b.c.mu.Lock()
	defer b.c.mu.Unlock()
	return b.currentPowerPct, nil
}

func (b *Backend) StallCurrent(ctx context.Context) (float64, error) {
	return 0, motor.NewUnsupportedError("current sensing", b.String())
}

// Native returns the serial port shared by every channel of the controller.
func (b *Backend) Native() interface{} {
	return b.c.port
}

const maxSpeed = 127

type (
	commandCode int
	opCode      byte
)

const (
	singleForward commandCode = iota
	singleBackwards
	setRamping
)

const (
	opMotor1Forward   opCode = 0x00
	opMotor1Backwards opCode = 0x01
	opMotor2Forward   opCode = 0x04
	opMotor2Backwards opCode = 0x05
	opRamping         opCode = 0x10
)

type command struct {
	Address  byte
	Op       byte
	Data     byte
	Checksum byte
}

func newCommand(controllerAddress int, motorMode commandCode, channel int, data byte) (*command, error) {
	if channel != 1 && channel != 2 {
		return nil, errors.New("invalid motor channel")
	}
	var opcode opCode
	switch motorMode {
	case singleForward:
		opcode = lo.Ternary(channel == 1, opMotor1Forward, opMotor2Forward)
	case singleBackwards:
		opcode = lo.Ternary(channel == 1, opMotor1Backwards, opMotor2Backwards)
	case setRamping:
		opcode = opRamping
	default:
		return nil, errors.Errorf("command %d not implemented", motorMode)
	}
	sum := byte(controllerAddress) + byte(opcode) + data
	return &command{
		Address:  byte(controllerAddress),
		Op:       byte(opcode),
		Data:     data,
		Checksum: sum & 0x7F,
	}, nil
}

func (c *command) ToPacket() []byte {
	return []byte{c.Address, c.Op, c.Data, c.Checksum}
}
