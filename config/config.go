// Package config defines the robot configuration: motors, their follow relationships and the
// diagnostics run against them.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/team3128/motorhal/components/motor"
	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/utils"
)

// Scheduler kinds.
const (
	SchedulerTicker = "ticker"
	SchedulerCron   = "cron"
)

// Defaults applied to unset fields.
const (
	DefaultSettle         = 500 * time.Millisecond
	DefaultSampleInterval = 20 * time.Millisecond
	DefaultTolerance      = 0.05
)

// Config describes a robot's motors and diagnostics.
type Config struct {
	ConfigFilePath string `json:"-"`

	Motors      []MotorConfig      `json:"motors"`
	SyncPeriod  string             `json:"sync_period,omitempty"`
	Scheduler   string             `json:"scheduler,omitempty" jsonschema:"enum=ticker,enum=cron"`
	Diagnostics []DiagnosticConfig `json:"diagnostics,omitempty"`
	Log         LogConfig          `json:"log,omitempty"`
}

// ContinuousConfig is a wrap-around position range in caller units.
type ContinuousConfig struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// MotorConfig describes one motor and its setup.
type MotorConfig struct {
	Name       string             `json:"name"`
	Model      string             `json:"model"`
	Attributes utils.AttributeMap `json:"attributes,omitempty"`

	Inverted             bool              `json:"inverted,omitempty"`
	NeutralMode          string            `json:"neutral_mode,omitempty" jsonschema:"enum=brake,enum=coast"`
	UnitConversionFactor float64           `json:"unit_conversion_factor,omitempty"`
	TimeConversionFactor float64           `json:"time_conversion_factor,omitempty"`
	Continuous           *ContinuousConfig `json:"continuous,omitempty"`
	Follow               string            `json:"follow,omitempty"`
	CurrentLimit         int               `json:"current_limit,omitempty"`
	VoltageCompensation  float64           `json:"voltage_compensation,omitempty"`
	DefaultStatusFrames  bool              `json:"default_status_frames,omitempty"`

	// ConvertedAttributes is filled in by Validate with the backend's typed config.
	ConvertedAttributes interface{} `json:"-"`
}

// Validate ensures all parts of the config are valid and returns dependencies.
func (mc *MotorConfig) Validate(path string) ([]string, error) {
	var deps []string
	if mc.Name == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if mc.Model == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError(path, "model")
	}
	reg, ok := motor.LookupBackend(mc.Model)
	if !ok {
		return nil, goutils.NewConfigValidationError(path, motor.NewUnknownModelError(mc.Model))
	}
	converted, err := reg.ConvertAttributes(mc.Attributes)
	if err != nil {
		return nil, goutils.NewConfigValidationError(fmt.Sprintf("%s.attributes", path), err)
	}
	mc.ConvertedAttributes = converted

	if mc.NeutralMode != "" {
		if _, err := motor.ParseNeutralMode(mc.NeutralMode); err != nil {
			return nil, goutils.NewConfigValidationError(path, err)
		}
	}
	for field, factor := range map[string]float64{
		"unit_conversion_factor": mc.UnitConversionFactor,
		"time_conversion_factor": mc.TimeConversionFactor,
	} {
		if math.IsNaN(factor) || math.IsInf(factor, 0) {
			return nil, goutils.NewConfigValidationError(path,
				errors.Wrapf(motor.ErrInvalidConversionFactor, "%s", field))
		}
	}
	if mc.CurrentLimit < 0 {
		return nil, goutils.NewConfigValidationError(path, errors.New("current_limit cannot be negative"))
	}
	if mc.VoltageCompensation < 0 {
		return nil, goutils.NewConfigValidationError(path, errors.New("voltage_compensation cannot be negative"))
	}
	if mc.Follow != "" {
		if mc.Follow == mc.Name {
			return nil, goutils.NewConfigValidationError(path, motor.ErrSelfFollow)
		}
		deps = append(deps, mc.Follow)
	}
	return deps, nil
}

// NeutralModeOrDefault returns the configured neutral mode, brake when unset.
func (mc *MotorConfig) NeutralModeOrDefault() motor.NeutralMode {
	mode, err := motor.ParseNeutralMode(mc.NeutralMode)
	if err != nil {
		return motor.Brake
	}
	return mode
}

// DiagnosticConfig describes a motor check: drive at Power, wait Settle, read the applied output
// Samples times SampleInterval apart, then pass if the mean is within Tolerance of Power.
type DiagnosticConfig struct {
	System         string  `json:"system"`
	Motor          string  `json:"motor"`
	Power          float64 `json:"power"`
	Settle         string  `json:"settle,omitempty"`
	Tolerance      float64 `json:"tolerance,omitempty"`
	Timeout        string  `json:"timeout,omitempty"`
	Samples        int     `json:"samples,omitempty"`
	SampleInterval string  `json:"sample_interval,omitempty"`
}

// Validate ensures the diagnostic is well formed and returns the motor it exercises.
func (dc *DiagnosticConfig) Validate(path string) ([]string, error) {
	if dc.System == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError(path, "system")
	}
	if dc.Motor == "" {
		return nil, goutils.NewConfigValidationFieldRequiredError(path, "motor")
	}
	if dc.Power < -1 || dc.Power > 1 {
		return nil, goutils.NewConfigValidationError(path, errors.Errorf("power %v is outside [-1, 1]", dc.Power))
	}
	if dc.Tolerance < 0 {
		return nil, goutils.NewConfigValidationError(path, errors.New("tolerance cannot be negative"))
	}
	if dc.Samples < 0 {
		return nil, goutils.NewConfigValidationError(path, errors.New("samples cannot be negative"))
	}
	if _, err := dc.SampleIntervalDuration(); err != nil {
		return nil, goutils.NewConfigValidationError(path, err)
	}
	if _, err := dc.SettleDuration(); err != nil {
		return nil, goutils.NewConfigValidationError(path, err)
	}
	if _, err := dc.TimeoutDuration(); err != nil {
		return nil, goutils.NewConfigValidationError(path, err)
	}
	return []string{dc.Motor}, nil
}

// SettleDuration parses Settle, defaulting to DefaultSettle.
func (dc *DiagnosticConfig) SettleDuration() (time.Duration, error) {
	return parseDuration("settle", dc.Settle, DefaultSettle)
}

// TimeoutDuration parses Timeout; zero means no timeout.
func (dc *DiagnosticConfig) TimeoutDuration() (time.Duration, error) {
	return parseDuration("timeout", dc.Timeout, 0)
}

// SamplesOrDefault returns Samples, or 1 when unset.
func (dc *DiagnosticConfig) SamplesOrDefault() int {
	if dc.Samples == 0 {
		return 1
	}
	return dc.Samples
}

// SampleIntervalDuration parses SampleInterval, defaulting to DefaultSampleInterval.
func (dc *DiagnosticConfig) SampleIntervalDuration() (time.Duration, error) {
	return parseDuration("sample_interval", dc.SampleInterval, DefaultSampleInterval)
}

// ToleranceOrDefault returns Tolerance, or DefaultTolerance when unset.
func (dc *DiagnosticConfig) ToleranceOrDefault() float64 {
	if dc.Tolerance == 0 {
		return DefaultTolerance
	}
	return dc.Tolerance
}

// LogConfig describes where and how verbosely to log.
type LogConfig struct {
	Level      string `json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// Validate ensures the log level parses.
func (lc *LogConfig) Validate(path string) error {
	if lc.Level == "" {
		return nil
	}
	if _, err := logging.LevelFromString(lc.Level); err != nil {
		return goutils.NewConfigValidationError(path, err)
	}
	return nil
}

func parseDuration(field, value string, def time.Duration) (time.Duration, error) {
	if value == "" {
		return def, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid %s", field)
	}
	if d < 0 {
		return 0, errors.Errorf("%s cannot be negative, got %v", field, d)
	}
	return d, nil
}

// SyncPeriodDuration parses SyncPeriod, defaulting to motor.DefaultSyncPeriod.
func (c *Config) SyncPeriodDuration() (time.Duration, error) {
	d, err := parseDuration("sync_period", c.SyncPeriod, motor.DefaultSyncPeriod)
	if err == nil && d == 0 {
		err = errors.New("sync_period must be positive")
	}
	return d, err
}

// FindMotor returns the motor config with the given name.
func (c *Config) FindMotor(name string) (*MotorConfig, bool) {
	for i := range c.Motors {
		if c.Motors[i].Name == name {
			return &c.Motors[i], true
		}
	}
	return nil, false
}

// Validate checks every part of the config and the references between them. All problems found
// are returned together.
func (c *Config) Validate() error {
	var errs error
	seen := map[string]bool{}
	follows := map[string]string{}
	for idx := range c.Motors {
		path := fmt.Sprintf("motors.%d", idx)
		mc := &c.Motors[idx]
		deps, err := mc.Validate(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if seen[mc.Name] {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
				errors.Errorf("duplicate motor name %q", mc.Name)))
			continue
		}
		seen[mc.Name] = true
		if len(deps) > 0 {
			follows[mc.Name] = deps[0]
		}
	}

	for idx, mc := range c.Motors {
		leader, ok := follows[mc.Name]
		if !ok {
			continue
		}
		path := fmt.Sprintf("motors.%d", idx)
		if !seen[leader] {
			errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
				errors.Errorf("follow target %q is not a configured motor", leader)))
			continue
		}
		for up, steps := leader, 0; up != "" && steps <= len(follows); up, steps = follows[up], steps+1 {
			if up == mc.Name {
				errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
					errors.Wrapf(motor.ErrFollowerCycle, "motor %q following %q", mc.Name, leader)))
				break
			}
		}
	}

	for idx := range c.Diagnostics {
		path := fmt.Sprintf("diagnostics.%d", idx)
		deps, err := c.Diagnostics[idx].Validate(path)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, dep := range deps {
			if !seen[dep] {
				errs = multierr.Append(errs, goutils.NewConfigValidationError(path,
					errors.Errorf("motor %q is not configured", dep)))
			}
		}
	}

	switch c.Scheduler {
	case "", SchedulerTicker, SchedulerCron:
	default:
		errs = multierr.Append(errs, goutils.NewConfigValidationError("scheduler",
			errors.Errorf("unknown scheduler %q, expected %q or %q", c.Scheduler, SchedulerTicker, SchedulerCron)))
	}
	if _, err := c.SyncPeriodDuration(); err != nil {
		errs = multierr.Append(errs, goutils.NewConfigValidationError("sync_period", err))
	}
	if err := c.Log.Validate("log"); err != nil {
		errs = multierr.Append(errs, err)
	}
	return errs
}
