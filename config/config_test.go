package config_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/team3128/motorhal/components/motor"
	_ "github.com/team3128/motorhal/components/motor/dimensionengineering"
	"github.com/team3128/motorhal/components/motor/fake"
	"github.com/team3128/motorhal/config"
	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/utils"
)

func TestRead(t *testing.T) {
	t.Setenv("SYNC_PERIOD", "20ms")
	logger := logging.NewTestLogger(t)

	cfg, err := config.Read(context.Background(), "data/robot.json", logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, "data/robot.json")
	test.That(t, cfg.Motors, test.ShouldHaveLength, 3)

	period, err := cfg.SyncPeriodDuration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, period, test.ShouldEqual, 20*time.Millisecond)

	left, ok := cfg.FindMotor("left_drive")
	test.That(t, ok, test.ShouldBeTrue)
	fakeConf, err := utils.AssertType[*fake.Config](left.ConvertedAttributes)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, fakeConf.MaxRPM, test.ShouldEqual, 5676.0)
	test.That(t, fakeConf.StallCurrent, test.ShouldEqual, 105.0)

	turret, ok := cfg.FindMotor("turret")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, turret.NeutralModeOrDefault(), test.ShouldEqual, motor.Coast)
	test.That(t, turret.Continuous, test.ShouldResemble, &config.ContinuousConfig{Min: -180, Max: 180})
	test.That(t, left.NeutralModeOrDefault(), test.ShouldEqual, motor.Brake)

	settle, err := cfg.Diagnostics[0].SettleDuration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, settle, test.ShouldEqual, 250*time.Millisecond)
	settle, err = cfg.Diagnostics[1].SettleDuration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, settle, test.ShouldEqual, config.DefaultSettle)
	timeout, err := cfg.Diagnostics[1].TimeoutDuration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, timeout, test.ShouldEqual, time.Duration(0))
	test.That(t, cfg.Diagnostics[1].ToleranceOrDefault(), test.ShouldEqual, config.DefaultTolerance)
	test.That(t, cfg.Diagnostics[2].ToleranceOrDefault(), test.ShouldEqual, 0.01)

	_, err = config.Read(context.Background(), "data/missing.json", logger)
	test.That(t, err, test.ShouldNotBeNil)
}

func fromString(t *testing.T, conf string) (*config.Config, error) {
	t.Helper()
	return config.FromReader(context.Background(), "", strings.NewReader(conf), logging.NewTestLogger(t))
}

func TestMotorValidate(t *testing.T) {
	mc := config.MotorConfig{}
	_, err := mc.Validate("motors.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"name" is required`)

	mc.Name = "intake"
	_, err = mc.Validate("motors.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, `"model" is required`)

	mc.Model = "talonfx"
	_, err = mc.Validate("motors.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, "talonfx")

	mc.Model = fake.Model
	mc.Attributes = utils.AttributeMap{"max_rmp": 100}
	_, err = mc.Validate("motors.0")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "motors.0.attributes")

	mc.Attributes = nil
	mc.NeutralMode = "float"
	_, err = mc.Validate("motors.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, "float")

	mc.NeutralMode = ""
	mc.Follow = "intake"
	_, err = mc.Validate("motors.0")
	test.That(t, errors.Is(err, motor.ErrSelfFollow), test.ShouldBeTrue)

	mc.Follow = "feeder"
	deps, err := mc.Validate("motors.0")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deps, test.ShouldResemble, []string{"feeder"})
	test.That(t, mc.ConvertedAttributes, test.ShouldNotBeNil)

	mc.CurrentLimit = -1
	_, err = mc.Validate("motors.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, "current_limit")
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name   string
		conf   string
		errMsg string
	}{
		{
			"duplicate names",
			`{"motors": [{"name": "a", "model": "fake"}, {"name": "a", "model": "fake"}]}`,
			`duplicate motor name "a"`,
		},
		{
			"missing follow target",
			`{"motors": [{"name": "a", "model": "fake", "follow": "ghost"}]}`,
			`follow target "ghost"`,
		},
		{
			"follow cycle",
			`{"motors": [
				{"name": "a", "model": "fake", "follow": "c"},
				{"name": "b", "model": "fake", "follow": "a"},
				{"name": "c", "model": "fake", "follow": "b"}]}`,
			"cycle",
		},
		{
			"diagnostic on unknown motor",
			`{"motors": [{"name": "a", "model": "fake"}],
			  "diagnostics": [{"system": "s", "motor": "b", "power": 0.5}]}`,
			`motor "b" is not configured`,
		},
		{
			"diagnostic power out of range",
			`{"motors": [{"name": "a", "model": "fake"}],
			  "diagnostics": [{"system": "s", "motor": "a", "power": 1.5}]}`,
			"outside [-1, 1]",
		},
		{
			"bad settle",
			`{"motors": [{"name": "a", "model": "fake"}],
			  "diagnostics": [{"system": "s", "motor": "a", "power": 0.5, "settle": "soon"}]}`,
			"invalid settle",
		},
		{
			"negative samples",
			`{"motors": [{"name": "a", "model": "fake"}],
			  "diagnostics": [{"system": "s", "motor": "a", "power": 0.5, "samples": -2}]}`,
			"samples cannot be negative",
		},
		{
			"bad sample interval",
			`{"motors": [{"name": "a", "model": "fake"}],
			  "diagnostics": [{"system": "s", "motor": "a", "power": 0.5, "samples": 3, "sample_interval": "-1s"}]}`,
			"sample_interval cannot be negative",
		},
		{
			"sabertooth on a bad channel",
			`{"motors": [{"name": "a", "model": "de-sabertooth",
			  "attributes": {"serial_path": "/dev/ttyUSB0", "serial_address": 128, "motor_channel": 3}}]}`,
			"invalid channel 3",
		},
		{"bad sync period", `{"motors": [], "sync_period": "0s"}`, "sync_period"},
		{"unknown scheduler", `{"motors": [], "scheduler": "cronjob"}`, "unknown scheduler"},
		{"bad log level", `{"motors": [], "log": {"level": "loud"}}`, "loud"},
		{"unknown field", `{"motors": [], "moters": []}`, "moters"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fromString(t, tc.conf)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.errMsg)
		})
	}

	cfg, err := fromString(t, `{"motors": [
		{"name": "a", "model": "fake"},
		{"name": "b", "model": "fake", "follow": "a"},
		{"name": "c", "model": "fake", "follow": "b"}]}`)
	test.That(t, err, test.ShouldBeNil)
	period, err := cfg.SyncPeriodDuration()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, period, test.ShouldEqual, motor.DefaultSyncPeriod)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	_, err := fromString(t, `{"motors": [
		{"name": "", "model": "fake"},
		{"name": "b", "model": "nope"}], "scheduler": "x"}`)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "motors.0")
	test.That(t, err.Error(), test.ShouldContainSubstring, "nope")
	test.That(t, err.Error(), test.ShouldContainSubstring, "unknown scheduler")
}

func TestSchema(t *testing.T) {
	schema := config.Schema()
	raw, err := json.Marshal(schema)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(raw), test.ShouldContainSubstring, "neutral_mode")
	test.That(t, string(raw), test.ShouldContainSubstring, "diagnostics")
	test.That(t, string(raw), test.ShouldNotContainSubstring, "ConfigFilePath")
}
