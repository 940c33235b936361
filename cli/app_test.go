package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.viam.com/test"
)

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	err := NewApp(&out, &errOut).RunContext(context.Background(), append([]string{"motorhal"}, args...))
	return out.String(), errOut.String(), err
}

func TestValidate(t *testing.T) {
	out, _, err := runApp(t, "--config", "data/robot.json", "validate")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "data/robot.json is valid: 3 motors, 3 diagnostics")
	test.That(t, out, test.ShouldContainSubstring, `system "drivetrain" checks follower "right_drive"`)

	_, _, err = runApp(t, "validate")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "--config")

	bad := filepath.Join(t.TempDir(), "bad.json")
	test.That(t, os.WriteFile(bad, []byte(`{"motors": [{"name": "a", "model": "talonfx"}]}`), 0o600), test.ShouldBeNil)
	_, _, err = runApp(t, "--config", bad, "validate")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "talonfx")
}

func TestSchema(t *testing.T) {
	out, _, err := runApp(t, "schema")
	test.That(t, err, test.ShouldBeNil)
	var schema map[string]interface{}
	test.That(t, json.Unmarshal([]byte(out), &schema), test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "unit_conversion_factor")
}

func TestStatus(t *testing.T) {
	out, _, err := runApp(t, "--config", "data/robot.json", "status")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "MOTOR")
	test.That(t, out, test.ShouldContainSubstring, "left_drive")
	test.That(t, out, test.ShouldContainSubstring, "PercentOutput")
}

func TestDiagnose(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "motorhal.log")
	out, _, err := runApp(t, "--config", "data/robot.json", "--log-file", logFile, "diagnose")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "drivetrain")
	test.That(t, out, test.ShouldContainSubstring, "left_drive at 0.5")
	test.That(t, out, test.ShouldContainSubstring, "PASSED")
	test.That(t, out, test.ShouldNotContainSubstring, "FAILED")

	logs, err := os.ReadFile(logFile)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, string(logs), test.ShouldContainSubstring, "suite finished")

	out, _, err = runApp(t, "--config", "data/robot.json", "diagnose", "--system", "turret")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "turret at 0.2")
	test.That(t, out, test.ShouldNotContainSubstring, "drivetrain")

	_, _, err = runApp(t, "--config", "data/robot.json", "diagnose", "--system", "climber")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "climber")
}

func TestRunForDuration(t *testing.T) {
	start := time.Now()
	out, _, err := runApp(t, "--config", "data/robot.json", "run", "--duration", "50ms")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, time.Since(start), test.ShouldBeGreaterThanOrEqualTo, 50*time.Millisecond)
	test.That(t, out, test.ShouldContainSubstring, "running 3 motors")
	test.That(t, out, test.ShouldContainSubstring, "stopping")
}
