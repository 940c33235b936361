package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestInputModulus(t *testing.T) {
	test.That(t, InputModulus(370, 0, 360), test.ShouldAlmostEqual, 10)
	test.That(t, InputModulus(-10, 0, 360), test.ShouldAlmostEqual, 350)
	test.That(t, InputModulus(360, 0, 360), test.ShouldEqual, 0)
	test.That(t, InputModulus(0, 0, 360), test.ShouldEqual, 0)
	test.That(t, InputModulus(-720, 0, 360), test.ShouldEqual, 0)
	test.That(t, InputModulus(190, -180, 180), test.ShouldAlmostEqual, -170)
	test.That(t, InputModulus(-190, -180, 180), test.ShouldAlmostEqual, 170)
	test.That(t, InputModulus(0.75, 0.25, 0.5), test.ShouldAlmostEqual, 0.25)

	for _, v := range []float64{-1e6, -361.5, -1e-12, 0, 1e-12, 359.999, 1e6 + 0.5} {
		wrapped := InputModulus(v, 0, 360)
		test.That(t, wrapped, test.ShouldBeGreaterThanOrEqualTo, 0)
		test.That(t, wrapped, test.ShouldBeLessThan, 360)
		// congruent to the input modulo the span
		k := (v - wrapped) / 360
		test.That(t, math.Abs(k-math.Round(k)), test.ShouldBeLessThan, 1e-9)
	}
}

func TestClamp(t *testing.T) {
	test.That(t, Clamp(2, -1, 1), test.ShouldEqual, 1)
	test.That(t, Clamp(-2, -1, 1), test.ShouldEqual, -1)
	test.That(t, Clamp(0.3, -1, 1), test.ShouldEqual, 0.3)
	test.That(t, Clamp(math.Inf(1), -1, 1), test.ShouldEqual, 1)
}

func TestIsFinite(t *testing.T) {
	test.That(t, IsFinite(1), test.ShouldBeTrue)
	test.That(t, IsFinite(math.NaN()), test.ShouldBeFalse)
	test.That(t, IsFinite(math.Inf(-1)), test.ShouldBeFalse)
}
