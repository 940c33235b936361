package motor

import (
	"math"

	"github.com/pkg/errors"

	"github.com/team3128/motorhal/utils"
)

// ContinuousRange treats [Min, Max) as circular: both ends are the same point, so any value is
// equivalent to exactly one point inside the range.
type ContinuousRange struct {
	Min     float64
	Max     float64
	Enabled bool
}

// Enable stores the bounds in ascending order and turns wrapping on. A zero-width range is
// accepted here and reported by Wrap.
func (cr *ContinuousRange) Enable(min, max float64) {
	cr.Min = math.Min(min, max)
	cr.Max = math.Max(min, max)
	cr.Enabled = true
}

// Disable turns wrapping off.
func (cr *ContinuousRange) Disable() {
	cr.Enabled = false
}

// ZeroWidth reports whether the range is enabled but cannot hold any value.
func (cr ContinuousRange) ZeroWidth() bool {
	return cr.Enabled && cr.Min == cr.Max
}

// Wrap returns the point in [Min, Max) congruent to value modulo Max-Min, or value itself when
// wrapping is disabled.
func (cr ContinuousRange) Wrap(value float64) (float64, error) {
	if !cr.Enabled {
		return value, nil
	}
	if cr.ZeroWidth() {
		return 0, errors.Wrapf(ErrZeroWidthRange, "[%v, %v)", cr.Min, cr.Max)
	}
	return utils.InputModulus(value, cr.Min, cr.Max), nil
}
