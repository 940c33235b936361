package motor

import (
	"github.com/pkg/errors"

	"github.com/team3128/motorhal/utils"
)

// UnitConverter translates between a controller's native units (rotations, rotations per minute)
// and the caller's units. Unit scales positions, Time rescales the time base of velocities; for
// example Unit = 360 reports degrees and Time = 60 reports per-second velocities.
type UnitConverter struct {
	Unit float64
	Time float64
}

// NewUnitConverter returns a converter that leaves native units untouched.
func NewUnitConverter() UnitConverter {
	return UnitConverter{Unit: 1, Time: 1}
}

func validateFactor(factor float64) error {
	if factor == 0 || !utils.IsFinite(factor) {
		return errors.Wrapf(ErrInvalidConversionFactor, "got %v", factor)
	}
	return nil
}

// SetUnit replaces the position factor.
func (uc *UnitConverter) SetUnit(factor float64) error {
	if err := validateFactor(factor); err != nil {
		return err
	}
	uc.Unit = factor
	return nil
}

// SetTime replaces the time factor.
func (uc *UnitConverter) SetTime(factor float64) error {
	if err := validateFactor(factor); err != nil {
		return err
	}
	uc.Time = factor
	return nil
}

// ToNativePosition converts a caller position into rotations.
func (uc UnitConverter) ToNativePosition(position float64) float64 {
	return position / uc.Unit
}

// FromNativePosition converts rotations into a caller position.
func (uc UnitConverter) FromNativePosition(rotations float64) float64 {
	return rotations * uc.Unit
}

// ToNativeVelocity converts a caller velocity into rotations per minute.
func (uc UnitConverter) ToNativeVelocity(velocity float64) float64 {
	return velocity / uc.Unit * uc.Time
}

// FromNativeVelocity converts rotations per minute into a caller velocity.
func (uc UnitConverter) FromNativeVelocity(rpm float64) float64 {
	return rpm * uc.Unit / uc.Time
}
