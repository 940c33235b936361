package motor

import "github.com/pkg/errors"

var (
	// ErrZeroWidthRange is returned when a continuous range with min == max has to wrap a value.
	ErrZeroWidthRange = errors.New("continuous input range has zero width")
	// ErrInvalidConversionFactor is returned for conversion factors that are zero, NaN or infinite.
	ErrInvalidConversionFactor = errors.New("conversion factor must be finite and non-zero")
	// ErrSelfFollow is returned when a motor is asked to follow itself.
	ErrSelfFollow = errors.New("motor cannot follow itself")
	// ErrFollowerCycle is returned when a follow relationship would loop back to the follower.
	ErrFollowerCycle = errors.New("follow relationship would create a cycle")
	// ErrAlreadyFollowing is returned when a follower is registered with a second leader.
	ErrAlreadyFollowing = errors.New("motor already follows another leader")
	// ErrNonFiniteCommand is returned for commands whose value or feed-forward is NaN or infinite.
	ErrNonFiniteCommand = errors.New("command value and feed-forward must be finite")
	// ErrNoSynchronizer is returned by Follow on a motor built without a synchronizer.
	ErrNoSynchronizer = errors.New("motor has no follower synchronizer")
)

// NewUnknownControlModeError returns an error for a control mode outside the known set.
func NewUnknownControlModeError(mode ControlMode) error {
	return errors.Errorf("unknown control mode %d", int(mode))
}

// NewUnknownNeutralModeError returns an error for a neutral mode outside the known set.
func NewUnknownNeutralModeError(mode NeutralMode) error {
	return errors.Errorf("unknown neutral mode %d", int(mode))
}

// NewUnknownModelError returns an error for a backend model that was never registered.
func NewUnknownModelError(model string) error {
	return errors.Errorf("no motor backend registered for model %q, known models are %v", model, RegisteredModels())
}

// NewUnsupportedError returns an error for an operation a controller cannot perform.
func NewUnsupportedError(operation, controller string) error {
	return errors.Errorf("%s is not supported by %s", operation, controller)
}
