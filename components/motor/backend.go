package motor

import (
	"context"
	"sort"
	"sync"

	"github.com/samber/lo"

	"github.com/team3128/motorhal/logging"
	"github.com/team3128/motorhal/utils"
)

// Backend is the set of operations a concrete motor controller adapter supplies. All values are
// in the controller's native units: rotations, rotations per minute, volts, and percent output
// in [-1, 1].
type Backend interface {
	// SetInverted flips the direction the controller treats as positive.
	SetInverted(ctx context.Context, inverted bool) error

	// SetPercentOutput drives the motor open loop at the given duty cycle.
	SetPercentOutput(ctx context.Context, speed float64) error

	// SetVelocity runs the controller's velocity loop at rpm, adding feedForward volts.
	SetVelocity(ctx context.Context, rpm, feedForward float64) error

	// SetPosition runs the controller's position loop to rotations, adding feedForward volts.
	SetPosition(ctx context.Context, rotations, feedForward float64) error

	// ResetRawPosition redefines the current encoder position as rotations.
	ResetRawPosition(ctx context.Context, rotations float64) error

	RawPosition(ctx context.Context) (float64, error)
	RawVelocity(ctx context.Context) (float64, error)

	SetBrakeMode(ctx context.Context) error
	SetCoastMode(ctx context.Context) error

	// EnableVoltageCompensation keeps output consistent while the battery is above volts.
	EnableVoltageCompensation(ctx context.Context, volts float64) error
	SetCurrentLimit(ctx context.Context, amps int) error
	SetDefaultStatusFrames(ctx context.Context) error

	// AppliedOutput returns the duty cycle currently applied, in [-1, 1].
	AppliedOutput(ctx context.Context) (float64, error)

	// StallCurrent returns the current drawn by the motor; rising values indicate a stall.
	StallCurrent(ctx context.Context) (float64, error)

	// Native returns the vendor controller handle.
	Native() interface{}
}

// A BackendConstructor builds a Backend from its converted attributes.
type BackendConstructor func(ctx context.Context, name string, conf interface{}, logger logging.Logger) (Backend, error)

// An AttributeMapConverter converts the raw attributes of a motor config into the typed config
// its backend constructor expects.
type AttributeMapConverter func(attributes utils.AttributeMap) (interface{}, error)

// BackendRegistration describes how to build a backend model.
type BackendRegistration struct {
	Constructor           BackendConstructor
	AttributeMapConverter AttributeMapConverter
}

// ConvertAttributes runs the registered converter, or passes the attributes through untouched
// when none is registered.
func (reg BackendRegistration) ConvertAttributes(attributes utils.AttributeMap) (interface{}, error) {
	if reg.AttributeMapConverter == nil {
		return attributes, nil
	}
	return reg.AttributeMapConverter(attributes)
}

var (
	registryMu    sync.RWMutex
	registrations = map[string]BackendRegistration{}
)

// RegisterBackend registers a backend model. It panics on an empty constructor or a duplicate
// model, both of which are programming errors detected at init time.
func RegisterBackend(model string, reg BackendRegistration) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if reg.Constructor == nil {
		panic("cannot register a nil constructor for motor model " + model)
	}
	if _, old := registrations[model]; old {
		panic("trying to register two motor backends with the same model " + model)
	}
	registrations[model] = reg
}

// LookupBackend returns the registration for a model.
func LookupBackend(model string) (BackendRegistration, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	reg, ok := registrations[model]
	return reg, ok
}

// RegisteredModels returns all registered models in sorted order.
func RegisteredModels() []string {
	registryMu.RLock()
	models := lo.Keys(registrations)
	registryMu.RUnlock()
	sort.Strings(models)
	return models
}

// NewBackend builds a backend of the given model from raw attributes.
func NewBackend(
	ctx context.Context,
	model, name string,
	attributes utils.AttributeMap,
	logger logging.Logger,
) (Backend, error) {
	reg, ok := LookupBackend(model)
	if !ok {
		return nil, NewUnknownModelError(model)
	}
	conf, err := reg.ConvertAttributes(attributes)
	if err != nil {
		return nil, err
	}
	return reg.Constructor(ctx, name, conf, logger)
}
