package utils

import "context"

// Closer is closable type in a TryClose.
type Closer interface {
	Close(context.Context) error
}

// TryClose attempts to close the target if it implements Closer.
func TryClose(ctx context.Context, target interface{}) error {
	closer, ok := target.(Closer)
	if !ok {
		return nil
	}
	return closer.Close(ctx)
}

// AssertType attempts to assert that the given interface argument is the given type parameter,
// returning a descriptive error when it is not.
func AssertType[T any](from interface{}) (T, error) {
	var zero T
	asserted, ok := from.(T)
	if !ok {
		return zero, NewUnexpectedTypeError[T](from)
	}
	return asserted, nil
}
