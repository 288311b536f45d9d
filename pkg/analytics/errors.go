package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding is matched by every *EncodingError
	ErrEncoding = errors.New("analytics: encoding failed")

	// ErrUnsupportedType is returned for values with no primitive form (chan, func, complex)
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrCycle is returned when a model references itself
	ErrCycle = errors.New("reference cycle")

	// ErrKeyCollision is returned when two paths flatten to the same key
	ErrKeyCollision = errors.New("flattened key collision")
)

// EncodingError reports a payload model that could not be flattened
type EncodingError struct {
	// Model is the Go type of the offending model
	Model string
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("failed to encode %s: %v", e.Model, e.Err)
}

// Unwrap exposes both ErrEncoding and the underlying cause to errors.Is
func (e *EncodingError) Unwrap() []error {
	return []error{ErrEncoding, e.Err}
}

func newEncodingError(model any, err error) *EncodingError {
	return &EncodingError{Model: fmt.Sprintf("%T", model), Err: err}
}
