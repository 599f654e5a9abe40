package di

import (
	"errors"
	"reflect"
)

var (
	// ErrNilFactory is returned when a registration has no factory.
	ErrNilFactory = errors.New("di: nil factory")

	// ErrClosed is returned when resolving from a closed container.
	ErrClosed = errors.New("di: container closed")
)

// MissingServiceError is returned when no registration exists for a type.
type MissingServiceError struct{ Type reflect.Type }

// Error implements the error interface.
func (e *MissingServiceError) Error() string {
	// Example: di: no service registered for *slog.Logger
	return "di: no service registered for " + typeString(e.Type)
}

// ResolveError is returned when a factory fails.
type ResolveError struct {
	Type reflect.Type
	Err  error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	// Example: di: resolve *store.Store: connection refused
	return "di: resolve " + typeString(e.Type) + ": " + e.Err.Error()
}

// Unwrap returns the factory error.
func (e *ResolveError) Unwrap() error { return e.Err }

// WrongTypeError is returned when a factory produces a value that is not
// assignable to the registered type.
type WrongTypeError struct {
	Type    reflect.Type
	GotType reflect.Type
}

// Error implements the error interface.
func (e *WrongTypeError) Error() string {
	// Example: di: factory for Clock returned *time.Location
	return "di: factory for " + typeString(e.Type) + " returned " + typeString(e.GotType)
}

func typeString(t reflect.Type) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}
