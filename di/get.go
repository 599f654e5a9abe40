package di

import (
	"fmt"
	"reflect"
)

// Get resolves a T from sp.
func Get[T any](sp ServiceProvider) (T, error) {
	var zero T
	v, err := sp.GetService(reflect.TypeFor[T]())
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, &WrongTypeError{Type: reflect.TypeFor[T](), GotType: reflect.TypeOf(v)}
	}
	return t, nil
}

// MustGet is like Get but panics on error.
// Useful in examples/tests where a missing service should fail fast.
func MustGet[T any](sp ServiceProvider) T {
	v, err := Get[T](sp)
	if err != nil {
		panic(fmt.Errorf("di: MustGet: %w", err))
	}
	return v
}

// GetAll resolves every registered T in registration order.
func GetAll[T any](sp ServiceProvider) ([]T, error) {
	vs, err := sp.GetServices(reflect.TypeFor[T]())
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(vs))
	for _, v := range vs {
		t, ok := v.(T)
		if !ok && v != nil {
			return nil, &WrongTypeError{Type: reflect.TypeFor[T](), GotType: reflect.TypeOf(v)}
		}
		out = append(out, t)
	}
	return out, nil
}
