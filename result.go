package blueprint

import (
	"fmt"
	"strings"
)

// OperationResult is the value every pipeline produces. Pipelines never return
// errors to their caller; failures are results too.
type OperationResult interface {
	// Err returns the failure carried by the result, or nil on success.
	Err() error
}

// OkResult carries the value returned by a handler.
type OkResult struct {
	Content any
}

func (r *OkResult) Err() error { return nil }

type noContentResult struct{}

func (noContentResult) Err() error     { return nil }
func (noContentResult) String() string { return "no content" }

// NoContent is the result of an operation whose handler returned nothing.
var NoContent OperationResult = noContentResult{}

// ValidationFailedResult reports invalid operation input.
// Errors maps property names to messages.
type ValidationFailedResult struct {
	Errors map[string][]string
}

func (r *ValidationFailedResult) Err() error {
	return &ValidationError{Errors: r.Errors}
}

// ValidationError is the error form of a ValidationFailedResult.
type ValidationError struct {
	Errors map[string][]string
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for field, errs := range e.Errors {
		msgs = append(msgs, field+": "+strings.Join(errs, ", "))
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// ErrorResult carries an API error raised by a handler.
type ErrorResult struct {
	Error *Error
}

func (r *ErrorResult) Err() error { return r.Error }

// NewErrorResult wraps an API error.
func NewErrorResult(err *Error) OperationResult {
	return &ErrorResult{Error: err}
}

// UnhandledErrorResult is produced when a pipeline fails with an error no
// middleware converted into a more specific result.
type UnhandledErrorResult struct {
	Error error
}

// NewUnhandledErrorResult wraps err.
func NewUnhandledErrorResult(err error) OperationResult {
	return &UnhandledErrorResult{Error: err}
}

// UnhandledErrorResultOr returns current when an earlier error handler already
// produced a result, and wraps err in an UnhandledErrorResult otherwise.
func UnhandledErrorResultOr(current OperationResult, err error) OperationResult {
	if current != nil {
		return current
	}
	return NewUnhandledErrorResult(err)
}

func (r *UnhandledErrorResult) Err() error { return r.Error }

func (r *UnhandledErrorResult) Unwrap() error { return r.Error }

// Rethrow panics with the wrapped error, for callers that want failures to
// unwind the stack.
func (r *UnhandledErrorResult) Rethrow() {
	panic(r.Error)
}

func (r *UnhandledErrorResult) String() string {
	return fmt.Sprintf("unhandled error: %v", r.Error)
}

// ResultOf converts a handler's return value into a result.
// Results pass through unchanged, nil becomes NoContent, and anything else is
// wrapped in an OkResult.
func ResultOf(v any) OperationResult {
	switch v := v.(type) {
	case nil:
		return NoContent
	case OperationResult:
		return v
	default:
		return &OkResult{Content: v}
	}
}

// IsUnhandled reports whether r is an UnhandledErrorResult.
func IsUnhandled(r OperationResult) bool {
	u, ok := r.(*UnhandledErrorResult)
	return ok && u != nil
}
