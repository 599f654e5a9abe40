package blueprint

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"runtime/debug"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrorCode represents a machine-readable error code.
type ErrorCode string

const (
	CodeInvalidArgument   ErrorCode = "invalid_argument"
	CodeUnauthenticated   ErrorCode = "unauthenticated"
	CodePermissionDenied  ErrorCode = "permission_denied"
	CodeNotFound          ErrorCode = "not_found"
	CodeConflict          ErrorCode = "conflict"
	CodeAlreadyExists     ErrorCode = "already_exists" // Alias for conflict, used when resource already exists
	CodeGone              ErrorCode = "gone"
	CodeResourceExhausted ErrorCode = "resource_exhausted"
	CodeCanceled          ErrorCode = "canceled"
	CodeInternal          ErrorCode = "internal"
	CodeNotImplemented    ErrorCode = "not_implemented"
	CodeUnavailable       ErrorCode = "unavailable"
	CodeDeadlineExceeded  ErrorCode = "deadline_exceeded"
)

// Error is an API error raised by operation handlers.
// Pipelines that include the API error middleware turn it into an *ErrorResult.
type Error struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a new API error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Errorf creates a new API error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetail returns a new Error with the key-value pair added to details.
func (e *Error) WithDetail(key string, value any) *Error {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
	}
}

// DefaultErrorTransformer maps standard Go errors to API errors.
func DefaultErrorTransformer(err error) *Error {
	if err == nil {
		return nil
	}

	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(CodeDeadlineExceeded, "operation timeout")
	}

	if errors.Is(err, context.Canceled) {
		return NewError(CodeCanceled, "operation canceled")
	}

	var valErrs validator.ValidationErrors
	if errors.As(err, &valErrs) {
		details := make(map[string]any)
		messages := make([]string, 0, len(valErrs))
		for _, ve := range valErrs {
			msg := FormatValidationError(ve)
			details[ve.Field()] = msg
			messages = append(messages, ve.Field()+": "+msg)
		}
		return &Error{
			Code:    CodeInvalidArgument,
			Message: strings.Join(messages, "; "),
			Details: details,
		}
	}

	return NewError(CodeInternal, err.Error())
}

// FormatValidationError converts a validator.FieldError to a human-readable message.
func FormatValidationError(ve validator.FieldError) string {
	switch ve.Tag() {
	case "required":
		return "required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", ve.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", ve.Param())
	case "len":
		return fmt.Sprintf("must be exactly %s characters", ve.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", ve.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", ve.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", ve.Param())
	case "lte":
		return fmt.Sprintf("must be at most %s", ve.Param())
	case "email":
		return "must be a valid email address"
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid UUID"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", ve.Param())
	default:
		if ve.Param() != "" {
			return fmt.Sprintf("failed %s=%s validation", ve.Tag(), ve.Param())
		}
		return fmt.Sprintf("failed %s validation", ve.Tag())
	}
}

var (
	// ErrForeignLink is returned when a link is added to a descriptor other than
	// the one it was constructed against.
	ErrForeignLink = errors.New("blueprint: link belongs to a different operation descriptor")

	// ErrFeatureAlreadySet is returned when feature data is set twice for the same key.
	ErrFeatureAlreadySet = errors.New("blueprint: feature data already set")

	// ErrNoExecutor is returned by OperationContext.ExecuteNested when the
	// context was not created by an executor.
	ErrNoExecutor = errors.New("blueprint: operation context has no executor")
)

// DuplicateOperationError is returned when an operation type is registered twice.
type DuplicateOperationError struct {
	Type           reflect.Type
	Source         string
	ExistingSource string
}

func (e *DuplicateOperationError) Error() string {
	return fmt.Sprintf("blueprint: operation %s from %q is already registered by %q", e.Type, e.Source, e.ExistingSource)
}

// DuplicateLinkError is returned when a link violates the data model's
// uniqueness rules.
type DuplicateLinkError struct {
	Link     *Link
	Existing *Link
	// Rel is true when the conflict is a duplicate rel on the same resource type,
	// false when the URL, operation and resource type all match.
	Rel bool
}

func (e *DuplicateLinkError) Error() string {
	resource := "<none>"
	if e.Link.ResourceType != nil {
		resource = e.Link.ResourceType.String()
	}
	if e.Rel {
		return fmt.Sprintf("blueprint: duplicate rel %q for resource %s (url %q from %q conflicts with url %q from %q)",
			e.Link.Rel, resource, e.Link.URLFormat, e.Link.Source, e.Existing.URLFormat, e.Existing.Source)
	}
	return fmt.Sprintf("blueprint: duplicate link %q for operation %s and resource %s (from %q, already registered by %q)",
		e.Link.URLFormat, e.Link.Operation.Name, resource, e.Link.Source, e.Existing.Source)
}

// MissingOperationError is returned when no descriptor is registered for a type.
type MissingOperationError struct {
	Type reflect.Type
}

func (e *MissingOperationError) Error() string {
	return fmt.Sprintf("blueprint: no operation registered for type %s", e.Type)
}

// PanicError wraps a value recovered from a panic inside a pipeline.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap returns the panic value if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// RecoverError converts a panic in the calling function into an error stored in *errp.
// It must be called directly by defer.
func RecoverError(errp *error) {
	if rec := recover(); rec != nil {
		*errp = &PanicError{Value: rec, Stack: debug.Stack()}
	}
}
