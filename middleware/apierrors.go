package middleware

import (
	"context"
	"errors"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/pipeline"
)

type apiErrorsBuilder struct{}

// APIErrors converts *blueprint.Error failures into an ErrorResult and
// validator.ValidationErrors into a ValidationFailedResult, instead of an
// unhandled error result. A canceled or timed out operation also gets an
// ErrorResult; see CanceledResult.
func APIErrors() pipeline.MiddlewareBuilder {
	return apiErrorsBuilder{}
}

func (apiErrorsBuilder) Matches(*blueprint.OperationDescriptor) bool { return true }

func (apiErrorsBuilder) SupportsNestedExecution() bool { return true }

func (apiErrorsBuilder) Build(ctx *pipeline.BuilderContext) error {
	ctx.RegisterErrorHandler(reflect.TypeFor[*blueprint.Error](), func(err *codegen.Variable) []codegen.Frame {
		call := codegen.CallFunc(blueprint.NewErrorResult, err).Named("errResult")
		return []codegen.Frame{call, codegen.Return(call.Result())}
	})
	ctx.RegisterErrorHandler(reflect.TypeFor[validator.ValidationErrors](), func(err *codegen.Variable) []codegen.Frame {
		call := codegen.CallFunc(ValidationResult, err).Named("invalid")
		return []codegen.Frame{call, codegen.Return(call.Result())}
	})
	ctx.RegisterErrorHandler(reflect.TypeFor[error](), func(err *codegen.Variable) []codegen.Frame {
		call := codegen.CallFunc(CanceledResult, err).Named("canceled")
		return []codegen.Frame{call, codegen.ReturnIfNotNil(call.Result())}
	})
	return nil
}

// CanceledResult maps an error caused by context cancellation or a deadline to
// an ErrorResult through blueprint.DefaultErrorTransformer. It returns nil for
// any other error.
func CanceledResult(err error) blueprint.OperationResult {
	if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return blueprint.NewErrorResult(blueprint.DefaultErrorTransformer(err))
}
