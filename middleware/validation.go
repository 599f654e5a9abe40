package middleware

import (
	"errors"
	"reflect"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/pipeline"
)

var (
	validateType = reflect.TypeFor[*validator.Validate]()

	defaultValidator = sync.OnceValue(func() *validator.Validate {
		return validator.New(validator.WithRequiredStructEnabled())
	})
)

type validationBuilder struct{}

// Validation checks struct operations carrying validate tags before they are
// handled. It uses the *validator.Validate registered in the container, or a
// default one.
func Validation() pipeline.MiddlewareBuilder {
	return validationBuilder{}
}

func (validationBuilder) Matches(d *blueprint.OperationDescriptor) bool {
	if d.IsInterface() {
		return false
	}
	for _, tag := range d.PropertyTags {
		if _, ok := tag.Lookup("validate"); ok {
			return true
		}
	}
	return false
}

func (validationBuilder) SupportsNestedExecution() bool { return true }

func (validationBuilder) Build(ctx *pipeline.BuilderContext) error {
	v, err := pipeline.TryFromContainer[*validator.Validate](ctx)
	if err != nil {
		return err
	}
	if v == nil {
		v = codegen.Nil(validateType)
	}
	call := codegen.CallFunc(Validate, v, ctx.Context, ctx.Operation).Named("invalid")
	ctx.AppendFrames(call, codegen.ReturnIfNotNil(call.Result()))
	return nil
}

// Validate checks op and returns a ValidationFailedResult if it is invalid, or
// nil. A nil v uses a default validator. Errors other than validation
// failures are returned.
func Validate(v *validator.Validate, ctx *blueprint.OperationContext, op any) (blueprint.OperationResult, error) {
	if v == nil {
		v = defaultValidator()
	}
	err := v.StructCtx(ctx, op)
	if err == nil {
		return nil, nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return ValidationResult(verrs), nil
	}
	return nil, err
}

// ValidationResult converts validation errors into a result keyed by field
// name.
func ValidationResult(errs validator.ValidationErrors) blueprint.OperationResult {
	out := make(map[string][]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = append(out[fe.Field()], blueprint.FormatValidationError(fe))
	}
	return &blueprint.ValidationFailedResult{Errors: out}
}
