package middleware

import (
	"reflect"

	"github.com/gorilla/schema"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/pipeline"
)

var decoderType = reflect.TypeFor[*schema.Decoder]()

type populationBuilder struct{}

// Population fills struct operations from the raw values of
// OperationContext.Values, using the "schema" struct tags understood by
// gorilla/schema. Nested operations are already populated by their caller.
func Population() pipeline.MiddlewareBuilder {
	return populationBuilder{}
}

func (populationBuilder) Matches(d *blueprint.OperationDescriptor) bool {
	return !d.IsInterface() && len(d.Properties) > 0
}

func (populationBuilder) SupportsNestedExecution() bool { return false }

func (populationBuilder) Build(ctx *pipeline.BuilderContext) error {
	dec, err := pipeline.TryFromContainer[*schema.Decoder](ctx)
	if err != nil {
		return err
	}
	if dec == nil {
		dec = codegen.Nil(decoderType)
	}
	call := codegen.CallFunc(Populate, dec, ctx.Context, ctx.Operation).Named("populateFailed")
	ctx.AppendFrames(call, codegen.ReturnIfNotNil(call.Result()))
	return nil
}

// Populate decodes ctx.Values into op, a pointer to a struct. It returns an
// invalid argument result if the values do not decode, or nil. A nil dec uses
// a decoder that ignores unknown keys.
func Populate(dec *schema.Decoder, ctx *blueprint.OperationContext, op any) blueprint.OperationResult {
	if len(ctx.Values) == 0 {
		return nil
	}
	if dec == nil {
		dec = schema.NewDecoder()
		dec.IgnoreUnknownKeys(true)
	}
	if err := dec.Decode(op, ctx.Values); err != nil {
		return blueprint.NewErrorResult(blueprint.Errorf(blueprint.CodeInvalidArgument, "invalid parameters: %v", err))
	}
	return nil
}
