// Package middleware provides the standard pipeline builders: handler
// invocation, input population and validation, API error mapping, operation
// logging and auditing.
//
// Builders contribute frames that call the exported functions of this package,
// so generated pipeline source imports it.
package middleware

import (
	"fmt"
	"reflect"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/pipeline"
)

var invokerType = reflect.TypeFor[blueprint.Invoker]()

type handlerBuilder struct{}

// Handler calls the operation's handler and returns its value as the result.
// Operations implementing blueprint.Invoker handle themselves; all others
// use the blueprint.Handler registered for them. It should be the last
// builder.
func Handler() pipeline.MiddlewareBuilder {
	return handlerBuilder{}
}

func (handlerBuilder) Matches(*blueprint.OperationDescriptor) bool { return true }

func (handlerBuilder) SupportsNestedExecution() bool { return true }

func (handlerBuilder) Build(ctx *pipeline.BuilderContext) error {
	d := ctx.Descriptor

	var value *codegen.Variable
	switch {
	case d.ValueType().Implements(invokerType):
		call := codegen.Call(ctx.Operation, "Invoke", ctx.Context).Named("value")
		ctx.AppendFrames(call)
		value = call.Result()

	case d.AllowMultipleHandlers:
		handlers, err := ctx.VariableFromContainer(reflect.SliceOf(d.HandlerType()))
		if err != nil {
			return err
		}
		call := codegen.CallFunc(HandleAll, ctx.Context, handlers, ctx.Operation).Named("value")
		ctx.AppendFrames(call)
		value = call.Result()

	default:
		h, err := ctx.VariableFromContainer(d.HandlerType())
		if err != nil {
			return fmt.Errorf("no handler for %s: %w", d.Name, err)
		}
		call := codegen.Call(h, "Handle", ctx.Context, ctx.Operation).Named("value")
		ctx.AppendFrames(call)
		value = call.Result()
	}

	toResult := any(blueprint.ResultOf)
	if d.RequiresReturnValue {
		toResult = RequiredResultOf
	}
	res := codegen.CallFunc(toResult, value).Named("opResult")
	ctx.AppendFrames(res, codegen.Return(res.Result()))
	return nil
}

// HandleAll calls every handler in handlers, a slice of blueprint.Handler
// values, in order and returns the last non-nil value. It stops at the first
// error.
func HandleAll(ctx *blueprint.OperationContext, handlers any, op any) (any, error) {
	hs := reflect.ValueOf(handlers)
	if hs.Kind() != reflect.Slice {
		return nil, fmt.Errorf("middleware: handlers is %T, not a slice", handlers)
	}
	args := []reflect.Value{reflect.ValueOf(ctx), reflect.ValueOf(op)}
	var last any
	for i := 0; i < hs.Len(); i++ {
		h := hs.Index(i)
		if h.IsNil() {
			continue
		}
		out := h.MethodByName("Handle").Call(args)
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, err
		}
		if v := out[0].Interface(); v != nil {
			last = v
		}
	}
	return last, nil
}

// RequiredResultOf is blueprint.ResultOf for operations that must return a
// value: nil becomes a not found error result.
func RequiredResultOf(v any) blueprint.OperationResult {
	if v == nil {
		return blueprint.NewErrorResult(blueprint.NewError(blueprint.CodeNotFound, "not found"))
	}
	return blueprint.ResultOf(v)
}
