package pipeline

import (
	"reflect"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
)

// MiddlewareBuilder contributes frames to the pipelines of the operations it
// matches. Builders run in the order they are given to NewExecutorBuilder.
type MiddlewareBuilder interface {
	// Matches reports whether the builder applies to an operation. It is
	// called once per operation.
	Matches(d *blueprint.OperationDescriptor) bool

	// Build appends the builder's frames.
	Build(ctx *BuilderContext) error

	// SupportsNestedExecution reports whether the builder also applies when
	// the operation runs nested inside another operation.
	SupportsNestedExecution() bool
}

// ErrorHandler returns the frames handling a caught error held in err.
type ErrorHandler func(err *codegen.Variable) []codegen.Frame

type errorHandler struct {
	typ     reflect.Type
	handler ErrorHandler
}

// BuilderContext is the state of one generated pipeline method while
// middleware builders add to it.
type BuilderContext struct {
	Descriptor *blueprint.OperationDescriptor
	IsNested   bool
	Options    blueprint.Options

	Type   *codegen.GeneratedType
	Method *codegen.GeneratedMethod

	// Context is the *blueprint.OperationContext argument.
	Context *codegen.Variable
	// Operation is the operation, asserted to the descriptor's value type.
	Operation *codegen.Variable
	// Result is the method's blueprint.OperationResult.
	Result *codegen.Variable

	provider *InstanceFrameProvider
	services *codegen.Variable
	try      *codegen.TryFrame
	handlers []errorHandler
	finally  []codegen.Frame
	cache    map[reflect.Type]*codegen.Variable
}

// AppendFrames adds frames to the guarded body of the method, after those
// added so far.
func (c *BuilderContext) AppendFrames(frames ...codegen.Frame) {
	c.try.Body.Append(frames...)
}

// RegisterErrorHandler adds a handler for errors matching errType, which is
// either the error interface, meaning any error, or a concrete error type
// matched with errors.As. Only the first matching type handles an error;
// handlers for the same type run in registration order.
func (c *BuilderContext) RegisterErrorHandler(errType reflect.Type, h ErrorHandler) {
	c.handlers = append(c.handlers, errorHandler{typ: errType, handler: h})
}

// RegisterFinallyFrames adds frames that run after the guarded body and any
// error handling.
func (c *BuilderContext) RegisterFinallyFrames(frames ...codegen.Frame) {
	c.finally = append(c.finally, frames...)
}

// VariableFromContainer returns a variable holding a service of type t,
// failing if nothing provides it. Variables are shared within the method.
func (c *BuilderContext) VariableFromContainer(t reflect.Type) (*codegen.Variable, error) {
	if v, ok := c.cache[t]; ok && v != nil {
		return v, nil
	}
	v, err := c.provider.VariableFromContainer(c.Type, c.services, t)
	if err != nil {
		return nil, err
	}
	c.cache[t] = v
	return v, nil
}

// TryGetVariableFromContainer is like VariableFromContainer but returns nil
// when nothing provides t.
func (c *BuilderContext) TryGetVariableFromContainer(t reflect.Type) (*codegen.Variable, error) {
	if v, ok := c.cache[t]; ok {
		return v, nil
	}
	v, err := c.provider.TryGetVariableFromContainer(c.Type, c.services, t)
	if err != nil {
		return nil, err
	}
	c.cache[t] = v
	return v, nil
}

// FromContainer is VariableFromContainer for type T.
func FromContainer[T any](c *BuilderContext) (*codegen.Variable, error) {
	return c.VariableFromContainer(reflect.TypeFor[T]())
}

// TryFromContainer is TryGetVariableFromContainer for type T.
func TryFromContainer[T any](c *BuilderContext) (*codegen.Variable, error) {
	return c.TryGetVariableFromContainer(reflect.TypeFor[T]())
}

// finish attaches the registered error handlers and finally frames.
func (c *BuilderContext) finish() {
	for _, h := range c.handlers {
		catch := c.try.AddCatch(h.typ, "")
		catch.Body.Append(h.handler(catch.Var)...)
	}
	c.Method.Body.Append(c.finally...)
}
