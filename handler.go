package blueprint

// Handler handles operations of type T. T is *Op for struct operations and the
// interface itself for interface operations.
//
// Handlers are resolved from the service container by generated pipelines; a
// handler registered as a singleton is injected once per pipeline instance.
type Handler[T any] interface {
	Handle(ctx *OperationContext, op T) (any, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc[T any] func(ctx *OperationContext, op T) (any, error)

// Handle calls f(ctx, op).
func (f HandlerFunc[T]) Handle(ctx *OperationContext, op T) (any, error) {
	return f(ctx, op)
}

// Invoker is implemented by operations that handle themselves.
// The handler middleware calls Invoke instead of resolving a Handler.
type Invoker interface {
	Invoke(ctx *OperationContext) (any, error)
}

// Pipeline is implemented by every generated pipeline type.
type Pipeline interface {
	// Execute runs the operation as a top-level request.
	Execute(ctx *OperationContext) OperationResult

	// ExecuteNested runs the operation on behalf of another operation.
	ExecuteNested(ctx *OperationContext) OperationResult
}
