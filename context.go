package blueprint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"reflect"
	"time"

	"github.com/broady/blueprint/di"
)

// OperationExecutor runs the pipeline for an operation context.
// The error return is reserved for configuration failures such as a missing
// pipeline or an unresolvable dependency; operation failures are results.
type OperationExecutor interface {
	Execute(ctx *OperationContext) (OperationResult, error)
}

// OperationContext carries one operation through its pipeline.
// It embeds the context.Context whose cancellation signals that the operation
// was cancelled; nested contexts inherit it.
type OperationContext struct {
	context.Context

	Descriptor *OperationDescriptor
	Operation  any
	Services   di.ServiceProvider
	DataModel  *DataModel
	Executor   OperationExecutor

	// IsNested is true when the operation is executed by another operation.
	IsNested bool
	Parent   *OperationContext

	// Values holds raw request values used to populate the operation.
	Values url.Values

	// Data is free-form state shared by the middleware of one execution.
	Data map[string]any

	StartedAt time.Time

	logger *slog.Logger
}

// NewOperationContext creates a top-level context for op.
func NewOperationContext(ctx context.Context, model *DataModel, services di.ServiceProvider, op any) (*OperationContext, error) {
	if op == nil {
		return nil, fmt.Errorf("blueprint: nil operation")
	}
	d, err := model.FindOperation(reflect.TypeOf(op))
	if err != nil {
		return nil, err
	}
	return &OperationContext{
		Context:    ctx,
		Descriptor: d,
		Operation:  op,
		Services:   services,
		DataModel:  model,
		Data:       map[string]any{},
		StartedAt:  time.Now(),
	}, nil
}

// CreateNested creates a context for executing op on behalf of c.
// Services, executor, logger and cancellation are shared with c.
func (c *OperationContext) CreateNested(op any) (*OperationContext, error) {
	nested, err := NewOperationContext(c.Context, c.DataModel, c.Services, op)
	if err != nil {
		return nil, err
	}
	nested.IsNested = true
	nested.Parent = c
	nested.Executor = c.Executor
	nested.logger = c.logger
	return nested, nil
}

// ExecuteNested runs op as a child of c and returns its result.
func (c *OperationContext) ExecuteNested(op any) (OperationResult, error) {
	if c.Executor == nil {
		return nil, ErrNoExecutor
	}
	nested, err := c.CreateNested(op)
	if err != nil {
		return nil, err
	}
	return c.Executor.Execute(nested)
}

// Logger returns the logger for this operation, or slog.Default().
func (c *OperationContext) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

// SetLogger sets the logger used by Logger.
func (c *OperationContext) SetLogger(logger *slog.Logger) {
	c.logger = logger
}

// LogUnhandledError reports an error that escaped every middleware.
// Generated pipelines call it before converting the error into a result.
func LogUnhandledError(ctx *OperationContext, err error) {
	attrs := []any{
		slog.Any("error", err),
		slog.Bool("nested", ctx.IsNested),
	}
	if ctx.Descriptor != nil {
		attrs = append(attrs, slog.String("operation", ctx.Descriptor.Name))
	}
	var pe *PanicError
	if errors.As(err, &pe) {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	ctx.Logger().ErrorContext(ctx, "unhandled operation error", attrs...)
}
