package middleware

import (
	"log/slog"
	"time"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/pipeline"
)

type loggingBuilder struct{}

// Logging logs the start and end of operations that record performance
// metrics, including duration and error status.
func Logging() pipeline.MiddlewareBuilder {
	return loggingBuilder{}
}

func (loggingBuilder) Matches(d *blueprint.OperationDescriptor) bool {
	return d.RecordPerformanceMetrics
}

func (loggingBuilder) SupportsNestedExecution() bool { return true }

func (loggingBuilder) Build(ctx *pipeline.BuilderContext) error {
	ctx.AppendFrames(codegen.CallFunc(LogOperationStarted, ctx.Context))
	ctx.RegisterFinallyFrames(codegen.CallFunc(LogOperation, ctx.Context, ctx.Result))
	return nil
}

func operationAttrs(ctx *blueprint.OperationContext) []any {
	name := ""
	if ctx.Descriptor != nil {
		name = ctx.Descriptor.Name
	}
	return []any{
		slog.String("operation", name),
		slog.Bool("nested", ctx.IsNested),
	}
}

// LogOperationStarted logs that the operation in ctx started.
func LogOperationStarted(ctx *blueprint.OperationContext) {
	ctx.Logger().InfoContext(ctx, "operation started", operationAttrs(ctx)...)
}

// LogOperation logs the outcome of the operation in ctx.
func LogOperation(ctx *blueprint.OperationContext, result blueprint.OperationResult) {
	attrs := append(operationAttrs(ctx), slog.Duration("duration", time.Since(ctx.StartedAt)))
	var err error
	if result != nil {
		err = result.Err()
	}
	if err != nil {
		ctx.Logger().ErrorContext(ctx, "operation failed", append(attrs, slog.Any("error", err))...)
		return
	}
	ctx.Logger().InfoContext(ctx, "operation completed", attrs...)
}
