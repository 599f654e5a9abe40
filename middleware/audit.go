package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/pipeline"
)

// AuditRecord describes one executed operation.
type AuditRecord struct {
	Operation     string
	OperationType string
	Nested        bool
	Success       bool
	// Outcome is the result type, e.g. "*blueprint.OkResult".
	Outcome   string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// AuditWriter stores audit records. Register one in the service container
// when any operation is marked for auditing.
type AuditWriter interface {
	WriteAudit(ctx context.Context, r AuditRecord) error
}

type auditBuilder struct{}

// Auditing records the outcome of operations marked ShouldAudit with the
// AuditWriter from the container. Building fails if there is none.
func Auditing() pipeline.MiddlewareBuilder {
	return auditBuilder{}
}

func (auditBuilder) Matches(d *blueprint.OperationDescriptor) bool { return d.ShouldAudit }

func (auditBuilder) SupportsNestedExecution() bool { return true }

func (auditBuilder) Build(ctx *pipeline.BuilderContext) error {
	w, err := pipeline.FromContainer[AuditWriter](ctx)
	if err != nil {
		return fmt.Errorf("auditing %s: %w", ctx.Descriptor.Name, err)
	}
	ctx.RegisterFinallyFrames(codegen.CallFunc(WriteAudit, w, ctx.Context, ctx.Result))
	return nil
}

// NewAuditRecord describes the execution of ctx that produced result.
func NewAuditRecord(ctx *blueprint.OperationContext, result blueprint.OperationResult) AuditRecord {
	r := AuditRecord{
		Nested:    ctx.IsNested,
		StartedAt: ctx.StartedAt,
		Duration:  time.Since(ctx.StartedAt),
		Outcome:   fmt.Sprintf("%T", result),
		Success:   true,
	}
	if ctx.Descriptor != nil {
		r.Operation = ctx.Descriptor.Name
		r.OperationType = ctx.Descriptor.OperationType().String()
	}
	if result != nil {
		if err := result.Err(); err != nil {
			r.Success = false
			r.Error = err.Error()
		}
	}
	return r
}

// WriteAudit writes the audit record of the operation in ctx. Write failures
// are logged and do not change the result.
func WriteAudit(w AuditWriter, ctx *blueprint.OperationContext, result blueprint.OperationResult) {
	r := NewAuditRecord(ctx, result)
	if err := w.WriteAudit(ctx, r); err != nil {
		ctx.Logger().ErrorContext(ctx, "writing audit record failed",
			slog.String("operation", r.Operation),
			slog.Any("error", err))
	}
}
