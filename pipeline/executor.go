package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/di"
)

// ErrPrecompileOnly is returned by an Executor built in precompile mode.
var ErrPrecompileOnly = errors.New("pipeline: executor was built in precompile mode")

// Executor dispatches operations to their pipelines. Its maps are written
// only during Build, so it is safe for concurrent use.
type Executor struct {
	model       *blueprint.DataModel
	container   *di.Container
	logger      *slog.Logger
	precompiled bool
	report      CompileReport

	factories map[reflect.Type]func() (Factory, error)
	sources   map[reflect.Type]string
}

var _ blueprint.OperationExecutor = (*Executor)(nil)

// Execute runs the pipeline of ctx.Operation. Nested contexts run
// ExecuteNested. The error return reports configuration failures, such as a
// pipeline whose dependencies cannot be resolved; operation failures are
// results.
func (e *Executor) Execute(ctx *blueprint.OperationContext) (blueprint.OperationResult, error) {
	if e.precompiled {
		return nil, ErrPrecompileOnly
	}
	if ctx.Executor == nil {
		ctx.Executor = e
	}
	if ctx.Services == nil {
		ctx.Services = e.container
	}
	if ctx.DataModel == nil {
		ctx.DataModel = e.model
	}
	if ctx.Descriptor == nil {
		d, err := e.model.FindOperation(reflect.TypeOf(ctx.Operation))
		if err != nil {
			return nil, err
		}
		ctx.Descriptor = d
	}

	load, ok := e.factories[ctx.Descriptor.OperationType()]
	if !ok {
		return nil, &MissingPipelineError{Types: []string{PipelineTypeName(ctx.Descriptor.OperationType())}}
	}
	factory, err := load()
	if err != nil {
		return nil, err
	}
	p, err := factory(ctx.Services)
	if err != nil {
		return nil, fmt.Errorf("pipeline: create pipeline for %s: %w", ctx.Descriptor.Name, err)
	}

	var result blueprint.OperationResult
	if ctx.IsNested {
		result = p.ExecuteNested(ctx)
	} else {
		result = p.Execute(ctx)
	}
	if result == nil {
		result = blueprint.NoContent
	}
	return result, nil
}

// ExecuteWithNewScope runs op in a new service scope, for work that has no
// surrounding request.
func (e *Executor) ExecuteWithNewScope(ctx context.Context, op any) (blueprint.OperationResult, error) {
	scope := e.container.CreateScope()
	defer func() {
		if err := scope.Close(); err != nil {
			e.logger.WarnContext(ctx, "closing operation scope", "error", err)
		}
	}()

	octx, err := blueprint.NewOperationContext(ctx, e.model, scope, op)
	if err != nil {
		return nil, err
	}
	octx.Executor = e
	octx.SetLogger(e.logger)
	return e.Execute(octx)
}

// WhatCodeDidIGenerateFor returns the generated source of the pipeline that
// handles operations of type t, or "" if there is none.
func (e *Executor) WhatCodeDidIGenerateFor(t reflect.Type) string {
	d, ok := e.model.TryFindOperation(t)
	if !ok {
		return ""
	}
	return e.sources[d.OperationType()]
}

// Report returns what the compilation strategy did.
func (e *Executor) Report() CompileReport {
	return e.report
}

// DataModel returns the model the executor was built from.
func (e *Executor) DataModel() *blueprint.DataModel {
	return e.model
}

// Container returns the service container operations resolve from.
func (e *Executor) Container() *di.Container {
	return e.container
}
