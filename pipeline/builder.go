// Package pipeline generates an execution pipeline for every operation of a
// data model and dispatches operations to them.
//
// Each operation gets one generated type with two methods, Execute and
// ExecuteNested. A method casts the operation, runs the frames contributed by
// the matching middleware builders inside a guarded block, converts any error
// or panic into a result, then runs the registered finally frames.
//
// The generated type is both rendered as Go source, which registers a static
// constructor when compiled into the binary, and compiled in memory. The
// Strategy in Options picks which one an Executor uses.
package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/di"
	"github.com/broady/blueprint/sink"
)

var (
	contextType  = reflect.TypeFor[*blueprint.OperationContext]()
	resultType   = reflect.TypeFor[blueprint.OperationResult]()
	pipelineType = reflect.TypeFor[blueprint.Pipeline]()
	providerType = reflect.TypeFor[di.ServiceProvider]()
	errorType    = reflect.TypeFor[error]()
)

// ExecutorBuilder generates and compiles the pipelines of a data model.
type ExecutorBuilder struct {
	builders []MiddlewareBuilder
	registry *StaticRegistry
	store    sink.Store
	cache    *CompileCache
}

// NewExecutorBuilder creates a builder running the given middleware builders
// in order.
func NewExecutorBuilder(builders ...MiddlewareBuilder) *ExecutorBuilder {
	return &ExecutorBuilder{builders: builders, registry: DefaultStaticRegistry}
}

// WithStaticRegistry sets where compiled-in pipelines are looked up.
// Defaults to DefaultStaticRegistry.
func (b *ExecutorBuilder) WithStaticRegistry(r *StaticRegistry) *ExecutorBuilder {
	b.registry = r
	return b
}

// WithStore sets the store for generated source. Defaults to a
// FilesystemSink on Options.GeneratedCodeFolder.
func (b *ExecutorBuilder) WithStore(s sink.Store) *ExecutorBuilder {
	b.store = s
	return b
}

// WithCache sets the cache of in-memory compiled types.
func (b *ExecutorBuilder) WithCache(c *CompileCache) *ExecutorBuilder {
	b.cache = c
	return b
}

// Generation is the generated code for a data model.
type Generation struct {
	Options  blueprint.Options
	Assembly *codegen.GeneratedAssembly
	Types    []*PipelineType
}

// Type returns the pipeline type of an operation type, or nil.
func (g *Generation) Type(operationType reflect.Type) *PipelineType {
	for _, pt := range g.Types {
		if pt.OperationType == operationType {
			return pt
		}
	}
	return nil
}

// Generate builds and renders the pipeline of every operation in model.
func (b *ExecutorBuilder) Generate(model *blueprint.DataModel, services di.RegistrationSource, opts blueprint.Options) (*Generation, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.ApplyDefaults()

	asm := codegen.NewAssembly(opts.GeneratedPackage, "", opts.ApplicationName)
	provider := NewInstanceFrameProvider(services)
	gen := &Generation{Options: opts, Assembly: asm}
	owners := make(map[string]reflect.Type)

	for _, d := range model.Operations() {
		name := PipelineTypeName(d.OperationType())
		if other, dup := owners[name]; dup {
			return nil, fmt.Errorf("pipeline: operations %s and %s both map to pipeline type %s", other, d.OperationType(), name)
		}
		owners[name] = d.OperationType()

		var matched []MiddlewareBuilder
		for _, mb := range b.builders {
			if mb.Matches(d) {
				matched = append(matched, mb)
			}
		}

		typ := asm.AddType(name, pipelineType)
		typ.Reserve("sp", constructorName(name))
		typ.Epilogue = codegen.RendererFunc(renderRegistration)
		for _, nested := range []bool{false, true} {
			if err := buildMethod(typ, provider, d, matched, nested, opts); err != nil {
				return nil, err
			}
		}

		src, err := asm.GenerateCode(typ)
		if err != nil {
			return nil, fmt.Errorf("pipeline: render %s: %w", name, err)
		}
		gen.Types = append(gen.Types, &PipelineType{
			OperationType: d.OperationType(),
			Name:          name,
			Generated:     typ,
			Source:        src,
		})
	}
	return gen, nil
}

// Build generates the pipelines of model and compiles them with the strategy
// in opts. In ModePrecompile the sources are written and the returned
// executor refuses to execute.
func (b *ExecutorBuilder) Build(ctx context.Context, model *blueprint.DataModel, services *di.Container, opts blueprint.Options) (*Executor, error) {
	gen, err := b.Generate(model, services, opts)
	if err != nil {
		return nil, err
	}
	opts = gen.Options
	logger := opts.Logger

	store := b.store
	if store == nil {
		store = sink.NewFilesystemSink(opts.GeneratedCodeFolder)
	}

	var report CompileReport
	precompiled := opts.Mode == blueprint.ModePrecompile
	if precompiled {
		report, err = gen.Write(ctx, store)
	} else {
		report, err = b.strategy(opts, store).Compile(ctx, gen.Types)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("pipelines built",
		"mode", opts.Mode,
		"strategy", opts.Strategy,
		"types", len(gen.Types),
		"skipped", len(report.Skipped),
		"compiled", len(report.Compiled),
		"written", len(report.Written),
		"removed", len(report.Removed))

	e := &Executor{
		model:       model,
		container:   services,
		logger:      logger,
		precompiled: precompiled,
		report:      report,
		factories:   make(map[reflect.Type]func() (Factory, error), len(gen.Types)),
		sources:     make(map[reflect.Type]string, len(gen.Types)),
	}
	for _, pt := range gen.Types {
		e.sources[pt.OperationType] = string(pt.Source.Content)
		if pt.load != nil {
			e.factories[pt.OperationType] = sync.OnceValues(pt.load)
		}
	}
	return e, nil
}

func (b *ExecutorBuilder) strategy(opts blueprint.Options, store sink.Store) Strategy {
	switch opts.Strategy {
	case blueprint.StrategyStatic:
		return &StaticStrategy{Registry: b.registry}
	case blueprint.StrategyInMemory:
		return &InMemoryStrategy{Cache: b.cache}
	default:
		return &AutoStrategy{
			Store:               store,
			Registry:            b.registry,
			Cache:               b.cache,
			Generator:           opts.ApplicationName,
			ThrowOnSourceChange: opts.ThrowOnSourceChange,
			Logger:              opts.Logger,
		}
	}
}

// buildMethod generates Execute, or ExecuteNested when nested is set.
func buildMethod(typ *codegen.GeneratedType, provider *InstanceFrameProvider, d *blueprint.OperationDescriptor, matched []MiddlewareBuilder, nested bool, opts blueprint.Options) error {
	name := "Execute"
	if nested {
		name = "ExecuteNested"
	}
	ctxVar := codegen.Argument("ctx", contextType)
	m := typ.AddMethod(name, resultType, ctxVar)
	m.OnFailure = blueprint.NewUnhandledErrorResult

	try := codegen.NewTryFrame(blueprint.RecoverError)
	m.Body.Append(try)
	cast := codegen.Cast(codegen.Member(ctxVar, "Operation"), d.ValueType(), "op")
	try.Body.Append(cast)

	bc := &BuilderContext{
		Descriptor: d,
		IsNested:   nested,
		Options:    opts,
		Type:       typ,
		Method:     m,
		Context:    ctxVar,
		Operation:  cast.Out,
		Result:     m.Result,
		provider:   provider,
		services:   codegen.Member(ctxVar, "Services"),
		try:        try,
		cache:      make(map[reflect.Type]*codegen.Variable),
	}

	bc.RegisterErrorHandler(errorType, func(err *codegen.Variable) []codegen.Frame {
		return []codegen.Frame{codegen.CallFunc(blueprint.LogUnhandledError, ctxVar, err)}
	})
	for _, mb := range matched {
		if nested && !mb.SupportsNestedExecution() {
			continue
		}
		if err := runBuilder(mb, bc); err != nil {
			return fmt.Errorf("pipeline: %s.%s: %T: %w", typ.Name, name, mb, err)
		}
	}
	bc.RegisterErrorHandler(errorType, func(err *codegen.Variable) []codegen.Frame {
		call := codegen.CallFunc(blueprint.UnhandledErrorResultOr, bc.Result, err)
		return []codegen.Frame{call, codegen.Return(call.Result())}
	})
	bc.finish()
	return nil
}

// runBuilder runs mb, reporting frame construction panics as errors.
func runBuilder(mb MiddlewareBuilder, bc *BuilderContext) (err error) {
	defer blueprint.RecoverError(&err)
	return mb.Build(bc)
}

func constructorName(typeName string) string {
	return "new" + typeName
}

// renderRegistration writes the init function registering the type with
// RegisterStatic and the constructor resolving its injected fields.
func renderRegistration(t *codegen.GeneratedType, w *codegen.SourceWriter, fingerprint string) error {
	ctor := constructorName(t.Name)
	w.Line("func init() {")
	w.Indent()
	w.Line("%s(%q, %q, %s)", w.Func(RegisterStatic), t.Name, fingerprint, ctor)
	w.Dedent()
	w.Line("}")
	w.Line("")
	w.Line("func %s(sp %s) (%s, error) {", ctor, w.Type(providerType), w.Type(pipelineType))
	w.Indent()
	w.Line("p := &%s{}", t.Name)
	if fields := t.Fields(); len(fields) > 0 {
		w.Line("var err error")
		get := w.Qualify(diPackage, "Get")
		for _, f := range fields {
			w.Line("if p.%s, err = %s[%s](sp); err != nil {", f.Name, get, w.Type(f.Type))
			w.Indent()
			w.Line("return nil, err")
			w.Dedent()
			w.Line("}")
		}
	}
	w.Line("return p, nil")
	w.Dedent()
	w.Line("}")
	return nil
}
