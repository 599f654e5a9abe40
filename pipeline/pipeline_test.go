package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"testing"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/di"
	"github.com/broady/blueprint/pipeline"
	"github.com/broady/blueprint/sink"
)

type EchoQuery struct {
	Text string
}

type CountCommand struct {
	Text string
}

type Page[T any] struct{ Items []T }

type Page__int struct{}

// Journal records the operations whose top-level pipelines finished.
type Journal struct {
	entries []string
}

// Record is called from a finally frame.
func Record(j *Journal, ctx *blueprint.OperationContext) {
	j.entries = append(j.entries, ctx.Descriptor.Name)
}

func echo(_ *blueprint.OperationContext, q *EchoQuery) (any, error) {
	switch q.Text {
	case "fail":
		return nil, errors.New("bad")
	case "missing":
		return nil, blueprint.NewError(blueprint.CodeNotFound, "no such text")
	case "panic":
		panic("boom")
	}
	return strings.ToUpper(q.Text), nil
}

func count(ctx *blueprint.OperationContext, c *CountCommand) (any, error) {
	r, err := ctx.ExecuteNested(&EchoQuery{Text: c.Text})
	if err != nil {
		return nil, err
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	return len(r.(*blueprint.OkResult).Content.(string)), nil
}

type handlerBuilder struct{}

func (handlerBuilder) Matches(*blueprint.OperationDescriptor) bool { return true }
func (handlerBuilder) SupportsNestedExecution() bool               { return true }

func (handlerBuilder) Build(ctx *pipeline.BuilderContext) error {
	h, err := ctx.VariableFromContainer(ctx.Descriptor.HandlerType())
	if err != nil {
		return err
	}
	call := codegen.Call(h, "Handle", ctx.Context, ctx.Operation).Named("value")
	res := codegen.CallFunc(blueprint.ResultOf, call.Result()).Named("opResult")
	ctx.AppendFrames(call, res, codegen.Return(res.Result()))
	return nil
}

type apiErrorBuilder struct{}

func (apiErrorBuilder) Matches(*blueprint.OperationDescriptor) bool { return true }
func (apiErrorBuilder) SupportsNestedExecution() bool               { return true }

func (apiErrorBuilder) Build(ctx *pipeline.BuilderContext) error {
	ctx.RegisterErrorHandler(reflect.TypeFor[*blueprint.Error](), func(err *codegen.Variable) []codegen.Frame {
		call := codegen.CallFunc(blueprint.NewErrorResult, err)
		return []codegen.Frame{call, codegen.Return(call.Result())}
	})
	return nil
}

type journalBuilder struct{}

func (journalBuilder) Matches(d *blueprint.OperationDescriptor) bool {
	return d.RecordPerformanceMetrics
}

func (journalBuilder) SupportsNestedExecution() bool { return false }

func (journalBuilder) Build(ctx *pipeline.BuilderContext) error {
	j, err := pipeline.FromContainer[*Journal](ctx)
	if err != nil {
		return err
	}
	ctx.RegisterFinallyFrames(codegen.CallFunc(Record, j, ctx.Context))
	return nil
}

type panickyBuilder struct{}

func (panickyBuilder) Matches(*blueprint.OperationDescriptor) bool { return true }
func (panickyBuilder) SupportsNestedExecution() bool               { return true }

func (panickyBuilder) Build(ctx *pipeline.BuilderContext) error {
	ctx.AppendFrames(codegen.Call(ctx.Operation, "NoSuchMethod"))
	return nil
}

type User struct{ Name string }

type Admins []User

type Members []User

// Roster records the sizes of the two user lists a pipeline was given.
func Roster(j *Journal, a Admins, m Members) {
	j.entries = append(j.entries, fmt.Sprintf("admins=%d members=%d", len(a), len(m)))
}

type rosterBuilder struct{}

func (rosterBuilder) Matches(*blueprint.OperationDescriptor) bool { return true }
func (rosterBuilder) SupportsNestedExecution() bool               { return false }

func (rosterBuilder) Build(ctx *pipeline.BuilderContext) error {
	j, err := pipeline.FromContainer[*Journal](ctx)
	if err != nil {
		return err
	}
	a, err := pipeline.FromContainer[Admins](ctx)
	if err != nil {
		return err
	}
	m, err := pipeline.FromContainer[Members](ctx)
	if err != nil {
		return err
	}
	ctx.AppendFrames(codegen.CallFunc(Roster, j, a, m))
	return nil
}

// Stamp is a scoped service used by both the guarded body and a finally frame.
type Stamp struct{}

func Touch(*Stamp) {}

func Seal(j *Journal, s *Stamp) {
	j.entries = append(j.entries, fmt.Sprintf("sealed %t", s != nil))
}

type stampBuilder struct{}

func (stampBuilder) Matches(*blueprint.OperationDescriptor) bool { return true }
func (stampBuilder) SupportsNestedExecution() bool               { return false }

func (stampBuilder) Build(ctx *pipeline.BuilderContext) error {
	j, err := pipeline.FromContainer[*Journal](ctx)
	if err != nil {
		return err
	}
	s, err := pipeline.FromContainer[*Stamp](ctx)
	if err != nil {
		return err
	}
	ctx.AppendFrames(codegen.CallFunc(Touch, s))
	ctx.RegisterFinallyFrames(codegen.CallFunc(Seal, j, s))
	return nil
}

func newModel(t *testing.T, countOpts ...blueprint.DescriptorOption) *blueprint.DataModel {
	t.Helper()
	m := blueprint.NewDataModel()
	for _, d := range []*blueprint.OperationDescriptor{
		blueprint.MustDescribe[EchoQuery]("pipeline_test.go", blueprint.RecordMetrics()),
		blueprint.MustDescribe[CountCommand]("pipeline_test.go", countOpts...),
	} {
		if err := m.RegisterOperation(d); err != nil {
			t.Fatal(err)
		}
	}
	return m
}

func newServices(j *Journal) *di.ServiceCollection {
	services := di.NewServiceCollection()
	di.AddValue[blueprint.Handler[*EchoQuery]](services, blueprint.HandlerFunc[*EchoQuery](echo))
	di.AddScoped(services, func(di.ServiceProvider) (blueprint.Handler[*CountCommand], error) {
		return blueprint.HandlerFunc[*CountCommand](count), nil
	})
	di.AddValue(services, j)
	return services
}

func testOptions(strategy blueprint.Strategy) blueprint.Options {
	return blueprint.Options{
		ApplicationName: "blueprint-test",
		Strategy:        strategy,
		Logger:          slog.New(slog.DiscardHandler),
	}
}

func TestPipelineTypeName(t *testing.T) {
	tests := []struct {
		typ  reflect.Type
		want string
	}{
		{reflect.TypeFor[EchoQuery](), "Pipeline_test_EchoQueryPipeline"},
		{reflect.TypeFor[blueprint.OkResult](), "Blueprint_OkResultPipeline"},
		{reflect.TypeFor[Page[int]](), "Pipeline_test_Page__intPipeline"},
		{reflect.TypeFor[Page[*EchoQuery]](), "Pipeline_test_Page__Ptrgithub_com_broady_blueprint_pipeline_test_EchoQueryPipeline"},
	}
	for _, tt := range tests {
		if got := pipeline.PipelineTypeName(tt.typ); got != tt.want {
			t.Errorf("PipelineTypeName(%s) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestStaticRegistry(t *testing.T) {
	r := pipeline.NewStaticRegistry()
	factory := func(di.ServiceProvider) (blueprint.Pipeline, error) { return nil, nil }
	r.Register("B", "fp-b", factory)
	r.Register("A", "fp-a", factory)

	e, ok := r.Lookup("A")
	if !ok || e.Fingerprint != "fp-a" {
		t.Errorf("Lookup(A) = %+v, %v", e, ok)
	}
	if _, ok := r.Lookup("C"); ok {
		t.Error("Lookup(C) found an entry")
	}
	if got := r.Names(); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("Names = %v", got)
	}

	for name, fn := range map[string]func(){
		"duplicate":   func() { r.Register("A", "fp", factory) },
		"nil factory": func() { r.Register("D", "fp", nil) },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: expected a panic", name)
				}
			}()
			fn()
		}()
	}
}

func TestInstanceFrameProvider(t *testing.T) {
	type Clock interface{ Now() int }
	type journal struct{}

	services := di.NewServiceCollection()
	di.AddValue(services, &Journal{})
	di.AddValue(services, journal{})
	di.AddValue[Clock](services, nil)
	di.AddValue[Clock](services, nil)
	di.AddScoped(services, func(di.ServiceProvider) (*EchoQuery, error) { return &EchoQuery{}, nil })

	p := pipeline.NewInstanceFrameProvider(services)
	typ := codegen.NewAssembly("gen", "", "test").AddType("T")
	sp := codegen.Argument("sp", reflect.TypeFor[di.ServiceProvider]())

	j1, err := p.VariableFromContainer(typ, sp, reflect.TypeFor[*Journal]())
	if err != nil {
		t.Fatal(err)
	}
	if j1.Kind != codegen.KindField || j1.Name != "journal" {
		t.Errorf("lone singleton should be injected: %+v", j1)
	}
	j2, _ := p.VariableFromContainer(typ, sp, reflect.TypeFor[*Journal]())
	if j1 != j2 || len(typ.Fields()) != 1 {
		t.Error("injecting the same service twice should reuse the field")
	}

	var fc *codegen.FieldCollisionError
	if _, err := p.VariableFromContainer(typ, sp, reflect.TypeFor[journal]()); !errors.As(err, &fc) {
		t.Errorf("expected FieldCollisionError, got %v", err)
	}

	for _, st := range []reflect.Type{reflect.TypeFor[Clock](), reflect.TypeFor[*EchoQuery](), reflect.TypeFor[[]Clock]()} {
		v, err := p.VariableFromContainer(typ, sp, st)
		if err != nil {
			t.Fatal(err)
		}
		if _, ok := v.Creator.(*pipeline.GetServiceFrame); !ok || v.Kind != codegen.KindLocal {
			t.Errorf("%s should be resolved per call, got %+v", st, v)
		}
	}

	empty, err := p.VariableFromContainer(typ, sp, reflect.TypeFor[[]*CountCommand]())
	if err != nil {
		t.Fatal(err)
	}
	if empty.Kind != codegen.KindLiteral {
		t.Errorf("unprovided slice should be an empty literal, got %+v", empty)
	}

	if v, err := p.TryGetVariableFromContainer(typ, sp, reflect.TypeFor[*CountCommand]()); v != nil || err != nil {
		t.Errorf("TryGet of a missing service = %v, %v", v, err)
	}
	var missing *di.MissingServiceError
	if _, err := p.VariableFromContainer(typ, sp, reflect.TypeFor[*CountCommand]()); !errors.As(err, &missing) {
		t.Errorf("expected MissingServiceError, got %v", err)
	}
}

func TestExecuteInMemory(t *testing.T) {
	j := &Journal{}
	model := newModel(t, blueprint.RecordMetrics())
	b := pipeline.NewExecutorBuilder(apiErrorBuilder{}, journalBuilder{}, handlerBuilder{})
	exec, err := b.Build(context.Background(), model, newServices(j).Build(), testOptions(blueprint.StrategyInMemory))
	if err != nil {
		t.Fatal(err)
	}
	if got := exec.Report().Compiled; len(got) != 2 {
		t.Errorf("Compiled = %v", got)
	}
	ctx := context.Background()

	r, err := exec.ExecuteWithNewScope(ctx, &EchoQuery{Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if ok, isOk := r.(*blueprint.OkResult); !isOk || ok.Content != "HI" {
		t.Errorf("echo result = %#v", r)
	}

	r, _ = exec.ExecuteWithNewScope(ctx, &EchoQuery{Text: "missing"})
	if er, ok := r.(*blueprint.ErrorResult); !ok || er.Error.Code != blueprint.CodeNotFound {
		t.Errorf("API error result = %#v", r)
	}

	r, _ = exec.ExecuteWithNewScope(ctx, &EchoQuery{Text: "fail"})
	if !blueprint.IsUnhandled(r) || r.Err().Error() != "bad" {
		t.Errorf("unhandled result = %#v", r)
	}

	r, _ = exec.ExecuteWithNewScope(ctx, &EchoQuery{Text: "panic"})
	var pe *blueprint.PanicError
	if !blueprint.IsUnhandled(r) || !errors.As(r.Err(), &pe) || pe.Value != "boom" {
		t.Errorf("panic result = %#v", r)
	}

	r, _ = exec.ExecuteWithNewScope(ctx, &CountCommand{Text: "four"})
	if ok, isOk := r.(*blueprint.OkResult); !isOk || ok.Content != 4 {
		t.Errorf("count result = %#v", r)
	}

	// The journal only runs in top-level pipelines, and after failures too.
	want := []string{"Echo", "Echo", "Echo", "Echo", "Count"}
	if !reflect.DeepEqual(j.entries, want) {
		t.Errorf("journal = %v, want %v", j.entries, want)
	}

	if _, err := exec.ExecuteWithNewScope(ctx, &Journal{}); err == nil {
		t.Error("expected an error executing an unregistered type")
	}
}

func TestNamedSliceSingletons(t *testing.T) {
	j := &Journal{}
	services := newServices(j)
	di.AddValue(services, Admins{{Name: "ada"}})
	di.AddValue(services, Members{{Name: "bob"}, {Name: "cy"}})

	b := pipeline.NewExecutorBuilder(rosterBuilder{}, handlerBuilder{})
	exec, err := b.Build(context.Background(), newModel(t), services.Build(), testOptions(blueprint.StrategyInMemory))
	if err != nil {
		t.Fatalf("two named slice services should not collide: %v", err)
	}
	r, _ := exec.ExecuteWithNewScope(context.Background(), &EchoQuery{Text: "hi"})
	if r.Err() != nil {
		t.Fatal(r.Err())
	}
	if want := []string{"admins=1 members=2"}; !reflect.DeepEqual(j.entries, want) {
		t.Errorf("journal = %v, want %v", j.entries, want)
	}

	src := exec.WhatCodeDidIGenerateFor(reflect.TypeFor[EchoQuery]())
	for _, want := range []string{
		"di.Get[pipeline_test.Admins](sp)",
		"di.Get[pipeline_test.Members](sp)",
		"pipeline_test.Roster(p.journal, p.admins, p.members)",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated source missing %q:\n%s", want, src)
		}
	}
}

// A per-call service shared by the guarded body and a finally frame still
// fails inside the try, so the failure is logged and finally frames run.
func TestServiceResolvedInsideTry(t *testing.T) {
	j := &Journal{}
	services := newServices(j)
	di.AddScoped(services, func(di.ServiceProvider) (*Stamp, error) {
		return nil, errors.New("no stamp")
	})
	logs := &bytes.Buffer{}
	opts := testOptions(blueprint.StrategyInMemory)
	opts.Logger = slog.New(slog.NewTextHandler(logs, nil))

	b := pipeline.NewExecutorBuilder(stampBuilder{}, handlerBuilder{})
	exec, err := b.Build(context.Background(), newModel(t), services.Build(), opts)
	if err != nil {
		t.Fatal(err)
	}
	r, err := exec.ExecuteWithNewScope(context.Background(), &EchoQuery{Text: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	if !blueprint.IsUnhandled(r) || !strings.Contains(r.Err().Error(), "no stamp") {
		t.Errorf("result = %#v, want an unhandled no stamp error", r)
	}
	if want := []string{"sealed false"}; !reflect.DeepEqual(j.entries, want) {
		t.Errorf("journal = %v, want %v", j.entries, want)
	}
	if !strings.Contains(logs.String(), "unhandled operation error") {
		t.Errorf("failure not logged:\n%s", logs)
	}

	src := exec.WhatCodeDidIGenerateFor(reflect.TypeFor[EchoQuery]())
	decl := strings.Index(src, "var stamp *pipeline_test.Stamp")
	try := strings.Index(src, "if opErr := func() (err error) {")
	resolve := strings.Index(src, "stamp, err = di.Get[*pipeline_test.Stamp](ctx.Services)")
	if decl < 0 || try < 0 || resolve < 0 || decl > try || resolve < try {
		t.Errorf("stamp should be declared ahead of the try and resolved inside it:\n%s", src)
	}
}

func TestWhatCodeDidIGenerateFor(t *testing.T) {
	model := newModel(t)
	b := pipeline.NewExecutorBuilder(apiErrorBuilder{}, journalBuilder{}, handlerBuilder{})
	exec, err := b.Build(context.Background(), model, newServices(&Journal{}).Build(), testOptions(blueprint.StrategyInMemory))
	if err != nil {
		t.Fatal(err)
	}

	src := exec.WhatCodeDidIGenerateFor(reflect.TypeFor[*EchoQuery]())
	for _, want := range []string{
		"// Code generated by blueprint-test. DO NOT EDIT.",
		"package pipelines",
		"type Pipeline_test_EchoQueryPipeline struct {",
		"var _ blueprint.Pipeline = (*Pipeline_test_EchoQueryPipeline)(nil)",
		"func (p *Pipeline_test_EchoQueryPipeline) Execute(ctx *blueprint.OperationContext) (result blueprint.OperationResult) {",
		"func (p *Pipeline_test_EchoQueryPipeline) ExecuteNested(ctx *blueprint.OperationContext) (result blueprint.OperationResult) {",
		"defer blueprint.RecoverError(&err)",
		"op := ctx.Operation.(*pipeline_test.EchoQuery)",
		"value, err := p.handlerEchoQuery.Handle(ctx, op)",
		"errors.As(opErr, &blueprintErr)",
		"blueprint.LogUnhandledError(ctx, opErr)",
		"pipeline_test.Record(p.journal, ctx)",
		`pipeline.RegisterStatic("Pipeline_test_EchoQueryPipeline", "`,
		"func newPipeline_test_EchoQueryPipeline(sp di.ServiceProvider) (blueprint.Pipeline, error) {",
		"if p.journal, err = di.Get[*pipeline_test.Journal](sp); err != nil {",
	} {
		if !strings.Contains(src, want) {
			t.Errorf("generated source missing %q:\n%s", want, src)
		}
	}
	if n := strings.Count(src, "pipeline_test.Record("); n != 1 {
		t.Errorf("journal frame rendered %d times, want only in Execute", n)
	}

	// Count resolves its scoped handler on every call.
	src = exec.WhatCodeDidIGenerateFor(reflect.TypeFor[CountCommand]())
	if !strings.Contains(src, "di.Get[blueprint.Handler[*pipeline_test.CountCommand]](ctx.Services)") {
		t.Errorf("scoped handler not resolved per call:\n%s", src)
	}
	if exec.WhatCodeDidIGenerateFor(reflect.TypeFor[Journal]()) != "" {
		t.Error("expected no source for an unregistered type")
	}
}

func TestAutoStrategy(t *testing.T) {
	ctx := context.Background()
	store := sink.NewMemorySink()
	cache := pipeline.NewCompileCache()
	registry := pipeline.NewStaticRegistry()
	services := newServices(&Journal{}).Build()
	build := func(builders ...pipeline.MiddlewareBuilder) pipeline.CompileReport {
		t.Helper()
		b := pipeline.NewExecutorBuilder(builders...).WithStore(store).WithCache(cache).WithStaticRegistry(registry)
		exec, err := b.Build(ctx, newModel(t), services, testOptions(blueprint.StrategyAuto))
		if err != nil {
			t.Fatal(err)
		}
		r, _ := exec.ExecuteWithNewScope(ctx, &EchoQuery{Text: "ok"})
		if r.Err() != nil {
			t.Fatalf("execute: %v", r.Err())
		}
		return exec.Report()
	}

	header := codegen.GeneratedHeader("blueprint-test")
	store.WriteFile(ctx, "Old.go", []byte(header+"\n\npackage pipelines\n"))
	store.WriteFile(ctx, "handwritten.go", []byte("package pipelines\n"))

	r := build(handlerBuilder{})
	if len(r.Written) != 2 || len(r.Compiled) != 2 || len(r.Skipped) != 0 {
		t.Errorf("first build: %v", r)
	}
	if !reflect.DeepEqual(r.Removed, []string{"Old.go"}) {
		t.Errorf("Removed = %v", r.Removed)
	}
	if store.Get("handwritten.go") == nil {
		t.Error("a file without the generated header was removed")
	}
	if cache.Len() != 2 {
		t.Errorf("cache holds %d types", cache.Len())
	}

	r = build(handlerBuilder{})
	if len(r.Skipped) != 2 || len(r.Compiled) != 0 || len(r.Written) != 0 {
		t.Errorf("unchanged build: %v", r)
	}

	// Only Echo records metrics, so only its pipeline changes.
	r = build(journalBuilder{}, handlerBuilder{})
	if !reflect.DeepEqual(r.Compiled, []string{"Pipeline_test_EchoQueryPipeline"}) ||
		!reflect.DeepEqual(r.Written, r.Compiled) ||
		!reflect.DeepEqual(r.Skipped, []string{"Pipeline_test_CountCommandPipeline"}) {
		t.Errorf("changed build: %v", r)
	}
}

func TestThrowOnSourceChange(t *testing.T) {
	ctx := context.Background()
	store := sink.NewMemorySink()
	services := newServices(&Journal{}).Build()
	opts := testOptions(blueprint.StrategyAuto)
	opts.ThrowOnSourceChange = true
	b := pipeline.NewExecutorBuilder(handlerBuilder{}).WithStore(store).WithStaticRegistry(pipeline.NewStaticRegistry())

	_, err := b.Build(ctx, newModel(t), services, opts)
	var drift *pipeline.SourceDriftError
	if !errors.As(err, &drift) || len(drift.Types) != 2 {
		t.Fatalf("expected drift for both types, got %v", err)
	}
	if len(store.Files()) != 0 {
		t.Error("nothing should be written while source changes are refused")
	}

	gen, err := b.Generate(newModel(t), services, opts)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := gen.Write(ctx, store); err != nil {
		t.Fatal(err)
	}
	if d, err := gen.Drift(ctx, store); err != nil || len(d) != 0 {
		t.Errorf("Drift after Write = %v, %v", d, err)
	}
	if _, err := b.Build(ctx, newModel(t), services, opts); err != nil {
		t.Errorf("build with matching sources: %v", err)
	}

	store.WriteFile(ctx, "Stale.go", []byte(codegen.GeneratedHeader("blueprint-test")+"\n"))
	if _, err := b.Build(ctx, newModel(t), services, opts); !errors.As(err, &drift) || drift.Types[0] != "Stale.go" {
		t.Errorf("expected drift for a stale file, got %v", err)
	}

	removed, err := pipeline.RemoveGenerated(ctx, store, "blueprint-test")
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 3 || len(store.Files()) != 0 {
		t.Errorf("RemoveGenerated = %v, left %v", removed, store.Files())
	}
}

func TestPrecompile(t *testing.T) {
	store := sink.NewMemorySink()
	opts := testOptions(blueprint.StrategyAuto).WithMode(blueprint.ModePrecompile)
	b := pipeline.NewExecutorBuilder(handlerBuilder{}).WithStore(store)
	exec, err := b.Build(context.Background(), newModel(t), newServices(&Journal{}).Build(), opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := exec.Report().Written; len(got) != 2 {
		t.Errorf("Written = %v", got)
	}
	if store.Get("Pipeline_test_EchoQueryPipeline.go") == nil {
		t.Errorf("sources not written: %v", store.Files())
	}
	if _, err := exec.ExecuteWithNewScope(context.Background(), &EchoQuery{}); !errors.Is(err, pipeline.ErrPrecompileOnly) {
		t.Errorf("expected ErrPrecompileOnly, got %v", err)
	}
}

type stubPipeline struct{ name string }

func (p stubPipeline) Execute(*blueprint.OperationContext) blueprint.OperationResult {
	return blueprint.ResultOf(p.name)
}

func (p stubPipeline) ExecuteNested(*blueprint.OperationContext) blueprint.OperationResult {
	return blueprint.ResultOf("nested " + p.name)
}

func TestStaticStrategy(t *testing.T) {
	services := newServices(&Journal{}).Build()
	registry := pipeline.NewStaticRegistry()
	b := pipeline.NewExecutorBuilder(handlerBuilder{}).WithStaticRegistry(registry)
	opts := testOptions(blueprint.StrategyStatic)

	_, err := b.Build(context.Background(), newModel(t), services, opts)
	var missing *pipeline.MissingPipelineError
	if !errors.As(err, &missing) || len(missing.Types) != 2 {
		t.Fatalf("expected MissingPipelineError, got %v", err)
	}

	gen, err := b.Generate(newModel(t), services, opts)
	if err != nil {
		t.Fatal(err)
	}
	for _, pt := range gen.Types {
		registry.Register(pt.Name, pt.Source.Fingerprint, func(di.ServiceProvider) (blueprint.Pipeline, error) {
			return stubPipeline{name: pt.Name}, nil
		})
	}
	exec, err := b.Build(context.Background(), newModel(t), services, opts)
	if err != nil {
		t.Fatal(err)
	}
	r, err := exec.ExecuteWithNewScope(context.Background(), &EchoQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if ok, isOk := r.(*blueprint.OkResult); !isOk || ok.Content != "Pipeline_test_EchoQueryPipeline" {
		t.Errorf("static result = %#v", r)
	}
	if got := exec.Report().Skipped; len(got) != 2 {
		t.Errorf("Skipped = %v", got)
	}

	parent, err := blueprint.NewOperationContext(context.Background(), exec.DataModel(), services, &CountCommand{})
	if err != nil {
		t.Fatal(err)
	}
	parent.Executor = exec
	r, err = parent.ExecuteNested(&EchoQuery{})
	if err != nil {
		t.Fatal(err)
	}
	if ok, isOk := r.(*blueprint.OkResult); !isOk || ok.Content != "nested Pipeline_test_EchoQueryPipeline" {
		t.Errorf("nested static result = %#v", r)
	}
}

func TestGenerateErrors(t *testing.T) {
	m := blueprint.NewDataModel()
	m.RegisterOperation(blueprint.MustDescribe[Page[int]]("a.go"))
	m.RegisterOperation(blueprint.MustDescribe[Page__int]("b.go"))
	_, err := pipeline.NewExecutorBuilder().Generate(m, di.NewServiceCollection(), testOptions(""))
	if err == nil || !strings.Contains(err.Error(), "both map to pipeline type Pipeline_test_Page__intPipeline") {
		t.Errorf("expected a name collision, got %v", err)
	}

	_, err = pipeline.NewExecutorBuilder(handlerBuilder{}).Generate(newModel(t), di.NewServiceCollection(), testOptions(""))
	var ms *di.MissingServiceError
	if !errors.As(err, &ms) {
		t.Errorf("expected MissingServiceError, got %v", err)
	}

	_, err = pipeline.NewExecutorBuilder(panickyBuilder{}).Generate(newModel(t), di.NewServiceCollection(), testOptions(""))
	var pe *blueprint.PanicError
	if !errors.As(err, &pe) {
		t.Errorf("expected a builder panic to become an error, got %v", err)
	}

	_, err = pipeline.NewExecutorBuilder().Generate(newModel(t), di.NewServiceCollection(), testOptions("jit"))
	if err == nil {
		t.Error("expected an error for an unknown strategy")
	}
}

func TestCompileReportString(t *testing.T) {
	r := pipeline.CompileReport{Skipped: []string{"a"}, Written: []string{"b", "c"}}
	if got := r.String(); got != "1 skipped, 0 compiled, 2 written, 0 removed" {
		t.Errorf("String = %q", got)
	}
}
