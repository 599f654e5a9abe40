package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"reflect"
	"strings"
	"sync"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/di"
	"github.com/broady/blueprint/sink"
)

// PipelineType is the generated pipeline of one operation.
type PipelineType struct {
	OperationType reflect.Type
	Name          string
	Generated     *codegen.GeneratedType
	Source        *codegen.SourceFile

	load func() (Factory, error)
}

// CompileReport lists what a strategy did with each pipeline type.
type CompileReport struct {
	// Skipped types reused a pipeline compiled earlier.
	Skipped []string
	// Compiled types were compiled in memory.
	Compiled []string
	// Written types had their source file written.
	Written []string
	// Removed lists stale generated files that were deleted.
	Removed []string
}

func (r CompileReport) String() string {
	return fmt.Sprintf("%d skipped, %d compiled, %d written, %d removed",
		len(r.Skipped), len(r.Compiled), len(r.Written), len(r.Removed))
}

// Strategy decides how each pipeline type gets a factory.
type Strategy interface {
	Compile(ctx context.Context, types []*PipelineType) (CompileReport, error)
}

// MissingPipelineError reports pipeline types that are not compiled into the
// binary, or were compiled from different source.
type MissingPipelineError struct {
	Types []string
}

func (e *MissingPipelineError) Error() string {
	return fmt.Sprintf("pipeline: no up-to-date compiled pipeline for %s; run the generator and rebuild",
		strings.Join(e.Types, ", "))
}

// SourceDriftError reports generated source that differs from the files in
// the generated code folder while changes are not allowed.
type SourceDriftError struct {
	Types []string
}

func (e *SourceDriftError) Error() string {
	return fmt.Sprintf("pipeline: generated source changed for %s", strings.Join(e.Types, ", "))
}

// CompileCache keeps in-memory compiled pipeline types across builds in one
// process. It is safe for concurrent use.
type CompileCache struct {
	mu    sync.Mutex
	types map[string]*codegen.CompiledType
}

// NewCompileCache creates an empty cache.
func NewCompileCache() *CompileCache {
	return &CompileCache{types: make(map[string]*codegen.CompiledType)}
}

// Get returns the compiled type for name and fingerprint.
func (c *CompileCache) Get(name, fingerprint string) (*codegen.CompiledType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ct, ok := c.types[name+"@"+fingerprint]
	return ct, ok
}

// Put stores a compiled type.
func (c *CompileCache) Put(name, fingerprint string, ct *codegen.CompiledType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.types[name+"@"+fingerprint] = ct
}

// Len returns the number of cached types.
func (c *CompileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.types)
}

// StaticStrategy uses only pipelines compiled into the binary.
type StaticStrategy struct {
	Registry *StaticRegistry
}

// Compile implements Strategy.
func (s *StaticStrategy) Compile(_ context.Context, types []*PipelineType) (CompileReport, error) {
	var report CompileReport
	var missing []string
	for _, pt := range types {
		entry, ok := s.Registry.Lookup(pt.Name)
		if !ok || entry.Fingerprint != pt.Source.Fingerprint {
			missing = append(missing, pt.Name)
			continue
		}
		pt.load = staticLoad(entry)
		report.Skipped = append(report.Skipped, pt.Name)
	}
	if len(missing) > 0 {
		return report, &MissingPipelineError{Types: missing}
	}
	return report, nil
}

// InMemoryStrategy compiles every pipeline in memory.
type InMemoryStrategy struct {
	// Cache, if set, receives the compiled types.
	Cache *CompileCache
}

// Compile implements Strategy.
func (s *InMemoryStrategy) Compile(_ context.Context, types []*PipelineType) (CompileReport, error) {
	var report CompileReport
	for _, pt := range types {
		ct, err := pt.Generated.Compile()
		if err != nil {
			return report, err
		}
		if s.Cache != nil {
			s.Cache.Put(pt.Name, pt.Source.Fingerprint, ct)
		}
		pt.load = compiledLoad(ct)
		report.Compiled = append(report.Compiled, pt.Name)
	}
	return report, nil
}

// AutoStrategy keeps the generated code folder in sync with the pipelines and
// compiles only what changed. A type whose source matches its file and which
// is either compiled into the binary or in the cache is reused; every other
// type is compiled in memory and its file rewritten.
type AutoStrategy struct {
	Store     sink.Store
	Registry  *StaticRegistry
	Cache     *CompileCache
	Generator string

	// ThrowOnSourceChange fails with *SourceDriftError instead of
	// compiling and writing changed types.
	ThrowOnSourceChange bool

	Logger *slog.Logger
}

// Compile implements Strategy.
func (s *AutoStrategy) Compile(ctx context.Context, types []*PipelineType) (CompileReport, error) {
	var report CompileReport
	var drift []string
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	keep := make(map[string]bool, len(types))
	for _, pt := range types {
		keep[pt.Source.Name] = true

		old, err := readSource(ctx, s.Store, pt.Source.Name)
		if err != nil {
			return report, err
		}
		same := bytes.Equal(old, pt.Source.Content)
		if same {
			if load, ok := s.reuse(pt); ok {
				pt.load = load
				report.Skipped = append(report.Skipped, pt.Name)
				logger.Debug("pipeline unchanged", "type", pt.Name)
				continue
			}
		} else if s.ThrowOnSourceChange {
			drift = append(drift, pt.Name)
			continue
		}

		ct, err := pt.Generated.Compile()
		if err != nil {
			return report, err
		}
		if s.Cache != nil {
			s.Cache.Put(pt.Name, pt.Source.Fingerprint, ct)
		}
		pt.load = compiledLoad(ct)
		report.Compiled = append(report.Compiled, pt.Name)
		logger.Debug("pipeline compiled in memory", "type", pt.Name, "changed", !same)

		if !same {
			if err := s.Store.WriteFile(ctx, pt.Source.Name, pt.Source.Content); err != nil {
				return report, fmt.Errorf("pipeline: write %s: %w", pt.Source.Name, err)
			}
			report.Written = append(report.Written, pt.Name)
		}
	}

	stale, err := staleSources(ctx, s.Store, s.Generator, keep)
	if err != nil {
		return report, err
	}
	if s.ThrowOnSourceChange {
		drift = append(drift, stale...)
		if len(drift) > 0 {
			return report, &SourceDriftError{Types: drift}
		}
		return report, nil
	}
	for _, name := range stale {
		if err := s.Store.Remove(ctx, name); err != nil {
			return report, fmt.Errorf("pipeline: remove %s: %w", name, err)
		}
		report.Removed = append(report.Removed, name)
	}
	return report, nil
}

func (s *AutoStrategy) reuse(pt *PipelineType) (func() (Factory, error), bool) {
	if s.Registry != nil {
		if entry, ok := s.Registry.Lookup(pt.Name); ok && entry.Fingerprint == pt.Source.Fingerprint {
			return staticLoad(entry), true
		}
	}
	if s.Cache != nil {
		if ct, ok := s.Cache.Get(pt.Name, pt.Source.Fingerprint); ok {
			return compiledLoad(ct), true
		}
	}
	return nil, false
}

// readSource returns the stored source at name, or nil if there is none.
func readSource(ctx context.Context, store sink.Store, name string) ([]byte, error) {
	b, err := store.ReadFile(ctx, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pipeline: read %s: %w", name, err)
	}
	return b, nil
}

// staleSources lists files in store written by generator that keep does not
// name. Files without the generated header are never considered stale.
func staleSources(ctx context.Context, store sink.Store, generator string, keep map[string]bool) ([]string, error) {
	names, err := store.List(ctx, ".go")
	if err != nil {
		return nil, fmt.Errorf("pipeline: list generated sources: %w", err)
	}
	var stale []string
	for _, name := range names {
		if keep[name] {
			continue
		}
		src, err := readSource(ctx, store, name)
		if err != nil {
			return nil, err
		}
		if codegen.IsGenerated(src, generator) {
			stale = append(stale, name)
		}
	}
	return stale, nil
}

// Write stores the generated sources, skipping unchanged files, and removes
// stale generated files. Nothing is compiled.
func (g *Generation) Write(ctx context.Context, store sink.Store) (CompileReport, error) {
	return writeSources(ctx, store, g.Options.ApplicationName, g.Types)
}

// Drift returns the names of pipeline types whose stored source differs from
// the generated one or is missing, followed by the names of stale generated
// files.
func (g *Generation) Drift(ctx context.Context, store sink.Store) ([]string, error) {
	var drift []string
	keep := make(map[string]bool, len(g.Types))
	for _, pt := range g.Types {
		keep[pt.Source.Name] = true
		old, err := readSource(ctx, store, pt.Source.Name)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(old, pt.Source.Content) {
			drift = append(drift, pt.Name)
		}
	}
	stale, err := staleSources(ctx, store, g.Options.ApplicationName, keep)
	if err != nil {
		return nil, err
	}
	return append(drift, stale...), nil
}

// RemoveGenerated deletes every file in store written by generator and
// returns their names.
func RemoveGenerated(ctx context.Context, store sink.Store, generator string) ([]string, error) {
	stale, err := staleSources(ctx, store, generator, nil)
	if err != nil {
		return nil, err
	}
	for _, name := range stale {
		if err := store.Remove(ctx, name); err != nil {
			return nil, fmt.Errorf("pipeline: remove %s: %w", name, err)
		}
	}
	return stale, nil
}

// writeSources writes every changed source and removes stale ones without
// compiling anything.
func writeSources(ctx context.Context, store sink.Store, generator string, types []*PipelineType) (CompileReport, error) {
	var report CompileReport
	keep := make(map[string]bool, len(types))
	for _, pt := range types {
		keep[pt.Source.Name] = true
		old, err := readSource(ctx, store, pt.Source.Name)
		if err != nil {
			return report, err
		}
		if bytes.Equal(old, pt.Source.Content) {
			report.Skipped = append(report.Skipped, pt.Name)
			continue
		}
		if err := store.WriteFile(ctx, pt.Source.Name, pt.Source.Content); err != nil {
			return report, fmt.Errorf("pipeline: write %s: %w", pt.Source.Name, err)
		}
		report.Written = append(report.Written, pt.Name)
	}
	stale, err := staleSources(ctx, store, generator, keep)
	if err != nil {
		return report, err
	}
	for _, name := range stale {
		if err := store.Remove(ctx, name); err != nil {
			return report, fmt.Errorf("pipeline: remove %s: %w", name, err)
		}
		report.Removed = append(report.Removed, name)
	}
	return report, nil
}

func staticLoad(entry StaticEntry) func() (Factory, error) {
	return func() (Factory, error) { return entry.Factory, nil }
}

func compiledLoad(ct *codegen.CompiledType) func() (Factory, error) {
	return func() (Factory, error) { return compiledFactory(ct), nil }
}

// compiledFactory creates instances of an in-memory compiled pipeline,
// resolving its injected fields the way generated constructors do.
func compiledFactory(ct *codegen.CompiledType) Factory {
	fieldTypes := ct.FieldTypes()
	return func(sp di.ServiceProvider) (blueprint.Pipeline, error) {
		values := make([]any, len(fieldTypes))
		for i, t := range fieldTypes {
			v, err := sp.GetService(t)
			if err != nil {
				return nil, err
			}
			if v != nil && !reflect.TypeOf(v).AssignableTo(t) {
				return nil, &di.WrongTypeError{Type: t, GotType: reflect.TypeOf(v)}
			}
			values[i] = v
		}
		inst, err := ct.NewInstance(values...)
		if err != nil {
			return nil, err
		}
		return &compiledPipeline{inst: inst}, nil
	}
}

// compiledPipeline adapts an in-memory instance to blueprint.Pipeline.
type compiledPipeline struct {
	inst *codegen.Instance
}

func (p *compiledPipeline) Execute(ctx *blueprint.OperationContext) blueprint.OperationResult {
	return p.call("Execute", ctx)
}

func (p *compiledPipeline) ExecuteNested(ctx *blueprint.OperationContext) blueprint.OperationResult {
	return p.call("ExecuteNested", ctx)
}

func (p *compiledPipeline) call(method string, ctx *blueprint.OperationContext) blueprint.OperationResult {
	v, err := p.inst.Call(method, ctx)
	if err != nil {
		return blueprint.NewUnhandledErrorResult(err)
	}
	r, _ := v.(blueprint.OperationResult)
	return r
}
