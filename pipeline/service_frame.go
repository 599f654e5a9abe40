package pipeline

import (
	"fmt"
	"reflect"

	"github.com/broady/blueprint/codegen"
	"github.com/broady/blueprint/di"
)

var diPackage = reflect.TypeFor[di.ServiceProvider]().PkgPath()

// GetServiceFrame resolves a service from the operation's service provider on
// every call. The source form is di.Get[T](ctx.Services).
type GetServiceFrame struct {
	Services *codegen.Variable
	Out      *codegen.Variable
}

// NewGetServiceFrame creates a frame resolving t from services.
func NewGetServiceFrame(services *codegen.Variable, t reflect.Type) *GetServiceFrame {
	f := &GetServiceFrame{Services: services}
	f.Out = codegen.NewVariable(t, ArgumentName(t))
	f.Out.Creator = f
	return f
}

// Uses implements codegen.Frame.
func (f *GetServiceFrame) Uses() []*codegen.Variable { return []*codegen.Variable{f.Services} }

// Creates implements codegen.Frame.
func (f *GetServiceFrame) Creates() []*codegen.Variable { return []*codegen.Variable{f.Out} }

// GenerateCode implements codegen.Frame.
func (f *GetServiceFrame) GenerateCode(w *codegen.SourceWriter) {
	expr := fmt.Sprintf("%s[%s](%s)", w.Qualify(diPackage, "Get"), w.Type(f.Out.Type), w.Ref(f.Services))
	w.Call([]*codegen.Variable{f.Out}, true, expr)
}

// Compile implements codegen.Frame.
func (f *GetServiceFrame) Compile(c *codegen.Compiler, next codegen.Step) (codegen.Step, error) {
	t := f.Out.Type
	if err := c.CheckFailure("resolve " + t.String()); err != nil {
		return nil, err
	}
	load, err := c.Load(f.Services)
	if err != nil {
		return nil, err
	}
	store, err := c.Store(f.Out)
	if err != nil {
		return nil, err
	}
	fail := c.Failure()
	return func(env *codegen.Env) error {
		sp, _ := load(env).Interface().(di.ServiceProvider)
		if sp == nil {
			panic("pipeline: operation context has no service provider")
		}
		v, err := sp.GetService(t)
		if err != nil {
			return fail(env, err)
		}
		rv := reflect.ValueOf(v)
		if rv.IsValid() && !rv.Type().AssignableTo(t) {
			return fail(env, &di.WrongTypeError{Type: t, GotType: rv.Type()})
		}
		store(env, rv)
		return next(env)
	}, nil
}
