package codegen

import (
	"fmt"
	"reflect"
	"strings"
)

// call is the part shared by method and function calls.
type call struct {
	args    []*Variable
	results []*Variable
	canFail bool
}

func newCall(owner Frame, describe string, ft reflect.Type, args []*Variable) call {
	if ft.IsVariadic() {
		panic(fmt.Sprintf("codegen: %s: variadic calls are not supported", describe))
	}
	if ft.NumIn() != len(args) {
		panic(fmt.Sprintf("codegen: %s takes %d arguments, got %d", describe, ft.NumIn(), len(args)))
	}
	for i, a := range args {
		if !a.Type.AssignableTo(ft.In(i)) {
			panic(fmt.Sprintf("codegen: %s: argument %d is %s, want %s", describe, i, a.Type, ft.In(i)))
		}
	}
	c := call{args: args}
	n := ft.NumOut()
	if n > 0 && ft.Out(n-1) == errorType {
		c.canFail = true
		n--
	}
	for i := 0; i < n; i++ {
		v := NewVariable(ft.Out(i), "")
		v.Creator = owner
		c.results = append(c.results, v)
	}
	return c
}

// Results returns the call's non-error results.
func (c *call) Results() []*Variable { return c.results }

// Result returns the single non-error result.
func (c *call) Result() *Variable {
	if len(c.results) != 1 {
		panic(fmt.Sprintf("codegen: call has %d results", len(c.results)))
	}
	return c.results[0]
}

// CanFail reports whether the call returns an error.
func (c *call) CanFail() bool { return c.canFail }

// Creates implements Frame.
func (c *call) Creates() []*Variable { return c.results }

func (c *call) argList(w *SourceWriter) string {
	refs := make([]string, len(c.args))
	for i, a := range c.args {
		refs[i] = w.Ref(a)
	}
	return strings.Join(refs, ", ")
}

// compile builds the step shared by method and function calls. invoke runs
// the call given the loaded arguments.
func (c *call) compile(comp *Compiler, describe string, invoke func(env *Env, args []reflect.Value) []reflect.Value, next Step) (Step, error) {
	if c.canFail {
		if err := comp.CheckFailure(describe); err != nil {
			return nil, err
		}
	}
	loads := make([]Loader, len(c.args))
	for i, a := range c.args {
		l, err := comp.Load(a)
		if err != nil {
			return nil, err
		}
		loads[i] = l
	}
	stores := make([]Storer, len(c.results))
	for i, r := range c.results {
		s, err := comp.Store(r)
		if err != nil {
			return nil, err
		}
		stores[i] = s
	}
	fail := comp.Failure()
	canFail := c.canFail
	return func(env *Env) error {
		in := make([]reflect.Value, len(loads))
		for i, l := range loads {
			in[i] = l(env)
		}
		out := invoke(env, in)
		if canFail {
			if ev := out[len(out)-1]; !ev.IsNil() {
				return fail(env, ev.Interface().(error))
			}
		}
		for i, s := range stores {
			s(env, out[i])
		}
		return next(env)
	}, nil
}

// Failure returns how a failing frame leaves the current block: inside a try
// the error propagates to the catch groups, elsewhere the method's failure
// handler produces the result. Callers check CheckFailure first.
func (c *Compiler) Failure() func(env *Env, err error) error {
	if c.mode == modeTry {
		return func(_ *Env, err error) error { return err }
	}
	onFailure := reflect.ValueOf(c.method.OnFailure)
	t := c.method.Result.Type
	return func(env *Env, err error) error {
		env.result = typed(onFailure.Call([]reflect.Value{reflect.ValueOf(&err).Elem()})[0], t)
		env.done = true
		return nil
	}
}

// MethodCall calls a method on a variable.
type MethodCall struct {
	Target *Variable
	Method string
	call

	index int
}

// Call creates a frame calling target.method(args...). It panics if the
// method does not exist or the arguments do not match.
func Call(target *Variable, method string, args ...*Variable) *MethodCall {
	m, ok := target.Type.MethodByName(method)
	if !ok {
		panic(fmt.Sprintf("codegen: %s has no method %s", target.Type, method))
	}
	ft := m.Type
	if target.Type.Kind() != reflect.Interface {
		ins := make([]reflect.Type, ft.NumIn()-1)
		for i := range ins {
			ins[i] = ft.In(i + 1)
		}
		outs := make([]reflect.Type, ft.NumOut())
		for i := range outs {
			outs[i] = ft.Out(i)
		}
		ft = reflect.FuncOf(ins, outs, ft.IsVariadic())
	}
	f := &MethodCall{Target: target, Method: method, index: m.Index}
	f.call = newCall(f, target.Type.String()+"."+method, ft, args)
	return f
}

// Named renames the call's results, in order.
func (f *MethodCall) Named(names ...string) *MethodCall {
	for i, n := range names {
		f.results[i].Name = n
	}
	return f
}

// Uses implements Frame.
func (f *MethodCall) Uses() []*Variable {
	return append([]*Variable{f.Target}, f.args...)
}

// GenerateCode implements Frame.
func (f *MethodCall) GenerateCode(w *SourceWriter) {
	w.Call(f.results, f.canFail, fmt.Sprintf("%s.%s(%s)", w.Ref(f.Target), f.Method, f.argList(w)))
}

// Compile implements Frame.
func (f *MethodCall) Compile(c *Compiler, next Step) (Step, error) {
	target, err := c.Load(f.Target)
	if err != nil {
		return nil, err
	}
	index := f.index
	return f.compile(c, f.Target.Type.String()+"."+f.Method, func(env *Env, args []reflect.Value) []reflect.Value {
		return target(env).Method(index).Call(args)
	}, next)
}

// FuncCall calls a package-level function.
type FuncCall struct {
	Func any
	call

	fn            reflect.Value
	pkgPath, name string
}

// CallFunc creates a frame calling fn(args...). fn must be a package-level
// function; closures, method values and generic instantiations have no name
// that generated source could refer to.
func CallFunc(fn any, args ...*Variable) *FuncCall {
	rv := reflect.ValueOf(fn)
	pkgPath, name, err := funcName(rv)
	if err != nil {
		panic(err.Error())
	}
	f := &FuncCall{Func: fn, fn: rv, pkgPath: pkgPath, name: name}
	f.call = newCall(f, pkgPath+"."+name, rv.Type(), args)
	return f
}

// Named renames the call's results, in order.
func (f *FuncCall) Named(names ...string) *FuncCall {
	for i, n := range names {
		f.results[i].Name = n
	}
	return f
}

// Uses implements Frame.
func (f *FuncCall) Uses() []*Variable { return f.args }

// GenerateCode implements Frame.
func (f *FuncCall) GenerateCode(w *SourceWriter) {
	w.Call(f.results, f.canFail, fmt.Sprintf("%s(%s)", w.Qualify(f.pkgPath, f.name), f.argList(w)))
}

// Compile implements Frame.
func (f *FuncCall) Compile(c *Compiler, next Step) (Step, error) {
	fn := f.fn
	return f.compile(c, f.pkgPath+"."+f.name, func(_ *Env, args []reflect.Value) []reflect.Value {
		return fn.Call(args)
	}, next)
}

// CastFrame asserts an interface value to a concrete or interface type.
type CastFrame struct {
	From *Variable
	Out  *Variable
}

// Cast creates a frame asserting from to type to.
func Cast(from *Variable, to reflect.Type, name string) *CastFrame {
	if from.Type.Kind() != reflect.Interface {
		panic(fmt.Sprintf("codegen: cannot assert non-interface %s", from.Type))
	}
	f := &CastFrame{From: from}
	f.Out = NewVariable(to, name)
	f.Out.Creator = f
	return f
}

// Uses implements Frame.
func (f *CastFrame) Uses() []*Variable { return []*Variable{f.From} }

// Creates implements Frame.
func (f *CastFrame) Creates() []*Variable { return []*Variable{f.Out} }

// GenerateCode implements Frame.
func (f *CastFrame) GenerateCode(w *SourceWriter) {
	w.Line("%s %s %s.(%s)", w.Decl(f.Out), w.Assign(f.Out), w.Ref(f.From), w.Type(f.Out.Type))
}

// Compile implements Frame.
func (f *CastFrame) Compile(c *Compiler, next Step) (Step, error) {
	from, err := c.Load(f.From)
	if err != nil {
		return nil, err
	}
	store, err := c.Store(f.Out)
	if err != nil {
		return nil, err
	}
	to := f.Out.Type
	return func(env *Env) error {
		v := from(env)
		if v.Kind() == reflect.Interface {
			if v.IsNil() {
				panic(fmt.Sprintf("interface conversion: interface is nil, not %s", to))
			}
			v = v.Elem()
		}
		ok := v.Type() == to
		if to.Kind() == reflect.Interface {
			ok = v.Type().Implements(to)
		}
		if !ok {
			panic(fmt.Sprintf("interface conversion: interface {} is %s, not %s", v.Type(), to))
		}
		store(env, v)
		return next(env)
	}, nil
}

// ReturnFrame returns a value from the method.
type ReturnFrame struct {
	Value *Variable
}

// Return creates a frame returning v.
func Return(v *Variable) *ReturnFrame { return &ReturnFrame{Value: v} }

// Uses implements Frame.
func (f *ReturnFrame) Uses() []*Variable { return []*Variable{f.Value} }

// Creates implements Frame.
func (f *ReturnFrame) Creates() []*Variable { return nil }

// GenerateCode implements Frame.
func (f *ReturnFrame) GenerateCode(w *SourceWriter) {
	w.Return(w.Ref(f.Value))
}

// Compile implements Frame.
func (f *ReturnFrame) Compile(c *Compiler, next Step) (Step, error) {
	load, err := c.Load(f.Value)
	if err != nil {
		return nil, err
	}
	return c.Return(load, next), nil
}

// ReturnIfNotNilFrame returns a value from the method if it is not nil.
type ReturnIfNotNilFrame struct {
	Value *Variable
}

// ReturnIfNotNil creates a frame returning v when v is not nil.
func ReturnIfNotNil(v *Variable) *ReturnIfNotNilFrame {
	switch v.Type.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
	default:
		panic(fmt.Sprintf("codegen: %s cannot be nil", v.Type))
	}
	return &ReturnIfNotNilFrame{Value: v}
}

// Uses implements Frame.
func (f *ReturnIfNotNilFrame) Uses() []*Variable { return []*Variable{f.Value} }

// Creates implements Frame.
func (f *ReturnIfNotNilFrame) Creates() []*Variable { return nil }

// GenerateCode implements Frame.
func (f *ReturnIfNotNilFrame) GenerateCode(w *SourceWriter) {
	ref := w.Ref(f.Value)
	w.Line("if %s != nil {", ref)
	w.Indent()
	w.Return(ref)
	w.Dedent()
	w.Line("}")
}

// Compile implements Frame.
func (f *ReturnIfNotNilFrame) Compile(c *Compiler, next Step) (Step, error) {
	load, err := c.Load(f.Value)
	if err != nil {
		return nil, err
	}
	ret := c.Return(load, next)
	return func(env *Env) error {
		if v := load(env); v.IsValid() && !v.IsNil() {
			return ret(env)
		}
		return next(env)
	}, nil
}

// CommentFrame writes a comment line.
type CommentFrame struct {
	Text string
}

// Comment creates a comment frame.
func Comment(text string) *CommentFrame { return &CommentFrame{Text: text} }

// Uses implements Frame.
func (f *CommentFrame) Uses() []*Variable { return nil }

// Creates implements Frame.
func (f *CommentFrame) Creates() []*Variable { return nil }

// GenerateCode implements Frame.
func (f *CommentFrame) GenerateCode(w *SourceWriter) {
	for _, line := range strings.Split(f.Text, "\n") {
		w.Line("// %s", line)
	}
}

// Compile implements Frame.
func (f *CommentFrame) Compile(_ *Compiler, next Step) (Step, error) { return next, nil }
