package codegen

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// TryFrame runs its body and routes a returned error, or a recovered panic,
// to the first catch group whose type matches. Catch groups are tested in the
// order they were added, except the group for the error interface itself,
// which always comes last.
type TryFrame struct {
	Body *Block
	// Err holds the caught error in catch bodies.
	Err *Variable

	recover any
	catches []*Catch
}

// Catch is one catch group of a TryFrame.
type Catch struct {
	// Type is the error type matched with errors.As.
	Type reflect.Type
	// Var holds the matched error.
	Var  *Variable
	Body *Block
}

// NewTryFrame creates a try frame. recover, if not nil, is a package-level
// func(*error) deferred in the body to turn panics into errors.
func NewTryFrame(recover any) *TryFrame {
	if recover != nil {
		if _, _, err := funcName(reflect.ValueOf(recover)); err != nil {
			panic(err.Error())
		}
		if reflect.TypeOf(recover) != reflect.TypeFor[func(*error)]() {
			panic(fmt.Sprintf("codegen: recover function has type %T, want func(*error)", recover))
		}
	}
	f := &TryFrame{Body: &Block{}, recover: recover}
	f.Err = &Variable{Name: "opErr", Type: errorType, Kind: KindLocal, Creator: f}
	return f
}

// AddCatch returns the catch group for errType, creating it if needed. name
// is the preferred name of the matched error variable.
func (f *TryFrame) AddCatch(errType reflect.Type, name string) *Catch {
	for _, c := range f.catches {
		if c.Type == errType {
			return c
		}
	}
	if !errType.Implements(errorType) {
		panic(fmt.Sprintf("codegen: %s does not implement error", errType))
	}
	if errType.Kind() == reflect.Interface && errType != errorType {
		panic(fmt.Sprintf("codegen: catch type %s must be error or a concrete type", errType))
	}
	c := &Catch{Type: errType, Body: &Block{}}
	if errType == errorType {
		c.Var = f.Err
	} else {
		if name == "" {
			name = catchName(errType)
		}
		c.Var = &Variable{Name: name, Type: errType, Kind: KindLocal, Creator: f}
	}
	f.catches = append(f.catches, c)
	return c
}

// Catches returns the catch groups in matching order.
func (f *TryFrame) Catches() []*Catch {
	var out []*Catch
	var generic *Catch
	for _, c := range f.catches {
		if c.Type == errorType {
			generic = c
			continue
		}
		out = append(out, c)
	}
	if generic != nil {
		out = append(out, generic)
	}
	return out
}

// Blocks implements ContainerFrame.
func (f *TryFrame) Blocks() []*Block {
	blocks := []*Block{f.Body}
	for _, c := range f.Catches() {
		blocks = append(blocks, c.Body)
	}
	return blocks
}

// Uses implements Frame.
func (f *TryFrame) Uses() []*Variable { return nil }

// Creates implements Frame.
func (f *TryFrame) Creates() []*Variable {
	out := []*Variable{f.Err}
	for _, c := range f.Catches() {
		if c.Var != f.Err {
			out = append(out, c.Var)
		}
	}
	return out
}

// GenerateCode implements Frame.
func (f *TryFrame) GenerateCode(w *SourceWriter) {
	errName := w.Ref(f.Err)
	w.Line("if %s := func() (err error) {", errName)
	w.Indent()
	if f.recover != nil {
		w.Line("defer %s(&err)", w.Func(f.recover))
	}
	w.frames(f.Body.Frames, modeTry)
	if !endsWithReturn(f.Body) {
		w.Line("return nil")
	}
	w.Dedent()
	w.Line("}(); %s != nil {", errName)
	w.Indent()

	catches := f.Catches()
	typed := 0
	for _, c := range catches {
		if c.Type != errorType {
			w.Line("var %s %s", w.Ref(c.Var), w.Type(c.Type))
			typed++
		}
	}
	for i, c := range catches {
		if c.Type == errorType {
			if typed > 0 {
				w.Line("} else {")
				w.Indent()
			}
			w.frames(c.Body.Frames, modeCatch)
			if typed > 0 {
				w.Dedent()
			}
			break
		}
		kw := "if"
		if i > 0 {
			kw = "} else if"
		}
		w.Line("%s %s(%s, &%s) {", kw, w.Qualify("errors", "As"), errName, w.Ref(c.Var))
		w.Indent()
		w.frames(c.Body.Frames, modeCatch)
		w.Dedent()
	}
	if typed > 0 {
		w.Line("}")
	}
	w.Dedent()
	w.Line("}")
}

// Compile implements Frame.
func (f *TryFrame) Compile(c *Compiler, next Step) (Step, error) {
	body, err := c.Block(f.Body.Frames, modeTry, endStep)
	if err != nil {
		return nil, err
	}
	storeErr, err := c.Store(f.Err)
	if err != nil {
		return nil, err
	}

	type compiledCatch struct {
		typ   reflect.Type
		store Storer
		body  Step
	}
	var catches []compiledCatch
	for _, cg := range f.Catches() {
		cb, err := c.Block(cg.Body.Frames, modeCatch, endStep)
		if err != nil {
			return nil, err
		}
		st, err := c.Store(cg.Var)
		if err != nil {
			return nil, err
		}
		catches = append(catches, compiledCatch{typ: cg.Type, store: st, body: cb})
	}

	recoverFn := f.recover
	return func(env *Env) error {
		opErr := runTry(env, body, recoverFn)
		if opErr == nil {
			return next(env)
		}
		storeErr(env, reflect.ValueOf(&opErr).Elem())
		for _, cg := range catches {
			target := reflect.New(cg.typ)
			if cg.typ != errorType && !errors.As(opErr, target.Interface()) {
				continue
			}
			if cg.typ == errorType {
				target.Elem().Set(reflect.ValueOf(&opErr).Elem())
			}
			cg.store(env, target.Elem())
			if err := cg.body(env); err != nil {
				return err
			}
			break
		}
		if env.done {
			return nil
		}
		return next(env)
	}, nil
}

// runTry runs body, converting a panic to an error with recoverFn.
func runTry(env *Env, body Step, recoverFn any) (err error) {
	if fn, ok := recoverFn.(func(*error)); ok {
		defer fn(&err)
	}
	return body(env)
}

// catchName names the variable of a catch group: *blueprint.Error gives
// "blueprintErr" and validator.ValidationErrors gives "validationErrors".
func catchName(t reflect.Type) string {
	name := DefaultName(t)
	if name == "error" {
		return Identifier(packageNameOf(t)) + "Err"
	}
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, "err") || strings.HasSuffix(lower, "error") || strings.HasSuffix(lower, "errors") {
		return name
	}
	return name + "Err"
}

func endsWithReturn(b *Block) bool {
	if len(b.Frames) == 0 {
		return false
	}
	_, ok := b.Frames[len(b.Frames)-1].(*ReturnFrame)
	return ok
}
