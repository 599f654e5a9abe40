package codegen

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"
)

const (
	receiverName = "p"
	resultName   = "result"
)

// Env is the state of one in-memory method call: a slot per local variable
// and argument, the receiver's fields, and the method result.
type Env struct {
	slots  []reflect.Value
	fields []reflect.Value
	result reflect.Value
	done   bool
}

// Step runs a compiled frame and the frames after it.
type Step func(env *Env) error

// Loader reads a variable from an Env.
type Loader func(env *Env) reflect.Value

// Storer writes a variable to an Env.
type Storer func(env *Env, v reflect.Value)

// Compiler turns the frames of one method into Steps.
type Compiler struct {
	method *GeneratedMethod
	slots  map[*Variable]int
	mode   blockMode
}

func newCompiler(m *GeneratedMethod) *Compiler {
	return &Compiler{method: m, slots: map[*Variable]int{}}
}

// InTry reports whether frames are being compiled inside a try body.
func (c *Compiler) InTry() bool { return c.mode == modeTry }

func (c *Compiler) slot(v *Variable) int {
	if i, ok := c.slots[v]; ok {
		return i
	}
	i := len(c.slots)
	c.slots[v] = i
	return i
}

// Load returns a loader for v. Unassigned slots read as the zero value.
func (c *Compiler) Load(v *Variable) (Loader, error) {
	switch v.Kind {
	case KindLocal, KindArgument:
		i, t := c.slot(v), v.Type
		return func(env *Env) reflect.Value {
			if s := env.slots[i]; s.IsValid() {
				return s
			}
			return reflect.Zero(t)
		}, nil
	case KindField:
		if v.field == nil {
			return nil, fmt.Errorf("codegen: field variable %s is not injected", v)
		}
		i := v.field.index
		return func(env *Env) reflect.Value { return env.fields[i] }, nil
	case KindLiteral:
		val := v.literal
		return func(*Env) reflect.Value { return val }, nil
	case KindResult:
		t := v.Type
		return func(env *Env) reflect.Value {
			if env.result.IsValid() {
				return env.result
			}
			return reflect.Zero(t)
		}, nil
	case KindMember:
		parent, err := c.Load(v.parent)
		if err != nil {
			return nil, err
		}
		st := v.parent.Type
		if st.Kind() == reflect.Pointer {
			st = st.Elem()
		}
		f, _ := st.FieldByName(v.Name)
		index := f.Index
		return func(env *Env) reflect.Value {
			pv := parent(env)
			if pv.Kind() == reflect.Pointer {
				if pv.IsNil() {
					panic(fmt.Sprintf("codegen: read of %s through nil %s", v.Name, pv.Type()))
				}
				pv = pv.Elem()
			}
			return pv.FieldByIndex(index)
		}, nil
	}
	return nil, fmt.Errorf("codegen: cannot load variable %s", v)
}

// Store returns a storer for v, which must be a local variable.
func (c *Compiler) Store(v *Variable) (Storer, error) {
	if v.Kind != KindLocal {
		return nil, fmt.Errorf("codegen: cannot assign to %s", v)
	}
	i, t := c.slot(v), v.Type
	return func(env *Env, val reflect.Value) {
		env.slots[i] = typed(val, t)
	}, nil
}

// typed converts val to a value of static type t, so interface-typed slots
// hold interface values.
func typed(val reflect.Value, t reflect.Type) reflect.Value {
	if val.IsValid() && val.Type() == t {
		return val
	}
	nv := reflect.New(t).Elem()
	if val.IsValid() {
		nv.Set(val)
	}
	return nv
}

// Return returns a step that sets the method result from load, with the
// control flow of the current block.
func (c *Compiler) Return(load Loader, next Step) Step {
	t := c.method.Result.Type
	switch c.mode {
	case modeTry:
		return func(env *Env) error {
			env.result = typed(load(env), t)
			return nil
		}
	case modeCatch:
		return func(env *Env) error {
			env.result = typed(load(env), t)
			return next(env)
		}
	default:
		return func(env *Env) error {
			env.result = typed(load(env), t)
			env.done = true
			return nil
		}
	}
}

// CheckFailure reports an error if a failing frame cannot be handled where it
// is placed.
func (c *Compiler) CheckFailure(frame string) error {
	if c.mode != modeTry && c.method.OnFailure == nil {
		return fmt.Errorf("codegen: %s: %s can fail outside a try block and there is no failure handler", c.method.Name, frame)
	}
	return nil
}

// Block compiles frames in the given mode, ending with next.
func (c *Compiler) Block(frames []Frame, mode blockMode, next Step) (Step, error) {
	saved := c.mode
	c.mode = mode
	defer func() { c.mode = saved }()

	step := next
	for i := len(frames) - 1; i >= 0; i-- {
		var err error
		step, err = frames[i].Compile(c, step)
		if err != nil {
			return nil, err
		}
	}
	return step, nil
}

func endStep(*Env) error { return nil }

// funcName returns the package path and name of a package-level function.
func funcName(fn reflect.Value) (pkgPath, name string, err error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func || fn.IsNil() {
		return "", "", fmt.Errorf("codegen: %v is not a function", fn)
	}
	rf := runtime.FuncForPC(fn.Pointer())
	if rf == nil {
		return "", "", fmt.Errorf("codegen: no symbol for function %s", fn.Type())
	}
	full := rf.Name()
	slash := strings.LastIndexByte(full, '/')
	dot := strings.IndexByte(full[slash+1:], '.')
	if dot < 0 {
		return "", "", fmt.Errorf("codegen: unexpected function symbol %q", full)
	}
	dot += slash + 1
	pkgPath, name = full[:dot], full[dot+1:]
	if strings.ContainsAny(name, ".[]()") {
		return "", "", fmt.Errorf("codegen: %s is not a plain package-level function", full)
	}
	return pkgPath, name, nil
}
