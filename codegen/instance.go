package codegen

import (
	"fmt"
	"reflect"
)

// CompiledType is a generated type compiled to closures. It keeps no
// reference to the frames it was built from.
type CompiledType struct {
	Name    string
	fields  []compiledField
	methods map[string]*compiledMethod
}

type compiledField struct {
	name string
	typ  reflect.Type
}

type compiledMethod struct {
	name   string
	args   []reflect.Type
	result reflect.Type
	slots  int
	body   Step
}

// Compile compiles t to closures.
func (t *GeneratedType) Compile() (*CompiledType, error) {
	ct := &CompiledType{Name: t.Name, methods: map[string]*compiledMethod{}}
	for _, f := range t.fields {
		ct.fields = append(ct.fields, compiledField{name: f.Name, typ: f.Type})
	}
	for _, m := range t.Methods {
		cm, err := m.compile()
		if err != nil {
			return nil, err
		}
		ct.methods[m.Name] = cm
	}
	return ct, nil
}

func (m *GeneratedMethod) compile() (*compiledMethod, error) {
	if err := m.Arrange(); err != nil {
		return nil, err
	}
	if m.OnFailure != nil {
		ft := reflect.TypeOf(m.OnFailure)
		if ft.Kind() != reflect.Func || ft.NumIn() != 1 || ft.In(0) != errorType ||
			ft.NumOut() != 1 || !ft.Out(0).AssignableTo(m.Result.Type) {
			return nil, fmt.Errorf("codegen: %s.%s: failure handler has type %s, want func(error) %s",
				m.owner.Name, m.Name, ft, m.Result.Type)
		}
	}
	c := newCompiler(m)
	cm := &compiledMethod{name: m.Name, result: m.Result.Type}
	for _, a := range m.Args {
		c.slot(a)
		cm.args = append(cm.args, a.Type)
	}
	body, err := c.Block(m.Body.Frames, modeTop, endStep)
	if err != nil {
		return nil, fmt.Errorf("codegen: %s.%s: %w", m.owner.Name, m.Name, err)
	}
	cm.body = body
	cm.slots = len(c.slots)
	return cm, nil
}

// FieldTypes returns the types of the injected fields in declaration order.
func (ct *CompiledType) FieldTypes() []reflect.Type {
	out := make([]reflect.Type, len(ct.fields))
	for i, f := range ct.fields {
		out[i] = f.typ
	}
	return out
}

// NewInstance creates an instance with the given field values, in declaration
// order.
func (ct *CompiledType) NewInstance(values ...any) (*Instance, error) {
	if len(values) != len(ct.fields) {
		return nil, fmt.Errorf("codegen: %s has %d fields, got %d values", ct.Name, len(ct.fields), len(values))
	}
	fields := make([]reflect.Value, len(values))
	for i, v := range values {
		rv := reflect.ValueOf(v)
		if rv.IsValid() && !rv.Type().AssignableTo(ct.fields[i].typ) {
			return nil, fmt.Errorf("codegen: %s.%s is %s, got %s", ct.Name, ct.fields[i].name, ct.fields[i].typ, rv.Type())
		}
		fields[i] = typed(rv, ct.fields[i].typ)
	}
	return &Instance{typ: ct, fields: fields}, nil
}

// Instance is a compiled type with its fields set.
type Instance struct {
	typ    *CompiledType
	fields []reflect.Value
}

// Call runs the named method.
func (i *Instance) Call(method string, args ...any) (any, error) {
	m, ok := i.typ.methods[method]
	if !ok {
		return nil, fmt.Errorf("codegen: %s has no method %s", i.typ.Name, method)
	}
	if len(args) != len(m.args) {
		return nil, fmt.Errorf("codegen: %s.%s takes %d arguments, got %d", i.typ.Name, method, len(m.args), len(args))
	}
	env := &Env{slots: make([]reflect.Value, m.slots), fields: i.fields}
	for j, a := range args {
		env.slots[j] = typed(reflect.ValueOf(a), m.args[j])
	}
	if err := m.body(env); err != nil {
		return nil, err
	}
	if !env.result.IsValid() {
		return reflect.Zero(m.result).Interface(), nil
	}
	return env.result.Interface(), nil
}
