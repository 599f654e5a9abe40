// Package codegen builds pipeline types as ordered lists of frames and turns
// them into either Go source or an in-memory chain of closures.
//
// A GeneratedAssembly holds GeneratedTypes; each type has GeneratedMethods and
// InjectedFields. A method body is a Block of Frames. Frames declare the
// Variables they use and create; before anything is rendered or compiled the
// method is arranged, which inserts the creator of every used variable ahead of
// its first use.
//
// The two renderings are produced from the same arranged frames:
//
//   - GenerateCode writes a gofmt-formatted Go file, meant to be compiled into
//     the binary by the normal go build.
//   - Compile walks the frames once and produces closures over an index-based
//     slot arena. No Go toolchain is involved.
package codegen

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/iancoleman/strcase"
)

// VariableKind says where a variable's value lives.
type VariableKind int

const (
	// KindLocal variables are created by a frame in the method body.
	KindLocal VariableKind = iota
	// KindArgument variables are method parameters.
	KindArgument
	// KindField variables read an injected field of the receiver.
	KindField
	// KindLiteral variables are constants.
	KindLiteral
	// KindResult is the method's named result.
	KindResult
	// KindMember variables read an exported struct field of another variable.
	KindMember
)

// Variable is a value flowing between frames.
type Variable struct {
	// Name is the preferred identifier. Locals are renamed during arrangement
	// if the name is taken.
	Name string
	Type reflect.Type
	Kind VariableKind

	// Creator is the frame that assigns a local variable.
	Creator Frame

	literal reflect.Value
	source  string // literal source text
	parent  *Variable
	field   *InjectedField
}

// NewVariable creates a local variable. The frame that assigns it must set
// itself as Creator.
func NewVariable(t reflect.Type, name string) *Variable {
	if name == "" {
		name = DefaultName(t)
	}
	return &Variable{Name: name, Type: t, Kind: KindLocal}
}

// Argument creates a method parameter.
func Argument(name string, t reflect.Type) *Variable {
	return &Variable{Name: name, Type: t, Kind: KindArgument}
}

// Literal creates a constant. Supported values are strings, booleans and
// numbers.
func Literal(v any) *Variable {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		panic("codegen: Literal(nil); use Nil with a type")
	}
	var src string
	switch rv.Kind() {
	case reflect.String:
		src = fmt.Sprintf("%q", rv.String())
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		src = fmt.Sprintf("%v", v)
	default:
		panic(fmt.Sprintf("codegen: unsupported literal of type %s", rv.Type()))
	}
	return &Variable{Name: src, Type: rv.Type(), Kind: KindLiteral, literal: rv, source: src}
}

// Nil creates the nil value of t, which must be a pointer, interface, slice,
// map, chan or func type.
func Nil(t reflect.Type) *Variable {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
	default:
		panic(fmt.Sprintf("codegen: %s cannot be nil", t))
	}
	return &Variable{Name: "nil", Type: t, Kind: KindLiteral, literal: reflect.Zero(t), source: "nil"}
}

// EmptySlice creates a non-nil, zero-length slice of type t.
func EmptySlice(t reflect.Type) *Variable {
	if t.Kind() != reflect.Slice {
		panic(fmt.Sprintf("codegen: %s is not a slice type", t))
	}
	return &Variable{Name: "empty", Type: t, Kind: KindLiteral, literal: reflect.MakeSlice(t, 0, 0)}
}

// Member creates a variable reading the exported field name of v.
// v may be a struct or a pointer to a struct.
func Member(v *Variable, name string) *Variable {
	st := v.Type
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		panic(fmt.Sprintf("codegen: %s has no fields", v.Type))
	}
	f, ok := st.FieldByName(name)
	if !ok || !f.IsExported() {
		panic(fmt.Sprintf("codegen: %s has no exported field %s", v.Type, name))
	}
	return &Variable{Name: name, Type: f.Type, Kind: KindMember, parent: v}
}

// Field returns the injected field backing v, if any.
func (v *Variable) Field() *InjectedField {
	return v.field
}

func (v *Variable) String() string {
	return v.Name + " " + v.Type.String()
}

// needsCreator reports whether v must be assigned by a frame before use.
func (v *Variable) needsCreator() bool {
	return v.Kind == KindLocal
}

// root returns the variable a member chain starts from.
func (v *Variable) root() *Variable {
	for v.Kind == KindMember {
		v = v.parent
	}
	return v
}

// DefaultName derives a variable name from a type, e.g. *slog.Logger becomes
// "logger" and blueprint.Handler[*widgets.GetWidget] becomes "handlerGetWidget".
// Only unnamed slices and arrays take their element's name with a "List"
// suffix; a named slice type keeps its own name.
func DefaultName(t reflect.Type) string {
	if t == nil {
		return "v"
	}
	suffix := ""
loop:
	for t.Name() == "" {
		switch t.Kind() {
		case reflect.Pointer:
			t = t.Elem()
		case reflect.Slice, reflect.Array:
			suffix = "List" + suffix
			t = t.Elem()
		default:
			break loop
		}
	}
	name := t.Name()
	if name == "" {
		switch t.Kind() {
		case reflect.Interface:
			name = "value"
		case reflect.Map:
			name = "values"
		case reflect.Func:
			name = "fn"
		default:
			name = "v"
		}
	}
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i] + shortTypeArgs(name[i+1:len(name)-1])
	}
	if t == errorType {
		return "err" + suffix
	}
	return Identifier(strcase.ToLowerCamel(name + suffix))
}

// shortTypeArgs keeps the last path element of each type argument:
// "*github.com/x/widgets.GetWidget" becomes "GetWidget".
func shortTypeArgs(args string) string {
	var b strings.Builder
	for _, arg := range splitTopLevel(args) {
		arg = strings.TrimLeft(arg, "*[]")
		if i := strings.IndexByte(arg, '['); i >= 0 {
			arg = arg[:i]
		}
		if i := strings.LastIndexByte(arg, '.'); i >= 0 {
			arg = arg[i+1:]
		}
		b.WriteString(strcase.ToCamel(arg))
	}
	return b.String()
}

// Identifier makes s a valid Go identifier by replacing invalid characters.
func Identifier(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z'):
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "v"
	}
	return b.String()
}

var errorType = reflect.TypeFor[error]()
