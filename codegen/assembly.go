package codegen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"go/token"
	"reflect"
	"strings"

	goimports "golang.org/x/tools/imports"
)

// GeneratedAssembly is a set of generated types sharing one Go package.
type GeneratedAssembly struct {
	// Package is the name of the generated package.
	Package string
	// PackagePath is the import path of the generated package. Identifiers
	// declared there are not qualified.
	PackagePath string
	// Generator names the tool in the "Code generated" header.
	Generator string

	Types []*GeneratedType
}

// NewAssembly creates an empty assembly.
func NewAssembly(pkg, pkgPath, generator string) *GeneratedAssembly {
	return &GeneratedAssembly{Package: pkg, PackagePath: pkgPath, Generator: generator}
}

// AddType adds a type. Interfaces are types the generated type implements;
// the source carries a compile-time assertion for each.
func (a *GeneratedAssembly) AddType(name string, interfaces ...reflect.Type) *GeneratedType {
	t := &GeneratedType{Name: name, Interfaces: interfaces}
	a.Types = append(a.Types, t)
	return t
}

// Header returns the first line of every file the assembly generates.
func (a *GeneratedAssembly) Header() string {
	return GeneratedHeader(a.Generator)
}

// GeneratedHeader returns the "Code generated" comment recognized by go
// tooling for files written by generator.
func GeneratedHeader(generator string) string {
	return "// Code generated by " + generator + ". DO NOT EDIT."
}

// IsGenerated reports whether src starts with a "Code generated" header
// written by generator.
func IsGenerated(src []byte, generator string) bool {
	line, _, _ := strings.Cut(string(src), "\n")
	return strings.TrimRight(line, "\r") == GeneratedHeader(generator)
}

// SourceFile is the rendered source of one generated type.
type SourceFile struct {
	// Name is the file name, TypeName.go.
	Name    string
	Content []byte
	// Fingerprint identifies the type's declarations, excluding the
	// epilogue that may embed it.
	Fingerprint string
}

// GeneratedType is one generated struct type and its methods.
type GeneratedType struct {
	Name       string
	Interfaces []reflect.Type
	Methods    []*GeneratedMethod

	// Epilogue, if set, writes declarations after the type and its methods.
	Epilogue Renderer

	fields   []*InjectedField
	reserved []string
}

// Reserve keeps imports from taking names the epilogue declares.
func (t *GeneratedType) Reserve(names ...string) {
	t.reserved = append(t.reserved, names...)
}

// Renderer writes extra declarations for a generated type.
type Renderer interface {
	Render(t *GeneratedType, w *SourceWriter, fingerprint string) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(t *GeneratedType, w *SourceWriter, fingerprint string) error

// Render implements Renderer.
func (f RendererFunc) Render(t *GeneratedType, w *SourceWriter, fingerprint string) error {
	return f(t, w, fingerprint)
}

// InjectedField is a field of a generated type set when an instance is
// created.
type InjectedField struct {
	Name string
	Type reflect.Type
	// Variable reads the field inside methods.
	Variable *Variable

	index int
}

// FieldCollisionError reports two different types injected under one name.
type FieldCollisionError struct {
	Type     string
	Name     string
	Existing reflect.Type
	New      reflect.Type
}

func (e *FieldCollisionError) Error() string {
	return fmt.Sprintf("codegen: %s: field %s is already injected with type %s, cannot inject %s", e.Type, e.Name, e.Existing, e.New)
}

// InjectField returns the field named name, adding it if needed. Injecting
// the same name and type again returns the existing field.
func (t *GeneratedType) InjectField(name string, ft reflect.Type) (*InjectedField, error) {
	name = Identifier(name)
	for _, f := range t.fields {
		if f.Name != name {
			continue
		}
		if f.Type != ft {
			return nil, &FieldCollisionError{Type: t.Name, Name: name, Existing: f.Type, New: ft}
		}
		return f, nil
	}
	for _, m := range t.Methods {
		if m.Name == name {
			return nil, &FieldCollisionError{Type: t.Name, Name: name, Existing: reflect.TypeFor[func()](), New: ft}
		}
	}
	f := &InjectedField{Name: name, Type: ft, index: len(t.fields)}
	f.Variable = &Variable{Name: name, Type: ft, Kind: KindField, field: f}
	t.fields = append(t.fields, f)
	return f, nil
}

// Fields returns the injected fields in declaration order.
func (t *GeneratedType) Fields() []*InjectedField {
	return t.fields
}

// AddMethod adds a method with the given arguments and result type. The
// method's named result is available as Result.
func (t *GeneratedType) AddMethod(name string, result reflect.Type, args ...*Variable) *GeneratedMethod {
	m := &GeneratedMethod{
		Name:   name,
		Args:   args,
		Result: &Variable{Name: resultName, Type: result, Kind: KindResult},
		Body:   &Block{},
		owner:  t,
	}
	t.Methods = append(t.Methods, m)
	return m
}

// Method returns the method named name, or nil.
func (t *GeneratedType) Method(name string) *GeneratedMethod {
	for _, m := range t.Methods {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// GeneratedMethod is a method of a generated type.
type GeneratedMethod struct {
	Name   string
	Args   []*Variable
	Result *Variable
	Body   *Block

	// OnFailure is a package-level func(error) R, R assignable to the result
	// type, producing the result when a frame outside a try block fails.
	OnFailure any

	owner    *GeneratedType
	arranged bool
	names    map[*Variable]string
	used     map[*Variable]bool
}

// Arrange orders the method's frames. It runs at most once.
func (m *GeneratedMethod) Arrange() error {
	if m.arranged {
		return nil
	}
	if err := arrange(m.owner.Name+"."+m.Name, m.Body); err != nil {
		return err
	}
	m.arranged = true
	m.assignNames()
	return nil
}

var predeclared = strings.Fields(`any append bool byte cap clear close comparable complex complex64
	complex128 copy delete error false float32 float64 imag int int8 int16 int32 int64 iota len
	make max min new nil panic print println real recover rune string true uint uint8 uint16
	uint32 uint64 uintptr`)

// assignNames gives every local a unique name and records which are read.
func (m *GeneratedMethod) assignNames() {
	taken := map[string]bool{receiverName: true, resultName: true, "err": true}
	for _, p := range predeclared {
		taken[p] = true
	}
	for _, a := range m.Args {
		taken[a.Name] = true
	}
	m.names = map[*Variable]string{}
	m.used = map[*Variable]bool{}
	walk(m.Body, func(f Frame, _ *Block) bool {
		for _, v := range f.Creates() {
			if _, ok := m.names[v]; ok {
				continue
			}
			base := Identifier(v.Name)
			name := base
			for i := 2; taken[name] || token.IsKeyword(name); i++ {
				name = fmt.Sprintf("%s%d", base, i)
			}
			taken[name] = true
			m.names[v] = name
		}
		for _, v := range f.Uses() {
			m.used[v.root()] = true
		}
		return true
	})
}

// localNames returns the names of the method's locals and arguments.
func (m *GeneratedMethod) localNames() []string {
	out := make([]string, 0, len(m.names)+len(m.Args))
	for _, n := range m.names {
		out = append(out, n)
	}
	for _, a := range m.Args {
		out = append(out, a.Name)
	}
	return out
}

// GenerateCode renders t as a formatted Go file.
func (a *GeneratedAssembly) GenerateCode(t *GeneratedType) (*SourceFile, error) {
	imports := NewImportSet(a.PackagePath, receiverName, resultName, "err", t.Name)
	imports.Reserve(t.reserved...)
	for _, m := range t.Methods {
		if err := m.Arrange(); err != nil {
			return nil, err
		}
		imports.Reserve(m.localNames()...)
	}

	w := newSourceWriter(t, imports)
	w.Line("type %s struct {", t.Name)
	w.Indent()
	for _, f := range t.fields {
		w.Line("%s %s", f.Name, w.Type(f.Type))
	}
	w.Dedent()
	w.Line("}")
	for _, iface := range t.Interfaces {
		w.Line("")
		w.Line("var _ %s = (*%s)(nil)", w.Type(iface), t.Name)
	}
	for _, m := range t.Methods {
		w.Line("")
		m.generate(w)
	}
	if w.err != nil {
		return nil, w.err
	}

	sum := sha256.Sum256([]byte(w.b.String()))
	fingerprint := hex.EncodeToString(sum[:16])
	if t.Epilogue != nil {
		w.method = nil
		w.Line("")
		if err := t.Epilogue.Render(t, w, fingerprint); err != nil {
			return nil, err
		}
		if w.err != nil {
			return nil, w.err
		}
	}

	var src strings.Builder
	src.WriteString(a.Header() + "\n\n")
	src.WriteString("package " + a.Package + "\n\n")
	imports.render(&src)
	src.WriteString(w.b.String())

	name := t.Name + ".go"
	formatted, err := goimports.Process(name, []byte(src.String()), &goimports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("codegen: formatting %s: %w\n%s", name, err, src.String())
	}
	return &SourceFile{Name: name, Content: formatted, Fingerprint: fingerprint}, nil
}

func (m *GeneratedMethod) generate(w *SourceWriter) {
	w.method = m
	w.names = m.names
	w.used = m.used
	w.declared = map[*Variable]bool{}
	w.mode = modeTop

	params := make([]string, len(m.Args))
	for i, a := range m.Args {
		params[i] = a.Name + " " + w.Type(a.Type)
	}
	w.Line("func (%s *%s) %s(%s) (%s %s) {", receiverName, m.owner.Name, m.Name,
		strings.Join(params, ", "), resultName, w.Type(m.Result.Type))
	w.Indent()
	w.frames(m.Body.Frames, modeTop)
	if !endsWithReturn(m.Body) {
		w.Line("return %s", resultName)
	}
	w.Dedent()
	w.Line("}")
}
