package codegen

import (
	"fmt"
	"reflect"
	"strings"
)

// blockMode is the kind of block frames are being rendered or compiled in.
// It decides what returning and failing mean.
type blockMode int

const (
	// modeTop is the method body: Return returns from the method.
	modeTop blockMode = iota
	// modeTry is the body of a TryFrame: Return sets the result and leaves the
	// try body, failures are caught.
	modeTry
	// modeCatch is a catch body: Return sets the result.
	modeCatch
)

// SourceWriter renders frames as Go source.
type SourceWriter struct {
	b       strings.Builder
	depth   int
	imports *ImportSet
	typ     *GeneratedType
	method  *GeneratedMethod
	names   map[*Variable]string
	used    map[*Variable]bool
	mode    blockMode
	err     error

	// declared holds locals declared ahead of the frame that assigns them.
	declared map[*Variable]bool
}

func newSourceWriter(typ *GeneratedType, imports *ImportSet) *SourceWriter {
	return &SourceWriter{typ: typ, imports: imports}
}

// Line writes one indented line.
func (w *SourceWriter) Line(format string, args ...any) {
	if format == "" {
		w.b.WriteByte('\n')
		return
	}
	w.b.WriteString(strings.Repeat("\t", w.depth))
	fmt.Fprintf(&w.b, format, args...)
	w.b.WriteByte('\n')
}

// Indent increases the indentation of following lines.
func (w *SourceWriter) Indent() { w.depth++ }

// Dedent decreases the indentation of following lines.
func (w *SourceWriter) Dedent() { w.depth-- }

// Errorf records a rendering error. Only the first error is kept.
func (w *SourceWriter) Errorf(format string, args ...any) {
	if w.err == nil {
		w.err = fmt.Errorf(format, args...)
	}
}

// InTry reports whether frames are being written inside a try body.
func (w *SourceWriter) InTry() bool { return w.mode == modeTry }

// Imports returns the file's import set.
func (w *SourceWriter) Imports() *ImportSet { return w.imports }

// Frames writes frames in the given mode.
func (w *SourceWriter) frames(frames []Frame, mode blockMode) {
	saved := w.mode
	w.mode = mode
	for _, f := range frames {
		f.GenerateCode(w)
	}
	w.mode = saved
}

// Ref returns the expression that reads v.
func (w *SourceWriter) Ref(v *Variable) string {
	switch v.Kind {
	case KindLocal:
		name, ok := w.names[v]
		if !ok {
			w.Errorf("codegen: variable %s has no name; was the method arranged?", v)
			return v.Name
		}
		return name
	case KindArgument:
		return v.Name
	case KindField:
		return receiverName + "." + v.field.Name
	case KindLiteral:
		if v.source == "" {
			return w.Type(v.Type) + "{}"
		}
		return v.source
	case KindResult:
		return resultName
	case KindMember:
		return w.Ref(v.parent) + "." + v.Name
	}
	w.Errorf("codegen: unknown variable kind %d", v.Kind)
	return v.Name
}

// Decl returns the name to assign v to: its name, or "_" if nothing reads it.
func (w *SourceWriter) Decl(v *Variable) string {
	if !w.used[v] {
		return "_"
	}
	return w.Ref(v)
}

// Return writes a return of expr appropriate to the current block.
func (w *SourceWriter) Return(expr string) {
	switch w.mode {
	case modeTry:
		if expr != resultName {
			w.Line("%s = %s", resultName, expr)
		}
		w.Line("return nil")
	case modeCatch:
		if expr != resultName {
			w.Line("%s = %s", resultName, expr)
		}
	default:
		w.Line("return %s", expr)
	}
}

// Fail writes the handling of a non-nil error held in errExpr.
func (w *SourceWriter) Fail(errExpr string) {
	if w.mode == modeTry {
		w.Line("return %s", errExpr)
		return
	}
	if w.method == nil || w.method.OnFailure == nil {
		w.Errorf("codegen: %s: failing call outside a try block and no failure handler", w.methodName())
		w.Line("panic(%s)", errExpr)
		return
	}
	w.Line("return %s(%s)", w.Func(w.method.OnFailure), errExpr)
}

// Assign returns the assignment operator for v: "=" when v is declared ahead
// of its creator or unused, ":=" otherwise.
func (w *SourceWriter) Assign(v *Variable) string {
	if w.declared[v] || !w.used[v] {
		return "="
	}
	return ":="
}

// Call writes expr, assigning its results to outputs. canFail means expr
// returns a trailing error that must be checked.
func (w *SourceWriter) Call(outputs []*Variable, canFail bool, expr string) {
	lhs := make([]string, 0, len(outputs)+1)
	named := false
	op := ":="
	for _, o := range outputs {
		d := w.Decl(o)
		if d != "_" {
			named = true
		}
		if w.declared[o] {
			op = "="
		}
		lhs = append(lhs, d)
	}
	if op == "=" && canFail && w.mode != modeTry {
		w.Errorf("codegen: %s: declared variable assigned by a failing call outside a try block", w.methodName())
	}
	switch {
	case canFail && !named:
		lhs = append(lhs, "err")
		w.Line("if %s := %s; err != nil {", strings.Join(lhs, ", "), expr)
		w.Indent()
		w.Fail("err")
		w.Dedent()
		w.Line("}")
	case canFail:
		lhs = append(lhs, "err")
		w.Line("%s %s %s", strings.Join(lhs, ", "), op, expr)
		w.Line("if err != nil {")
		w.Indent()
		w.Fail("err")
		w.Dedent()
		w.Line("}")
	case named:
		w.Line("%s %s %s", strings.Join(lhs, ", "), op, expr)
	default:
		w.Line("%s", expr)
	}
}

// Func returns the qualified name of a package-level function.
func (w *SourceWriter) Func(fn any) string {
	pkgPath, name, err := funcName(reflect.ValueOf(fn))
	if err != nil {
		w.Errorf("%v", err)
		return "nil"
	}
	return w.imports.Qualify(pkgPath, "", name)
}

// Qualify returns the qualified name of an identifier declared in pkgPath.
func (w *SourceWriter) Qualify(pkgPath, name string) string {
	return w.imports.Qualify(pkgPath, "", name)
}

func (w *SourceWriter) methodName() string {
	if w.method == nil {
		return w.typ.Name
	}
	return w.typ.Name + "." + w.method.Name
}

// Type returns the Go source for t, importing packages as needed.
func (w *SourceWriter) Type(t reflect.Type) string {
	if t == errorType {
		return "error"
	}
	if t.Name() != "" {
		if t.PkgPath() == "" {
			return t.Name()
		}
		if strings.ContainsRune(t.Name(), '[') {
			return w.genericType(t)
		}
		return w.imports.Qualify(t.PkgPath(), packageNameOf(t), t.Name())
	}
	switch t.Kind() {
	case reflect.Pointer:
		return "*" + w.Type(t.Elem())
	case reflect.Slice:
		return "[]" + w.Type(t.Elem())
	case reflect.Array:
		return fmt.Sprintf("[%d]%s", t.Len(), w.Type(t.Elem()))
	case reflect.Map:
		return "map[" + w.Type(t.Key()) + "]" + w.Type(t.Elem())
	case reflect.Chan:
		switch t.ChanDir() {
		case reflect.RecvDir:
			return "<-chan " + w.Type(t.Elem())
		case reflect.SendDir:
			return "chan<- " + w.Type(t.Elem())
		}
		return "chan " + w.Type(t.Elem())
	case reflect.Func:
		return "func" + w.signature(t)
	case reflect.Interface:
		if t.NumMethod() == 0 {
			return "any"
		}
	case reflect.Struct:
		if t.NumField() == 0 {
			return "struct{}"
		}
	}
	w.Errorf("codegen: cannot render anonymous type %s", t)
	return "any"
}

func (w *SourceWriter) signature(t reflect.Type) string {
	in := make([]string, t.NumIn())
	for i := range in {
		in[i] = w.Type(t.In(i))
		if t.IsVariadic() && i == len(in)-1 {
			in[i] = "..." + w.Type(t.In(i).Elem())
		}
	}
	out := make([]string, t.NumOut())
	for i := range out {
		out[i] = w.Type(t.Out(i))
	}
	s := "(" + strings.Join(in, ", ") + ")"
	switch len(out) {
	case 0:
		return s
	case 1:
		return s + " " + out[0]
	default:
		return s + " (" + strings.Join(out, ", ") + ")"
	}
}

// genericType renders an instantiated generic type. reflect only exposes
// type arguments through the type's name, which spells them with full
// package paths, so the name is parsed.
func (w *SourceWriter) genericType(t reflect.Type) string {
	name := t.Name()
	i := strings.IndexByte(name, '[')
	base := w.imports.Qualify(t.PkgPath(), packageNameOf(t), name[:i])
	args := splitTopLevel(name[i+1 : len(name)-1])
	for j, a := range args {
		args[j] = w.typeExpr(a)
	}
	return base + "[" + strings.Join(args, ", ") + "]"
}

// typeExpr renders a type spelled the way reflect spells type arguments.
func (w *SourceWriter) typeExpr(s string) string {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "*"):
		return "*" + w.typeExpr(s[1:])
	case strings.HasPrefix(s, "[]"):
		return "[]" + w.typeExpr(s[2:])
	case strings.HasPrefix(s, "map["):
		end := matchingBracket(s, 3)
		if end < 0 {
			break
		}
		return "map[" + w.typeExpr(s[4:end]) + "]" + w.typeExpr(s[end+1:])
	case strings.HasPrefix(s, "["):
		end := matchingBracket(s, 0)
		if end < 0 {
			break
		}
		return s[:end+1] + w.typeExpr(s[end+1:])
	case s == "interface {}" || s == "interface{}":
		return "any"
	case strings.HasPrefix(s, "func(") || strings.HasPrefix(s, "struct {") || strings.HasPrefix(s, "interface {"):
		w.Errorf("codegen: cannot render type argument %s", s)
		return "any"
	}

	base, args := s, ""
	if i := strings.IndexByte(s, '['); i >= 0 {
		base, args = s[:i], s[i+1:len(s)-1]
	}
	qualified := base
	if dot := strings.LastIndexByte(base, '.'); dot >= 0 {
		qualified = w.imports.Qualify(base[:dot], "", base[dot+1:])
	}
	if args == "" {
		return qualified
	}
	parts := splitTopLevel(args)
	for i, p := range parts {
		parts[i] = w.typeExpr(p)
	}
	return qualified + "[" + strings.Join(parts, ", ") + "]"
}

// splitTopLevel splits s at commas outside brackets and parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[', '(', '{':
			depth++
		case ']', ')', '}':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	return append(parts, strings.TrimSpace(s[start:]))
}

// matchingBracket returns the index of the ']' closing the '[' at open.
func matchingBracket(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// packageNameOf returns the declared package name of a named type, taken from
// its String form ("slog.Logger" gives "slog").
func packageNameOf(t reflect.Type) string {
	s := t.String()
	if i := strings.IndexByte(s, '['); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimLeft(s, "*")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		return s[:i]
	}
	return ""
}
