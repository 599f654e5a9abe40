// Package discover inspects Go packages for blueprint entry points.
//
// It finds setup functions in host packages by signature:
//
//	func() (*cli.Config, error)
//
// and pipeline constructors in generated packages:
//
//	func(di.ServiceProvider) (blueprint.Pipeline, error)
//
// No directives or annotations needed; the signature is the marker.
package discover

import (
	"fmt"
	"go/token"
	"go/types"
	"path/filepath"
	"sort"

	"golang.org/x/tools/go/packages"
)

const (
	modulePath = "github.com/broady/blueprint"
	cliPath    = modulePath + "/cli"
	diPath     = modulePath + "/di"
)

// Func is a discovered package-level function.
type Func struct {
	Name string         // function name
	Pos  token.Position // source location
}

// Result contains discovered setup functions and package info.
type Result struct {
	Setups      []Func
	PackagePath string
	ModulePath  string
	ModuleDir   string // directory containing go.mod
	Dir         string // directory containing the package
}

// Find scans a Go package for setup functions.
//
// The pattern follows go command semantics:
//   - "." for current directory
//   - Import path like "github.com/foo/bar"
//   - Absolute or relative directory path
func Find(pattern string) (*Result, error) {
	return FindDir(pattern, "")
}

// FindDir is like Find but allows specifying a working directory.
func FindDir(pattern, dir string) (*Result, error) {
	pkg, err := load(pattern, dir)
	if err != nil {
		return nil, err
	}
	if len(pkg.Errors) > 0 {
		return nil, fmt.Errorf("package errors: %v", pkg.Errors[0])
	}

	result := &Result{PackagePath: pkg.PkgPath}
	if pkg.Module != nil {
		result.ModulePath = pkg.Module.Path
		result.ModuleDir = pkg.Module.Dir
	}
	if len(pkg.GoFiles) > 0 {
		result.Dir = filepath.Dir(pkg.GoFiles[0])
	}
	result.Setups = funcs(pkg, isSetupFunc)
	return result, nil
}

// CheckResult is the outcome of type-checking a generated package.
type CheckResult struct {
	PackagePath string
	Files       int
	// Constructors are the pipeline constructors found in the package.
	Constructors []Func
	// Errors are the package's load and type errors.
	Errors []string
}

// Check loads the package in dir and reports its type errors and pipeline
// constructors. Type errors do not make Check fail.
func Check(dir string) (*CheckResult, error) {
	pkg, err := load(".", dir)
	if err != nil {
		return nil, err
	}
	res := &CheckResult{PackagePath: pkg.PkgPath, Files: len(pkg.GoFiles)}
	for _, e := range pkg.Errors {
		res.Errors = append(res.Errors, e.Error())
	}
	if pkg.Types != nil {
		res.Constructors = funcs(pkg, isConstructor)
	}
	return res, nil
}

func load(pattern, dir string) (*packages.Package, error) {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedFiles |
			packages.NeedTypes | packages.NeedModule,
		Dir: dir,
	}

	pkgs, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, fmt.Errorf("load package: %w", err)
	}
	if len(pkgs) == 0 {
		return nil, fmt.Errorf("no packages found matching %q", pattern)
	}
	if len(pkgs) > 1 {
		return nil, fmt.Errorf("multiple packages found matching %q; specify a single package", pattern)
	}
	return pkgs[0], nil
}

// funcs returns the package-level functions whose signature matches.
func funcs(pkg *packages.Package, match func(*types.Signature) bool) []Func {
	var out []Func
	scope := pkg.Types.Scope()
	for _, name := range scope.Names() {
		fn, ok := scope.Lookup(name).(*types.Func)
		if !ok {
			continue
		}
		sig, ok := fn.Type().(*types.Signature)
		if !ok || sig.Recv() != nil || !match(sig) {
			continue
		}
		out = append(out, Func{Name: fn.Name(), Pos: pkg.Fset.Position(fn.Pos())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// isSetupFunc matches func() (*cli.Config, error).
func isSetupFunc(sig *types.Signature) bool {
	if sig.Params().Len() != 0 || sig.Results().Len() != 2 {
		return false
	}
	ptr, ok := sig.Results().At(0).Type().(*types.Pointer)
	if !ok {
		return false
	}
	return isNamed(ptr.Elem(), cliPath, "Config") && isError(sig.Results().At(1).Type())
}

// isConstructor matches func(di.ServiceProvider) (blueprint.Pipeline, error).
func isConstructor(sig *types.Signature) bool {
	if sig.Params().Len() != 1 || sig.Results().Len() != 2 {
		return false
	}
	return isNamed(sig.Params().At(0).Type(), diPath, "ServiceProvider") &&
		isNamed(sig.Results().At(0).Type(), modulePath, "Pipeline") &&
		isError(sig.Results().At(1).Type())
}

func isNamed(t types.Type, pkgPath, name string) bool {
	named, ok := t.(*types.Named)
	if !ok {
		return false
	}
	pkg := named.Obj().Pkg()
	return pkg != nil && pkg.Path() == pkgPath && named.Obj().Name() == name
}

func isError(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}

// SelectSetup picks the setup function to use based on found functions and
// optional name.
//
// If name is empty:
//   - Returns the function if exactly one found
//   - Returns error if zero or multiple found
//
// If name is specified:
//   - Returns the function with that name
//   - Returns error if not found
func SelectSetup(setups []Func, name string) (*Func, error) {
	if name != "" {
		for i := range setups {
			if setups[i].Name == name {
				return &setups[i], nil
			}
		}
		return nil, fmt.Errorf("setup function %q not found", name)
	}

	switch len(setups) {
	case 0:
		return nil, fmt.Errorf("no setup function found\n\nAdd a function that returns *cli.Config:\n\n    func Setup() (*cli.Config, error) {\n        // ...\n    }")
	case 1:
		return &setups[0], nil
	default:
		msg := "multiple setup functions found:\n"
		for _, s := range setups {
			msg += fmt.Sprintf("  - %s()\n", s.Name)
		}
		msg += "\nSpecify which one: blueprint generate --setup <name>"
		return nil, fmt.Errorf("%s", msg)
	}
}
