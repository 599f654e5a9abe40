// Package runner executes blueprint commands inside a host package by
// building and running a modified version of it.
//
// It uses Go's -overlay flag to replace the host's main() with a runner that
// passes its arguments to cli.Run with the host's setup function.
package runner

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	goimports "golang.org/x/tools/imports"
)

// runnerFile is the name of the generated main file inside the host package.
const runnerFile = "blueprint_runner_main_.go"

// Options configures the runner.
type Options struct {
	// Setup is the host's setup function.
	Setup string

	// Args are passed to cli.Run.
	Args []string

	// PkgDir is the directory containing the package.
	PkgDir string
}

// Exec builds and runs the host package.
//
// It creates an overlay that:
// 1. Replaces files containing func main() with versions that have main() removed
// 2. Adds a runner file with our own main()
//
// The overlay approach lets us work with package main and unexported functions.
func Exec(opts Options) (output []byte, err error) {
	tmpDir, err := os.MkdirTemp("", "blueprint-run-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	overlay := make(map[string]string)

	files, err := filepath.Glob(filepath.Join(opts.PkgDir, "*.go"))
	if err != nil {
		return nil, fmt.Errorf("glob: %w", err)
	}
	for _, file := range files {
		if strings.HasSuffix(file, "_test.go") {
			continue
		}
		hasMain, modified, err := removeMain(file)
		if err != nil {
			return nil, fmt.Errorf("process %s: %w", file, err)
		}
		if hasMain {
			tmpFile := filepath.Join(tmpDir, filepath.Base(file))
			if err := os.WriteFile(tmpFile, modified, 0644); err != nil {
				return nil, fmt.Errorf("write modified %s: %w", file, err)
			}
			overlay[file] = tmpFile
		}
	}

	src, err := Generate(opts)
	if err != nil {
		return nil, fmt.Errorf("generate runner: %w", err)
	}
	mainFile := filepath.Join(tmpDir, runnerFile)
	if err := os.WriteFile(mainFile, src, 0644); err != nil {
		return nil, fmt.Errorf("write runner: %w", err)
	}
	overlay[filepath.Join(opts.PkgDir, runnerFile)] = mainFile

	overlayJSON, err := json.Marshal(struct {
		Replace map[string]string `json:"Replace"`
	}{Replace: overlay})
	if err != nil {
		return nil, fmt.Errorf("marshal overlay: %w", err)
	}
	overlayFile := filepath.Join(tmpDir, "overlay.json")
	if err := os.WriteFile(overlayFile, overlayJSON, 0644); err != nil {
		return nil, fmt.Errorf("write overlay: %w", err)
	}

	// -mod=mod allows updating go.mod/go.sum if needed.
	binaryPath := filepath.Join(tmpDir, "runner")
	buildCmd := exec.Command("go", "build", "-mod=mod", "-overlay", overlayFile, "-o", binaryPath, ".")
	buildCmd.Dir = opts.PkgDir
	buildCmd.Env = append(os.Environ(), "GOWORK=off")
	if buildOut, err := buildCmd.CombinedOutput(); err != nil {
		return buildOut, fmt.Errorf("build: %w\n%s", err, buildOut)
	}

	runCmd := exec.Command(binaryPath, opts.Args...)
	runCmd.Dir = opts.PkgDir
	output, err = runCmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("run: %w", err)
	}
	return output, nil
}

// removeMain parses a Go file and returns a version with func main() and
// the imports only it used removed.
// Returns (hasMain, modifiedSource, error).
func removeMain(filename string) (bool, []byte, error) {
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, nil, parser.ParseComments)
	if err != nil {
		return false, nil, err
	}

	hasMain := false
	var decls []ast.Decl
	for _, decl := range f.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if ok && fn.Name.Name == "main" && fn.Recv == nil {
			hasMain = true
			continue
		}
		decls = append(decls, decl)
	}
	if !hasMain {
		return false, nil, nil
	}
	f.Decls = decls

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, f); err != nil {
		return false, nil, err
	}
	// Imports only main used are now unused.
	out, err := goimports.Process(filename, buf.Bytes(), nil)
	if err != nil {
		return false, nil, err
	}
	return true, out, nil
}

// Generate returns the runner main() source.
func Generate(opts Options) ([]byte, error) {
	if !token.IsIdentifier(opts.Setup) {
		return nil, fmt.Errorf("invalid setup function name %q", opts.Setup)
	}
	var buf bytes.Buffer
	if err := runnerTemplate.Execute(&buf, opts); err != nil {
		return nil, err
	}
	return format.Source(buf.Bytes())
}

var runnerTemplate = template.Must(template.New("runner").Parse(`//go:build !blueprint_no_runner

package main

import (
	"fmt"
	"os"

	blueprintcli "github.com/broady/blueprint/cli"
)

func main() {
	if err := blueprintcli.Run(os.Args[1:], {{.Setup}}); err != nil {
		fmt.Fprintf(os.Stderr, "blueprint: %v\n", err)
		os.Exit(1)
	}
}
`))
