package discover

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// writeModule writes files into a temporary module that uses this checkout of
// blueprint, and tidies it.
func writeModule(t *testing.T, files map[string]string) string {
	t.Helper()
	if testing.Short() {
		t.Skip("needs the go command")
	}
	dir := t.TempDir()

	root, err := filepath.Abs("../..")
	if err != nil {
		t.Fatal(err)
	}

	goMod := `module test

go 1.25

require github.com/broady/blueprint v0.1.0

replace github.com/broady/blueprint => ` + root + `
`
	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte(goMod), 0644); err != nil {
		t.Fatal(err)
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	cmd := exec.Command("go", "mod", "tidy")
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GOWORK=off")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("go mod tidy: %v\n%s", err, out)
	}
	return dir
}

func TestFind(t *testing.T) {
	t.Setenv("GOWORK", "off")

	tests := []struct {
		name       string
		files      map[string]string
		wantSetups []string
	}{
		{
			name: "single setup",
			files: map[string]string{
				"main.go": `package main

import "github.com/broady/blueprint/cli"

func Setup() (*cli.Config, error) {
	return &cli.Config{}, nil
}

func main() {}
`,
			},
			wantSetups: []string{"Setup"},
		},
		{
			name: "no setup",
			files: map[string]string{
				"main.go": `package main

func main() {}
`,
			},
		},
		{
			name: "ignores methods and wrong signatures",
			files: map[string]string{
				"main.go": `package main

import "github.com/broady/blueprint/cli"

type Builder struct{}

func (b *Builder) Setup() (*cli.Config, error) { return nil, nil }

func withArg(name string) (*cli.Config, error) { return nil, nil }

func noError() *cli.Config { return nil }

func main() {}
`,
			},
		},
		{
			name: "finds unexported functions",
			files: map[string]string{
				"main.go": `package main

import "github.com/broady/blueprint/cli"

func setup() (*cli.Config, error) { return nil, nil }

func other() (*cli.Config, error) { return nil, nil }

func main() {}
`,
			},
			wantSetups: []string{"other", "setup"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeModule(t, tt.files)

			result, err := FindDir(".", dir)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var got []string
			for _, s := range result.Setups {
				got = append(got, s.Name)
			}
			if strings.Join(got, ",") != strings.Join(tt.wantSetups, ",") {
				t.Errorf("setups = %v, want %v", got, tt.wantSetups)
			}
			if result.PackagePath != "test" {
				t.Errorf("PackagePath = %q, want test", result.PackagePath)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	t.Setenv("GOWORK", "off")

	t.Run("constructors", func(t *testing.T) {
		dir := writeModule(t, map[string]string{
			"pipelines.go": `package pipelines

import (
	"github.com/broady/blueprint"
	"github.com/broady/blueprint/di"
)

func newA(sp di.ServiceProvider) (blueprint.Pipeline, error) { return nil, nil }

func newB(sp di.ServiceProvider) (blueprint.Pipeline, error) { return nil, nil }

func helper(sp di.ServiceProvider) error { return nil }
`,
		})
		res, err := Check(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Errors) != 0 {
			t.Fatalf("errors = %v", res.Errors)
		}
		if len(res.Constructors) != 2 || res.Constructors[0].Name != "newA" || res.Constructors[1].Name != "newB" {
			t.Errorf("constructors = %v", res.Constructors)
		}
		if res.Files != 1 {
			t.Errorf("Files = %d, want 1", res.Files)
		}
	})

	t.Run("type errors", func(t *testing.T) {
		dir := writeModule(t, map[string]string{
			"pipelines.go": `package pipelines

var x int = "not an int"
`,
		})
		res, err := Check(dir)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Errors) == 0 {
			t.Fatal("expected type errors")
		}
	})
}

func TestSelectSetup(t *testing.T) {
	setups := []Func{{Name: "Setup"}, {Name: "SetupTest"}}

	tests := []struct {
		name    string
		setups  []Func
		want    string
		wantErr string
	}{
		{name: "single", setups: setups[:1], want: "Setup"},
		{name: "by name", setups: setups, want: "SetupTest"},
		{name: "none", setups: nil, wantErr: "no setup function found"},
		{name: "ambiguous", setups: setups, wantErr: "multiple setup functions found"},
		{name: "unknown name", setups: setups, want: "Missing", wantErr: `"Missing" not found`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := ""
			if tt.name == "by name" || tt.name == "unknown name" {
				name = tt.want
			}
			got, err := SelectSetup(tt.setups, name)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got.Name != tt.want {
				t.Errorf("got %s, want %s", got.Name, tt.want)
			}
		})
	}
}
