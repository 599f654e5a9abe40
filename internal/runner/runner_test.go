package runner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	src, err := Generate(Options{Setup: "setupWidgets"})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"package main",
		`blueprintcli "github.com/broady/blueprint/cli"`,
		"blueprintcli.Run(os.Args[1:], setupWidgets)",
	} {
		if !strings.Contains(string(src), want) {
			t.Errorf("runner source missing %q:\n%s", want, src)
		}
	}
}

func TestGenerate_RejectsInvalidName(t *testing.T) {
	for _, name := range []string{"", "setup()", "a b", "func"} {
		if _, err := Generate(Options{Setup: name}); err == nil {
			t.Errorf("Generate(%q) should fail", name)
		}
	}
}

func TestRemoveMain(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "main.go")
	src := `package main

import "fmt"

func Setup() int { return 1 }

func main() {
	fmt.Println(Setup())
}
`
	if err := os.WriteFile(file, []byte(src), 0644); err != nil {
		t.Fatal(err)
	}
	hasMain, out, err := removeMain(file)
	if err != nil {
		t.Fatal(err)
	}
	if !hasMain {
		t.Fatal("hasMain = false")
	}
	if strings.Contains(string(out), "func main()") {
		t.Errorf("main not removed:\n%s", out)
	}
	if strings.Contains(string(out), `"fmt"`) {
		t.Errorf("unused import kept:\n%s", out)
	}
	if !strings.Contains(string(out), "func Setup() int") {
		t.Errorf("Setup removed:\n%s", out)
	}

	other := filepath.Join(dir, "other.go")
	if err := os.WriteFile(other, []byte("package main\n\nfunc helper() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if hasMain, _, err := removeMain(other); err != nil || hasMain {
		t.Errorf("removeMain(other) = %v, %v", hasMain, err)
	}
}
