package main

import (
	"context"
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"github.com/broady/blueprint/cli"
	"github.com/broady/blueprint/internal/discover"
	"github.com/broady/blueprint/internal/runner"
)

type CLI struct {
	Generate GenerateCmd    `cmd:"" help:"Write generated pipeline source for a host package."`
	Check    CheckCmd       `cmd:"" help:"Fail if a host package's generated source is out of date."`
	Show     ShowCmd        `cmd:"" help:"List a host package's operations, or print one pipeline."`
	Verify   cli.VerifyCmd  `cmd:"" help:"Type-check a generated code folder."`
	Clean    cli.CleanCmd   `cmd:"" help:"Remove generated files from a folder."`
	Version  cli.VersionCmd `cmd:"" help:"Print version information."`
}

// HostFlags select the setup function that host commands run with.
type HostFlags struct {
	Package string `help:"Package to scan (default: current directory)." short:"p" default:"."`
	Setup   string `help:"Setup function name (required if multiple exist)." short:"s"`
}

// exec runs the blueprint command args inside the host package.
func (h *HostFlags) exec(env *cli.Env, args ...string) error {
	result, err := discover.Find(h.Package)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}
	setup, err := discover.SelectSetup(result.Setups, h.Setup)
	if err != nil {
		return err
	}
	fmt.Fprintf(env.Stderr, "using %s.%s()\n", result.PackagePath, setup.Name)

	output, err := runner.Exec(runner.Options{
		Setup:  setup.Name,
		Args:   args,
		PkgDir: result.Dir,
	})
	env.Stdout.Write(output)
	return err
}

type GenerateCmd struct {
	HostFlags `embed:""`
	Out       string `help:"Output directory (default: the configured generated code folder)." short:"o" type:"path"`
}

func (c *GenerateCmd) Run(env *cli.Env) error {
	args := []string{"generate"}
	if c.Out != "" {
		args = append(args, "--out", c.Out)
	}
	return c.exec(env, args...)
}

type CheckCmd struct {
	HostFlags `embed:""`
}

func (c *CheckCmd) Run(env *cli.Env) error {
	return c.exec(env, "check")
}

type ShowCmd struct {
	HostFlags `embed:""`
	Operation string `arg:"" optional:"" help:"Operation name, Go type or pipeline type name."`
}

func (c *ShowCmd) Run(env *cli.Env) error {
	args := []string{"show"}
	if c.Operation != "" {
		args = append(args, c.Operation)
	}
	return c.exec(env, args...)
}

func main() {
	env := &cli.Env{Stdout: os.Stdout, Stderr: os.Stderr}
	ctx := kong.Parse(&CLI{},
		kong.Name("blueprint"),
		kong.Description("Blueprint CLI for generating and checking operation pipelines."),
		kong.UsageOnError(),
		kong.Bind(env),
		kong.BindTo(context.Background(), (*context.Context)(nil)),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
