// Package cli is the blueprint command line. Host programs, which know their
// data model and services, run it from main:
//
//	func main() {
//		if err := cli.Run(os.Args[1:], Setup); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The blueprint tool in cmd/blueprint does the same for packages that only
// define a Setup function.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/fatih/color"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/di"
	"github.com/broady/blueprint/pipeline"
)

// Config is everything needed to generate a host's pipelines.
type Config struct {
	Model    *blueprint.DataModel
	Services *di.ServiceCollection
	Builders []pipeline.MiddlewareBuilder
	Options  blueprint.Options
}

// SetupFunc creates the host's configuration.
type SetupFunc func() (*Config, error)

// ErrNoSetup is returned by commands that need a data model when the CLI was
// started without a setup function.
var ErrNoSetup = errors.New("cli: command needs a setup function")

// CLI is the command tree.
type CLI struct {
	Generate GenerateCmd `cmd:"" help:"Write generated pipeline source to the generated code folder."`
	Check    CheckCmd    `cmd:"" help:"Fail if the generated code folder is out of date."`
	Show     ShowCmd     `cmd:"" help:"List operations, or print the generated pipeline of one."`
	Verify   VerifyCmd   `cmd:"" help:"Type-check the generated code folder."`
	Clean    CleanCmd    `cmd:"" help:"Remove generated files from the generated code folder."`
	Version  VersionCmd  `cmd:"" help:"Print version information."`
}

// Env is bound to every command's Run method.
type Env struct {
	Setup  SetupFunc
	Stdout io.Writer
	Stderr io.Writer

	cfg *Config
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

func (e *Env) ok(format string, args ...any) {
	okColor.Fprint(e.Stdout, "✓ ")
	fmt.Fprintf(e.Stdout, format+"\n", args...)
}

func (e *Env) warn(format string, args ...any) {
	warnColor.Fprint(e.Stdout, "! ")
	fmt.Fprintf(e.Stdout, format+"\n", args...)
}

func (e *Env) fail(format string, args ...any) {
	failColor.Fprint(e.Stderr, "✗ ")
	fmt.Fprintf(e.Stderr, format+"\n", args...)
}

// config runs the setup function once.
func (e *Env) config() (*Config, error) {
	if e.cfg != nil {
		return e.cfg, nil
	}
	if e.Setup == nil {
		return nil, ErrNoSetup
	}
	cfg, err := e.Setup()
	if err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}
	if cfg == nil || cfg.Model == nil {
		return nil, errors.New("setup: config has no data model")
	}
	if cfg.Services == nil {
		cfg.Services = di.NewServiceCollection()
	}
	cfg.Options = cfg.Options.ApplyDefaults()
	e.cfg = cfg
	return cfg, nil
}

// options returns the host's options, or the defaults when there is no setup
// function.
func (e *Env) options() (blueprint.Options, error) {
	if e.Setup == nil {
		return blueprint.Options{}.ApplyDefaults(), nil
	}
	cfg, err := e.config()
	if err != nil {
		return blueprint.Options{}, err
	}
	return cfg.Options, nil
}

func (e *Env) generate() (*pipeline.Generation, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, err
	}
	return pipeline.NewExecutorBuilder(cfg.Builders...).Generate(cfg.Model, cfg.Services, cfg.Options)
}

// Run parses args and runs the selected command. setup may be nil, in which
// case only commands that do not need the data model work.
func Run(args []string, setup SetupFunc) error {
	return run(context.Background(), args, &Env{Setup: setup, Stdout: os.Stdout, Stderr: os.Stderr})
}

func run(ctx context.Context, args []string, env *Env) error {
	var c CLI
	parser, err := kong.New(&c,
		kong.Name("blueprint"),
		kong.Description("Generate, check and inspect blueprint operation pipelines."),
		kong.UsageOnError(),
		kong.Writers(env.Stdout, env.Stderr),
		kong.Bind(env),
		kong.BindTo(ctx, (*context.Context)(nil)),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}
	return kctx.Run()
}
