package blueprint

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Mode selects what building the pipelines is for.
type Mode string

const (
	// ModeServe builds pipelines that will execute operations.
	ModeServe Mode = "serve"

	// ModePrecompile writes generated source and stops; nothing is executed.
	ModePrecompile Mode = "precompile"
)

// PrecompileEnv is the environment variable read by ModeFromEnv.
const PrecompileEnv = "BLUEPRINT_PRECOMPILE"

// ModeFromEnv returns ModePrecompile when BLUEPRINT_PRECOMPILE is set to a true
// value. Hosting code calls it once at startup and passes the result in Options.
func ModeFromEnv() Mode {
	if v, ok := os.LookupEnv(PrecompileEnv); ok {
		if b, err := strconv.ParseBool(v); err == nil && b {
			return ModePrecompile
		}
	}
	return ModeServe
}

// Strategy names a compilation strategy.
type Strategy string

const (
	// StrategyAuto reuses compiled pipelines whose source matches the generated
	// code folder and compiles the rest in memory.
	StrategyAuto Strategy = "auto"

	// StrategyInMemory compiles every pipeline in memory.
	StrategyInMemory Strategy = "in-memory"

	// StrategyStatic requires every pipeline to be linked into the binary.
	StrategyStatic Strategy = "static"
)

// Options configures how pipelines are generated and compiled.
type Options struct {
	// ApplicationName is written into generated file headers.
	ApplicationName string `yaml:"application_name"`

	Mode     Mode     `yaml:"mode"`
	Strategy Strategy `yaml:"strategy"`

	// GeneratedCodeFolder is where the auto strategy keeps generated source.
	GeneratedCodeFolder string `yaml:"generated_code_folder"`

	// GeneratedPackage is the package clause of generated files.
	GeneratedPackage string `yaml:"generated_package"`

	// ThrowOnSourceChange makes the auto strategy fail instead of recompiling
	// when generated source differs from what is on disk.
	ThrowOnSourceChange bool `yaml:"throw_on_source_change"`

	Logger *slog.Logger `yaml:"-"`
}

const (
	defaultGeneratedCodeFolder = "internal/pipelines"
	defaultGeneratedPackage    = "pipelines"
)

// ApplyDefaults returns a copy of o with defaults filled in.
func (o Options) ApplyDefaults() Options {
	if o.ApplicationName == "" {
		o.ApplicationName = "blueprint"
	}
	if o.Mode == "" {
		o.Mode = ModeServe
	}
	if o.Strategy == "" {
		o.Strategy = StrategyAuto
	}
	if o.GeneratedCodeFolder == "" {
		o.GeneratedCodeFolder = defaultGeneratedCodeFolder
	}
	if o.GeneratedPackage == "" {
		o.GeneratedPackage = defaultGeneratedPackage
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Validate checks enumerated fields.
func (o Options) Validate() error {
	switch o.Mode {
	case "", ModeServe, ModePrecompile:
	default:
		return fmt.Errorf("blueprint: unknown mode %q", o.Mode)
	}
	switch o.Strategy {
	case "", StrategyAuto, StrategyInMemory, StrategyStatic:
	default:
		return fmt.Errorf("blueprint: unknown strategy %q", o.Strategy)
	}
	return nil
}

// ParseOptions decodes YAML options.
func ParseOptions(data []byte) (Options, error) {
	var o Options
	if err := yaml.Unmarshal(data, &o); err != nil {
		return Options{}, fmt.Errorf("blueprint: parse options: %w", err)
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// LoadOptions reads YAML options from path.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, fmt.Errorf("blueprint: load options: %w", err)
	}
	return ParseOptions(data)
}

// WithMode returns a copy of o with Mode set.
func (o Options) WithMode(m Mode) Options {
	o.Mode = m
	return o
}

// WithStrategy returns a copy of o with Strategy set.
func (o Options) WithStrategy(s Strategy) Options {
	o.Strategy = s
	return o
}

// WithLogger returns a copy of o with Logger set.
func (o Options) WithLogger(l *slog.Logger) Options {
	o.Logger = l
	return o
}
