package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/broady/blueprint"
	"github.com/broady/blueprint/internal/discover"
	"github.com/broady/blueprint/pipeline"
	"github.com/broady/blueprint/sink"
)

// GenerateCmd writes the generated sources.
type GenerateCmd struct {
	Out string `help:"Output directory (default: the configured generated code folder)." short:"o" type:"path"`
}

func (c *GenerateCmd) Run(ctx context.Context, env *Env) error {
	gen, err := env.generate()
	if err != nil {
		return err
	}
	dir := c.Out
	if dir == "" {
		dir = gen.Options.GeneratedCodeFolder
	}
	report, err := gen.Write(ctx, sink.NewFilesystemSink(dir))
	if err != nil {
		return err
	}
	for _, name := range report.Written {
		env.ok("wrote %s.go", name)
	}
	for _, name := range report.Removed {
		env.warn("removed %s", name)
	}
	env.ok("%d pipelines in %s (%d unchanged)", len(gen.Types), dir, len(report.Skipped))
	return nil
}

// CheckCmd reports generated sources that are out of date.
type CheckCmd struct {
	Dir string `help:"Generated code folder (default: the configured one)." short:"d" type:"path"`
}

func (c *CheckCmd) Run(ctx context.Context, env *Env) error {
	gen, err := env.generate()
	if err != nil {
		return err
	}
	dir := c.Dir
	if dir == "" {
		dir = gen.Options.GeneratedCodeFolder
	}
	drift, err := gen.Drift(ctx, sink.NewFilesystemSink(dir))
	if err != nil {
		return err
	}
	if len(drift) > 0 {
		for _, name := range drift {
			env.fail("out of date: %s", name)
		}
		return &pipeline.SourceDriftError{Types: drift}
	}
	env.ok("%d pipelines up to date in %s", len(gen.Types), dir)
	return nil
}

// ShowCmd prints operations or a generated pipeline.
type ShowCmd struct {
	Operation string `arg:"" optional:"" help:"Operation name, Go type or pipeline type name."`
}

func (c *ShowCmd) Run(env *Env) error {
	gen, err := env.generate()
	if err != nil {
		return err
	}
	if c.Operation == "" {
		tw := tabwriter.NewWriter(env.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "OPERATION\tTYPE\tPIPELINE\tFLAGS")
		for _, d := range env.cfg.Model.Operations() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.Name, d.OperationType(), pipeline.PipelineTypeName(d.OperationType()), flags(d))
		}
		return tw.Flush()
	}
	for _, d := range env.cfg.Model.Operations() {
		t := d.OperationType()
		if c.Operation == d.Name || c.Operation == t.String() || c.Operation == pipeline.PipelineTypeName(t) {
			_, err := env.Stdout.Write(gen.Type(t).Source.Content)
			return err
		}
	}
	return fmt.Errorf("no operation %q", c.Operation)
}

func flags(d *blueprint.OperationDescriptor) string {
	var out []string
	for _, f := range []struct {
		set  bool
		name string
	}{
		{!d.IsExposed, "internal"},
		{d.AnonymousAccessAllowed, "anonymous"},
		{d.ShouldAudit, "audit"},
		{d.RecordPerformanceMetrics, "metrics"},
		{d.AllowMultipleHandlers, "multi"},
		{d.RequiresReturnValue, "returns"},
	} {
		if f.set {
			out = append(out, f.name)
		}
	}
	return strings.Join(out, ",")
}

// VerifyCmd type-checks the generated package.
type VerifyCmd struct {
	Dir string `help:"Generated code folder (default: the configured one)." short:"d" type:"path"`
}

func (c *VerifyCmd) Run(env *Env) error {
	dir := c.Dir
	if dir == "" {
		opts, err := env.options()
		if err != nil {
			return err
		}
		dir = opts.GeneratedCodeFolder
	}
	res, err := discover.Check(dir)
	if err != nil {
		return err
	}
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			env.fail("%s", e)
		}
		return fmt.Errorf("%s: %d errors", res.PackagePath, len(res.Errors))
	}
	env.ok("%s: %d files, %d pipeline constructors", res.PackagePath, res.Files, len(res.Constructors))
	return nil
}

// CleanCmd removes generated files.
type CleanCmd struct {
	Dir       string `help:"Generated code folder (default: the configured one)." short:"d" type:"path"`
	Generator string `help:"Generator name in file headers (default: the configured application name)."`
}

func (c *CleanCmd) Run(ctx context.Context, env *Env) error {
	opts, err := env.options()
	if err != nil {
		return err
	}
	dir, generator := c.Dir, c.Generator
	if dir == "" {
		dir = opts.GeneratedCodeFolder
	}
	if generator == "" {
		generator = opts.ApplicationName
	}
	removed, err := pipeline.RemoveGenerated(ctx, sink.NewFilesystemSink(dir), generator)
	if err != nil {
		return err
	}
	for _, name := range removed {
		env.warn("removed %s", name)
	}
	env.ok("%d generated files removed from %s", len(removed), dir)
	return nil
}

// VersionCmd prints the blueprint version.
type VersionCmd struct{}

func (c *VersionCmd) Run(env *Env) error {
	fmt.Fprintln(env.Stdout, Version())
	return nil
}
