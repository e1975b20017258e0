package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/roach88/atplug/internal/generator"
	"github.com/roach88/atplug/internal/manifest"
	"github.com/roach88/atplug/internal/plugerr"
	"github.com/roach88/atplug/internal/registry"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	FullScan bool
}

// GenerateResult is the JSON payload of the generate command.
type GenerateResult struct {
	Resources   string   `json:"resources"`
	Descriptors []string `json:"descriptors"`
	Changed     bool     `json:"changed"`
}

// NewGenerateCommand creates the generate command.
//
// Metadata is computed by constructing each plug, so only plugs whose
// packages are linked into the running binary can be described. Binaries
// embedding the CLI import their plug packages for their side effects.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	return newGenerateCommand(rootOpts, registry.Default)
}

func newGenerateCommand(rootOpts *RootOptions, reg func() *registry.Registry) *cobra.Command {
	opts := &GenerateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate descriptors and the component manifest",
		Long: `Compute a descriptor for every plug under the configured roots and
publish them, with the manifest header listing them, into the resources
directory.

Any plug that cannot be described fails the whole run and nothing is
written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(rootOpts, opts, reg(), cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FullScan, "full-scan", false, "scan every file instead of using the discovery index")

	return cmd
}

func runGenerate(rootOpts *RootOptions, opts *GenerateOptions, reg *registry.Registry, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)
	cfg, err := rootOpts.loadConfig(formatter)
	if err != nil {
		return err
	}
	logger := slogcontext.FromCtx(cmd.Context())

	plugs, scanErrs, err := findPlugs(cmd.Context(), cfg, opts.FullScan)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScan, "discovery failed", err)
	}
	if len(scanErrs) > 0 {
		_ = formatter.Error(ErrCodeScan, fmt.Sprintf("%d files could not be scanned", len(scanErrs)), errorStrings(scanErrs))
		return NewExitError(ExitFailure, "refusing to generate from a partial scan")
	}

	gen := generator.New(reg.Catalog(),
		generator.WithOwners(func(socket string) (any, bool) { return reg.Owner(socket) }),
		generator.WithLogger(logger))
	descs, err := gen.GenerateAll(plugs)
	if err != nil {
		details := errorStrings(unjoin(err))
		_ = formatter.Error(errorCode(err, ErrCodeGeneric), fmt.Sprintf("%d plugs could not be described", len(details)), details)
		return WrapExitError(ExitCommandError, "generate failed", err)
	}

	pub := &manifest.Publisher{Dir: cfg.Resources, Header: cfg.Header, Logger: logger}
	changed, err := pub.Publish(descs)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to publish descriptors", err)
	}

	names := make([]string, 0, len(descs))
	for _, d := range descs {
		names = append(names, d.Implementation())
	}
	if formatter.Format == "json" {
		return formatter.Success(GenerateResult{Resources: cfg.Resources, Descriptors: names, Changed: changed})
	}
	for _, n := range names {
		fmt.Fprintf(formatter.Writer, "✓ %s\n", n)
	}
	state := "unchanged"
	if changed {
		state = "updated"
	}
	fmt.Fprintf(formatter.Writer, "%d descriptors, manifest %s\n", len(descs), state)
	return nil
}

// unjoin flattens an errors.Join result.
func unjoin(err error) []error {
	if _, ok := err.(*plugerr.ConfigError); ok {
		return []error{err}
	}
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		return j.Unwrap()
	}
	return []error{err}
}
