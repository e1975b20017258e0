package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/roach88/atplug/internal/codegen"
)

// CodegenOptions holds flags for the codegen command.
type CodegenOptions struct {
	FullScan bool
}

// CodegenResult is the JSON payload of the codegen command.
type CodegenResult struct {
	Packages int      `json:"packages"`
	Changed  []string `json:"changed"`
}

// NewCodegenCommand creates the codegen command.
func NewCodegenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CodegenOptions{}

	cmd := &cobra.Command{
		Use:   "codegen",
		Short: "Write constructor registration files",
		Long: fmt.Sprintf(`Write a %s file into every package declaring plugs. The file
registers a constructor for each concrete plug with the catalog, so the
registry can create plugs by name.

Registration files of packages that no longer declare plugs are removed.`, codegen.FileName),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCodegen(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FullScan, "full-scan", false, "scan every file instead of using the discovery index")

	return cmd
}

func runCodegen(rootOpts *RootOptions, opts *CodegenOptions, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)
	cfg, err := rootOpts.loadConfig(formatter)
	if err != nil {
		return err
	}

	plugs, scanErrs, err := findPlugs(cmd.Context(), cfg, opts.FullScan)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScan, "discovery failed", err)
	}
	if len(scanErrs) > 0 {
		_ = formatter.Error(ErrCodeScan, fmt.Sprintf("%d files could not be scanned", len(scanErrs)), errorStrings(scanErrs))
		return NewExitError(ExitFailure, "refusing to generate from a partial scan")
	}

	units, err := codegen.Plan(plugs)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to plan registration files", err)
	}
	gen := &codegen.Generator{CatalogImport: cfg.Catalog, Logger: slogcontext.FromCtx(cmd.Context())}
	changed, err := gen.WriteAll(cfg.Roots, units)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write registration files", err)
	}

	if formatter.Format == "json" {
		return formatter.Success(CodegenResult{Packages: len(units), Changed: changed})
	}
	for _, path := range changed {
		fmt.Fprintf(formatter.Writer, "✓ %s\n", path)
	}
	fmt.Fprintf(formatter.Writer, "%d packages, %d files changed\n", len(units), len(changed))
	return nil
}
