package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/roach88/atplug/internal/manifest"
)

// ManifestCheckResult is the JSON payload of manifest check.
type ManifestCheckResult struct {
	Resources string `json:"resources"`
	UpToDate  bool   `json:"up_to_date"`
	Expected  string `json:"expected,omitempty"`
}

// NewManifestCommand creates the manifest command group.
func NewManifestCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect the component manifest",
	}
	cmd.AddCommand(newManifestCheckCommand(rootOpts))
	return cmd
}

func newManifestCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check that the manifest header lists the published descriptors",
		Long: `Compare the manifest header in the resources directory with the
descriptor files next to it. Exits 1 if they differ; run generate to fix.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifestCheck(rootOpts, cmd)
		},
	}
}

func runManifestCheck(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig(formatter)
	if err != nil {
		return err
	}

	pub := &manifest.Publisher{Dir: cfg.Resources, Header: cfg.Header, Logger: slogcontext.FromCtx(cmd.Context())}
	upToDate, err := pub.UpToDate()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSource, "failed to read resources", err)
	}

	if !upToDate {
		expected, err := pub.Expected()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeSource, "failed to list descriptors", err)
		}
		_ = formatter.Error(ErrCodeStale,
			fmt.Sprintf("%s header in %s is out of date", cfg.Header, cfg.Resources),
			ManifestCheckResult{Resources: cfg.Resources, Expected: expected})
		return NewExitError(ExitFailure, "manifest out of date")
	}

	if formatter.Format == "json" {
		return formatter.Success(ManifestCheckResult{Resources: cfg.Resources, UpToDate: true})
	}
	fmt.Fprintln(formatter.Writer, "✓ Manifest up to date")
	return nil
}
