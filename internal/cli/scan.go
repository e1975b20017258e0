package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/roach88/atplug/internal/scanner"
)

// ScanResult is the JSON payload of the scan command.
type ScanResult struct {
	Files  int           `json:"files"`
	Plugs  []plugSummary `json:"plugs"`
	Errors []string      `json:"errors,omitempty"`
}

// NewScanCommand creates the scan command, a full uncached marker scan.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan [roots...]",
		Short: "List types marked with +atplug:plug",
		Long: `Parse every Go source file under the given roots (or the configured
roots) and list the marked types. Files are parsed, never compiled.

Files that cannot be parsed are reported and the command exits 1. A type
marked twice is a configuration error and exits 2.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(rootOpts, args, cmd)
		},
	}
}

func runScan(opts *RootOptions, roots []string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if len(roots) == 0 {
		cfg, err := opts.loadConfig(formatter)
		if err != nil {
			return err
		}
		roots = cfg.Roots
	}

	res, err := scanner.ScanDir(cmd.Context(), roots, scanner.Options{})
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeScan, "scan failed", err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(ScanResult{
			Files:  res.Files,
			Plugs:  summarize(res.Plugs),
			Errors: errorStrings(res.Errors),
		}); err != nil {
			return err
		}
	} else {
		if len(res.Plugs) > 0 {
			formatter.Table(table.Row{"Implementation", "Socket", "Location"}, plugRows(res.Plugs))
		}
		for _, e := range res.Errors {
			fmt.Fprintf(formatter.Writer, "✗ %v\n", e)
		}
		fmt.Fprintf(formatter.Writer, "%d plugs in %d files\n", len(res.Plugs), res.Files)
	}

	if len(res.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d files could not be scanned", len(res.Errors)))
	}
	return nil
}
