package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// DiscoverResult is the JSON payload of the discover command.
type DiscoverResult struct {
	Index     string        `json:"index"`
	Scanned   int           `json:"scanned"`
	Unchanged int           `json:"unchanged"`
	Removed   int           `json:"removed"`
	Plugs     []plugSummary `json:"plugs"`
	Errors    []string      `json:"errors,omitempty"`
}

// NewDiscoverCommand creates the discover command.
func NewDiscoverCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Update the discovery index and list plugs",
		Long: `Bring the discovery index up to date with the configured roots.

Only files whose content changed since the last run are parsed again;
deleted files are dropped from the index.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(rootOpts, cmd)
		},
	}
}

func runDiscover(opts *RootOptions, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	cfg, err := opts.loadConfig(formatter)
	if err != nil {
		return err
	}

	res, err := discover(cmd.Context(), cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeIndex, "discovery failed", err)
	}

	if formatter.Format == "json" {
		if err := formatter.Success(DiscoverResult{
			Index:     cfg.Index,
			Scanned:   res.Scanned,
			Unchanged: res.Unchanged,
			Removed:   res.Removed,
			Plugs:     summarize(res.Plugs),
			Errors:    errorStrings(res.Errors),
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
		fmt.Fprintf(formatter.Writer, "%d plugs (%d scanned, %d unchanged, %d removed)\n",
			len(res.Plugs), res.Scanned, res.Unchanged, res.Removed)
	}

	if len(res.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d files could not be scanned", len(res.Errors)))
	}
	return nil
}
