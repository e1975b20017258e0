package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/roach88/atplug/internal/config"
	"github.com/roach88/atplug/internal/discovery"
	"github.com/roach88/atplug/internal/scanner"
	"github.com/roach88/atplug/internal/store"
)

// plugSummary is the JSON shape of a found plug.
type plugSummary struct {
	Implementation string `json:"implementation"`
	Socket         string `json:"socket"`
	Abstract       bool   `json:"abstract,omitempty"`
	Location       string `json:"location"`
}

func summarize(plugs []scanner.Plug) []plugSummary {
	out := make([]plugSummary, 0, len(plugs))
	for _, p := range plugs {
		out = append(out, plugSummary{
			Implementation: p.Implementation,
			Socket:         p.Socket,
			Abstract:       p.Abstract,
			Location:       fmt.Sprintf("%s:%d", p.File, p.Line),
		})
	}
	return out
}

func plugRows(plugs []scanner.Plug) []table.Row {
	rows := make([]table.Row, 0, len(plugs))
	for _, p := range plugs {
		impl := p.Implementation
		if p.Abstract {
			impl += " (abstract)"
		}
		rows = append(rows, table.Row{impl, p.Socket, fmt.Sprintf("%s:%d", p.File, p.Line)})
	}
	return rows
}

func errorStrings(errs []error) []string {
	out := make([]string, 0, len(errs))
	for _, err := range errs {
		out = append(out, err.Error())
	}
	return out
}

// findPlugs returns the plugs under cfg.Roots, through the discovery index
// unless fullScan is set.
func findPlugs(ctx context.Context, cfg *config.Config, fullScan bool) ([]scanner.Plug, []error, error) {
	if fullScan {
		res, err := scanner.ScanDir(ctx, cfg.Roots, scanner.Options{Concurrency: cfg.Concurrency})
		if err != nil {
			return nil, nil, err
		}
		return res.Plugs, res.Errors, nil
	}
	res, err := discover(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return res.Plugs, res.Errors, nil
}

// discover runs an incremental discovery against the configured index.
func discover(ctx context.Context, cfg *config.Config) (*discovery.Result, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Index), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}
	idx, err := store.Open(cfg.Index)
	if err != nil {
		return nil, err
	}
	defer idx.Close()
	return discovery.Run(ctx, idx, cfg.Roots, discovery.Options{Concurrency: cfg.Concurrency})
}
