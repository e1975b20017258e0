package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	slogcontext "github.com/veqryn/slog-context"

	"github.com/roach88/atplug/internal/descriptor"
	"github.com/roach88/atplug/internal/registry"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	Socket string
}

// SocketListing is one socket in the list output.
type SocketListing struct {
	Socket      string                  `json:"socket"`
	Descriptors []descriptor.Descriptor `json:"descriptors"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list [sources...]",
		Short: "List the descriptors published by plugin sources",
		Long: `Read every source (a resources directory, or a zip or tar archive) the
way the registry does and list the descriptors by socket. With no arguments
the configured resources directory is read.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(rootOpts, opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Socket, "socket", "s", "", "only list this socket")

	return cmd
}

func runList(rootOpts *RootOptions, opts *ListOptions, args []string, cmd *cobra.Command) error {
	formatter := rootOpts.formatter(cmd)
	cfg, err := rootOpts.loadConfig(formatter)
	if err != nil {
		return err
	}

	sources, err := openSources(args, cfg)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "source not found", err)
	}
	reg := registry.New(
		registry.WithSources(sources...),
		registry.WithHeader(cfg.Header),
		registry.WithLogger(slogcontext.FromCtx(cmd.Context())))
	defer reg.Close()

	sockets, err := reg.Sockets()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSource, "failed to read sources", err)
	}
	if opts.Socket != "" {
		sockets = []string{opts.Socket}
	}

	listing := make([]SocketListing, 0, len(sockets))
	for _, socket := range sockets {
		descs, err := reg.Descriptors(socket)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeSource, "failed to read sources", err)
		}
		listing = append(listing, SocketListing{Socket: socket, Descriptors: descs})
	}

	if formatter.Format == "json" {
		return formatter.Success(listing)
	}
	var rows []table.Row
	total := 0
	for _, l := range listing {
		for _, d := range l.Descriptors {
			rows = append(rows, table.Row{l.Socket, d.Implementation(), d.Properties().String()})
			total++
		}
	}
	if total > 0 {
		formatter.Table(table.Row{"Socket", "Implementation", "Properties"}, rows)
	}
	fmt.Fprintf(formatter.Writer, "%d descriptors, %d sockets\n", total, len(listing))
	return nil
}
