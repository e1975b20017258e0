package main

import (
	"errors"
	"os"

	"github.com/roach88/atplug/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// ExitErrors have been reported by the command's formatter.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			cmd.PrintErrln("Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
