// Command atplug-example is atplug linked with the example fruit plugs, so
// generate can construct and describe them.
package main

import (
	"errors"
	"os"

	"github.com/roach88/atplug/internal/cli"
	_ "github.com/roach88/atplug/internal/example/fruit"
)

func main() {
	cmd := cli.NewRootCommand()
	cmd.Use = "atplug-example"
	if err := cmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			cmd.PrintErrln("Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
