// Command coverage runs the coverage intake service and offline tooling.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coverage",
		Short: "Coverage intake, validation and aggregation",
		Long: `Coverage accepts test coverage submissions, validates them and merges
them into per-commit reports.

Commands:
  serve     Run the HTTP API
  check     Validate a coverage file offline`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(checkCmd())

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errInvalidReport) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
