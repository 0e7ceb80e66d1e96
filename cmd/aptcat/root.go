// Command aptcat runs the adaptive test evaluation engine: it loads an
// item catalog, points a reference adapter at a target, and drives either
// an adaptive or exhaustive run, persisting results and optionally
// serving a debug/status HTTP surface for the run in progress.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "aptcat",
	Short: "Adaptive test engine for evaluating conversational targets",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
