// Package cmd provides the simctl command-line interface.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "simctl",
	Short: "simctl runs and inspects the process simulator.",
	Long: `simctl runs and inspects the process simulator: it loads a ` +
		`configuration file, runs the tick pipeline, and optionally exposes ` +
		`an HTTP monitor for interactive control.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
