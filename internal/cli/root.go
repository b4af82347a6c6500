// Package cli implements the drove command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	logLevel  string
	logFormat string
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:     "drove",
		Short:   "Load test HTTP services with swarms of virtual users",
		Version: version,
		Long: `drove hatches virtual users that run weighted task sets against an HTTP
target, aggregates per-request statistics, and writes failure traces and
per-request logs for later analysis.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			// If no subcommand is provided, print help
			cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&g.logFormat, "log-format", "console", "Log format (console, json)")

	root.AddCommand(newAttackCmd(g))
	root.AddCommand(newValidateCmd())
	return root
}

// Execute runs the root command.
// This is called by main.main(). It only needs to happen once.
func Execute() error {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
