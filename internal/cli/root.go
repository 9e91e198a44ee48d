// Package cli defines the Cobra command tree for the mnemo CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// version, commit, date are set via -ldflags at build time.
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "Typed, persistent memory engine for AI agents",
	Long: `Mnemo gives AI agents a persistent, typed memory: facts, events,
concepts, procedures, short-lived working state, and full conversation
sessions — all searchable semantically across types.

Run 'mnemo serve' to expose the engine as MCP tools over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute(v, c, d string) {
	version, commit, date = v, c, d
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(
		newServeCmd(),
		newRememberCmd(),
		newSearchCmd(),
		newForgetCmd(),
		newSessionsCmd(),
		newStatsCmd(),
		newPruneCmd(),
		newReembedCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mnemo %s (commit %s, built %s)\n", version, commit, date)
		},
	}
}
