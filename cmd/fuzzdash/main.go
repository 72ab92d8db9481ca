// Package main provides the entry point for the fuzzdash CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/fuzzdash/cmd/fuzzdash/commands"
	"github.com/Sumatoshi-tech/fuzzdash/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fuzzdash",
		Short: "Fuzzdash - live dashboard for distributed fuzzing campaigns",
		Long: `Fuzzdash follows a fuzzing transport feed, merges per-worker report
timelines into one coherent sequence, and renders the campaign state.

Commands:
  watch     Follow a live feed and render the dashboard continuously
  render    Render a recorded event log once
  mcp       Serve the session state to AI agents over MCP stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(commands.NewWatchCommand())
	rootCmd.AddCommand(commands.NewRenderCommand())
	rootCmd.AddCommand(commands.NewMCPCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "fuzzdash %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
