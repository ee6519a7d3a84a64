// Package commands implements the hioload-pim CLI.
package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

var rootCmd = &cobra.Command{
	Use:   "hioload-pim",
	Short: "Batching dispatcher for accelerator Snappy decompression",
	Long: `hioload-pim batches Snappy decompression requests from many goroutines
onto accelerator clusters. The bench command drives it with synthetic
int64 column stripes on a simulated runtime.

Configuration comes from --config (YAML) and HIOLOAD_PIM_* environment
variables, e.g. HIOLOAD_PIM_DISPATCH_MAX_WAIT=2ms.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "hioload-pim %s (commit: %s, built: %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
