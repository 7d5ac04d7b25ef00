// Package main provides the afsync command line: it imports membership
// directory exports and reports the problems found in them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time via ldflags.
var version = "dev"

type rootOptions struct {
	configDir string
}

func buildRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "afsync",
		Short: "Import membership directory exports into the local store",
		Long: `afsync applies the periodic tab separated exports of the membership directory
to the local record store. Malformed lines are tracked per entity across runs and
summarized in a report that is mailed when something changed.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configDir, "config", ".", "Directory containing config.yaml")

	rootCmd.AddCommand(newImportCmd(opts))
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newStatusCmd(opts))
	rootCmd.AddCommand(newProblemsCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))

	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := buildRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
