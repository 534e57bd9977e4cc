// Package cmd defines the pensioncrawler CLI.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// newRootCmd creates the root command. Flags live on the returned command so
// tests can build fresh trees.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "pensioncrawler",
		Short: "Discovers and downloads public pension reports.",
		Long: `pensioncrawler finds public pension documents (actuarial valuations,
annual financial reports) through search APIs or by walking plan websites,
downloads the PDFs, reads their page counts and report years, and writes the
results to CSV.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.AddCommand(newCrawlCmd(&cfgFile))
	return cmd
}

// Execute runs the CLI until completion or SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
