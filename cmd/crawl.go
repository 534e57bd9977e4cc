package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/pension-crawler/internal/app"
	"github.com/JakeFAU/pension-crawler/internal/config"
	"github.com/JakeFAU/pension-crawler/internal/input"
	"github.com/JakeFAU/pension-crawler/internal/logging"
	"github.com/JakeFAU/pension-crawler/internal/search"
)

// newCrawlCmd creates the 'crawl' subcommand.
func newCrawlCmd(cfgFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Run one crawl and write a CSV export",
		Long: `Reads input rows, sends them to the configured provider (google, bing
or sites), follows result pages up to the configured depth, downloads and
post-processes the documents found, and exports one CSV row per document.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := bindConfig(cmd, *cfgFile)
			if err != nil {
				return err
			}
			return runCrawl(cmd, v)
		},
	}
	flags := cmd.Flags()
	flags.String("provider", "", "result provider: google, bing or sites")
	flags.String("input", "", "input file (.csv, .yaml, .json or one value per line)")
	flags.Int("depth", 0, "continuation pages per row after the first (0-9)")
	flags.Bool("no-download", false, "skip downloads and drop file-derived columns")
	return cmd
}

// bindConfig layers flags over the config file, environment and defaults.
func bindConfig(cmd *cobra.Command, cfgFile string) (*viper.Viper, error) {
	v := config.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	flags := cmd.Flags()
	for key, name := range map[string]string{
		"provider":     "provider",
		"input.file":   "input",
		"search.depth": "depth",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	if noDownload, _ := flags.GetBool("no-download"); noDownload {
		v.Set("download.enabled", false)
	}
	return v, nil
}

func runCrawl(cmd *cobra.Command, v *viper.Viper) (err error) {
	cfg, err := config.FromViper(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	rows, err := input.Load(cfg.Input.File, cfg.Kind() == search.KindSites)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close services: %w", cerr)
		}
	}()

	stats, err := a.Run(ctx, rows)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("crawl command finished",
		zap.String("run_id", a.RunID()),
		zap.String("path", a.OutputPath()),
		zap.Int64("requests", stats.Requests),
		zap.Int64("exported", stats.Exported),
		zap.Int64("rows_abandoned", stats.RowsAbandoned),
	)
	fmt.Fprintln(cmd.OutOrStdout(), a.OutputPath())
	return nil
}
