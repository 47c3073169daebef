// Package cmd defines and implements the CLI commands for the pipeline
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gdmlabs/defense-metrics-pipeline/internal/config"
	"github.com/gdmlabs/defense-metrics-pipeline/internal/logging"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gdm-pipeline",
		Short: "Collects and normalizes per-country defense statistics",
		Long: `gdm-pipeline scrapes publicly published per-country military and
economic statistics, normalizes the scraped text into numeric tables, and
derives comparison KPIs for downstream visualization.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional)")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newTransformCmd())

	return cmd
}

// setup loads configuration and builds the logger. Configuration errors are
// the only errors that abort before any work happens.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Paths.LogFile)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, logger, nil
}

// Execute is the main entry point. Only hard configuration errors produce a
// non-zero exit; individual item failures never do.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
