// Package cmd implements the kestrel CLI.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/kestrel-search/kestrel/internal/config"
	"github.com/kestrel-search/kestrel/internal/logging"
)

var (
	flagConfig   string
	flagLogLevel string
	flagDataDir  string
)

var rootCmd = &cobra.Command{
	Use:          "kestrel",
	Short:        "Hybrid document and image retrieval engine",
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "index data directory")

	rootCmd.AddCommand(serveCmd, searchCmd, loadCmd, versionCmd)
}

// loadConfig loads the file config, applies flag overrides, and installs
// the logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, nil, err
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	logger := logging.Setup(cfg.LogLevel, os.Stderr)
	return cfg, logger, nil
}
