package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/instant-tutor/backend/pkg/config"
	appLogger "github.com/instant-tutor/backend/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "instant-tutor",
	Short: "Course Q&A tutor backend",
	Long: `instant-tutor answers student questions from ingested course material.

Without a subcommand it runs the HTTP API.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig reads configuration and initializes the global logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath, appLogger.Rotation{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return cfg, nil
}
