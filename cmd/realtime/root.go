package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rickgao/realtime-feed/internal/config"
	"github.com/rickgao/realtime-feed/internal/logging"
	"github.com/rickgao/realtime-feed/internal/version"
)

var (
	// Persistent flags available to all subcommands
	configPath string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:   "realtime",
	Short: "Stream AppSync realtime subscriptions",
	Long: `realtime connects to an AWS AppSync realtime endpoint over graphql-ws,
starts the configured subscriptions and prints every update as JSON.

Configuration comes from a YAML file (--config) or, without one, from the
REALTIME_API_HOST, REALTIME_API_KEY and REALTIME_API_REGION variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "realtime "+version.String())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: environment only)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging.format (text, json)")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config, or the environment when no file is given,
// applies flag overrides and validates the result.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	if configPath != "" {
		loaded, err := config.LoadWithDefaults(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.FromEnv()
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to w so stdout stays JSON.
func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	return logging.New(logging.Options{
		Level:  logging.ParseLevel(cfg.Level),
		Format: logging.ParseFormat(cfg.Format),
		Output: w,
	})
}
