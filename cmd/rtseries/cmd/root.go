package cmd

import (
	"os"

	"github.com/AmyangXYZ/rtseries/pkg/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rtseries",
	Short: "Real-time topic server and time-series append client",
	Long: `rtseries hosts topics over WebSocket and runs the time-series append workflow against them.

Available commands:
  serve     Run the topic server
  append    Create a time series, append values to it and remove it again
  version   Print the version

Settings come from the defaults, then the --config file, then RTSERIES_* environment
variables (a .env file is honoured), then command-line flags.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
}

// loadConfig loads the configuration and lets apply override it from flags
// before validating the result.
func loadConfig(apply func(cfg *config.Config)) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if apply != nil {
		apply(&cfg)
	}
	return cfg, cfg.Validate()
}
