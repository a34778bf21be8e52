// Package commands implements the CLI command structure using Cobra.
package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/petal-labs/relay/cli/config"
)

var (
	// Global flags
	cfgFile    string
	model      string
	jsonOutput bool
	verbose    bool

	// Loaded configuration
	cfg *config.Config
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay - chat completion gateway CLI",
	Long: `Relay routes chat completion requests to interchangeable AI providers.

Use relay to manage API keys and send prompts to any registered model.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.relay/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model ID (e.g. kimi-k2-0711-preview, deepseek-chat)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON output")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug logging")
}

// initConfig reads the config file and applies defaults.
func initConfig() error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	var err error
	cfg, err = config.LoadConfig(path)
	if err != nil {
		return err
	}

	if model == "" && cfg.DefaultModel != "" {
		model = cfg.DefaultModel
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	return nil
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}

// GetModel returns the effective model ID (flag or config default).
func GetModel() string {
	return model
}

// IsJSONOutput returns true if JSON output is enabled.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsVerbose returns true if verbose output is enabled.
func IsVerbose() bool {
	return verbose
}
