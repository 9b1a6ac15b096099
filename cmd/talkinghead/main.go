// Package main provides the CLI entry point for talkinghead.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/normanking/talkinghead/internal/config"
	"github.com/normanking/talkinghead/internal/logging"
)

var (
	// Version information (set at build time)
	version = "dev"

	configPath string
	logLevel   string

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))
)

// loadConfig reads configuration and applies command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	logger, err := logging.New(cfg.Log.Logging())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "talkinghead",
		Short: "Drive a talking avatar's mouth from phoneme timing",
		Long: titleStyle.Render("talkinghead") + `

Plays an utterance and animates the avatar's morph targets in sync with it:
phoneme windows from a timing script are classified into visemes and
tweened onto the face while the audio clock runs.

` + dimStyle.Render("Use 'talkinghead [command] --help' for more information."),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./talkinghead.yaml or ~/.talkinghead/talkinghead.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(newPlayCmd(), newClassifyCmd(), newInspectCmd())
	return rootCmd
}

func main() {
	// Load .env if present
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
		os.Exit(1)
	}
}
