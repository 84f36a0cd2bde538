package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pelusa-v/event-inbox/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "event-inbox",
	Short: "Inbox gateway for the event-planning chat backend",
	Long: `event-inbox mounts per-user inbox sessions against the event-planning
REST backend and serves them over HTTP and websocket.`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().String("log-level", "", "override LOG_LEVEL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads .env files and the environment, applying flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	config.LoadEnvFiles()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}
