package main

import (
	"github.com/spf13/cobra"

	"github.com/youlearn/youlearn-progress/config"
)

var rootCmd = &cobra.Command{
	Use:           "progressctl",
	Short:         "Progress engine for the learning chat app",
	Long:          "XP, levels, login streaks, achievements and learner stats behind a JSON API.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringSlice("env-file", nil, "Extra .env files to load before the environment")
	rootCmd.PersistentFlags().String("driver", "", "Storage driver override: memory, sqlite or postgres")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(statsCmd)
}

// loadConfig reads configuration, applies flag overrides and validates it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	files, _ := cmd.Flags().GetStringSlice("env-file")
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	if d, _ := cmd.Flags().GetString("driver"); d != "" {
		cfg.Storage.Driver = d
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
