package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/vfl/internal/infrastructure/config"
)

var rootCmd = &cobra.Command{
	Use:          "vfl",
	Short:        "VFL tracing agent tools",
	Long:         `vfl records blocks, logs and lifecycle timestamps and delivers them to a collector`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(demoCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.PersistentFlags().String("config", "", "configuration file (.yaml, .yml or .toml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the environment and the optional --config file
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return config.Load()
	}
	return config.LoadFile(path)
}
