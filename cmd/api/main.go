package main

import (
	"os"

	"github.com/spf13/cobra"

	"warranty/internal/config"
	"warranty/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "warranty",
	Short:         "Device warranty registry API.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

var envFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func loadConfig() config.Config {
	return config.Load(envFile)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		lg := logger.New("error")
		lg.Errorw("command failed", "error", err)
		_ = lg.Sync()
		os.Exit(1)
	}
}
