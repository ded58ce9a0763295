package main

import (
	"errors"

	"github.com/spf13/cobra"

	"warranty/internal/logger"
	"warranty/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema and exit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		lg := logger.New(cfg.LogLevel)
		defer lg.Sync()

		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is empty")
		}
		pg, err := store.OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.Migrate(cmd.Context()); err != nil {
			return err
		}
		lg.Infow("schema migrated")
		return nil
	},
}
