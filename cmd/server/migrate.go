package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"electa/internal/election/store"
	"electa/internal/platform/config"
	"electa/internal/platform/logger"
	"electa/internal/platform/postgres"
)

func migrateCommand(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.New(cfg.LogLevel, cfg.LogFormat)
			if cfg.Database.URL == "" {
				return fmt.Errorf("ELECTA_DATABASE_URL is required to migrate")
			}
			db, err := postgres.Open(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := store.NewPostgres(db).Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
			log.Info("schema applied", "driver", cfg.Database.Driver)
			return nil
		},
	}
}
