package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/terra-clan/checklist-engine/internal/config"
	"github.com/terra-clan/checklist-engine/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		if cfg.Database.Driver == config.DriverPostgres {
			if err := storage.MigrateFromDSN(ctx, cfg.Database.DSN); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		} else {
			repo, err := openRepository(ctx, cfg.Database, true)
			if err != nil {
				return err
			}
			repo.Close()
		}

		slog.Info("migrations applied", "driver", cfg.Database.Driver)
		return nil
	},
}
