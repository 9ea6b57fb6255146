package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/terra-clan/checklist-engine/internal/config"
	"github.com/terra-clan/checklist-engine/internal/storage"
)

var (
	configPath string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "checklist-engine",
	Short: "Commissioning checklist service",
	Long: `checklist-engine manages commissioning checklist templates, sends
checklists to customers through public links and tracks their progress.

Configuration is read from environment variables (SERVER_PORT, DATABASE_DSN,
REDIS_ADDRESS, ...) and an optional YAML file given with --config.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded

		// Setup structured logging
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}))
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "path to YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(templatesCmd)
}

// openRepository connects to the configured database. PostgreSQL schema
// migrations run when auto_migrate is set; SQLite is always migrated on open.
func openRepository(ctx context.Context, db config.DatabaseConfig, migrate bool) (storage.Repository, error) {
	switch db.Driver {
	case config.DriverSQLite:
		repo, err := storage.NewSQLiteRepository(ctx, db.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		return repo, nil

	case config.DriverPostgres:
		repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:          db.DSN,
			MaxOpenConns: db.MaxOpenConns,
			MaxIdleConns: db.MaxIdleConns,
			MaxLifetime:  db.MaxLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create database repository: %w", err)
		}
		if migrate {
			slog.Info("running database migrations")
			if err := storage.RunMigrations(ctx, repo.Pool()); err != nil {
				repo.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
		}
		return repo, nil
	}

	return nil, fmt.Errorf("unsupported database driver: %q", db.Driver)
}
