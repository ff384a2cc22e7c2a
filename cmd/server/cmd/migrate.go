package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/convene-events/server/internal/config"
	"github.com/convene-events/server/internal/jobs"
	"github.com/convene-events/server/internal/storage/postgres"
)

var migrationsPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Apply the application schema migrations and River's job queue schema.

Reads DATABASE_URL from the environment. Safe to run repeatedly; already
applied migrations are skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMigrate()
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsPath, "migrations", postgres.DefaultMigrationsPath, "path to migration files")
}

func runMigrate() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)

	if err := postgres.MigrateUp(cfg.Database.URL, migrationsPath); err != nil {
		return fmt.Errorf("schema migrations failed: %w", err)
	}
	logger.Info().Msg("schema migrations applied")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.Database.URL, 2)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer pool.Close()

	if err := jobs.MigrateUp(ctx, pool); err != nil {
		return fmt.Errorf("river migrations failed: %w", err)
	}
	logger.Info().Msg("river migrations applied")

	return nil
}
