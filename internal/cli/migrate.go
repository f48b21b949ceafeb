package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/config"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runMigrations(cmd.Context(), cfg, newLogger(cfg))
		},
	}
}

func runMigrations(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	if group.IsZero() {
		logger.Info().Msg("database schema up to date")
		return nil
	}
	logger.Info().Int64("group", group.ID).Int("count", len(group.Migrations)).Msg("migrations applied")
	return nil
}
