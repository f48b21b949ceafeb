package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 2024112201_create_sessions.sql
var createSessionsSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createSessionsSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS answers, participants, sessions`)
			return err
		},
	)
}
