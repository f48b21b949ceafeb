package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2024112202_create_bans.sql
var createBansSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, createBansSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS session_bans, permanent_bans`)
			return err
		},
	)
}
