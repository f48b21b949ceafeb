package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 2024112203_add_session_revision.sql
var addSessionRevisionSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, addSessionRevisionSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `ALTER TABLE sessions DROP COLUMN IF EXISTS revision`)
			return err
		},
	)
}
