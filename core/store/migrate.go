package store

import (
	"context"
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"

	"kestrel-dcr/core/utils"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

func ApplyMigrations(ctx context.Context, db *sql.DB, logger *utils.Logger) error {
	goose.SetBaseFS(embeddedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return err
	}
	version, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return err
	}
	logger.Printf("DB schema at version %d", version)
	return nil
}
