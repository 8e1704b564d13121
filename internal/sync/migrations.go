package sync

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

// Schema files for the metadata database, applied in version order.
//
//go:embed migrations/*.sql
var schemaFS embed.FS

// migrateMetadata brings the metadata database to the latest schema. A
// database already at the latest version is left untouched.
func migrateMetadata(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	schema, err := fs.Sub(schemaFS, "migrations")
	if err != nil {
		return fmt.Errorf("sync: reading embedded schema: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, schema)
	if err != nil {
		return fmt.Errorf("sync: loading schema migrations: %w", err)
	}

	pending, err := provider.HasPending(ctx)
	if err != nil {
		return fmt.Errorf("sync: checking schema version: %w", err)
	}

	if !pending {
		return nil
	}

	applied, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("sync: migrating metadata schema: %w", err)
	}

	version, err := provider.GetDBVersion(ctx)
	if err != nil {
		return fmt.Errorf("sync: reading schema version: %w", err)
	}

	logger.Info("metadata schema migrated",
		slog.Int("applied", len(applied)),
		slog.Int64("version", version),
	)

	return nil
}
