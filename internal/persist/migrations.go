package persist

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// The save-slot schema ships embedded in the binary so a fresh server
// migrates itself on boot with no tooling on the host.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the save-slot schema up to date. Goose needs a
// database/sql handle, so one is borrowed from the pool for the duration.
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	handle := stdlib.OpenDBFromPool(db.Pool)
	defer handle.Close()

	if err := goose.UpContext(ctx, handle, "migrations"); err != nil {
		return fmt.Errorf("apply save schema: %w", err)
	}
	db.log.Info("save schema up to date")
	return nil
}
