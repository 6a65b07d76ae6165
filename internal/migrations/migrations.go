// Package migrations owns the loyalty schema: the append-only events log,
// the keyed mission_progress table, and the missions catalog. Migration
// files are embedded so the binary migrates itself at startup.
package migrations

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed *.sql
var schemaFS embed.FS

// migrationsTable keeps migrate's bookkeeping out of the default
// schema_migrations name so the loyalty schema can share a database.
const migrationsTable = "loyalty_schema_migrations"

// Apply brings the database up to the latest embedded schema version.
// With apply false it reports the current version and returns without
// touching the schema, which is how read-only deployments run.
func Apply(db *sql.DB, apply bool) error {
	m, err := newMigrator(db)
	if err != nil {
		return err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}

	if dirty {
		// An interrupted run leaves the version flagged dirty. Every
		// migration here is idempotent (IF NOT EXISTS), so forcing the
		// recorded version and re-running is safe.
		slog.Warn("[Migrations] Schema flagged dirty, forcing recorded version", "version", version)
		if err := m.Force(int(version)); err != nil {
			return fmt.Errorf("clear dirty schema at version %d: %w", version, err)
		}
	}

	if !apply {
		slog.Info("[Migrations] Auto-migrate disabled", "version", version, "dirty", dirty)
		return nil
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			slog.Info("[Migrations] Schema up to date", "version", version)
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}

	newVersion, _, err := m.Version()
	if err != nil {
		return fmt.Errorf("read schema version after migrate: %w", err)
	}
	slog.Info("[Migrations] Schema migrated", "from", version, "to", newVersion)
	return nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	src, err := iofs.New(schemaFS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	drv, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("open postgres migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", drv)
	if err != nil {
		return nil, fmt.Errorf("build migrator: %w", err)
	}
	return m, nil
}
