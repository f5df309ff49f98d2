package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// withMigrate runs fn against a migrate instance bound to a single connection
// borrowed from db. The connection goes back to the pool when fn returns; db stays open.
func withMigrate(ctx context.Context, db *sql.DB, fn func(*migrate.Migrate) error) error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{})
	if err != nil {
		_ = conn.Close()
		_ = src.Close()
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = driver.Close()
		_ = src.Close()
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			slog.Warn("failed to close migrate instance", slog.Any("source_err", srcErr), slog.Any("db_err", dbErr), slog.String("component", "db_migrate"))
		}
	}()
	return fn(m)
}

// RunMigrations applies every pending versioned migration.
// It is idempotent and safe to run on each start.
//
// Migration files follow the naming convention:
//
//	000001_description.up.sql   - applies the migration
//	000001_description.down.sql - reverts the migration
func RunMigrations(db *sql.DB) error {
	return withMigrate(context.Background(), db, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				slog.Info("database schema is up to date", slog.String("component", "db_migrate"))
				return nil
			}
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		version, dirty, err := m.Version()
		if err != nil {
			slog.Warn("could not determine migration version", slog.Any("err", err), slog.String("component", "db_migrate"))
			return nil
		}
		if dirty {
			return fmt.Errorf("database is in dirty state at version %d - manual intervention required", version)
		}

		slog.Info("migrations applied successfully",
			slog.Uint64("version", uint64(version)),
			slog.String("component", "db_migrate"))
		return nil
	})
}

// MigrateDown rolls back the most recent migration.
// WARNING: rolling back the initial migration drops every logged channel.
func MigrateDown(db *sql.DB) error {
	return withMigrate(context.Background(), db, func(m *migrate.Migrate) error {
		if err := m.Steps(-1); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				slog.Info("no migrations to roll back", slog.String("component", "db_migrate"))
				return nil
			}
			return fmt.Errorf("failed to roll back migration: %w", err)
		}
		return nil
	})
}

// GetMigrationVersion returns the current migration version and dirty state.
// Version 0 means no migration has been applied.
func GetMigrationVersion(ctx context.Context, db *sql.DB) (version uint, dirty bool, err error) {
	err = withMigrate(ctx, db, func(m *migrate.Migrate) error {
		v, d, verr := m.Version()
		if verr != nil {
			if errors.Is(verr, migrate.ErrNilVersion) {
				return nil
			}
			return fmt.Errorf("failed to get migration version: %w", verr)
		}
		version, dirty = v, d
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}
