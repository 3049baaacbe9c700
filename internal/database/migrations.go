// Package database provides schema migration support.
package database

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// RunMigrations executes pending database migrations from the specified
// directory. It is idempotent and safe to call multiple times; only pending
// migrations are executed.
func RunMigrations(databaseURL, migrationsPath string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsPath),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("create migration instance: %w", err)
	}

	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			slog.Warn("failed to close migration source", "error", srcErr)
		}
		if dbErr != nil {
			slog.Warn("failed to close migration database", "error", dbErr)
		}
	}()

	err = m.Up()
	if err == migrate.ErrNoChange {
		slog.Info("no migrations to apply (database up-to-date)")
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	newVersion, _, _ := m.Version()
	slog.Info("applied migrations successfully", "version", newVersion)
	return nil
}
