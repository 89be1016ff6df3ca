package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// DefaultMigrationsSource is resolved relative to the working directory
const DefaultMigrationsSource = "file://migrations"

// NewPool creates a new pgx connection pool and verifies it with a ping
func NewPool(ctx context.Context, databaseURL string, maxConns int32) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// MigrationStatus describes the schema version after a migration run
type MigrationStatus struct {
	Version uint
	Dirty   bool
	// Changed is false when there was nothing to apply
	Changed bool
}

func newMigrator(databaseURL, source string) (*migrate.Migrate, func(), error) {
	if source == "" {
		source = DefaultMigrationsSource
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database for migrations: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(source, "postgres", driver)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	closeFn := func() {
		_, _ = m.Close()
	}
	return m, closeFn, nil
}

// MigrateUp applies all pending up migrations
func MigrateUp(databaseURL, source string) (*MigrationStatus, error) {
	return runMigration(databaseURL, source, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown rolls back the given number of migrations
func MigrateDown(databaseURL, source string, steps int) (*MigrationStatus, error) {
	if steps <= 0 {
		return nil, fmt.Errorf("steps must be positive, got %d", steps)
	}
	return runMigration(databaseURL, source, func(m *migrate.Migrate) error { return m.Steps(-steps) })
}

// MigrationVersion reports the current schema version without changing it
func MigrationVersion(databaseURL, source string) (*MigrationStatus, error) {
	return runMigration(databaseURL, source, func(*migrate.Migrate) error { return migrate.ErrNoChange })
}

func runMigration(databaseURL, source string, step func(*migrate.Migrate) error) (*MigrationStatus, error) {
	m, closeFn, err := newMigrator(databaseURL, source)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	status := &MigrationStatus{Changed: true}
	if err := step(m); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
		status.Changed = false
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("failed to get migration version: %w", err)
	}
	status.Version = version
	status.Dirty = dirty
	if dirty {
		return status, fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	}
	return status, nil
}
