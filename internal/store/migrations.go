// Package store keeps input method data in SQLite: full-text dictionary
// tables, schema documents, per-schema preferences and the conversion table
// used for simplified output.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrBadVersion is returned when migrating to a version outside
// 0..LatestVersion.
var ErrBadVersion = errors.New("store: no such schema version")

// LatestVersion is the schema version Open migrates to.
var LatestVersion = len(migrations)

// Migration represents a database schema migration.
type Migration struct {
	Version     int
	Description string
	Up          string
	Down        string
}

// migrations contains all database migrations in order.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Schema documents and per-schema preferences",
		Up:          migrationV1Up,
		Down:        migrationV1Down,
	},
	{
		Version:     2,
		Description: "Add opencc table for simplified conversion",
		Up:          migrationV2Up,
		Down:        migrationV2Down,
	},
	{
		Version:     3,
		Description: "Add dictionaries registry",
		Up:          migrationV3Up,
		Down:        migrationV3Down,
	},
}

const migrationV1Up = `
CREATE TABLE IF NOT EXISTS schemas (
    schema_id   TEXT PRIMARY KEY,
    name        TEXT NOT NULL DEFAULT '',
    full        TEXT NOT NULL,
    updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS preferences (
    schema_id   TEXT NOT NULL,
    key         TEXT NOT NULL,
    value       TEXT NOT NULL,
    PRIMARY KEY (schema_id, key)
);
`

const migrationV1Down = `
DROP TABLE IF EXISTS preferences;
DROP TABLE IF EXISTS schemas;
`

const migrationV2Up = `
CREATE VIRTUAL TABLE IF NOT EXISTS opencc USING fts4(t, s);
`

const migrationV2Down = `
DROP TABLE IF EXISTS opencc;
`

const migrationV3Up = `
CREATE TABLE IF NOT EXISTS dictionaries (
    name        TEXT PRIMARY KEY,
    created_at  INTEGER NOT NULL
);
`

const migrationV3Down = `
DROP TABLE IF EXISTS dictionaries;
`

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version     INTEGER PRIMARY KEY,
    applied_at  INTEGER NOT NULL,
    description TEXT
)`

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

// migrateTo moves the database to target, applying Up steps forward or Down
// steps backward, one transaction per step.
func migrateTo(ctx context.Context, db *sql.DB, target int) error {
	if target < 0 || target > LatestVersion {
		return fmt.Errorf("%w: %d", ErrBadVersion, target)
	}
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for current < target {
		m := migrations[current]
		err := step(ctx, db, m.Up,
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.Version, time.Now().UnixNano(), m.Description)
		if err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
		}
		current++
	}
	for current > target {
		m := migrations[current-1]
		if err := step(ctx, db, m.Down, "DELETE FROM schema_migrations WHERE version = ?", m.Version); err != nil {
			return fmt.Errorf("roll back migration %d (%s): %w", m.Version, m.Description, err)
		}
		current--
	}
	return nil
}

func step(ctx context.Context, db *sql.DB, ddl, record string, args ...any) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	return tx.Commit()
}

// Migrate moves the database schema to version, forward or back. Rolling
// back drops the tables of the undone versions with their data.
func (s *Store) Migrate(ctx context.Context, version int) error {
	return migrateTo(ctx, s.db, version)
}

// MigrationStatus describes applied and pending migrations.
type MigrationStatus struct {
	CurrentVersion int
	LatestVersion  int
	Pending        []Migration
	Applied        []AppliedMigration
}

// AppliedMigration is a migration recorded in schema_migrations.
type AppliedMigration struct {
	Version     int
	AppliedAt   time.Time
	Description string
}

// MigrationStatus reports which migrations have been applied.
func (s *Store) MigrationStatus(ctx context.Context) (*MigrationStatus, error) {
	status := &MigrationStatus{LatestVersion: LatestVersion}
	rows, err := s.db.QueryContext(ctx, "SELECT version, applied_at, description FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var am AppliedMigration
		var appliedAt int64
		if err := rows.Scan(&am.Version, &appliedAt, &am.Description); err != nil {
			return nil, fmt.Errorf("scan migration: %w", err)
		}
		am.AppliedAt = time.Unix(0, appliedAt)
		status.Applied = append(status.Applied, am)
		applied[am.Version] = true
		status.CurrentVersion = max(status.CurrentVersion, am.Version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	for _, m := range migrations {
		if !applied[m.Version] {
			status.Pending = append(status.Pending, m)
		}
	}
	return status, nil
}

// coreTables maps each table to the version that creates it.
var coreTables = []struct {
	name    string
	version int
}{
	{"schemas", 1},
	{"preferences", 1},
	{"opencc", 2},
	{"dictionaries", 3},
}

// Problem is one inconsistency found by Check.
type Problem struct {
	Table  string
	Reason string
}

func (p Problem) String() string { return p.Table + ": " + p.Reason }

// Check compares the tables on disk with the applied schema version and the
// dictionary registry. An empty result means the store is consistent.
func (s *Store) Check(ctx context.Context) ([]Problem, error) {
	current, err := currentVersion(ctx, s.db)
	if err != nil {
		return nil, err
	}
	exists := func(name string) (bool, error) {
		var n int
		err := s.db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
		if err != nil {
			return false, fmt.Errorf("check table %s: %w", name, err)
		}
		return n > 0, nil
	}

	var problems []Problem
	registry := false
	for _, t := range coreTables {
		ok, err := exists(t.name)
		if err != nil {
			return nil, err
		}
		switch {
		case t.version <= current && !ok:
			problems = append(problems, Problem{t.name, fmt.Sprintf("missing, expected since version %d", t.version)})
		case t.version > current:
			problems = append(problems, Problem{t.name, fmt.Sprintf("pending, needs version %d", t.version)})
		}
		if t.name == "dictionaries" {
			registry = ok
		}
	}
	if !registry {
		return problems, nil
	}

	names, err := s.Dictionaries(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		ok, err := exists(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			problems = append(problems, Problem{name, "registered dictionary has no table"})
		}
	}
	return problems, nil
}
