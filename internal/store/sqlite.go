package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrBadTable is returned for dictionary names that are not plain
	// identifiers. Table names are interpolated into SQL.
	ErrBadTable = errors.New("store: invalid dictionary name")
	// ErrNoDictionary is returned when a dictionary table does not exist.
	ErrNoDictionary = errors.New("store: no such dictionary")
)

// Store is the SQLite-backed dictionary store.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at the given path and runs migrations.
func Open(path string) (*Store, error) {
	s, err := OpenUnmigrated(path)
	if err != nil {
		return nil, err
	}
	if err := migrateTo(context.Background(), s.db, LatestVersion); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// OpenUnmigrated opens or creates the database without moving its schema
// version. Only Migrate, MigrationStatus and Check are safe on a store that
// is not at LatestVersion.
func OpenUnmigrated(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(createMigrationsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("create migrations table: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
