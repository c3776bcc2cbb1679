// Package engine provides the transactional key-value store that the
// verifier exercises: versioned commits over a SQLite database, consistent
// streaming range reads, and a per-range change-feed log.
//
// Versioning: a single monotonic counter backs both commit versions and
// read versions. Every commit and every read-version acquisition allocates
// the next value, so a read version is always strictly greater than every
// commit it observes. That makes the half-open feed interval
// [versionA, versionB) exactly the set of commits that happened after
// snapshot A and are visible in snapshot B.
package engine

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema
const currentSchemaVersion = 1

// Engine is a single-writer versioned KV store with change-feed support.
// Safe for concurrent use; the connection pool is limited to one
// connection, so transactions serialize.
type Engine struct {
	db *sql.DB
}

// Open creates or opens a database at the given path. ":memory:" opens a
// private in-memory database, used by tests and the scenario harness.
//
// The database is configured with WAL mode, NORMAL synchronous writes, a
// 5-second busy timeout, and foreign key enforcement. Idempotent.
func Open(path string) (*Engine, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY between our own transactions.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Engine{db: db}, nil
}

// Close closes the underlying database.
func (e *Engine) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// nextVersion allocates the next version inside tx.
func nextVersion(ctx context.Context, tx *sql.Tx) (int64, error) {
	var v int64
	err := tx.QueryRowContext(ctx, `
		UPDATE meta SET current_version = current_version + 1
		WHERE id = 1
		RETURNING current_version
	`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("allocate version: %w", err)
	}
	return v, nil
}

// Version returns the most recently allocated version.
func (e *Engine) Version(ctx context.Context) (int64, error) {
	var v int64
	err := e.db.QueryRowContext(ctx, `SELECT current_version FROM meta WHERE id = 1`).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	return v, nil
}
