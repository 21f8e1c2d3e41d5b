// Package state persists the single piece of durable moneydollar state:
// the "enabled" flag. The flag lives in a SQLite settings table so the
// toggle control and the page daemon can be separate processes.
//
// Callers must blank-import the driver:
//
//	import _ "modernc.org/sqlite"
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

// Schema is the DDL for the settings table.
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);`

// keyEnabled is the settings key the toggle control writes.
const keyEnabled = "enabled"

// Open opens (or creates) the state database at path with the production
// pragmas applied and the schema installed.
func Open(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("state: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("state: open: %w", err)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("state: %s: %w", p, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("state: apply schema: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory state database for testing. MaxOpenConns(1)
// keeps every query on the same in-memory database; the handle is closed
// via t.Cleanup.
func OpenMemory(t testing.TB) *sql.DB {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("state.OpenMemory: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// Enabled reads the flag. An absent row means enabled: annotation is on by
// default until someone turns it off.
func Enabled(ctx context.Context, db *sql.DB) (bool, error) {
	var raw string
	err := db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, keyEnabled).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("state: read enabled: %w", err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("state: parse enabled %q: %w", raw, err)
	}
	return v, nil
}

// SetEnabled writes the flag.
func SetEnabled(ctx context.Context, db *sql.DB, enabled bool) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		keyEnabled, strconv.FormatBool(enabled), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("state: write enabled: %w", err)
	}
	return nil
}

// LoadEnabled is the startup read. A read failure logs and returns false:
// when the state is unknown the pipeline must not rewrite anything.
func LoadEnabled(ctx context.Context, db *sql.DB, logger *slog.Logger) bool {
	if logger == nil {
		logger = slog.Default()
	}
	enabled, err := Enabled(ctx, db)
	if err != nil {
		logger.Error("state: startup read failed, disabling", "error", err)
		return false
	}
	return enabled
}
