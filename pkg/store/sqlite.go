package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	name       TEXT NOT NULL,
	item       TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (name, item)
);
CREATE INDEX IF NOT EXISTS idx_records_name ON records(name);
`

// SQLiteBackend stores records as (name, item) rows. Rows are only ever
// inserted, never updated or deleted.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLiteBackend opens (and migrates) the database at path.
// Use ":memory:" for an in-memory database.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Read returns the ids stored under name.
func (b *SQLiteBackend) Read(ctx context.Context, name string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT item FROM records WHERE name = ? ORDER BY item ASC",
		name,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", name, err)
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, fmt.Errorf("failed to scan record %s: %w", name, err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Write inserts items under name, ignoring ids already present.
func (b *SQLiteBackend) Write(ctx context.Context, name string, items []string) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO records (name, item) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range items {
		if item == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, name, item); err != nil {
			return fmt.Errorf("failed to write record %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record %s: %w", name, err)
	}
	return nil
}

// List returns the distinct record names starting with prefix.
func (b *SQLiteBackend) List(ctx context.Context, prefix string) ([]string, error) {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	rows, err := b.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM records WHERE name LIKE ? ESCAPE '\' ORDER BY name ASC`,
		escaped+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan record name: %w", err)
		}
		// LIKE is case-insensitive for ASCII
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	return names, rows.Err()
}

// Close closes the database.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
