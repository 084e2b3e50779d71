package coordstore

import (
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// applyMigrations runs every embedded *.sql file exactly once, tracked by
// name and content checksum in schema_migrations. This stands in for the
// reference codebase's golang-migrate-based applier: golang-migrate's
// sqlite3 driver needs the cgo mattn/go-sqlite3 package, which would sit
// awkwardly next to the pure-Go modernc.org/sqlite driver already used
// for every other query against this store, so migrations are applied
// directly through database/sql instead.
func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		checksum TEXT NOT NULL,
		applied_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
	)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("glob migrations: %w", err)
	}
	sort.Strings(entries)

	for _, name := range entries {
		content, err := migrationFiles.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		checksum := fmt.Sprintf("%x", sum)

		var existing string
		err = db.QueryRow(`SELECT checksum FROM schema_migrations WHERE name = ?`, name).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			if _, err := db.Exec(string(content)); err != nil {
				return fmt.Errorf("apply migration %s: %w", name, err)
			}
			if _, err := db.Exec(`INSERT INTO schema_migrations (name, checksum) VALUES (?, ?)`, name, checksum); err != nil {
				return fmt.Errorf("record migration %s: %w", name, err)
			}
		case err != nil:
			return fmt.Errorf("check migration %s: %w", name, err)
		case existing != checksum:
			return fmt.Errorf("migration %s checksum changed since it was applied", name)
		}
	}

	return nil
}
