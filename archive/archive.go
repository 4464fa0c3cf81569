// Package archive stores recording files in a SQLite catalog.
//
// Recording files normally live next to the tests that own them. The archive
// is for the cases where that is not enough: retiring recordings from deleted
// tests without losing them, sharing recordings across repositories, or
// auditing when a recording was last refreshed. Documents are stored byte for
// byte; Get returns exactly what Put received.
package archive

import (
	"context"
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added start_time index
const currentSchemaVersion = 1

const timeLayout = time.RFC3339Nano

// Entry describes one archived recording.
type Entry struct {
	ID         string
	Name       string
	SHA256     string
	Version    int
	StartTime  time.Time
	Components int
	ImportedAt time.Time
}

// Archive is a SQLite-backed recording catalog.
// Uses WAL mode so reads stay available while an import is in flight.
type Archive struct {
	db *sql.DB
}

// Open creates or opens the catalog database at the given path.
// Applies required pragmas and migrations automatically; safe to call on an
// existing database.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY errors under concurrent imports.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Archive{db: db}, nil
}

// Close closes the database connection.
func (a *Archive) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// fileHeader is the subset of the recording file needed for catalog metadata.
type fileHeader struct {
	Version   int               `json:"version"`
	StartTime string            `json:"start_time"`
	Data      []json.RawMessage `json:"data"`
}

// Put imports a recording document under the given catalog name.
// The name is unique in the catalog: importing an existing name replaces the
// stored document and refreshes the import metadata, so re-running an import
// after re-recording keeps the catalog current.
func (a *Archive) Put(ctx context.Context, name string, doc []byte) (Entry, error) {
	var hdr fileHeader
	if err := json.Unmarshal(doc, &hdr); err != nil {
		return Entry{}, fmt.Errorf("put %q: not a recording document: %w", name, err)
	}
	start, err := time.Parse(timeLayout, hdr.StartTime)
	if err != nil {
		return Entry{}, fmt.Errorf("put %q: invalid start_time %q: %w", name, hdr.StartTime, err)
	}

	sum := sha256.Sum256(doc)
	e := Entry{
		ID:         uuid.NewString(),
		Name:       name,
		SHA256:     hex.EncodeToString(sum[:]),
		Version:    hdr.Version,
		StartTime:  start.UTC(),
		Components: len(hdr.Data),
		ImportedAt: time.Now().UTC(),
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO recordings
		(id, name, sha256, version, start_time, components, document, imported_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			id = excluded.id,
			sha256 = excluded.sha256,
			version = excluded.version,
			start_time = excluded.start_time,
			components = excluded.components,
			document = excluded.document,
			imported_at = excluded.imported_at
	`,
		e.ID,
		e.Name,
		e.SHA256,
		e.Version,
		e.StartTime.Format(timeLayout),
		e.Components,
		doc,
		e.ImportedAt.Format(timeLayout),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("put %q: %w", name, err)
	}
	return e, nil
}

// Get returns the stored document and its catalog entry.
// Returns sql.ErrNoRows wrapped when the name is not in the catalog.
func (a *Archive) Get(ctx context.Context, name string) ([]byte, Entry, error) {
	row := a.db.QueryRowContext(ctx, `
		SELECT id, name, sha256, version, start_time, components, document, imported_at
		FROM recordings
		WHERE name = ?
	`, name)

	var doc []byte
	e, err := scanEntry(row, &doc)
	if err != nil {
		return nil, Entry{}, fmt.Errorf("get %q: %w", name, err)
	}
	return doc, e, nil
}

// List returns all catalog entries ordered deterministically by name.
// Returns an empty slice, not nil, for an empty catalog.
func (a *Archive) List(ctx context.Context) ([]Entry, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, sha256, version, start_time, components, imported_at
		FROM recordings
		ORDER BY name COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows, nil)
		if err != nil {
			return nil, fmt.Errorf("list recordings: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recordings: %w", err)
	}
	return entries, nil
}

// Remove deletes a recording from the catalog.
// Returns whether an entry was actually removed.
func (a *Archive) Remove(ctx context.Context, name string) (bool, error) {
	res, err := a.db.ExecContext(ctx, `DELETE FROM recordings WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("remove %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove %q: %w", name, err)
	}
	return n > 0, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanEntry reads one catalog row. With a non-nil doc target the row must
// include the document column.
func scanEntry(s scanner, doc *[]byte) (Entry, error) {
	var (
		e                Entry
		startRaw, impRaw string
	)
	var err error
	if doc != nil {
		err = s.Scan(&e.ID, &e.Name, &e.SHA256, &e.Version, &startRaw, &e.Components, doc, &impRaw)
	} else {
		err = s.Scan(&e.ID, &e.Name, &e.SHA256, &e.Version, &startRaw, &e.Components, &impRaw)
	}
	if err != nil {
		return Entry{}, err
	}

	if e.StartTime, err = time.Parse(timeLayout, startRaw); err != nil {
		return Entry{}, fmt.Errorf("invalid start_time %q: %w", startRaw, err)
	}
	if e.ImportedAt, err = time.Parse(timeLayout, impRaw); err != nil {
		return Entry{}, fmt.Errorf("invalid imported_at %q: %w", impRaw, err)
	}
	return e, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
		version = 1
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// migrateToV1 adds the start_time index for databases created before v1.
// New databases get it from schema.sql; CREATE INDEX IF NOT EXISTS makes this
// a no-op for them.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_recordings_start_time
		ON recordings(start_time)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (a *Archive) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := a.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
