package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dshills/taxgen/internal/schema"
)

// DefaultSQLitePath is used when no database path is configured.
const DefaultSQLitePath = "data/cases.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cases (
	domain   TEXT PRIMARY KEY,
	payload  TEXT NOT NULL,
	saved_at TEXT NOT NULL
)`

// SQLiteStore keeps one row per domain in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", filepath.Dir(path), err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases coherent and avoids
	// SQLITE_BUSY between writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Exists(ctx context.Context, domain string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM cases WHERE domain = ?`, domain).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: sqlite exists %s: %w", domain, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Load(ctx context.Context, domain string) (*schema.Case, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM cases WHERE domain = ?`, domain).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, domain)
	}
	if err != nil {
		return nil, fmt.Errorf("store: sqlite load %s: %w", domain, err)
	}
	c, err := schema.UnmarshalCase([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("store: sqlite %s: %w", domain, err)
	}
	return c, nil
}

func (s *SQLiteStore) Save(ctx context.Context, c *schema.Case) (string, error) {
	if c == nil {
		return "", fmt.Errorf("store: nil case")
	}
	if err := validateDomain(c.Domain); err != nil {
		return "", err
	}
	b, err := schema.MarshalCase(c)
	if err != nil {
		return "", err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO cases (domain, payload, saved_at) VALUES (?, ?, ?)
		 ON CONFLICT(domain) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at`,
		c.Domain, string(b), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("store: sqlite save %s: %w", c.Domain, err)
	}
	return fmt.Sprintf("sqlite://%s#%s", s.path, c.Domain), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
