// Package policy is the source of truth for which applications are
// protected and whether protection is globally enabled. Entries and
// settings persist in SQLite; the engine reads through an in-memory view
// refreshed once per poll cycle so policy edits are observed eventually,
// never mid-cycle.
package policy

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/applockd/applockd/pkg/types"
)

// ErrNotFound is returned when an entry or setting does not exist.
var ErrNotFound = errors.New("not found")

// Store persists protected entries and key/value settings.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the policy database at path.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("policy store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS locked_apps (
			identity TEXT PRIMARY KEY,
			display_name TEXT NOT NULL,
			kind TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at_unix_ns INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at_unix_ns INTEGER NOT NULL
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate policy store: %w", err)
		}
	}
	return nil
}

// AddEntry inserts or replaces a protected entry. The identity is
// normalized before storage so lookups are stable.
func (s *Store) AddEntry(ctx context.Context, e types.ProtectedEntry) error {
	switch e.Kind {
	case types.EntryKindExecutable:
		e.Identity = NormalizeIdentity(e.Identity)
	case types.EntryKindPackage:
		e.Identity = NormalizePackageIdentity(e.Identity)
	default:
		return fmt.Errorf("unknown entry kind %q", e.Kind)
	}
	if e.Identity == "" {
		return fmt.Errorf("entry identity is empty")
	}
	if e.DisplayName == "" {
		e.DisplayName = filepath.Base(e.Identity)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO locked_apps (identity, display_name, kind, enabled, created_at_unix_ns)
		 VALUES (?, ?, ?, ?, ?)`,
		e.Identity, e.DisplayName, string(e.Kind), boolInt(e.Enabled), time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("add entry: %w", err)
	}
	return nil
}

// RemoveEntry deletes the entry with the given identity.
func (s *Store) RemoveEntry(ctx context.Context, identity string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM locked_apps WHERE identity = ?`,
		NormalizeIdentity(identity))
	if err != nil {
		return fmt.Errorf("remove entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetEntryEnabled toggles a single entry.
func (s *Store) SetEntryEnabled(ctx context.Context, identity string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE locked_apps SET enabled = ? WHERE identity = ?`,
		boolInt(enabled), NormalizeIdentity(identity))
	if err != nil {
		return fmt.Errorf("toggle entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListEntries returns all entries, enabled or not, ordered by identity.
func (s *Store) ListEntries(ctx context.Context) ([]types.ProtectedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT identity, display_name, kind, enabled FROM locked_apps ORDER BY identity`)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var out []types.ProtectedEntry
	for rows.Next() {
		var e types.ProtectedEntry
		var kind string
		var enabled int
		if err := rows.Scan(&e.Identity, &e.DisplayName, &kind, &enabled); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Kind = types.EntryKind(kind)
		e.Enabled = enabled != 0
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetProtection toggles the global protection flag.
func (s *Store) SetProtection(ctx context.Context, enabled bool) error {
	v := "false"
	if enabled {
		v = "true"
	}
	return s.SetSetting(ctx, "protection_enabled", v)
}

// ProtectionEnabled reads the global protection flag. Missing means on:
// a freshly initialized store protects what it is told to protect.
func (s *Store) ProtectionEnabled(ctx context.Context) (bool, error) {
	v, err := s.Setting(ctx, "protection_enabled")
	if errors.Is(err, ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return v == "true", nil
}

// SetSetting upserts a key/value setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value, updated_at_unix_ns) VALUES (?, ?, ?)`,
		key, value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// Setting reads a key/value setting.
func (s *Store) Setting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return v, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
