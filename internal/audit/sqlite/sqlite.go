package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/applockd/applockd/pkg/types"
)

// Sink stores attempt records in SQLite with a queryable index.
type Sink struct {
	db *sql.DB
}

func Open(path string) (*Sink, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Sink{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) Close() error { return s.db.Close() }

func (s *Sink) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS access_logs (
			record_id TEXT PRIMARY KEY,
			ts_unix_ns INTEGER NOT NULL,
			identity TEXT NOT NULL,
			display_name TEXT,
			pid INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			actor TEXT,
			reason TEXT,
			payload_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_access_logs_ts ON access_logs(ts_unix_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_access_logs_identity_ts ON access_logs(identity, ts_unix_ns);`,
		`CREATE INDEX IF NOT EXISTS idx_access_logs_outcome_ts ON access_logs(outcome, ts_unix_ns);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrate audit store: %w", err)
		}
	}
	return nil
}

func (s *Sink) Record(ctx context.Context, rec types.AttemptRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO access_logs
		 (record_id, ts_unix_ns, identity, display_name, pid, outcome, actor, reason, payload_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Timestamp.UnixNano(), rec.Identity, rec.DisplayName,
		rec.PID, string(rec.Outcome), rec.Actor, rec.Reason, string(payload))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Sink) Query(ctx context.Context, q types.RecordQuery) ([]types.AttemptRecord, error) {
	var where []string
	var args []any
	if q.Identity != "" {
		where = append(where, "identity = ?")
		args = append(args, q.Identity)
	}
	if q.Outcome != nil {
		where = append(where, "outcome = ?")
		args = append(args, string(*q.Outcome))
	}
	if q.Since != nil {
		where = append(where, "ts_unix_ns >= ?")
		args = append(args, q.Since.UnixNano())
	}
	if q.Until != nil {
		where = append(where, "ts_unix_ns <= ?")
		args = append(args, q.Until.UnixNano())
	}

	query := `SELECT payload_json FROM access_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if q.Asc {
		query += " ORDER BY ts_unix_ns ASC"
	} else {
		query += " ORDER BY ts_unix_ns DESC"
	}
	limit := q.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, q.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []types.AttemptRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var rec types.AttemptRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneBefore deletes records older than the cutoff and returns the count.
func (s *Sink) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM access_logs WHERE ts_unix_ns < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune records: %w", err)
	}
	return res.RowsAffected()
}
