// Package history stores execution records in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ppiankov/livecode/internal/model"
)

// ErrNotFound is returned by Get for unknown execution IDs.
var ErrNotFound = errors.New("history: execution not found")

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	execution_id   TEXT PRIMARY KEY,
	key            TEXT NOT NULL DEFAULT '',
	level          TEXT NOT NULL,
	lane           TEXT NOT NULL,
	mode           TEXT NOT NULL DEFAULT '',
	success        INTEGER NOT NULL,
	failure_reason TEXT NOT NULL DEFAULT '',
	error_message  TEXT NOT NULL DEFAULT '',
	violations     INTEGER NOT NULL DEFAULT 0,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	started_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_started_at ON executions(started_at);
`

const columns = `execution_id, key, level, lane, mode, success, failure_reason, error_message, violations, duration_ms, started_at`

// Stats aggregates the stored executions.
type Stats struct {
	Total         int                         `json:"total"`
	Succeeded     int                         `json:"succeeded"`
	ByReason      map[model.FailureReason]int `json:"by_reason"`
	AvgDurationMs float64                     `json:"avg_duration_ms"`
}

// Store is a SQLite-backed execution history.
type Store struct {
	db *sql.DB
}

// DefaultPath returns ~/.livecode/history.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".livecode", "history.db")
	}
	return filepath.Join(home, ".livecode", "history.db")
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("history: create directory: %w", err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("history: open: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts rec, replacing any row with the same execution ID.
func (s *Store) Record(ctx context.Context, rec model.ExecutionRecord) error {
	started := rec.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO executions (`+columns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.Key, rec.Level.String(), string(rec.Lane), rec.Mode,
		rec.Success, string(rec.FailureReason), rec.ErrorMessage, rec.Violations,
		rec.DurationMs, started.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("history: insert %s: %w", rec.ExecutionID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]model.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+columns+` FROM executions ORDER BY started_at DESC, execution_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []model.ExecutionRecord
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	return out, nil
}

// Get returns the record for id.
func (s *Store) Get(ctx context.Context, id string) (model.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+columns+` FROM executions WHERE execution_id = ?`, id)
	rec, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ExecutionRecord{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

// Stats aggregates every stored record.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	st := Stats{ByReason: make(map[model.FailureReason]int)}
	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(success), 0), AVG(duration_ms) FROM executions`).
		Scan(&st.Total, &st.Succeeded, &avg)
	if err != nil {
		return st, fmt.Errorf("history: stats: %w", err)
	}
	st.AvgDurationMs = avg.Float64

	rows, err := s.db.QueryContext(ctx,
		`SELECT failure_reason, COUNT(*) FROM executions WHERE success = 0 GROUP BY failure_reason`)
	if err != nil {
		return st, fmt.Errorf("history: stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var reason string
		var n int
		if err := rows.Scan(&reason, &n); err != nil {
			return st, fmt.Errorf("history: stats: %w", err)
		}
		st.ByReason[model.FailureReason(reason)] = n
	}
	return st, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scan(r scanner) (model.ExecutionRecord, error) {
	var (
		rec         model.ExecutionRecord
		level, lane string
		reason      string
		started     string
	)
	err := r.Scan(&rec.ExecutionID, &rec.Key, &level, &lane, &rec.Mode, &rec.Success,
		&reason, &rec.ErrorMessage, &rec.Violations, &rec.DurationMs, &started)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("history: scan: %w", err)
	}
	rec.Level, err = model.ParseSecurityLevel(level)
	if err != nil {
		return rec, fmt.Errorf("history: scan level: %w", err)
	}
	rec.Lane = model.Lane(lane)
	rec.FailureReason = model.FailureReason(reason)
	rec.StartedAt, err = time.Parse(time.RFC3339Nano, started)
	if err != nil {
		return rec, fmt.Errorf("history: scan started_at: %w", err)
	}
	return rec, nil
}
