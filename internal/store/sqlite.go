package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ RunStore = (*SQLiteStore)(nil)

// SQLiteStore implements RunStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	started     INTEGER NOT NULL,
	finished    INTEGER NOT NULL,
	window_size INTEGER NOT NULL,
	symbols     TEXT NOT NULL,
	failed      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS scores (
	run_id TEXT NOT NULL REFERENCES runs(id),
	key    TEXT NOT NULL,
	value  REAL,
	PRIMARY KEY (run_id, key)
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started);
`

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, creates
// the schema if needed, and returns a ready-to-use SQLiteStore.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// RunStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts run and its scores in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *Run) error {
	if run == nil || run.ID == "" {
		return errors.New("saving run: missing id")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, started, finished, window_size, symbols, failed) VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Started.UnixMilli(), run.Finished.UnixMilli(), run.Window,
		strings.Join(run.Symbols, ","), strings.Join(run.Failed, ","))
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO scores (run_id, key, value) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for key, v := range run.Scores {
		var value sql.NullFloat64
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			value = sql.NullFloat64{Float64: v, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, run.ID, key, value); err != nil {
			return fmt.Errorf("inserting score %s for run %s: %w", key, run.ID, err)
		}
	}
	return tx.Commit()
}

// ListRuns returns the most recent runs, newest first. A non-positive limit
// returns every run.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started, finished, window_size, symbols, failed FROM runs ORDER BY started DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished int64
			symbols, failed   string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Window, &symbols, &failed); err != nil {
			return nil, err
		}
		r.Started = time.UnixMilli(started).UTC()
		r.Finished = time.UnixMilli(finished).UTC()
		r.Symbols = splitList(symbols)
		r.Failed = splitList(failed)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		scores, err := s.Scores(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Scores = scores
	}
	return runs, nil
}

// Scores returns the score map of a single run. NULL values come back as
// NaN. An unknown run yields ErrNotFound.
func (s *SQLiteStore) Scores(ctx context.Context, runID string) (map[string]float64, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, runID).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists == 0 {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM scores WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scores := make(map[string]float64)
	for rows.Next() {
		var (
			key   string
			value sql.NullFloat64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		if value.Valid {
			scores[key] = value.Float64
		} else {
			scores[key] = math.NaN()
		}
	}
	return scores, rows.Err()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
