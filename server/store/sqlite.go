package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hubenschmidt/go-pagesearch/server/store/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteRunStore implements RunStore using SQLite
type SQLiteRunStore struct {
	db *sql.DB
}

// NewSQLiteRunStore creates a SQLite-backed run store at path, creating the
// parent directory if needed.
func NewSQLiteRunStore(path string) (*SQLiteRunStore, error) {
	if path == "" {
		path = "data/runs.db"
	}

	dsn := path
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		if !strings.Contains(path, "?") {
			dsn = path + "?_pragma=busy_timeout(5000)"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := migrations.Apply(ctx, db, migrations.SQLite, "sqlite"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRunStore{db: db}, nil
}

func (s *SQLiteRunStore) Add(ctx context.Context, r IndexRun) (IndexRun, error) {
	r = prepare(r)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_runs (
			run_id, source_key, total_chunks, total_tokens,
			status, error, elapsed_ms, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.SourceKey, r.TotalChunks, r.TotalTokens,
		r.Status, r.Error, r.ElapsedMs, r.Timestamp,
	)
	if err != nil {
		return r, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

func (s *SQLiteRunStore) Get(ctx context.Context, id string) (IndexRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM index_runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("query run: %w", err)
	}
	return r, nil
}

func (s *SQLiteRunStore) List(ctx context.Context, opts ListOptions) ([]IndexRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM index_runs
		WHERE (? = '' OR source_key = ?)
		ORDER BY timestamp DESC, seq DESC
		LIMIT ?`, opts.SourceKey, opts.SourceKey, listLimit(opts))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return collectRuns(rows)
}

func (s *SQLiteRunStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM index_runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return checkDeleted(res)
}

func (s *SQLiteRunStore) Summary(ctx context.Context) (RunSummary, error) {
	var m RunSummary
	if err := s.db.QueryRowContext(ctx, summaryQuery).Scan(
		&m.TotalRuns, &m.FailedRuns, &m.Sources,
		&m.TotalChunks, &m.TotalTokens, &m.AvgLatencyMs,
	); err != nil {
		return m, fmt.Errorf("query summary: %w", err)
	}
	return m, nil
}

func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

const runColumns = `run_id, source_key, total_chunks, total_tokens, status, error, elapsed_ms, timestamp`

// summaryQuery is plain SQL shared by both drivers.
const summaryQuery = `
	SELECT
		COUNT(*),
		COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
		COUNT(DISTINCT source_key),
		COALESCE(SUM(total_chunks), 0),
		COALESCE(SUM(total_tokens), 0),
		CAST(COALESCE(AVG(elapsed_ms), 0) AS DOUBLE PRECISION)
	FROM index_runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (IndexRun, error) {
	var r IndexRun
	err := row.Scan(
		&r.RunID, &r.SourceKey, &r.TotalChunks, &r.TotalTokens,
		&r.Status, &r.Error, &r.ElapsedMs, &r.Timestamp,
	)
	return r, err
}

func collectRuns(rows *sql.Rows) ([]IndexRun, error) {
	defer rows.Close()

	runs := []IndexRun{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func checkDeleted(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
