package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hubenschmidt/go-pagesearch/server/store/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresRunStore implements RunStore using PostgreSQL
type PostgresRunStore struct {
	db *sql.DB
}

// NewPostgresRunStore connects to dsn and applies the ledger migrations.
func NewPostgresRunStore(dsn string) (*PostgresRunStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrations.Apply(ctx, db, migrations.Postgres, "postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresRunStore{db: db}, nil
}

func (s *PostgresRunStore) Add(ctx context.Context, r IndexRun) (IndexRun, error) {
	r = prepare(r)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_runs (
			run_id, source_key, total_chunks, total_tokens,
			status, error, elapsed_ms, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		r.RunID, r.SourceKey, r.TotalChunks, r.TotalTokens,
		r.Status, r.Error, r.ElapsedMs, r.Timestamp,
	)
	if err != nil {
		return r, fmt.Errorf("insert run: %w", err)
	}
	return r, nil
}

func (s *PostgresRunStore) Get(ctx context.Context, id string) (IndexRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM index_runs WHERE run_id = $1`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	if err != nil {
		return r, fmt.Errorf("query run: %w", err)
	}
	return r, nil
}

func (s *PostgresRunStore) List(ctx context.Context, opts ListOptions) ([]IndexRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM index_runs
		WHERE ($1::text = '' OR source_key = $1)
		ORDER BY timestamp DESC, seq DESC
		LIMIT $2`, opts.SourceKey, listLimit(opts))
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	return collectRuns(rows)
}

func (s *PostgresRunStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM index_runs WHERE run_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	return checkDeleted(res)
}

func (s *PostgresRunStore) Summary(ctx context.Context) (RunSummary, error) {
	var m RunSummary
	if err := s.db.QueryRowContext(ctx, summaryQuery).Scan(
		&m.TotalRuns, &m.FailedRuns, &m.Sources,
		&m.TotalChunks, &m.TotalTokens, &m.AvgLatencyMs,
	); err != nil {
		return m, fmt.Errorf("query summary: %w", err)
	}
	return m, nil
}

func (s *PostgresRunStore) Close() error {
	return s.db.Close()
}
