package vector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/vector/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// pgvector's HNSW index covers vectors of at most this many dimensions;
// wider collections are searched exactly.
const maxIndexedDimension = 2000

// catalogLockKey serializes DDL on the collection catalog across processes.
const catalogLockKey = "pagesearch.vector_collections"

// PgVectorStore is a PostgreSQL-based vector store using pgvector.
type PgVectorStore struct {
	db   *sql.DB
	opts options
}

// NewPgVectorStore connects to dsn and makes sure the pgvector extension and
// the collection catalog exist.
func NewPgVectorStore(ctx context.Context, dsn string, opts ...Option) (*PgVectorStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &PgVectorStore{db: db, opts: newOptions(opts)}

	pingCtx, cancel := store.opts.bound(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := store.bootstrap(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return store, nil
}

func (s *PgVectorStore) bootstrap(ctx context.Context) error {
	script, err := migrations.Render(migrations.Postgres, "postgres/001_bootstrap.sql", nil)
	if err != nil {
		return err
	}
	return s.withCatalogLock(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
		return nil
	})
}

func (s *PgVectorStore) withCatalogLock(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, catalogLockKey); err != nil {
		return fmt.Errorf("acquire catalog lock: %w", err)
	}
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PgVectorStore) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vector_collections WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query catalog: %w", err)
	}
	return exists, nil
}

// CreateCollection creates the chunk table and its HNSW index under an
// advisory lock, so concurrent first starts produce a single collection.
func (s *PgVectorStore) CreateCollection(ctx context.Context, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	opClass := "vector_l2_ops"
	if schema.Metric == MetricCosine {
		opClass = "vector_cosine_ops"
	}
	indexed := schema.Index.Type == "hnsw" && schema.Dimension <= maxIndexedDimension
	indexType := schema.Index.Type
	if !indexed {
		indexType = "flat"
	}

	script, err := migrations.Render(migrations.Postgres, "postgres/002_collection.sql", &migrations.Params{
		Table:          schema.Name,
		Dimension:      schema.Dimension,
		OpClass:        opClass,
		Indexed:        indexed,
		M:              schema.Index.M,
		EfConstruction: schema.Index.EfConstruction,
	})
	if err != nil {
		return err
	}

	return s.withCatalogLock(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM vector_collections WHERE name = $1)`, schema.Name).Scan(&exists); err != nil {
			return fmt.Errorf("query catalog: %w", err)
		}
		if exists {
			return nil
		}

		if _, err := tx.ExecContext(ctx, script); err != nil {
			return fmt.Errorf("create collection %s: %w", schema.Name, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO vector_collections (name, dimension, metric, index_type, hnsw_m, ef_construction, ef_search)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (name) DO NOTHING
		`, schema.Name, schema.Dimension, string(schema.Metric), indexType,
			schema.Index.M, schema.Index.EfConstruction, schema.Index.EfSearch)
		if err != nil {
			return fmt.Errorf("register collection %s: %w", schema.Name, err)
		}
		return nil
	})
}

func (s *PgVectorStore) Collection(ctx context.Context, name string) (Collection, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	schema := Schema{Name: name}
	var metric string
	err := s.db.QueryRowContext(ctx, `
		SELECT dimension, metric, index_type, hnsw_m, ef_construction, ef_search
		FROM vector_collections WHERE name = $1
	`, name).Scan(&schema.Dimension, &metric, &schema.Index.Type, &schema.Index.M,
		&schema.Index.EfConstruction, &schema.Index.EfSearch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewOpError("vector.collection", name, core.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	schema.Metric = Metric(metric)

	return &pgCollection{db: s.db, opts: s.opts, schema: schema}, nil
}

// Close closes the database connection.
func (s *PgVectorStore) Close() error {
	return s.db.Close()
}

type pgCollection struct {
	db     *sql.DB
	opts   options
	schema Schema
}

func (c *pgCollection) Schema() Schema {
	return c.schema
}

func (c *pgCollection) Insert(ctx context.Context, records []Record) error {
	if err := checkRecords(c.schema, "", records); err != nil {
		return err
	}
	return c.write(ctx, "", records)
}

func (c *pgCollection) ReplaceSource(ctx context.Context, sourceKey string, records []Record) error {
	if err := checkRecords(c.schema, sourceKey, records); err != nil {
		return err
	}
	return c.write(ctx, sourceKey, records)
}

// write inserts records in one transaction. When replace is set, the
// source's previous records are deleted in the same transaction.
func (c *pgCollection) write(ctx context.Context, replace string, records []Record) error {
	ctx, cancel := c.opts.bound(ctx)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if replace != "" {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, c.schema.Name+"/"+replace); err != nil {
			return fmt.Errorf("acquire source lock: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+c.schema.Name+` WHERE source_key = $1`, replace); err != nil {
			return fmt.Errorf("delete source: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+c.schema.Name+` (source_key, chunk_id, content, token_count, start_position, end_position, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7::vector)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx, r.SourceKey, r.Chunk.ChunkID, r.Chunk.Content, r.Chunk.TokenCount,
			r.Chunk.StartPosition, r.Chunk.EndPosition, formatEmbedding(r.Embedding))
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", r.Chunk.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *pgCollection) DeleteSource(ctx context.Context, sourceKey string) (int, error) {
	ctx, cancel := c.opts.bound(ctx)
	defer cancel()

	res, err := c.db.ExecContext(ctx, `DELETE FROM `+c.schema.Name+` WHERE source_key = $1`, sourceKey)
	if err != nil {
		return 0, fmt.Errorf("delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Search orders by the index operator so the HNSW index serves the query.
// ef_search is set for this transaction only.
func (c *pgCollection) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]Hit, error) {
	ctx, cancel := c.opts.bound(ctx)
	defer cancel()

	op := "<->"
	if c.schema.Metric == MetricCosine {
		op = "<=>"
	}

	args := []any{formatEmbedding(embedding), limitOf(opts)}
	where := ""
	if opts.SourceKey != "" {
		where = "WHERE source_key = $3"
		args = append(args, opts.SourceKey)
	}

	query := fmt.Sprintf(`
		SELECT source_key, chunk_id, content, token_count,
			COALESCE(start_position, 0), COALESCE(end_position, 0),
			embedding %[1]s $1::vector AS score
		FROM %[2]s
		%[3]s
		ORDER BY embedding %[1]s $1::vector
		LIMIT $2
	`, op, c.schema.Name, where)

	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	efSearch := opts.EfSearch
	if efSearch <= 0 {
		efSearch = c.schema.Index.EfSearch
	}
	if efSearch > 0 && c.schema.Index.Type == "hnsw" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL hnsw.ef_search = "+strconv.Itoa(efSearch)); err != nil {
			return nil, fmt.Errorf("set ef_search: %w", err)
		}
	}

	// The HNSW index yields only ef_search candidates before the WHERE clause
	// runs, so a source filter could drop every match. Filtered queries rank
	// the source's rows exactly instead.
	if opts.SourceKey != "" {
		if _, err := tx.ExecContext(ctx, "SET LOCAL enable_indexscan = off"); err != nil {
			return nil, fmt.Errorf("disable index scan: %w", err)
		}
	}

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.SourceKey, &h.Chunk.ChunkID, &h.Chunk.Content, &h.Chunk.TokenCount,
			&h.Chunk.StartPosition, &h.Chunk.EndPosition, &h.Score); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	return hits, nil
}

func (c *pgCollection) Count(ctx context.Context) (int64, error) {
	ctx, cancel := c.opts.bound(ctx)
	defer cancel()

	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.schema.Name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// formatEmbedding converts a vector to pgvector's text form: "[0.1,0.2,0.3]"
func formatEmbedding(embedding []float32) string {
	var sb strings.Builder
	sb.Grow(len(embedding)*10 + 2)
	sb.WriteByte('[')
	for i, v := range embedding {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(v), 'g', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
