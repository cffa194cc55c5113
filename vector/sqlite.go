package vector

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/vector/migrations"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps collections in a single SQLite file. Embeddings are
// stored as little-endian float32 blobs and searched exactly.
type SQLiteStore struct {
	db   *sql.DB
	opts options
}

// NewSQLiteStore opens (creating if needed) the database at path. ":memory:"
// gives a private in-process database.
func NewSQLiteStore(ctx context.Context, path string, opts ...Option) (*SQLiteStore, error) {
	if path == "" {
		path = "data/vectors.db"
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
			dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" lives
	// only as long as its connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &SQLiteStore{db: db, opts: newOptions(opts)}

	bootCtx, cancel := store.opts.bound(ctx)
	defer cancel()

	script, err := migrations.Render(migrations.SQLite, "sqlite/001_bootstrap.sql", nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(bootCtx, script); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vector_collections WHERE name = ?`, name).Scan(&n); err != nil {
		return false, fmt.Errorf("query catalog: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) CreateCollection(ctx context.Context, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	script, err := migrations.Render(migrations.SQLite, "sqlite/002_collection.sql", &migrations.Params{
		Table:     schema.Name,
		Dimension: schema.Dimension,
	})
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("create collection %s: %w", schema.Name, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO vector_collections (name, dimension, metric, index_type, hnsw_m, ef_construction, ef_search)
		VALUES (?, ?, ?, 'flat', ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`,
		schema.Name, schema.Dimension, string(schema.Metric),
		schema.Index.M, schema.Index.EfConstruction, schema.Index.EfSearch)
	if err != nil {
		return fmt.Errorf("register collection %s: %w", schema.Name, err)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Collection(ctx context.Context, name string) (Collection, error) {
	ctx, cancel := s.opts.bound(ctx)
	defer cancel()

	schema := Schema{Name: name}
	var metric string
	err := s.db.QueryRowContext(ctx, `
		SELECT dimension, metric, index_type, hnsw_m, ef_construction, ef_search
		FROM vector_collections WHERE name = ?`, name).Scan(
		&schema.Dimension, &metric, &schema.Index.Type, &schema.Index.M,
		&schema.Index.EfConstruction, &schema.Index.EfSearch)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NewOpError("vector.collection", name, core.ErrCollectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query catalog: %w", err)
	}
	schema.Metric = Metric(metric)

	return &sqliteCollection{db: s.db, opts: s.opts, schema: schema}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteCollection struct {
	db     *sql.DB
	opts   options
	schema Schema
}

func (c *sqliteCollection) Schema() Schema {
	return c.schema
}

func (c *sqliteCollection) Insert(ctx context.Context, records []Record) error {
	if err := checkRecords(c.schema, "", records); err != nil {
		return err
	}
	return c.write(ctx, "", records)
}

func (c *sqliteCollection) ReplaceSource(ctx context.Context, sourceKey string, records []Record) error {
	if err := checkRecords(c.schema, sourceKey, records); err != nil {
		return err
	}
	return c.write(ctx, sourceKey, records)
}

func (c *sqliteCollection) write(ctx context.Context, replace string, records []Record) error {
	ctx, cancel := c.opts.bound(ctx)
	defer cancel()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if replace != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+c.schema.Name+` WHERE source_key = ?`, replace); err != nil {
			return fmt.Errorf("delete source: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO `+c.schema.Name+` (source_key, chunk_id, content, token_count, start_position, end_position, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.ExecContext(ctx, r.SourceKey, r.Chunk.ChunkID, r.Chunk.Content, r.Chunk.TokenCount,
			r.Chunk.StartPosition, r.Chunk.EndPosition, encodeEmbedding(r.Embedding))
		if err != nil {
			return fmt.Errorf("insert chunk %d: %w", r.Chunk.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (c *sqliteCollection) DeleteSource(ctx context.Context, sourceKey string) (int, error) {
	ctx, cancel := c.opts.bound(ctx)
	defer cancel()

	res, err := c.db.ExecContext(ctx, `DELETE FROM `+c.schema.Name+` WHERE source_key = ?`, sourceKey)
	if err != nil {
		return 0, fmt.Errorf("delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Search scans the (optionally filtered) rows and ranks them exactly. Equal
// distances keep row order.
func (c *sqliteCollection) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]Hit, error) {
	ctx, cancel := c.opts.bound(ctx)
	defer cancel()

	query := `SELECT source_key, chunk_id, content, token_count,
		COALESCE(start_position, 0), COALESCE(end_position, 0), embedding
		FROM ` + c.schema.Name
	var args []any
	if opts.SourceKey != "" {
		query += ` WHERE source_key = ?`
		args = append(args, opts.SourceKey)
	}
	query += ` ORDER BY id`

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var h Hit
		var blob []byte
		if err := rows.Scan(&h.SourceKey, &h.Chunk.ChunkID, &h.Chunk.Content, &h.Chunk.TokenCount,
			&h.Chunk.StartPosition, &h.Chunk.EndPosition, &blob); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		h.Score = Distance(c.schema.Metric, embedding, decodeEmbedding(blob))
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score < hits[j].Score
	})
	if limit := limitOf(opts); len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (c *sqliteCollection) Count(ctx context.Context) (int64, error) {
	ctx, cancel := c.opts.bound(ctx)
	defer cancel()

	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.schema.Name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func encodeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(x))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v
}
