package vector_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type opener func(t *testing.T) vector.Store

func backends(t *testing.T) map[string]opener {
	t.Helper()
	b := map[string]opener{
		"memory": func(t *testing.T) vector.Store {
			return vector.NewMemoryStore()
		},
		"sqlite": func(t *testing.T) vector.Store {
			s, err := vector.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "vectors.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
	if dsn := os.Getenv("PAGESEARCH_TEST_POSTGRES_DSN"); dsn != "" {
		b["pgvector"] = func(t *testing.T) vector.Store {
			s, err := vector.NewPgVectorStore(context.Background(), dsn, vector.WithTimeout(10*time.Second))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}
	}
	return b
}

func testSchema(dim int) vector.Schema {
	return vector.Schema{
		Name:      fmt.Sprintf("test_chunks_%d", time.Now().UnixNano()),
		Dimension: dim,
		Metric:    vector.MetricL2,
		Index:     vector.DefaultIndexParams(),
	}
}

func record(source string, id int, vec ...float32) vector.Record {
	return vector.Record{
		SourceKey: source,
		Chunk: core.Chunk{
			ChunkID:       id,
			Content:       fmt.Sprintf("%s chunk %d", source, id),
			TokenCount:    10,
			StartPosition: id * 10,
			EndPosition:   id*10 + 10,
		},
		Embedding: vec,
	}
}

func createCollection(t *testing.T, s vector.Store, schema vector.Schema) vector.Collection {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.CreateCollection(ctx, schema))
	c, err := s.Collection(ctx, schema.Name)
	require.NoError(t, err)
	return c
}

func TestStoreConformance(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("create is idempotent", func(t *testing.T) {
				s := open(t)
				schema := testSchema(3)

				ok, err := s.HasCollection(ctx, schema.Name)
				require.NoError(t, err)
				assert.False(t, ok)

				require.NoError(t, s.CreateCollection(ctx, schema))
				require.NoError(t, s.CreateCollection(ctx, schema))

				ok, err = s.HasCollection(ctx, schema.Name)
				require.NoError(t, err)
				assert.True(t, ok)

				c, err := s.Collection(ctx, schema.Name)
				require.NoError(t, err)
				assert.Equal(t, schema.Name, c.Schema().Name)
				assert.Equal(t, 3, c.Schema().Dimension)
				assert.Equal(t, vector.MetricL2, c.Schema().Metric)
			})

			t.Run("create never alters an existing collection", func(t *testing.T) {
				s := open(t)
				schema := testSchema(3)
				require.NoError(t, s.CreateCollection(ctx, schema))

				wider := schema
				wider.Dimension = 5
				require.NoError(t, s.CreateCollection(ctx, wider))

				c, err := s.Collection(ctx, schema.Name)
				require.NoError(t, err)
				assert.Equal(t, 3, c.Schema().Dimension)
			})

			t.Run("missing collection", func(t *testing.T) {
				s := open(t)
				_, err := s.Collection(ctx, "never_created")
				assert.ErrorIs(t, err, core.ErrCollectionNotFound)
			})

			t.Run("invalid schema", func(t *testing.T) {
				s := open(t)
				for _, schema := range []vector.Schema{
					{Name: "Bad-Name", Dimension: 3, Metric: vector.MetricL2},
					{Name: "ok_name", Dimension: 0, Metric: vector.MetricL2},
					{Name: "ok_name", Dimension: 3, Metric: "hamming"},
					{Name: "vector_collections", Dimension: 3, Metric: vector.MetricL2},
				} {
					assert.ErrorIs(t, s.CreateCollection(ctx, schema), core.ErrConfiguration)
				}
			})

			t.Run("empty collection", func(t *testing.T) {
				c := createCollection(t, open(t), testSchema(3))

				n, err := c.Count(ctx)
				require.NoError(t, err)
				assert.Zero(t, n)

				hits, err := c.Search(ctx, []float32{1, 0, 0}, vector.SearchOptions{Limit: 5})
				require.NoError(t, err)
				assert.Empty(t, hits)
			})

			t.Run("nearest first", func(t *testing.T) {
				c := createCollection(t, open(t), testSchema(3))
				require.NoError(t, c.Insert(ctx, []vector.Record{
					record("a", 0, 0, 0, 1),
					record("a", 1, 1, 0, 0),
					record("a", 2, 0, 1, 0),
				}))

				hits, err := c.Search(ctx, []float32{0.9, 0.1, 0}, vector.SearchOptions{Limit: 3})
				require.NoError(t, err)
				require.Len(t, hits, 3)
				assert.Equal(t, 1, hits[0].Chunk.ChunkID)
				assert.Equal(t, 2, hits[1].Chunk.ChunkID)
				assert.Equal(t, 0, hits[2].Chunk.ChunkID)
				for i := 1; i < len(hits); i++ {
					assert.LessOrEqual(t, hits[i-1].Score, hits[i].Score)
				}

				assert.Equal(t, "a chunk 1", hits[0].Chunk.Content)
				assert.Equal(t, 10, hits[0].Chunk.StartPosition)
				assert.Equal(t, 20, hits[0].Chunk.EndPosition)
				assert.Equal(t, 10, hits[0].Chunk.TokenCount)
			})

			t.Run("filter and limit", func(t *testing.T) {
				c := createCollection(t, open(t), testSchema(2))

				var records []vector.Record
				for i := 0; i < 12; i++ {
					records = append(records, record("a", i, 1, float32(i)))
					records = append(records, record("b", i, 1, float32(i)))
				}
				require.NoError(t, c.Insert(ctx, records))

				hits, err := c.Search(ctx, []float32{1, 0}, vector.SearchOptions{SourceKey: "b", Limit: 5})
				require.NoError(t, err)
				require.Len(t, hits, 5)
				for _, h := range hits {
					assert.Equal(t, "b", h.SourceKey)
				}

				hits, err = c.Search(ctx, []float32{1, 0}, vector.SearchOptions{})
				require.NoError(t, err)
				assert.Len(t, hits, vector.DefaultLimit)

				hits, err = c.Search(ctx, []float32{1, 0}, vector.SearchOptions{SourceKey: "c", Limit: 5})
				require.NoError(t, err)
				assert.Empty(t, hits)
			})

			t.Run("replace and delete source", func(t *testing.T) {
				c := createCollection(t, open(t), testSchema(2))
				require.NoError(t, c.Insert(ctx, []vector.Record{
					record("a", 0, 1, 0), record("a", 1, 0, 1), record("b", 0, 1, 1),
				}))

				require.NoError(t, c.ReplaceSource(ctx, "a", []vector.Record{record("a", 0, 0.5, 0.5)}))
				n, err := c.Count(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(2), n)

				hits, err := c.Search(ctx, []float32{1, 0}, vector.SearchOptions{SourceKey: "a", Limit: 10})
				require.NoError(t, err)
				require.Len(t, hits, 1)

				err = c.ReplaceSource(ctx, "a", []vector.Record{record("b", 5, 1, 0)})
				assert.ErrorIs(t, err, core.ErrInvalidRecord)

				removed, err := c.DeleteSource(ctx, "b")
				require.NoError(t, err)
				assert.Equal(t, 1, removed)

				n, err = c.Count(ctx)
				require.NoError(t, err)
				assert.Equal(t, int64(1), n)
			})

			t.Run("filter reaches a distant source", func(t *testing.T) {
				c := createCollection(t, open(t), testSchema(2))

				var records []vector.Record
				for i := 0; i < 60; i++ {
					source := fmt.Sprintf("near_%d", i)
					records = append(records, record(source, 0, 1, float32(i)/1000), record(source, 1, 1, float32(i)/500))
				}
				records = append(records, record("far", 0, -50, 50), record("far", 1, -60, 40), record("far", 2, -40, 60))
				require.NoError(t, c.Insert(ctx, records))

				hits, err := c.Search(ctx, []float32{1, 0}, vector.SearchOptions{SourceKey: "far", Limit: 2, EfSearch: 10})
				require.NoError(t, err)
				require.Len(t, hits, 2)
				for _, h := range hits {
					assert.Equal(t, "far", h.SourceKey)
				}
				assert.LessOrEqual(t, hits[0].Score, hits[1].Score)

				hits, err = c.Search(ctx, []float32{1, 0}, vector.SearchOptions{SourceKey: "far", Limit: 10, EfSearch: 10})
				require.NoError(t, err)
				assert.Len(t, hits, 3)
			})

			t.Run("rejects wrong dimension", func(t *testing.T) {
				c := createCollection(t, open(t), testSchema(3))
				err := c.Insert(ctx, []vector.Record{record("a", 0, 1, 0)})
				assert.ErrorIs(t, err, core.ErrInvalidRecord)
				assert.ErrorIs(t, err, core.ErrStore)
				assert.NotErrorIs(t, err, core.ErrInvalidInput)

				n, err := c.Count(ctx)
				require.NoError(t, err)
				assert.Zero(t, n)
			})
		})
	}
}

func TestSQLiteReopenAttachesToSameCollection(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "vectors.db")
	schema := testSchema(2)

	first, err := vector.NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	c := createCollection(t, first, schema)
	require.NoError(t, c.Insert(ctx, []vector.Record{record("a", 0, 1, 0)}))
	require.NoError(t, first.Close())

	second, err := vector.NewSQLiteStore(ctx, path)
	require.NoError(t, err)
	defer second.Close()

	ok, err := second.HasCollection(ctx, schema.Name)
	require.NoError(t, err)
	assert.True(t, ok)

	c = createCollection(t, second, schema)
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCosineCollection(t *testing.T) {
	ctx := context.Background()
	schema := testSchema(2)
	schema.Metric = vector.MetricCosine

	c := createCollection(t, vector.NewMemoryStore(), schema)
	require.NoError(t, c.Insert(ctx, []vector.Record{record("a", 0, 10, 0), record("a", 1, 0, 1)}))

	hits, err := c.Search(ctx, []float32{1, 0}, vector.SearchOptions{Limit: 2})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Chunk.ChunkID)
	assert.InDelta(t, 0, hits[0].Score, 1e-9)
	assert.InDelta(t, 1, hits[1].Score, 1e-9)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := vector.Open(ctx, "", "")
	require.NoError(t, err)
	assert.IsType(t, &vector.MemoryStore{}, s)

	s, err = vector.Open(ctx, "", filepath.Join(t.TempDir(), "v.db"))
	require.NoError(t, err)
	assert.IsType(t, &vector.SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = vector.Open(ctx, "milvus", "")
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestDistance(t *testing.T) {
	assert.InDelta(t, 5, vector.L2Distance([]float32{0, 0}, []float32{3, 4}), 1e-9)
	assert.InDelta(t, 0, vector.Distance(vector.MetricCosine, []float32{1, 1}, []float32{2, 2}), 1e-9)
	assert.InDelta(t, 1, vector.CosineSimilarity([]float32{1, 0}, []float32{5, 0}), 1e-9)
	assert.Zero(t, vector.CosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
