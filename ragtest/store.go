package ragtest

import (
	"context"

	"github.com/hubenschmidt/go-pagesearch/vector"
)

// FaultyCollection wraps a collection and fails the operations whose error
// field is set.
type FaultyCollection struct {
	vector.Collection

	WriteErr  error
	SearchErr error
	CountErr  error
}

func (c *FaultyCollection) Insert(ctx context.Context, records []vector.Record) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}
	return c.Collection.Insert(ctx, records)
}

func (c *FaultyCollection) ReplaceSource(ctx context.Context, sourceKey string, records []vector.Record) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}
	return c.Collection.ReplaceSource(ctx, sourceKey, records)
}

func (c *FaultyCollection) Search(ctx context.Context, embedding []float32, opts vector.SearchOptions) ([]vector.Hit, error) {
	if c.SearchErr != nil {
		return nil, c.SearchErr
	}
	return c.Collection.Search(ctx, embedding, opts)
}

func (c *FaultyCollection) Count(ctx context.Context) (int64, error) {
	if c.CountErr != nil {
		return 0, c.CountErr
	}
	return c.Collection.Count(ctx)
}

// StaticProvider hands out a fixed collection, or Err.
type StaticProvider struct {
	Coll vector.Collection
	Err  error
}

func (p *StaticProvider) Ensure(ctx context.Context) (vector.Collection, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Coll, nil
}

// NewMemoryCollection creates a fresh in-memory collection of the given dimension.
func NewMemoryCollection(dim int) vector.Collection {
	s := vector.NewMemoryStore()
	schema := vector.Schema{Name: "test_chunks", Dimension: dim, Metric: vector.MetricL2, Index: vector.DefaultIndexParams()}
	if err := s.CreateCollection(context.Background(), schema); err != nil {
		panic(err)
	}
	c, err := s.Collection(context.Background(), schema.Name)
	if err != nil {
		panic(err)
	}
	return c
}
