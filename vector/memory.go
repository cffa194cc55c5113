package vector

import (
	"context"
	"sort"
	"sync"

	"github.com/hubenschmidt/go-pagesearch/core"
)

// MemoryStore is an in-memory vector store for development and testing.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// NewMemoryStore creates a new in-memory vector store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
	}
}

func (s *MemoryStore) HasCollection(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[name]
	return ok, nil
}

func (s *MemoryStore) CreateCollection(ctx context.Context, schema Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[schema.Name]; !ok {
		s.collections[schema.Name] = &memoryCollection{schema: schema}
	}
	return nil
}

func (s *MemoryStore) Collection(ctx context.Context, name string) (Collection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[name]
	if !ok {
		return nil, core.NewOpError("vector.collection", name, core.ErrCollectionNotFound)
	}
	return c, nil
}

// Close is a no-op for in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

type memoryCollection struct {
	mu      sync.RWMutex
	schema  Schema
	records []Record
}

func (c *memoryCollection) Schema() Schema {
	return c.schema
}

func (c *memoryCollection) Insert(ctx context.Context, records []Record) error {
	if err := checkRecords(c.schema, "", records); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, cloneRecords(records)...)
	return nil
}

func (c *memoryCollection) ReplaceSource(ctx context.Context, sourceKey string, records []Record) error {
	if err := checkRecords(c.schema, sourceKey, records); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(sourceKey)
	c.records = append(c.records, cloneRecords(records)...)
	return nil
}

func (c *memoryCollection) DeleteSource(ctx context.Context, sourceKey string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(sourceKey), nil
}

func (c *memoryCollection) removeLocked(sourceKey string) int {
	kept := c.records[:0]
	for _, r := range c.records {
		if r.SourceKey != sourceKey {
			kept = append(kept, r)
		}
	}
	removed := len(c.records) - len(kept)
	clear(c.records[len(kept):])
	c.records = kept
	return removed
}

// Search ranks records by brute-force distance. Equal distances keep
// insertion order.
func (c *memoryCollection) Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]Hit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits := make([]Hit, 0, len(c.records))
	for _, r := range c.records {
		if opts.SourceKey != "" && r.SourceKey != opts.SourceKey {
			continue
		}
		hits = append(hits, Hit{
			SourceKey: r.SourceKey,
			Chunk:     r.Chunk,
			Score:     Distance(c.schema.Metric, embedding, r.Embedding),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score < hits[j].Score
	})

	if limit := limitOf(opts); len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (c *memoryCollection) Count(ctx context.Context) (int64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return int64(len(c.records)), nil
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		r.Embedding = append([]float32(nil), r.Embedding...)
		out[i] = r
	}
	return out
}
