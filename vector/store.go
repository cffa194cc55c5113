// Package vector provides named vector collections of chunk records with
// filtered nearest-neighbor search.
package vector

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/rs/zerolog"
)

// DefaultLimit applies when SearchOptions.Limit is not positive.
const DefaultLimit = 10

// Metric is the distance function of a collection's index.
type Metric string

const (
	MetricL2     Metric = "l2"
	MetricCosine Metric = "cosine"
)

// IndexParams configures the approximate nearest-neighbor index. EfSearch is
// the query-time recall/latency knob.
type IndexParams struct {
	Type           string `json:"type"`
	M              int    `json:"m"`
	EfConstruction int    `json:"ef_construction"`
	EfSearch       int    `json:"ef_search"`
}

func DefaultIndexParams() IndexParams {
	return IndexParams{Type: "hnsw", M: 16, EfConstruction: 64, EfSearch: 40}
}

// Schema describes a collection. Every collection stores the same fields:
// source_key, chunk_id, content, token_count, start_position, end_position
// and embedding.
type Schema struct {
	Name      string      `json:"name"`
	Dimension int         `json:"dimension"`
	Metric    Metric      `json:"metric"`
	Index     IndexParams `json:"index"`
}

var namePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,47}$`)

// catalogTable holds the schemas of every collection in the SQL backends.
const catalogTable = "vector_collections"

func (s Schema) Validate() error {
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("%w: invalid collection name %q", core.ErrConfiguration, s.Name)
	}
	if s.Name == catalogTable {
		return fmt.Errorf("%w: collection name %q is reserved", core.ErrConfiguration, s.Name)
	}
	if s.Dimension <= 0 {
		return fmt.Errorf("%w: collection dimension must be positive", core.ErrConfiguration)
	}
	if s.Metric != MetricL2 && s.Metric != MetricCosine {
		return fmt.Errorf("%w: unknown metric %q", core.ErrConfiguration, s.Metric)
	}
	return nil
}

// Record is one stored chunk.
type Record struct {
	SourceKey string
	Chunk     core.Chunk
	Embedding []float32
}

// Hit is a search match. Score is a distance: lower is closer.
type Hit struct {
	SourceKey string
	Chunk     core.Chunk
	Score     float64
}

// SearchOptions restricts a search. An empty SourceKey matches every record.
type SearchOptions struct {
	SourceKey string
	Limit     int
	EfSearch  int
}

// Store hosts named collections.
type Store interface {
	HasCollection(ctx context.Context, name string) (bool, error)

	// CreateCollection creates the collection and its vector index. It is a
	// no-op when the collection already exists, whatever its schema.
	CreateCollection(ctx context.Context, schema Schema) error

	// Collection attaches to an existing collection or returns
	// core.ErrCollectionNotFound.
	Collection(ctx context.Context, name string) (Collection, error)

	Close() error
}

// Collection is a handle to one collection. Writes are visible to searches
// issued after they return.
type Collection interface {
	Schema() Schema
	Insert(ctx context.Context, records []Record) error

	// ReplaceSource atomically swaps every record of sourceKey for records.
	ReplaceSource(ctx context.Context, sourceKey string, records []Record) error

	DeleteSource(ctx context.Context, sourceKey string) (int, error)
	Search(ctx context.Context, embedding []float32, opts SearchOptions) ([]Hit, error)
	Count(ctx context.Context) (int64, error)
}

type options struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// Option configures a Store.
type Option func(*options)

// WithTimeout bounds every call to the backing database.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func newOptions(opts []Option) options {
	o := options{timeout: 10 * time.Second, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func checkRecords(schema Schema, sourceKey string, records []Record) error {
	for i, r := range records {
		if len(r.Embedding) != schema.Dimension {
			return fmt.Errorf("%w: record %d has %d dimensions, collection %s wants %d",
				core.ErrInvalidRecord, i, len(r.Embedding), schema.Name, schema.Dimension)
		}
		if r.SourceKey == "" {
			return fmt.Errorf("%w: record %d has no source key", core.ErrInvalidRecord, i)
		}
		if sourceKey != "" && r.SourceKey != sourceKey {
			return fmt.Errorf("%w: record %d belongs to %q, not %q", core.ErrInvalidRecord, i, r.SourceKey, sourceKey)
		}
	}
	return nil
}

func limitOf(opts SearchOptions) int {
	if opts.Limit <= 0 {
		return DefaultLimit
	}
	return opts.Limit
}
