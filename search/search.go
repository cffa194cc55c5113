// Package search answers semantic queries against the chunk collection.
package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/hubenschmidt/go-pagesearch/collection"
	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/embed"
	"github.com/hubenschmidt/go-pagesearch/vector"
	"github.com/rs/zerolog"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Query is a semantic search request. An empty SourceKey searches every
// source; Limit <= 0 means DefaultLimit.
type Query struct {
	Text      string
	SourceKey string
	Limit     int
}

// Response lists results in the store's order with 1-based ranks.
type Response struct {
	Query        string              `json:"query"`
	Results      []core.SearchResult `json:"results"`
	TotalMatches int                 `json:"total_matches"`
}

// Searcher embeds queries and runs filtered nearest-neighbor lookups.
type Searcher struct {
	embedder     embed.Embedder
	collections  collection.Provider
	defaultLimit int
	maxLimit     int
	efSearch     int
	logger       zerolog.Logger
}

type Option func(*Searcher)

// WithLimits sets the limit used when a query has none and the largest limit
// honored.
func WithLimits(defaultLimit, maxLimit int) Option {
	return func(s *Searcher) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

// WithEfSearch overrides the collection's query-time recall knob.
func WithEfSearch(n int) Option {
	return func(s *Searcher) {
		s.efSearch = n
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Searcher) {
		s.logger = l
	}
}

func New(e embed.Embedder, collections collection.Provider, opts ...Option) *Searcher {
	s := &Searcher{
		embedder:     e,
		collections:  collections,
		defaultLimit: DefaultLimit,
		maxLimit:     MaxLimit,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns at most the query's limit of results. No match is an empty
// response, not an error. Store failures are reported as
// core.ErrSearchUnavailable.
func (s *Searcher) Search(ctx context.Context, q Query) (*Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, core.NewOpError("search", "", fmt.Errorf("%w: query is required", core.ErrInvalidInput))
	}

	limit := q.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	vec, err := s.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, core.WithContext(core.NewOpError("search.embed", q.SourceKey, core.Wrap(core.ErrModel, err)), "query", q.Text)
	}

	coll, err := s.collections.Ensure(ctx)
	if err != nil {
		return nil, core.WithContext(core.NewOpError("search", q.SourceKey, core.Wrap(core.ErrSearchUnavailable, err)), "query", q.Text)
	}

	hits, err := coll.Search(ctx, vec, vector.SearchOptions{
		SourceKey: q.SourceKey,
		Limit:     limit,
		EfSearch:  s.efSearch,
	})
	if err != nil {
		return nil, core.WithContext(core.NewOpError("search", q.SourceKey, core.Wrap(core.ErrSearchUnavailable, err)), "query", q.Text)
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	results := make([]core.SearchResult, len(hits))
	for i, h := range hits {
		results[i] = core.SearchResult{
			SourceKey:     h.SourceKey,
			Chunk:         h.Chunk,
			Score:         h.Score,
			RelevanceRank: i + 1,
		}
	}

	s.logger.Debug().
		Str("query", q.Text).
		Str("source_key", q.SourceKey).
		Int("limit", limit).
		Int("matches", len(results)).
		Msg("search")

	return &Response{
		Query:        q.Text,
		Results:      results,
		TotalMatches: len(results),
	}, nil
}
