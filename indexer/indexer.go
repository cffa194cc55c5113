// Package indexer turns a source's text into stored, embedded chunk records.
package indexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hubenschmidt/go-pagesearch/chunker"
	"github.com/hubenschmidt/go-pagesearch/collection"
	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/embed"
	"github.com/hubenschmidt/go-pagesearch/vector"
	"github.com/rs/zerolog"
)

// Policy decides what happens to a source's existing records when it is
// indexed again.
type Policy string

const (
	// PolicyReplace swaps the source's records atomically.
	PolicyReplace Policy = "replace"
	// PolicyAppend adds records next to any earlier ones.
	PolicyAppend Policy = "append"
)

// ParsePolicy accepts "replace", "append" or "" (replace).
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(s)) {
	case PolicyReplace, "":
		return PolicyReplace, nil
	case PolicyAppend:
		return PolicyAppend, nil
	}
	return "", fmt.Errorf("%w: unknown reindex policy %q", core.ErrConfiguration, s)
}

// Stats confirms what an IndexSource call stored.
type Stats struct {
	TotalChunks int `json:"total_chunks"`
	TotalTokens int `json:"total_tokens"`
}

// Indexer runs segmentation, embedding and storage for one source at a time.
// Distinct sources may be indexed concurrently.
type Indexer struct {
	segmenter   *chunker.Segmenter
	embedder    embed.Embedder
	collections collection.Provider
	workers     int
	policy      Policy
	logger      zerolog.Logger
}

type Option func(*Indexer)

func WithWorkers(n int) Option {
	return func(ix *Indexer) {
		ix.workers = n
	}
}

func WithPolicy(p Policy) Option {
	return func(ix *Indexer) {
		ix.policy = p
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(ix *Indexer) {
		ix.logger = l
	}
}

func New(seg *chunker.Segmenter, e embed.Embedder, collections collection.Provider, opts ...Option) *Indexer {
	ix := &Indexer{
		segmenter:   seg,
		embedder:    e,
		collections: collections,
		workers:     embed.DefaultWorkers,
		policy:      PolicyReplace,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

type indexOptions struct {
	maxTokens int
}

// IndexOption adjusts a single IndexSource call.
type IndexOption func(*indexOptions)

// WithMaxTokens overrides the segmenter's token budget for one call.
func WithMaxTokens(n int) IndexOption {
	return func(o *indexOptions) {
		o.maxTokens = n
	}
}

// IndexSource segments fullText, embeds every segment and stores the records
// under sourceKey. Chunk ids follow segmentation order starting at 0 and each
// chunk's token count is the length of its token span.
//
// Whitespace-only segments are stored with a zero embedding. Empty text is
// reported as core.ErrFetchOrParse. Store failures are reported
// as core.ErrIndexing; nothing is stored when the write fails.
func (ix *Indexer) IndexSource(ctx context.Context, sourceKey, fullText string, opts ...IndexOption) (Stats, error) {
	start := time.Now()

	o := indexOptions{maxTokens: ix.segmenter.MaxTokens()}
	for _, opt := range opts {
		opt(&o)
	}

	if sourceKey == "" {
		return Stats{}, core.NewOpError("index", "", fmt.Errorf("%w: source key is required", core.ErrInvalidInput))
	}
	if strings.TrimSpace(fullText) == "" {
		return Stats{}, core.NewOpError("index", sourceKey, core.ErrFetchOrParse)
	}

	segments, err := ix.segmenter.SplitWithBudget(fullText, o.maxTokens)
	if err != nil {
		return Stats{}, core.NewOpError("index.segment", sourceKey, err)
	}
	if len(segments) == 0 {
		return Stats{}, core.NewOpError("index", sourceKey, core.ErrFetchOrParse)
	}

	vectors, err := ix.embedSegments(ctx, segments)
	if err != nil {
		return Stats{}, core.NewOpError("index.embed", sourceKey, core.Wrap(core.ErrModel, err))
	}

	var stats Stats
	records := make([]vector.Record, len(segments))
	for i, s := range segments {
		records[i] = vector.Record{
			SourceKey: sourceKey,
			Chunk: core.Chunk{
				ChunkID:       i,
				Content:       s.Text,
				TokenCount:    s.Len(),
				StartPosition: s.Start,
				EndPosition:   s.End,
			},
			Embedding: vectors[i],
		}
		stats.TotalTokens += s.Len()
	}
	stats.TotalChunks = len(records)

	coll, err := ix.collections.Ensure(ctx)
	if err != nil {
		return Stats{}, core.NewOpError("index.store", sourceKey, core.Wrap(core.ErrIndexing, err))
	}

	if ix.policy == PolicyAppend {
		err = coll.Insert(ctx, records)
	} else {
		err = coll.ReplaceSource(ctx, sourceKey, records)
	}
	if err != nil {
		return Stats{}, core.NewOpError("index.store", sourceKey, core.Wrap(core.ErrIndexing, err))
	}

	ix.logger.Info().
		Str("source_key", sourceKey).
		Int("chunks", stats.TotalChunks).
		Int("tokens", stats.TotalTokens).
		Str("policy", string(ix.policy)).
		Dur("elapsed", time.Since(start)).
		Msg("indexed source")

	return stats, nil
}

// embedSegments embeds every segment that has visible text. Whitespace-only
// segments are still part of the partition; they are stored with a zero
// vector instead of being sent to the model.
func (ix *Indexer) embedSegments(ctx context.Context, segments []chunker.Segment) ([][]float32, error) {
	texts := make([]string, 0, len(segments))
	for _, s := range segments {
		if strings.TrimSpace(s.Text) != "" {
			texts = append(texts, s.Text)
		}
	}

	embedded, err := embed.EmbedAll(ctx, ix.embedder, texts, ix.workers)
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(segments))
	next := 0
	for i, s := range segments {
		if strings.TrimSpace(s.Text) == "" {
			vectors[i] = make([]float32, ix.embedder.Dimension())
			continue
		}
		vectors[i] = embedded[next]
		next++
	}
	return vectors, nil
}

// DeleteSource removes every record stored under sourceKey.
func (ix *Indexer) DeleteSource(ctx context.Context, sourceKey string) (int, error) {
	if sourceKey == "" {
		return 0, core.NewOpError("delete", "", fmt.Errorf("%w: source key is required", core.ErrInvalidInput))
	}

	coll, err := ix.collections.Ensure(ctx)
	if err != nil {
		return 0, core.NewOpError("delete", sourceKey, core.Wrap(core.ErrStore, err))
	}

	n, err := coll.DeleteSource(ctx, sourceKey)
	if err != nil {
		return 0, core.NewOpError("delete", sourceKey, core.Wrap(core.ErrStore, err))
	}

	ix.logger.Info().Str("source_key", sourceKey).Int("deleted", n).Msg("deleted source")
	return n, nil
}
