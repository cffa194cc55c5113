// Package pagesearch indexes web pages into a vector collection and answers
// semantic queries over them.
//
// Example usage:
//
//	cfg, _ := config.Load("")
//	svc, err := pagesearch.Open(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close()
//
//	res, err := svc.IndexURL(ctx, "https://go.dev/doc/effective_go")
//	resp, err := svc.Search(ctx, search.Query{Text: "how are interfaces named", SourceKey: res.URL})
package pagesearch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hubenschmidt/go-pagesearch/chunker"
	"github.com/hubenschmidt/go-pagesearch/collection"
	"github.com/hubenschmidt/go-pagesearch/config"
	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/embed"
	"github.com/hubenschmidt/go-pagesearch/fetch"
	"github.com/hubenschmidt/go-pagesearch/indexer"
	"github.com/hubenschmidt/go-pagesearch/monitor"
	"github.com/hubenschmidt/go-pagesearch/search"
	"github.com/hubenschmidt/go-pagesearch/tokenizer"
	"github.com/hubenschmidt/go-pagesearch/vector"
	"github.com/rs/zerolog"
)

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	VectorDBConnected    = "connected"
	VectorDBDisconnected = "disconnected"
)

// Components are the collaborators a Service is assembled from. Nil Fetcher
// and Metrics get defaults.
type Components struct {
	Tokenizer tokenizer.Tokenizer
	Embedder  embed.Embedder
	Store     vector.Store
	Fetcher   *fetch.Fetcher
	Metrics   monitor.Collector
	Logger    zerolog.Logger
}

// Service is the pipeline facade used by the HTTP server, the MCP tools and
// the CLI.
type Service struct {
	store      vector.Store
	embedder   embed.Embedder
	manager    *collection.Manager
	fetcher    *fetch.Fetcher
	indexer    *indexer.Indexer
	searcher   *search.Searcher
	metrics    monitor.Collector
	logger     zerolog.Logger
	opTimeout  time.Duration
	collection string
}

// IndexResult confirms an indexed page.
type IndexResult struct {
	URL         string `json:"url"`
	TotalChunks int    `json:"total_chunks"`
	TotalTokens int    `json:"total_tokens"`
}

type HealthReport struct {
	Status          string                              `json:"status"`
	VectorDB        string                              `json:"vector_db"`
	CollectionStats core.CollectionStats                `json:"collection_stats"`
	EmbeddingModel  string                              `json:"embedding_model"`
	Dimension       int                                 `json:"dimension"`
	Error           string                              `json:"error,omitempty"`
	Operations      map[string]monitor.OperationMetrics `json:"operations"`
}

// Open builds every component from cfg: the tokenizer, the embedding gateway
// (probing the model when its dimension is unknown) and the vector store.
// Configuration problems are reported before any request is served.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tok, err := tokenizer.Load(cfg.Tokenizer.Encoding)
	if err != nil {
		return nil, err
	}

	emb, err := embed.New(ctx, cfg.EmbedConfig(), embed.WithLogger(logger.With().Str("component", "embed").Logger()))
	if err != nil {
		return nil, err
	}

	store, err := vector.Open(ctx, cfg.Store.Driver, cfg.Store.DSN,
		vector.WithTimeout(cfg.Store.Timeout),
		vector.WithLogger(logger.With().Str("component", "vector").Logger()),
	)
	if err != nil {
		return nil, core.NewOpError("open.store", cfg.Store.Driver, core.Wrap(core.ErrStore, err))
	}

	f := fetch.New(
		fetch.WithTimeout(cfg.Fetch.Timeout),
		fetch.WithUserAgent(cfg.Fetch.UserAgent),
		fetch.WithMaxBytes(cfg.Fetch.MaxBytes),
		fetch.WithLogger(logger.With().Str("component", "fetch").Logger()),
	)

	svc, err := New(cfg, Components{
		Tokenizer: tok,
		Embedder:  emb,
		Store:     store,
		Fetcher:   f,
		Metrics:   monitor.NewInMemoryCollector(),
		Logger:    logger,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.Info().
		Str("tokenizer", tok.Name()).
		Str("embedding_model", emb.Model()).
		Int("dimension", emb.Dimension()).
		Str("collection", cfg.Store.Collection).
		Msg("pagesearch ready")
	return svc, nil
}

// New assembles a Service from ready components. The collection is created
// or attached to lazily, on first use.
func New(cfg *config.Config, c Components) (*Service, error) {
	seg, err := chunker.New(c.Tokenizer, cfg.Chunking.MaxTokens)
	if err != nil {
		return nil, err
	}
	policy, err := indexer.ParsePolicy(cfg.Indexing.Reindex)
	if err != nil {
		return nil, err
	}

	manager, err := collection.NewManager(c.Store, cfg.Schema(c.Embedder.Dimension()),
		collection.WithLogger(c.Logger.With().Str("component", "collection").Logger()))
	if err != nil {
		return nil, err
	}

	if c.Fetcher == nil {
		c.Fetcher = fetch.New()
	}
	if c.Metrics == nil {
		c.Metrics = monitor.NewInMemoryCollector()
	}

	workers := cfg.Embedding.Workers
	if workers <= 0 {
		workers = embed.DefaultWorkers
	}

	opTimeout := cfg.Store.Timeout
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}

	return &Service{
		store:    c.Store,
		embedder: c.Embedder,
		manager:  manager,
		fetcher:  c.Fetcher,
		indexer: indexer.New(seg, c.Embedder, manager,
			indexer.WithWorkers(workers),
			indexer.WithPolicy(policy),
			indexer.WithLogger(c.Logger.With().Str("component", "indexer").Logger()),
		),
		searcher: search.New(c.Embedder, manager,
			search.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxLimit),
			search.WithEfSearch(cfg.Store.HNSW.EfSearch),
			search.WithLogger(c.Logger.With().Str("component", "search").Logger()),
		),
		metrics:    c.Metrics,
		logger:     c.Logger,
		opTimeout:  opTimeout,
		collection: manager.Name(),
	}, nil
}

// SourceKey canonicalizes raw when it is an http(s) URL and returns it
// trimmed otherwise.
func SourceKey(raw string) string {
	if key, err := fetch.CanonicalURL(raw); err == nil {
		return key
	}
	return strings.TrimSpace(raw)
}

// IndexURL fetches a page, extracts its text and indexes it under the page's
// canonical URL.
func (s *Service) IndexURL(ctx context.Context, rawURL string) (res IndexResult, err error) {
	done := monitor.Track(s.metrics, "index_url")
	defer func() { done(err, res.TotalChunks, res.TotalTokens) }()

	key, err := fetch.CanonicalURL(rawURL)
	if err != nil {
		return IndexResult{}, core.NewOpError("index_url", rawURL, err)
	}

	text, err := s.fetcher.FetchText(ctx, key)
	if err != nil {
		return IndexResult{}, err
	}

	stats, err := s.indexer.IndexSource(ctx, key, text)
	if err != nil {
		return IndexResult{}, err
	}
	return IndexResult{URL: key, TotalChunks: stats.TotalChunks, TotalTokens: stats.TotalTokens}, nil
}

// IndexSource indexes already extracted text under sourceKey.
func (s *Service) IndexSource(ctx context.Context, sourceKey, fullText string) (stats indexer.Stats, err error) {
	done := monitor.Track(s.metrics, "index_source")
	defer func() { done(err, stats.TotalChunks, stats.TotalTokens) }()

	return s.indexer.IndexSource(ctx, SourceKey(sourceKey), fullText)
}

// Search runs a semantic query. A URL SourceKey is canonicalized the same way
// IndexURL stores it.
func (s *Service) Search(ctx context.Context, q search.Query) (resp *search.Response, err error) {
	done := monitor.Track(s.metrics, "search")
	defer func() {
		n := 0
		if resp != nil {
			n = resp.TotalMatches
		}
		done(err, n, 0)
	}()

	if q.SourceKey != "" {
		q.SourceKey = SourceKey(q.SourceKey)
	}
	return s.searcher.Search(ctx, q)
}

// DeleteSource removes every chunk stored under sourceKey and returns how
// many were removed.
func (s *Service) DeleteSource(ctx context.Context, sourceKey string) (n int, err error) {
	done := monitor.Track(s.metrics, "delete_source")
	defer func() { done(err, n, 0) }()

	return s.indexer.DeleteSource(ctx, SourceKey(sourceKey))
}

// Health reports whether the collection is reachable and how many chunks it
// holds. A store failure makes the report unhealthy; it is never an error.
func (s *Service) Health(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	report := HealthReport{
		Status:          StatusHealthy,
		VectorDB:        VectorDBConnected,
		CollectionStats: core.CollectionStats{CollectionName: s.collection},
		EmbeddingModel:  s.embedder.Model(),
		Dimension:       s.embedder.Dimension(),
		Operations:      s.metrics.Snapshot().Operations,
	}

	count, err := s.count(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Str("collection", s.collection).Msg("health check failed")
		report.Status = StatusUnhealthy
		report.VectorDB = VectorDBDisconnected
		report.Error = err.Error()
		return report
	}
	report.CollectionStats.TotalEntities = count
	return report
}

func (s *Service) count(ctx context.Context) (int64, error) {
	coll, err := s.manager.Ensure(ctx)
	if err != nil {
		return 0, err
	}
	n, err := coll.Count(ctx)
	if err != nil {
		return 0, core.NewOpError("health.count", s.collection, core.Wrap(core.ErrStore, err))
	}
	return n, nil
}

// Metrics returns the per-operation counters recorded so far.
func (s *Service) Metrics() monitor.Snapshot {
	return s.metrics.Snapshot()
}

func (s *Service) Close() error {
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("close vector store: %w", err)
	}
	return nil
}

// IsClientError reports whether err was caused by the caller's input or by
// the page being fetched, as opposed to a failure of this service.
func IsClientError(err error) bool {
	return errors.Is(err, core.ErrInvalidInput) || errors.Is(err, core.ErrUpstreamFetch)
}
