// Package collection makes sure the chunk collection exists before the
// pipelines use it.
package collection

import (
	"context"
	"fmt"
	"sync"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/vector"
	"github.com/rs/zerolog"
)

// DefaultName is the collection used when none is configured.
const DefaultName = "html_chunks"

// Provider yields the collection the pipelines read and write.
type Provider interface {
	Ensure(ctx context.Context) (vector.Collection, error)
}

// Manager lazily creates or attaches to one collection. The first successful
// Ensure caches the handle; a failed attempt is retried on the next call.
type Manager struct {
	store  vector.Store
	schema vector.Schema
	logger zerolog.Logger

	mu     sync.Mutex
	handle vector.Collection
}

type Option func(*Manager)

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

func NewManager(store vector.Store, schema vector.Schema, opts ...Option) (*Manager, error) {
	if schema.Name == "" {
		schema.Name = DefaultName
	}
	if schema.Metric == "" {
		schema.Metric = vector.MetricL2
	}
	if schema.Index.Type == "" {
		schema.Index = vector.DefaultIndexParams()
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{store: store, schema: schema, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Name returns the managed collection's name.
func (m *Manager) Name() string {
	return m.schema.Name
}

// Ensure returns a handle to the collection, creating it with the manager's
// schema if it does not exist. An existing collection is attached to as is;
// if its dimension or metric differ from the schema, Ensure fails with
// core.ErrSchemaMismatch.
func (m *Manager) Ensure(ctx context.Context) (vector.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.handle != nil {
		return m.handle, nil
	}

	exists, err := m.store.HasCollection(ctx, m.schema.Name)
	if err != nil {
		return nil, core.NewOpError("collection.ensure", m.schema.Name, core.Wrap(core.ErrStore, err))
	}

	if !exists {
		if err := m.store.CreateCollection(ctx, m.schema); err != nil {
			return nil, core.NewOpError("collection.create", m.schema.Name, core.Wrap(core.ErrStore, err))
		}
		m.logger.Info().
			Str("collection", m.schema.Name).
			Int("dimension", m.schema.Dimension).
			Str("metric", string(m.schema.Metric)).
			Msg("created collection")
	}

	c, err := m.store.Collection(ctx, m.schema.Name)
	if err != nil {
		return nil, core.NewOpError("collection.attach", m.schema.Name, core.Wrap(core.ErrStore, err))
	}

	got := c.Schema()
	if got.Dimension != m.schema.Dimension || got.Metric != m.schema.Metric {
		err := fmt.Errorf("%w: %s has dimension %d metric %s, want dimension %d metric %s",
			core.ErrSchemaMismatch, got.Name, got.Dimension, got.Metric, m.schema.Dimension, m.schema.Metric)
		return nil, core.NewOpError("collection.attach", m.schema.Name, err)
	}

	if exists {
		m.logger.Info().Str("collection", m.schema.Name).Msg("attached to collection")
	}
	m.handle = c
	return c, nil
}

var _ Provider = (*Manager)(nil)
