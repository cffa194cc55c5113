// Package embed turns text into fixed-dimension vectors through a remote
// embedding model.
package embed

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/rs/zerolog"
)

const probeText = "dimension probe"

// Embedder maps text to a vector of length Dimension().
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Model() string
}

// Provider is a raw embedding backend. It returns the model's vector as is.
type Provider interface {
	CreateEmbedding(ctx context.Context, model, input string) ([]float32, error)
}

// Gateway wraps a Provider with input validation, dimension checks and L2
// normalization. Empty or whitespace-only input is rejected with
// core.ErrEmptyInput rather than embedded.
type Gateway struct {
	provider  Provider
	model     string
	dimension int
	logger    zerolog.Logger
}

type Option func(*Gateway)

func WithLogger(l zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = l
	}
}

// NewGateway fixes the vector dimension at construction. When dimension is 0
// the model is probed once to learn it.
func NewGateway(ctx context.Context, p Provider, model string, dimension int, opts ...Option) (*Gateway, error) {
	g := &Gateway{
		provider:  p,
		model:     model,
		dimension: dimension,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	if g.dimension > 0 {
		return g, nil
	}

	vec, err := p.CreateEmbedding(ctx, model, probeText)
	if err != nil {
		return nil, core.WithContext(core.NewOpError("embed.probe", "", core.Wrap(core.ErrEmbeddingUnavailable, err)), "model", model)
	}
	if len(vec) == 0 {
		return nil, core.WithContext(core.NewOpError("embed.probe", "", core.ErrEmbeddingUnavailable), "model", model)
	}
	g.dimension = len(vec)
	g.logger.Info().Str("model", model).Int("dimension", g.dimension).Msg("probed embedding dimension")
	return g, nil
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewOpError("embed", "", core.ErrEmptyInput)
	}

	vec, err := g.provider.CreateEmbedding(ctx, g.model, text)
	if err != nil {
		return nil, core.WithContext(core.NewOpError("embed", "", core.Wrap(core.ErrEmbeddingUnavailable, err)), "model", g.model)
	}
	if len(vec) != g.dimension {
		err := fmt.Errorf("model returned %d dimensions, want %d", len(vec), g.dimension)
		return nil, core.WithContext(core.NewOpError("embed", "", core.Wrap(core.ErrEmbeddingUnavailable, err)), "model", g.model)
	}
	return Normalize(vec), nil
}

func (g *Gateway) Dimension() int {
	return g.dimension
}

func (g *Gateway) Model() string {
	return g.model
}

// Normalize returns v scaled to unit length. A zero vector is returned unchanged.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)

	if norm == 0 {
		return v
	}

	result := make([]float32, len(v))
	for i, x := range v {
		result[i] = float32(float64(x) / norm)
	}
	return result
}

var _ Embedder = (*Gateway)(nil)
