package embed

import (
	"context"
	"fmt"
	"time"

	"github.com/hubenschmidt/go-pagesearch/core"
)

const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// Config selects and configures an embedding provider.
type Config struct {
	Provider   string
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	Timeout    time.Duration
}

// New builds a Gateway for the configured provider. The vector dimension is
// taken from cfg.Dimensions, then from the known-model table, then by probing.
func New(ctx context.Context, cfg Config, opts ...Option) (*Gateway, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: embedding model is required", core.ErrConfiguration)
	}

	native, known := KnownDimension(cfg.Model)
	dimension := cfg.Dimensions
	if dimension == 0 && known {
		dimension = native
	}

	var p Provider
	switch cfg.Provider {
	case ProviderOpenAI, "":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("%w: OpenAI embeddings need an API key", core.ErrConfiguration)
		}
		requested := 0
		if cfg.Dimensions > 0 && (!known || cfg.Dimensions != native) {
			requested = cfg.Dimensions
		}
		p = NewOpenAIClient(cfg.APIKey, cfg.BaseURL, requested, cfg.Timeout)
	case ProviderOllama:
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		p = NewOllamaClient(baseURL, cfg.Timeout)
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", core.ErrConfiguration, cfg.Provider)
	}

	return NewGateway(ctx, p, cfg.Model, dimension, opts...)
}
