package embed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

var knownDimensions = map[string]int{
	"text-embedding-3-small": 1536,
	"text-embedding-3-large": 3072,
	"text-embedding-ada-002": 1536,
	"nomic-embed-text":       768,
	"all-minilm":             384,
	"mxbai-embed-large":      1024,
}

// KnownDimension reports the native dimension of well-known embedding models.
func KnownDimension(model string) (int, bool) {
	d, ok := knownDimensions[model]
	return d, ok
}

// OpenAIClient calls an OpenAI-compatible /embeddings endpoint.
type OpenAIClient struct {
	client     *openai.Client
	dimensions int
}

// NewOpenAIClient creates a client. baseURL overrides the API root for
// compatible servers; dimensions, when non-zero, asks the model to shorten
// its vectors.
func NewOpenAIClient(apiKey, baseURL string, dimensions int, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(cfg),
		dimensions: dimensions,
	}
}

func (c *OpenAIClient) CreateEmbedding(ctx context.Context, model, input string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      []string{input},
		Model:      openai.EmbeddingModel(model),
		Dimensions: c.dimensions,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	raw := resp.Data[0].Embedding
	vec := make([]float32, len(raw))
	for i := range raw {
		vec[i] = float32(raw[i])
	}
	return vec, nil
}
