package config_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hubenschmidt/go-pagesearch/config"
	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.Equal(t, 500, cfg.Chunking.MaxTokens)
	assert.Equal(t, "cl100k_base", cfg.Tokenizer.Encoding)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "html_chunks", cfg.Store.Collection)
	assert.Equal(t, "l2", cfg.Store.Metric)
	assert.Equal(t, 10*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, int64(10<<20), cfg.Fetch.MaxBytes)
	assert.Equal(t, 10, cfg.Search.DefaultLimit)
	assert.Equal(t, 100, cfg.Search.MaxLimit)
	assert.Equal(t, "replace", cfg.Indexing.Reindex)
	assert.Equal(t, "data/runs.db", cfg.Ledger.DSN)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagesearch.yaml")
	yaml := `
server:
  addr: ":9000"
chunking:
  max_tokens: 256
embedding:
  provider: ollama
  model: nomic-embed-text
store:
  driver: sqlite
  dsn: /tmp/v.db
  metric: cosine
  hnsw:
    m: 32
  timeout: 3s
indexing:
  reindex: append
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	t.Setenv("PAGESEARCH_SEARCH_MAX_LIMIT", "50")
	t.Setenv("PAGESEARCH_STORE_COLLECTION", "docs_chunks")
	t.Setenv("OLLAMA_URL", "http://ollama:11434")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 256, cfg.Chunking.MaxTokens)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, "http://ollama:11434", cfg.Embedding.BaseURL)
	assert.Equal(t, 50, cfg.Search.MaxLimit)
	assert.Equal(t, 3*time.Second, cfg.Store.Timeout)
	assert.Equal(t, "append", cfg.Indexing.Reindex)

	schema := cfg.Schema(768)
	assert.Equal(t, vector.Schema{
		Name:      "docs_chunks",
		Dimension: 768,
		Metric:    vector.MetricCosine,
		Index:     vector.IndexParams{Type: "hnsw", M: 32, EfConstruction: 64, EfSearch: 40},
	}, schema)

	ec := cfg.EmbedConfig()
	assert.Equal(t, "nomic-embed-text", ec.Model)
	assert.Equal(t, "http://ollama:11434", ec.BaseURL)
}

func TestLoadAPIKeyFromOpenAIEnv(t *testing.T) {
	t.Setenv("PAGESEARCH_EMBEDDING_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		target error
	}{
		{"zero max tokens", func(c *config.Config) { c.Chunking.MaxTokens = 0 }, core.ErrInvalidMaxTokens},
		{"negative max tokens", func(c *config.Config) { c.Chunking.MaxTokens = -5 }, core.ErrInvalidMaxTokens},
		{"unknown provider", func(c *config.Config) { c.Embedding.Provider = "cohere" }, core.ErrConfiguration},
		{"missing model", func(c *config.Config) { c.Embedding.Model = "" }, core.ErrConfiguration},
		{"no workers", func(c *config.Config) { c.Embedding.Workers = 0 }, core.ErrConfiguration},
		{"unknown driver", func(c *config.Config) { c.Store.Driver = "milvus" }, core.ErrConfiguration},
		{"bad collection name", func(c *config.Config) { c.Store.Collection = "Bad-Name" }, core.ErrConfiguration},
		{"reserved collection name", func(c *config.Config) { c.Store.Collection = "vector_collections" }, core.ErrConfiguration},
		{"bad metric", func(c *config.Config) { c.Store.Metric = "ip" }, core.ErrConfiguration},
		{"limits inverted", func(c *config.Config) { c.Search.MaxLimit = 5 }, core.ErrConfiguration},
		{"unknown reindex policy", func(c *config.Config) { c.Indexing.Reindex = "merge" }, core.ErrConfiguration},
		{"bad log level", func(c *config.Config) { c.Log.Level = "loud" }, core.ErrConfiguration},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, core.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := config.Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.target)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PAGESEARCH_DOTENV_PROBE=from-file\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("PAGESEARCH_DOTENV_PROBE") })

	require.NoError(t, config.LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("PAGESEARCH_DOTENV_PROBE"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := config.NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("op", "index").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "pagesearch", entry["service"])
	assert.Equal(t, "index", entry["op"])
}
