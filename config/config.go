// Package config loads service settings from defaults, an optional YAML file,
// .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hubenschmidt/go-pagesearch/chunker"
	"github.com/hubenschmidt/go-pagesearch/collection"
	"github.com/hubenschmidt/go-pagesearch/core"
	"github.com/hubenschmidt/go-pagesearch/embed"
	"github.com/hubenschmidt/go-pagesearch/indexer"
	"github.com/hubenschmidt/go-pagesearch/search"
	"github.com/hubenschmidt/go-pagesearch/tokenizer"
	"github.com/hubenschmidt/go-pagesearch/vector"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PAGESEARCH_STORE_DSN.
const EnvPrefix = "PAGESEARCH"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Tokenizer TokenizerConfig `mapstructure:"tokenizer"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Store     StoreConfig     `mapstructure:"store"`
	Search    SearchConfig    `mapstructure:"search"`
	Indexing  IndexingConfig  `mapstructure:"indexing"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type TokenizerConfig struct {
	Encoding string `mapstructure:"encoding"`
}

type ChunkingConfig struct {
	MaxTokens int `mapstructure:"max_tokens"`
}

type EmbeddingConfig struct {
	Provider   string        `mapstructure:"provider"`
	Model      string        `mapstructure:"model"`
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	Dimensions int           `mapstructure:"dimensions"`
	Workers    int           `mapstructure:"workers"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Driver     string        `mapstructure:"driver"`
	DSN        string        `mapstructure:"dsn"`
	Collection string        `mapstructure:"collection"`
	Metric     string        `mapstructure:"metric"`
	HNSW       HNSWConfig    `mapstructure:"hnsw"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type HNSWConfig struct {
	M              int `mapstructure:"m"`
	EfConstruction int `mapstructure:"ef_construction"`
	EfSearch       int `mapstructure:"ef_search"`
}

type SearchConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

type IndexingConfig struct {
	Reindex string `mapstructure:"reindex"`
}

type FetchConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
	MaxBytes  int64         `mapstructure:"max_bytes"`
}

type LedgerConfig struct {
	DSN string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "2m")

	v.SetDefault("tokenizer.encoding", tokenizer.DefaultEncoding)
	v.SetDefault("chunking.max_tokens", chunker.DefaultMaxTokens)

	v.SetDefault("embedding.provider", embed.ProviderOpenAI)
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.dimensions", 0)
	v.SetDefault("embedding.workers", embed.DefaultWorkers)
	v.SetDefault("embedding.timeout", "30s")

	v.SetDefault("store.driver", "")
	v.SetDefault("store.dsn", "data/vectors.db")
	v.SetDefault("store.collection", collection.DefaultName)
	v.SetDefault("store.metric", string(vector.MetricL2))
	idx := vector.DefaultIndexParams()
	v.SetDefault("store.hnsw.m", idx.M)
	v.SetDefault("store.hnsw.ef_construction", idx.EfConstruction)
	v.SetDefault("store.hnsw.ef_search", idx.EfSearch)
	v.SetDefault("store.timeout", "10s")

	v.SetDefault("search.default_limit", search.DefaultLimit)
	v.SetDefault("search.max_limit", search.MaxLimit)

	v.SetDefault("indexing.reindex", string(indexer.PolicyReplace))

	v.SetDefault("fetch.timeout", "10s")
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("fetch.max_bytes", 10<<20)

	v.SetDefault("ledger.dsn", "data/runs.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration. An explicit path must exist; without one,
// pagesearch.yaml is looked up in the working directory and /etc/pagesearch
// and skipped when absent. Environment variables override the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("embedding.api_key", EnvPrefix+"_EMBEDDING_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("ollama_url", "OLLAMA_URL")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read config file: %w", core.ErrConfiguration, err)
		}
	} else {
		v.SetConfigName("pagesearch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/pagesearch")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("%w: read config file: %w", core.ErrConfiguration, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %w", core.ErrConfiguration, err)
	}

	if cfg.Embedding.Provider == embed.ProviderOllama && cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = v.GetString("ollama_url")
	}
	return &cfg, nil
}

// LoadDotEnv loads the given .env files (default ".env") into the process
// environment without overriding variables already set. Missing files are
// ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: load %s: %w", core.ErrConfiguration, f, err)
		}
	}
	return nil
}

// Validate reports the first invalid setting as a configuration error.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return core.WithContext(core.NewOpError("config", "chunking.max_tokens", core.ErrInvalidMaxTokens), "max_tokens", c.Chunking.MaxTokens)
	}
	if c.Tokenizer.Encoding == "" {
		return fmt.Errorf("%w: tokenizer.encoding is required", core.ErrConfiguration)
	}

	switch c.Embedding.Provider {
	case embed.ProviderOpenAI, embed.ProviderOllama:
	default:
		return fmt.Errorf("%w: unknown embedding.provider %q", core.ErrConfiguration, c.Embedding.Provider)
	}
	if c.Embedding.Model == "" {
		return fmt.Errorf("%w: embedding.model is required", core.ErrConfiguration)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("%w: embedding.dimensions must not be negative", core.ErrConfiguration)
	}
	if c.Embedding.Workers <= 0 {
		return fmt.Errorf("%w: embedding.workers must be positive", core.ErrConfiguration)
	}

	switch c.Store.Driver {
	case "", vector.DriverPostgres, vector.DriverSQLite, vector.DriverMemory:
	default:
		return fmt.Errorf("%w: unknown store.driver %q", core.ErrConfiguration, c.Store.Driver)
	}
	schema := c.Schema(1)
	if err := schema.Validate(); err != nil {
		return err
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("%w: store.timeout must be positive", core.ErrConfiguration)
	}

	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		return fmt.Errorf("%w: need 0 < search.default_limit <= search.max_limit, got %d and %d",
			core.ErrConfiguration, c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	if _, err := indexer.ParsePolicy(c.Indexing.Reindex); err != nil {
		return err
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %w", core.ErrConfiguration, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("%w: log.format must be json or console, got %q", core.ErrConfiguration, c.Log.Format)
	}
	return nil
}

// EmbedConfig returns the embedding provider settings.
func (c *Config) EmbedConfig() embed.Config {
	return embed.Config{
		Provider:   c.Embedding.Provider,
		Model:      c.Embedding.Model,
		BaseURL:    c.Embedding.BaseURL,
		APIKey:     c.Embedding.APIKey,
		Dimensions: c.Embedding.Dimensions,
		Timeout:    c.Embedding.Timeout,
	}
}

// Schema returns the collection schema for vectors of the given dimension.
func (c *Config) Schema(dimension int) vector.Schema {
	idx := vector.DefaultIndexParams()
	if c.Store.HNSW.M > 0 {
		idx.M = c.Store.HNSW.M
	}
	if c.Store.HNSW.EfConstruction > 0 {
		idx.EfConstruction = c.Store.HNSW.EfConstruction
	}
	if c.Store.HNSW.EfSearch > 0 {
		idx.EfSearch = c.Store.HNSW.EfSearch
	}
	return vector.Schema{
		Name:      c.Store.Collection,
		Dimension: dimension,
		Metric:    vector.Metric(c.Store.Metric),
		Index:     idx,
	}
}
