// Package config assembles runtime configuration from defaults, an optional
// .env file and HYBRIDRAG_ environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dshills/hybridrag/internal/chunker"
	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/expander"
	"github.com/dshills/hybridrag/internal/fusion"
	"github.com/dshills/hybridrag/internal/searcher"
)

// Environment variables. Embedding provider settings use the embedder
// package's variables (HYBRIDRAG_EMBEDDING_*, JINA_API_KEY, OPENAI_API_KEY).
const (
	EnvDBPath          = "HYBRIDRAG_DB_PATH"
	EnvLogLevel        = "HYBRIDRAG_LOG_LEVEL"
	EnvEmbeddingAPIKey = "HYBRIDRAG_EMBEDDING_API_KEY"
	EnvTopK            = "HYBRIDRAG_TOP_K"
	EnvLexicalLimit    = "HYBRIDRAG_LEXICAL_LIMIT"
	EnvCacheSize       = "HYBRIDRAG_CACHE_SIZE"
	EnvCacheTTL        = "HYBRIDRAG_CACHE_TTL"
	EnvBonusWeight     = "HYBRIDRAG_BONUS_WEIGHT"
	EnvSynonyms        = "HYBRIDRAG_SYNONYMS"
	EnvBonusKeywords   = "HYBRIDRAG_BONUS_KEYWORDS"
	EnvIngestWorkers   = "HYBRIDRAG_INGEST_WORKERS"
	EnvBatchSize       = "HYBRIDRAG_BATCH_SIZE"
	EnvChunkTokens     = "HYBRIDRAG_CHUNK_TOKENS"
)

// ListSeparator splits list-valued variables. Commas appear inside legal
// phrases, so a pipe is used instead.
const ListSeparator = "|"

// DefaultDBPath is the database location when none is configured
const DefaultDBPath = "~/.hybridrag/hybridrag.db"

// ErrInvalidConfig is returned by Validate and by Load on unparsable values
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete runtime configuration
type Config struct {
	DBPath    string
	LogLevel  string
	Embedding embedder.Config
	Search    SearchConfig
	Ingest    IngestConfig
}

// SearchConfig tunes retrieval
type SearchConfig struct {
	K             int
	LexicalLimit  int
	CacheSize     int // 0 disables the result cache
	CacheTTL      time.Duration
	BonusWeight   float64
	Synonyms      []string
	BonusKeywords []string
}

// IngestConfig tunes corpus ingestion
type IngestConfig struct {
	Workers   int // 0 selects runtime.NumCPU()
	BatchSize int
	MaxTokens int
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		DBPath:   DefaultDBPath,
		LogLevel: "info",
		Embedding: embedder.Config{
			CacheSize: 10000,
		},
		Search: SearchConfig{
			K:             searcher.DefaultK,
			LexicalLimit:  searcher.DefaultLexicalLimit,
			CacheSize:     1000,
			CacheTTL:      time.Hour,
			BonusWeight:   fusion.DefaultBonusWeight,
			Synonyms:      append([]string(nil), expander.DefaultSynonyms...),
			BonusKeywords: append([]string(nil), fusion.DefaultBonusKeywords...),
		},
		Ingest: IngestConfig{
			BatchSize: embedder.DefaultBatchSize,
			MaxTokens: chunker.MaxTokensPerChunk,
		},
	}
}

// Load reads envFiles (a missing file is not an error; with none given,
// ./.env is tried), applies the environment over Default and validates the
// result. Variables already set in the process take precedence over .env.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = strings.ToLower(v)
	}

	emb, err := embedder.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	emb.CacheSize = c.Embedding.CacheSize
	if v := os.Getenv(EnvEmbeddingAPIKey); v != "" {
		emb.APIKey = v
	}
	c.Embedding = emb

	ints := []struct {
		env string
		dst *int
	}{
		{EnvTopK, &c.Search.K},
		{EnvLexicalLimit, &c.Search.LexicalLimit},
		{EnvCacheSize, &c.Search.CacheSize},
		{EnvIngestWorkers, &c.Ingest.Workers},
		{EnvBatchSize, &c.Ingest.BatchSize},
		{EnvChunkTokens, &c.Ingest.MaxTokens},
	}
	for _, field := range ints {
		if err := envInt(field.env, field.dst); err != nil {
			return err
		}
	}

	if v := os.Getenv(EnvCacheTTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvCacheTTL, v)
		}
		c.Search.CacheTTL = ttl
	}
	if v := os.Getenv(EnvBonusWeight); v != "" {
		w, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, EnvBonusWeight, v)
		}
		c.Search.BonusWeight = w
	}

	// Set but empty disables the list
	if v, ok := os.LookupEnv(EnvSynonyms); ok {
		c.Search.Synonyms = SplitList(v)
	}
	if v, ok := os.LookupEnv(EnvBonusKeywords); ok {
		c.Search.BonusKeywords = SplitList(v)
	}
	return nil
}

func envInt(name string, dst *int) error {
	v := os.Getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%w: %s=%q", ErrInvalidConfig, name, v)
	}
	*dst = n
	return nil
}

// SplitList splits a pipe-separated value, dropping blank entries. The
// result is never nil.
func SplitList(v string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(v, ListSeparator) {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DBPath) == "" {
		return fmt.Errorf("%w: database path is empty", ErrInvalidConfig)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch c.Embedding.Provider {
	case "", embedder.ProviderJina, embedder.ProviderOpenAI, embedder.ProviderLocal:
	default:
		return fmt.Errorf("%w: embedding provider %q", ErrInvalidConfig, c.Embedding.Provider)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("%w: embedding dimension %d", ErrInvalidConfig, c.Embedding.Dimension)
	}
	if c.Search.K <= 0 || c.Search.K > searcher.MaxK {
		return fmt.Errorf("%w: top-k must be in 1..%d, got %d", ErrInvalidConfig, searcher.MaxK, c.Search.K)
	}
	if c.Search.LexicalLimit <= 0 {
		return fmt.Errorf("%w: lexical limit must be positive, got %d", ErrInvalidConfig, c.Search.LexicalLimit)
	}
	if c.Search.CacheSize < 0 {
		return fmt.Errorf("%w: cache size %d", ErrInvalidConfig, c.Search.CacheSize)
	}
	if c.Search.CacheTTL < 0 {
		return fmt.Errorf("%w: cache ttl %s", ErrInvalidConfig, c.Search.CacheTTL)
	}
	if c.Search.BonusWeight < 0 {
		return fmt.Errorf("%w: bonus weight %v", ErrInvalidConfig, c.Search.BonusWeight)
	}
	if c.Ingest.Workers < 0 {
		return fmt.Errorf("%w: ingest workers %d", ErrInvalidConfig, c.Ingest.Workers)
	}
	if c.Ingest.BatchSize <= 0 || c.Ingest.BatchSize > embedder.MaxBatchSize {
		return fmt.Errorf("%w: batch size must be in 1..%d, got %d", ErrInvalidConfig, embedder.MaxBatchSize, c.Ingest.BatchSize)
	}
	if c.Ingest.MaxTokens <= 0 {
		return fmt.Errorf("%w: chunk tokens %d", ErrInvalidConfig, c.Ingest.MaxTokens)
	}
	return nil
}

// ResolvedDBPath expands a leading ~ to the user's home directory
func (c *Config) ResolvedDBPath() (string, error) {
	if c.DBPath == ":memory:" {
		return c.DBPath, nil
	}
	if c.DBPath == "~" || strings.HasPrefix(c.DBPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(c.DBPath, "~")), nil
	}
	return c.DBPath, nil
}
