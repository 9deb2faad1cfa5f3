package embedder

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by NewFromEnv
const (
	EnvProvider     = "HYBRIDRAG_EMBEDDING_PROVIDER"
	EnvModel        = "HYBRIDRAG_EMBEDDING_MODEL"
	EnvBaseURL      = "HYBRIDRAG_EMBEDDING_BASE_URL"
	EnvDimension    = "HYBRIDRAG_EMBEDDING_DIMENSION"
	EnvJinaAPIKey   = "JINA_API_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string // jina, openai or local; empty auto-detects
	APIKey    string
	Model     string // Empty selects the provider default
	BaseURL   string // Empty selects the provider default
	Dimension int    // 0 selects the model's native width
	CacheSize int    // 0 disables the embedding cache
	Timeout   time.Duration
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		provider = DetectProvider(cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = APIKeyFromEnv(provider)
	}

	switch provider {
	case ProviderJina:
		return NewJinaProvider(cfg, cache)
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg, cache)
	case ProviderLocal:
		return NewLocalProvider(cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// NewFromEnv creates an embedder from environment variables.
// Priority:
// 1. HYBRIDRAG_EMBEDDING_PROVIDER (jina, openai, local)
// 2. JINA_API_KEY, then OPENAI_API_KEY or HYBRIDRAG_EMBEDDING_BASE_URL
// 3. The local provider
func NewFromEnv() (Embedder, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return New(cfg)
}

// ConfigFromEnv assembles a Config from the environment
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Provider:  strings.ToLower(os.Getenv(EnvProvider)),
		Model:     os.Getenv(EnvModel),
		BaseURL:   os.Getenv(EnvBaseURL),
		CacheSize: defaultCacheSize,
	}

	if raw := os.Getenv(EnvDimension); raw != "" {
		dim, err := strconv.Atoi(raw)
		if err != nil || dim < 0 {
			return Config{}, fmt.Errorf("%w: %s=%q", ErrInvalidInput, EnvDimension, raw)
		}
		cfg.Dimension = dim
	}

	if cfg.Provider == "" {
		cfg.Provider = detect(os.Getenv(EnvJinaAPIKey), os.Getenv(EnvOpenAIAPIKey), cfg.BaseURL)
	}
	cfg.APIKey = APIKeyFromEnv(cfg.Provider)

	return cfg, nil
}

// APIKeyFromEnv returns the API key variable matching a provider
func APIKeyFromEnv(provider string) string {
	switch provider {
	case ProviderJina:
		return os.Getenv(EnvJinaAPIKey)
	case ProviderOpenAI:
		return os.Getenv(EnvOpenAIAPIKey)
	default:
		return ""
	}
}

// DetectProvider picks a provider for a config without one. A configured key
// is attributed to OpenAI when a base URL is present, to Jina otherwise;
// without a key the environment decides.
func DetectProvider(cfg Config) string {
	if cfg.Provider != "" {
		return strings.ToLower(cfg.Provider)
	}
	if cfg.BaseURL != "" {
		return ProviderOpenAI
	}
	if cfg.APIKey != "" {
		return ProviderJina
	}
	return detect(os.Getenv(EnvJinaAPIKey), os.Getenv(EnvOpenAIAPIKey), "")
}

func detect(jinaKey, openaiKey, baseURL string) string {
	switch {
	case jinaKey != "":
		return ProviderJina
	case openaiKey != "" || baseURL != "":
		return ProviderOpenAI
	default:
		return ProviderLocal
	}
}
