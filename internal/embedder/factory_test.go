package embedder

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{EnvProvider, EnvModel, EnvBaseURL, EnvDimension, EnvJinaAPIKey, EnvOpenAIAPIKey} {
		t.Setenv(key, "")
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		env      map[string]string
		expected string
	}{
		{"explicit provider", Config{Provider: "OpenAI"}, nil, ProviderOpenAI},
		{"base url implies openai", Config{BaseURL: "http://localhost:11434/v1"}, nil, ProviderOpenAI},
		{"bare key implies jina", Config{APIKey: "k"}, nil, ProviderJina},
		{"jina key in env", Config{}, map[string]string{EnvJinaAPIKey: "j"}, ProviderJina},
		{"openai key in env", Config{}, map[string]string{EnvOpenAIAPIKey: "o"}, ProviderOpenAI},
		{"jina wins over openai", Config{}, map[string]string{EnvJinaAPIKey: "j", EnvOpenAIAPIKey: "o"}, ProviderJina},
		{"nothing configured", Config{}, nil, ProviderLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Equal(t, tt.expected, DetectProvider(tt.cfg))
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBaseURL, "http://localhost:11434/v1")
	t.Setenv(EnvModel, "nomic-embed-text")
	t.Setenv(EnvDimension, "768")
	t.Setenv(EnvOpenAIAPIKey, "ollama")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, cfg.Provider)
	assert.Equal(t, "ollama", cfg.APIKey)
	assert.Equal(t, "nomic-embed-text", cfg.Model)
	assert.Equal(t, 768, cfg.Dimension)
	assert.Equal(t, defaultCacheSize, cfg.CacheSize)
}

func TestConfigFromEnv_InvalidDimension(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDimension, "wide")

	_, err := ConfigFromEnv()
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewFromEnv(t *testing.T) {
	t.Run("local fallback", func(t *testing.T) {
		clearEnv(t)

		emb, err := NewFromEnv()
		require.NoError(t, err)
		defer func() { _ = emb.Close() }()
		assert.Equal(t, ProviderLocal, emb.Provider())
		assert.Equal(t, LocalDimension, emb.Dimension())
	})

	t.Run("explicit jina without key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvProvider, ProviderJina)

		_, err := NewFromEnv()
		assert.ErrorIs(t, err, ErrNoProviderEnabled)
	})

	t.Run("jina from key", func(t *testing.T) {
		clearEnv(t)
		t.Setenv(EnvJinaAPIKey, "jina-key")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderJina, emb.Provider())
		assert.Equal(t, JinaDimension, emb.Dimension())
	})
}

func TestNew(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name     string
		cfg      Config
		provider string
		wantErr  error
	}{
		{"local", Config{Provider: "local", Dimension: 16}, ProviderLocal, nil},
		{"jina", Config{Provider: "jina", APIKey: "k"}, ProviderJina, nil},
		{"openai", Config{Provider: "openai", APIKey: "k", CacheSize: 10}, ProviderOpenAI, nil},
		{"auto", Config{}, ProviderLocal, nil},
		{"unknown", Config{Provider: "word2vec"}, "", ErrUnsupportedModel},
		{"openai without key", Config{Provider: "openai"}, "", ErrNoProviderEnabled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb, err := New(tt.cfg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, emb.Provider())
		})
	}
}

func TestNew_KeyFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIAPIKey, "from-env")

	emb, err := New(Config{Provider: ProviderOpenAI})
	require.NoError(t, err)
	assert.Equal(t, ProviderOpenAI, emb.Provider())
}
