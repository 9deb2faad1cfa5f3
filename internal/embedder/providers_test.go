package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func vectorNorm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// embeddingsServer answers OpenAI-style /embeddings requests with vectors of
// the form [index+1, 1, 0, ...] in reverse order to exercise index mapping
func embeddingsServer(t *testing.T, status *int32, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if code := atomic.LoadInt32(status); code != http.StatusOK {
			w.WriteHeader(int(code))
			_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		data := make([]map[string]interface{}, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]interface{}{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i + 1), 1, 0, 0},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
}

func TestJinaProvider(t *testing.T) {
	status := int32(http.StatusOK)
	var calls int32
	server := embeddingsServer(t, &status, &calls)
	defer server.Close()

	provider, err := NewJinaProvider(Config{APIKey: "test-key", BaseURL: server.URL, Dimension: 4}, NewCache(10))
	require.NoError(t, err)
	provider.retry = fastRetry()
	defer func() { _ = provider.Close() }()

	t.Run("batch keeps request order and normalizes", func(t *testing.T) {
		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"وارنٹ", "ضمانت"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 2)
		assert.Equal(t, ProviderJina, resp.Provider)

		assert.InDelta(t, 1.0, vectorNorm(resp.Embeddings[0].Vector), 1e-6)
		assert.InDelta(t, 1/math.Sqrt2, resp.Embeddings[0].Vector[0], 1e-6)
		assert.InDelta(t, 2/math.Sqrt(5), resp.Embeddings[1].Vector[0], 1e-6)
		assert.Equal(t, 4, resp.Embeddings[1].Dimension)
	})

	t.Run("single embedding served from cache", func(t *testing.T) {
		before := atomic.LoadInt32(&calls)
		emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "وارنٹ"})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, vectorNorm(emb.Vector), 1e-6)
		assert.Equal(t, before, atomic.LoadInt32(&calls))
	})

	t.Run("server error retried then wrapped", func(t *testing.T) {
		atomic.StoreInt32(&status, http.StatusInternalServerError)
		defer atomic.StoreInt32(&status, http.StatusOK)

		before := atomic.LoadInt32(&calls)
		_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "uncached"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(3), atomic.LoadInt32(&calls)-before)
	})

	t.Run("client error not retried", func(t *testing.T) {
		atomic.StoreInt32(&status, http.StatusUnauthorized)
		defer atomic.StoreInt32(&status, http.StatusOK)

		before := atomic.LoadInt32(&calls)
		_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "also uncached"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls)-before)
	})

	t.Run("empty text rejected", func(t *testing.T) {
		_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: ""})
		assert.ErrorIs(t, err, ErrEmptyText)
	})
}

func TestNewJinaProvider_RequiresKey(t *testing.T) {
	_, err := NewJinaProvider(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestOpenAIProvider(t *testing.T) {
	status := int32(http.StatusOK)
	var calls int32
	server := embeddingsServer(t, &status, &calls)
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Model: "nomic-embed-text"}, nil)
	require.NoError(t, err)
	provider.retry = fastRetry()
	defer func() { _ = provider.Close() }()

	assert.Equal(t, 768, provider.Dimension())
	assert.Equal(t, "nomic-embed-text", provider.Model())
	assert.Equal(t, ProviderOpenAI, provider.Provider())

	t.Run("batch", func(t *testing.T) {
		resp, err := provider.GenerateBatch(context.Background(), BatchEmbeddingRequest{Texts: []string{"a", "b", "c"}})
		require.NoError(t, err)
		require.Len(t, resp.Embeddings, 3)
		for i, emb := range resp.Embeddings {
			assert.InDelta(t, 1.0, vectorNorm(emb.Vector), 1e-6)
			expected := float64(i+1) / math.Sqrt(float64((i+1)*(i+1)+1))
			assert.InDelta(t, expected, emb.Vector[0], 1e-6)
		}
	})

	t.Run("no cache means every call reaches the server", func(t *testing.T) {
		before := atomic.LoadInt32(&calls)
		_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "a"})
		require.NoError(t, err)
		_, err = provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "a"})
		require.NoError(t, err)
		assert.Equal(t, int32(2), atomic.LoadInt32(&calls)-before)
	})

	t.Run("bad request not retried", func(t *testing.T) {
		atomic.StoreInt32(&status, http.StatusBadRequest)
		defer atomic.StoreInt32(&status, http.StatusOK)

		before := atomic.LoadInt32(&calls)
		_, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "x"})
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls)-before)
	})
}

func TestNewOpenAIProvider(t *testing.T) {
	_, err := NewOpenAIProvider(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoProviderEnabled)

	// A base URL alone is enough for keyless local servers
	p, err := NewOpenAIProvider(Config{BaseURL: "http://localhost:11434/v1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, OpenAIDimension, p.Dimension())

	p, err = NewOpenAIProvider(Config{APIKey: "k", Dimension: 256}, nil)
	require.NoError(t, err)
	assert.Equal(t, 256, p.Dimension())
}

func TestLocalProvider(t *testing.T) {
	provider := mustNewLocalProvider(t)
	ctx := context.Background()

	t.Run("deterministic unit vectors", func(t *testing.T) {
		a, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "illegal arrest habeas corpus"})
		require.NoError(t, err)
		b, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "illegal arrest habeas corpus"})
		require.NoError(t, err)

		assert.Equal(t, a.Vector, b.Vector)
		assert.Len(t, a.Vector, LocalDimension)
		assert.InDelta(t, 1.0, vectorNorm(a.Vector), 1e-6)
	})

	t.Run("shared words are closer", func(t *testing.T) {
		resp, err := provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: []string{
			"ضمانت کی درخواست",
			"ضمانت منظور",
			"tax appeal dismissed",
		}})
		require.NoError(t, err)

		dot := func(x, y []float32) float64 {
			var s float64
			for i := range x {
				s += float64(x[i]) * float64(y[i])
			}
			return s
		}
		related := dot(resp.Embeddings[0].Vector, resp.Embeddings[1].Vector)
		unrelated := dot(resp.Embeddings[0].Vector, resp.Embeddings[2].Vector)
		assert.Greater(t, related, unrelated)
	})

	t.Run("punctuation only text still gets a direction", func(t *testing.T) {
		emb, err := provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: "???"})
		require.NoError(t, err)
		assert.InDelta(t, 1.0, vectorNorm(emb.Vector), 1e-6)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := provider.GenerateEmbedding(cancelled, EmbeddingRequest{Text: "x"})
		assert.True(t, errors.Is(err, context.Canceled))
	})
}

func TestLocalProvider_CustomDimension(t *testing.T) {
	provider, err := NewLocalProvider(8, nil)
	require.NoError(t, err)

	emb, err := provider.GenerateEmbedding(context.Background(), EmbeddingRequest{Text: "عدالت"})
	require.NoError(t, err)
	assert.Len(t, emb.Vector, 8)
	assert.Equal(t, 8, provider.Dimension())
	assert.Equal(t, DefaultLocalModel, provider.Model())
}

func TestIsPermanentStatus(t *testing.T) {
	assert.True(t, isPermanentStatus(http.StatusUnauthorized))
	assert.True(t, isPermanentStatus(http.StatusBadRequest))
	assert.False(t, isPermanentStatus(http.StatusTooManyRequests))
	assert.False(t, isPermanentStatus(http.StatusInternalServerError))
}

func TestProviderClose(t *testing.T) {
	jina, err := NewJinaProvider(Config{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.NoError(t, jina.Close())

	openai, err := NewOpenAIProvider(Config{APIKey: "k"}, nil)
	require.NoError(t, err)
	assert.NoError(t, openai.Close())

	assert.NoError(t, mustNewLocalProvider(t).Close())
}

func mustNewLocalProvider(t *testing.T) *LocalProvider {
	t.Helper()
	provider, err := NewLocalProvider(0, NewCache(100))
	require.NoError(t, err)
	return provider
}
