package embedder

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func BenchmarkComputeHash(b *testing.B) {
	text := strings.Repeat("ہائی کورٹ میں آئینی درخواست ", 40)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ComputeHash(text)
	}
}

func BenchmarkCache(b *testing.B) {
	cache := NewCache(1000)
	emb := &Embedding{Vector: make([]float32, LocalDimension), Dimension: LocalDimension}

	b.Run("Set", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			cache.Set(fmt.Sprintf("key-%d", i%1000), emb)
		}
	})

	b.Run("Get", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = cache.Get(fmt.Sprintf("key-%d", i%1000))
		}
	})
}

func BenchmarkLocalProvider(b *testing.B) {
	provider, err := NewLocalProvider(0, nil)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	b.Run("Single", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = provider.GenerateEmbedding(ctx, EmbeddingRequest{Text: fmt.Sprintf("وارنٹ گرفتاری %d", i)})
		}
	})

	texts := make([]string, DefaultBatchSize)
	for i := range texts {
		texts[i] = fmt.Sprintf("ضمانت کی درخواست نمبر %d", i)
	}
	b.Run("Batch", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			_, _ = provider.GenerateBatch(ctx, BatchEmbeddingRequest{Texts: texts})
		}
	})
}

func BenchmarkNormalizeVector(b *testing.B) {
	v := make([]float32, OpenAIDimension)
	for i := range v {
		v[i] = float32(i%17) - 8
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = NormalizeVector(v)
	}
}

func BenchmarkConcurrentCache(b *testing.B) {
	cache := NewCache(1000)
	emb := &Embedding{Vector: make([]float32, 64), Dimension: 64}
	for i := 0; i < 1000; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), emb)
	}

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = cache.Get(fmt.Sprintf("key-%d", i%1000))
			i++
		}
	})
}
