package searcher

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/storage"
)

const benchDimension = 64

// benchVector derives a deterministic unit vector from text
func benchVector(text string) []float32 {
	hash := sha256.Sum256([]byte(text))
	vector := make([]float32, benchDimension)
	for i := range vector {
		idx := (i * 4) % 32
		val := binary.BigEndian.Uint32(hash[idx : idx+4])
		vector[i] = (float32(val)/float32(1<<32))*2 - 1
	}
	return embedder.NormalizeVector(vector)
}

// setupBenchSearcher loads n passages into an in-memory store
func setupBenchSearcher(b *testing.B, n int, opts ...Option) *Searcher {
	b.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		b.Fatalf("failed to create storage: %v", err)
	}
	b.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	topics := []string{"وارنٹ گرفتاری", "ضمانت کی درخواست", "ہائی کورٹ", "tax appeal", "land dispute"}
	for i := 1; i <= n; i++ {
		text := fmt.Sprintf("passage %d about %s", i, topics[i%len(topics)])
		chunk := &storage.Chunk{ID: int64(i), Text: text, ContentHash: sha256.Sum256([]byte(text))}
		if err := store.InsertChunk(ctx, chunk); err != nil {
			b.Fatalf("failed to insert chunk: %v", err)
		}
		if err := store.UpsertEmbedding(ctx, &storage.Embedding{
			ChunkID:   chunk.ID,
			Vector:    storage.SerializeVector(benchVector(text)),
			Dimension: benchDimension,
			Provider:  "bench",
			Model:     "bench",
		}); err != nil {
			b.Fatalf("failed to insert embedding: %v", err)
		}
	}

	emb := &mockEmbedder{
		generateFunc: func(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
			return &embedder.Embedding{Vector: benchVector(req.Text), Dimension: benchDimension}, nil
		},
	}
	return NewSearcher(store, emb, append([]Option{WithCache(0, 0)}, opts...)...)
}

func BenchmarkSearch(b *testing.B) {
	for _, size := range []int{100, 1000} {
		b.Run(fmt.Sprintf("corpus=%d", size), func(b *testing.B) {
			s := setupBenchSearcher(b, size)
			ctx := context.Background()

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Search(ctx, "illegal detention", DefaultK, DefaultLexicalLimit); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkSearch_Cached(b *testing.B) {
	s := setupBenchSearcher(b, 500, WithCache(100, 0))
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Search(ctx, "ضمانت", DefaultK, DefaultLexicalLimit); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkComputeQueryHash(b *testing.B) {
	req := SearchRequest{Query: "غیر قانونی حراست کے خلاف درخواست", K: 4, LexicalLimit: 120}
	for i := 0; i < b.N; i++ {
		_ = computeQueryHash(req)
	}
}
