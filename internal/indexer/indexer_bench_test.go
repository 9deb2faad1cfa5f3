package indexer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dshills/hybridrag/internal/chunker"
)

// writeBenchCorpus creates files documents of paragraphs passages each
func writeBenchCorpus(b *testing.B, files, paragraphs int) string {
	b.Helper()
	dir := b.TempDir()
	for f := 0; f < files; f++ {
		parts := make([]string, paragraphs)
		for p := range parts {
			parts[p] = fmt.Sprintf("document %d paragraph %d ضمانت کی درخواست habeas corpus petition", f, p)
		}
		createTestFile(b, dir, filepath.Join("docs", fmt.Sprintf("doc%03d.md", f)), strings.Join(parts, "\n\n"))
	}
	return dir
}

func BenchmarkIndexCorpus(b *testing.B) {
	dir := writeBenchCorpus(b, 20, 25)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		store := setupTestStorage(b)
		idx := New(store, newMockEmbedder(b), WithChunker(chunker.New(chunker.WithMinTokens(0))))
		b.StartTimer()

		stats, err := idx.IndexCorpus(ctx, dir, &Config{Workers: 4})
		if err != nil {
			b.Fatal(err)
		}
		if stats.FilesIndexed != 20 {
			b.Fatalf("indexed %d files", stats.FilesIndexed)
		}
	}
}

// BenchmarkIndexCorpus_Unchanged measures the hash-and-skip path
func BenchmarkIndexCorpus_Unchanged(b *testing.B) {
	dir := writeBenchCorpus(b, 20, 25)
	ctx := context.Background()

	store := setupTestStorage(b)
	idx := New(store, newMockEmbedder(b))
	if _, err := idx.IndexCorpus(ctx, dir, nil); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		stats, err := idx.IndexCorpus(ctx, dir, nil)
		if err != nil {
			b.Fatal(err)
		}
		if stats.FilesSkipped != 20 {
			b.Fatalf("skipped %d files", stats.FilesSkipped)
		}
	}
}
