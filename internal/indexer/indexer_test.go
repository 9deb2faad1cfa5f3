package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridrag/internal/chunker"
	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/searcher"
	"github.com/dshills/hybridrag/internal/storage"
)

const testDimension = 16

// mockEmbedder wraps the local provider, records batch sizes and fails any
// batch containing failMarker
type mockEmbedder struct {
	*embedder.LocalProvider
	failMarker string

	mu         sync.Mutex
	batchSizes []int
}

func newMockEmbedder(t testing.TB) *mockEmbedder {
	t.Helper()
	local, err := embedder.NewLocalProvider(testDimension, nil)
	require.NoError(t, err)
	return &mockEmbedder{LocalProvider: local}
}

func (m *mockEmbedder) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	m.mu.Lock()
	m.batchSizes = append(m.batchSizes, len(req.Texts))
	m.mu.Unlock()

	if m.failMarker != "" {
		for _, text := range req.Texts {
			if strings.Contains(text, m.failMarker) {
				return nil, fmt.Errorf("%w: injected failure", embedder.ErrProviderFailed)
			}
		}
	}
	return m.LocalProvider.GenerateBatch(ctx, req)
}

func (m *mockEmbedder) getBatchSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.batchSizes...)
}

func setupTestStorage(t testing.TB) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestFile(t testing.TB, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// newTestIndexer makes one chunk per paragraph so counts are predictable
func newTestIndexer(t testing.TB, opts ...Option) (*Indexer, *storage.SQLiteStorage, *mockEmbedder) {
	t.Helper()
	store := setupTestStorage(t)
	emb := newMockEmbedder(t)
	opts = append([]Option{WithChunker(chunker.New(chunker.WithMinTokens(0)))}, opts...)
	return New(store, emb, opts...), store, emb
}

func TestNew(t *testing.T) {
	store := setupTestStorage(t)
	emb := newMockEmbedder(t)

	idx := New(store, emb)
	assert.NotNil(t, idx.chunker)
	assert.NotNil(t, idx.logger)
	assert.Same(t, emb, idx.embedder)
	assert.False(t, idx.Running())
}

func TestNormalizeConfig(t *testing.T) {
	cfg := normalizeConfig(nil)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, embedder.DefaultBatchSize, cfg.BatchSize)
	assert.False(t, cfg.Force)

	cfg = normalizeConfig(&Config{Workers: -1, BatchSize: 1000, Force: true})
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, embedder.MaxBatchSize, cfg.BatchSize)
	assert.True(t, cfg.Force)
}

func TestDiscoverFiles(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "b.md", "b")
	createTestFile(t, tmpDir, "a.txt", "a")
	createTestFile(t, tmpDir, "nested/c.MD", "c")
	createTestFile(t, tmpDir, "main.go", "package main")
	createTestFile(t, tmpDir, ".git/notes.md", "hidden")

	files, isDir, err := discoverFiles(tmpDir)
	require.NoError(t, err)
	assert.True(t, isDir)
	assert.Equal(t, []string{
		filepath.Join(tmpDir, "a.txt"),
		filepath.Join(tmpDir, "b.md"),
		filepath.Join(tmpDir, "nested", "c.MD"),
	}, files)
}

func TestDiscoverFiles_SingleFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := createTestFile(t, tmpDir, "judgment.txt", "text")

	files, isDir, err := discoverFiles(path)
	require.NoError(t, err)
	assert.False(t, isDir)
	assert.Equal(t, []string{path}, files)

	_, _, err = discoverFiles(createTestFile(t, tmpDir, "image.png", "x"))
	assert.ErrorContains(t, err, "unsupported file type")

	_, _, err = discoverFiles(filepath.Join(tmpDir, "missing"))
	assert.Error(t, err)
}

func TestIndexCorpus_Success(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "arrest.md", "# Arrest\n\nillegal arrest habeas corpus\n\nwarrant issued")
	createTestFile(t, tmpDir, "bail.txt", "bail application granted")

	idx, store, _ := newTestIndexer(t)
	ctx := context.Background()

	stats, err := idx.IndexCorpus(ctx, tmpDir, &Config{Workers: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Zero(t, stats.FilesSkipped)
	assert.Zero(t, stats.FilesFailed)
	assert.Equal(t, 3, stats.ChunksCreated)
	assert.Equal(t, 3, stats.EmbeddingsGenerated)
	assert.Empty(t, stats.ErrorMessages)

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.SourcesCount)
	assert.Equal(t, 3, status.ChunksCount)
	assert.Equal(t, 3, status.EmbeddingsCount)
	assert.Equal(t, testDimension, status.Dimension)

	source, err := store.GetSource(ctx, filepath.Join(tmpDir, "arrest.md"))
	require.NoError(t, err)
	assert.Equal(t, 2, source.ChunkCount)

	chunks, err := store.ListChunksBySource(ctx, source.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "# Arrest\n\nillegal arrest habeas corpus", chunks[0].Text)
	assert.Equal(t, "warrant issued", chunks[1].Text)
	assert.Equal(t, 1, chunks[1].Ordinal)

	result := store.LexicalCandidates(ctx, []string{"habeas"}, 10)
	assert.Equal(t, storage.LexicalOK, result.Status)
	assert.Equal(t, []int64{chunks[0].ID}, result.IDs)
}

func TestIndexCorpus_SingleFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := createTestFile(t, tmpDir, "order.txt", "petition allowed")

	idx, store, _ := newTestIndexer(t)
	stats, err := idx.IndexCorpus(context.Background(), path, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)

	_, err = store.GetSource(context.Background(), path)
	assert.NoError(t, err)
}

func TestIndexCorpus_EmptyDirectory(t *testing.T) {
	idx, _, emb := newTestIndexer(t)

	stats, err := idx.IndexCorpus(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesIndexed)
	assert.Empty(t, emb.getBatchSizes())
}

func TestIndexCorpus_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	path := createTestFile(t, tmpDir, "blank.md", "\n\n")

	idx, store, emb := newTestIndexer(t)
	stats, err := idx.IndexCorpus(context.Background(), tmpDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Zero(t, stats.ChunksCreated)
	assert.Empty(t, emb.getBatchSizes())

	source, err := store.GetSource(context.Background(), path)
	require.NoError(t, err)
	assert.Zero(t, source.ChunkCount)
}

func TestIndexCorpus_Incremental(t *testing.T) {
	tmpDir := t.TempDir()
	changed := createTestFile(t, tmpDir, "changed.md", "first version\n\nsecond paragraph")
	createTestFile(t, tmpDir, "stable.md", "stable text")

	idx, store, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)

	// Unchanged corpus is skipped entirely
	stats, err := idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesIndexed)
	assert.Equal(t, 2, stats.FilesSkipped)

	require.NoError(t, os.WriteFile(changed, []byte("rewritten text"), 0644))

	stats, err = idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesSkipped)
	assert.Equal(t, 1, stats.ChunksCreated)
	assert.Equal(t, 2, stats.ChunksRemoved)

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.ChunksCount)
	assert.Equal(t, 2, status.EmbeddingsCount)

	// Old passages are no longer matched
	result := store.LexicalCandidates(ctx, []string{"version"}, 10)
	assert.Empty(t, result.IDs)
}

func TestIndexCorpus_Force(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "a.md", "alpha")
	createTestFile(t, tmpDir, "b.md", "beta")

	idx, store, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)

	stats, err := idx.IndexCorpus(ctx, tmpDir, &Config{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesIndexed)
	assert.Zero(t, stats.FilesSkipped)
	assert.Equal(t, 2, stats.ChunksRemoved)

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, status.ChunksCount)
}

func TestIndexCorpus_EmbeddingFailure(t *testing.T) {
	tmpDir := t.TempDir()
	bad := createTestFile(t, tmpDir, "bad.md", "this one will FAIL")
	createTestFile(t, tmpDir, "good.md", "this one is fine")

	idx, store, emb := newTestIndexer(t)
	emb.failMarker = "FAIL"
	ctx := context.Background()

	stats, err := idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesIndexed)
	assert.Equal(t, 1, stats.FilesFailed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], bad)

	// Nothing is written for the failed source, so the next run retries it
	_, err = store.GetSource(ctx, bad)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestIndexCorpus_InvalidUTF8(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "binary.txt", string([]byte{0xff, 0xfe}))

	idx, _, _ := newTestIndexer(t)
	stats, err := idx.IndexCorpus(context.Background(), tmpDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesFailed)
}

func TestIndexCorpus_Batching(t *testing.T) {
	tmpDir := t.TempDir()
	paragraphs := make([]string, 7)
	for i := range paragraphs {
		paragraphs[i] = fmt.Sprintf("paragraph number %d", i)
	}
	createTestFile(t, tmpDir, "long.md", strings.Join(paragraphs, "\n\n"))

	idx, _, emb := newTestIndexer(t)
	stats, err := idx.IndexCorpus(context.Background(), tmpDir, &Config{BatchSize: 3})
	require.NoError(t, err)
	assert.Equal(t, 7, stats.ChunksCreated)
	assert.Equal(t, []int{3, 3, 1}, emb.getBatchSizes())
}

func TestIndexCorpus_Prune(t *testing.T) {
	tmpDir := t.TempDir()
	gone := createTestFile(t, tmpDir, "gone.md", "to be deleted\n\nsecond")
	createTestFile(t, tmpDir, "kept.md", "kept")

	idx, store, _ := newTestIndexer(t)
	ctx := context.Background()

	_, err := idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)
	require.NoError(t, os.Remove(gone))

	// Without Prune the stale source survives
	stats, err := idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)
	assert.Zero(t, stats.FilesRemoved)

	stats, err = idx.IndexCorpus(ctx, tmpDir, &Config{Prune: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FilesRemoved)
	assert.Equal(t, 2, stats.ChunksRemoved)

	sources, err := store.ListSources(ctx)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, filepath.Join(tmpDir, "kept.md"), sources[0].Path)

	status, err := store.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.ChunksCount)
}

func TestIndexCorpus_OnChange(t *testing.T) {
	tmpDir := t.TempDir()
	createTestFile(t, tmpDir, "a.md", "alpha")

	calls := 0
	idx, _, _ := newTestIndexer(t, OnChange(func() { calls++ }))
	ctx := context.Background()

	_, err := idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	// A no-op run leaves caches alone
	_, err = idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestIndexCorpus_InProgress(t *testing.T) {
	idx, _, _ := newTestIndexer(t)
	require.True(t, idx.lock.TryAcquire())
	assert.True(t, idx.Running())

	_, err := idx.IndexCorpus(context.Background(), t.TempDir(), nil)
	assert.ErrorIs(t, err, ErrIndexInProgress)

	idx.lock.Release()
	_, err = idx.IndexCorpus(context.Background(), t.TempDir(), nil)
	assert.NoError(t, err)
}

func TestIndexCorpus_ContextCancellation(t *testing.T) {
	tmpDir := t.TempDir()
	for i := 0; i < 5; i++ {
		createTestFile(t, tmpDir, fmt.Sprintf("doc%d.md", i), "some passage text")
	}

	idx, store, _ := newTestIndexer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.IndexCorpus(ctx, tmpDir, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	status, err := store.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Zero(t, status.SourcesCount)
	assert.False(t, idx.Running(), "lock is released on error")
}

func TestIndexCorpus_SearchableAfterIngest(t *testing.T) {
	tmpDir := t.TempDir()
	path := createTestFile(t, tmpDir, "corpus.md", strings.Join([]string{
		"illegal arrest habeas corpus",
		"bail application granted",
		"tax appeal dismissed",
	}, "\n\n"))

	idx, store, emb := newTestIndexer(t)
	s := searcher.NewSearcher(store, emb, searcher.WithCache(10, 0))
	idx.onChange = append(idx.onChange, s.InvalidateCache)
	ctx := context.Background()

	_, err := idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)

	texts, err := s.Search(ctx, "habeas corpus", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"illegal arrest habeas corpus"}, texts)
	assert.Equal(t, 1, s.CacheLen())

	// Re-ingesting purges cached answers that point at replaced passages
	require.NoError(t, os.WriteFile(path, []byte("habeas corpus petition allowed"), 0644))
	_, err = idx.IndexCorpus(ctx, tmpDir, nil)
	require.NoError(t, err)
	assert.Zero(t, s.CacheLen())

	texts, err = s.Search(ctx, "habeas corpus", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"habeas corpus petition allowed"}, texts)
}

func TestIndexLock(t *testing.T) {
	var lock IndexLock
	assert.False(t, lock.Held())

	require.True(t, lock.TryAcquire())
	assert.True(t, lock.Held())
	assert.False(t, lock.TryAcquire(), "second acquire fails while held")

	lock.Release()
	assert.False(t, lock.Held())
	assert.True(t, lock.TryAcquire(), "lock is reusable after release")
	lock.Release()
}

func TestIndexLock_Concurrent(t *testing.T) {
	var lock IndexLock
	const goroutines = 64

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if lock.TryAcquire() {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
	lock.Release()
}
