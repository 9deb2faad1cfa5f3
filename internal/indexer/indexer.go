package indexer

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/hybridrag/internal/chunker"
	"github.com/dshills/hybridrag/internal/embedder"
	"github.com/dshills/hybridrag/internal/storage"
	"github.com/dshills/hybridrag/pkg/types"
)

// ErrIndexInProgress is returned when another ingestion run holds the lock
var ErrIndexInProgress = errors.New("indexing already in progress")

// SupportedExtensions lists the corpus file types the indexer reads
var SupportedExtensions = []string{".txt", ".md"}

// Indexer coordinates the ingestion pipeline: read -> chunk -> embed -> store
type Indexer struct {
	chunker  *chunker.Chunker
	storage  storage.Storage
	embedder embedder.Embedder
	logger   *slog.Logger
	lock     IndexLock

	// Called after a run that changed the corpus
	onChange []func()
}

// Config contains configuration for an ingestion run
type Config struct {
	Workers   int  // Concurrent read/chunk/embed workers (default: runtime.NumCPU())
	BatchSize int  // Texts per embedding request (default: embedder.DefaultBatchSize)
	Force     bool // Re-ingest sources even when their content hash is unchanged
	Prune     bool // Remove stored sources under the root that no longer exist
}

// Statistics contains statistics about an ingestion run
type Statistics struct {
	FilesIndexed        int
	FilesSkipped        int
	FilesFailed         int
	FilesRemoved        int
	ChunksCreated       int
	ChunksRemoved       int
	EmbeddingsGenerated int
	Duration            time.Duration
	ErrorMessages       []string
}

// Option configures an Indexer
type Option func(*Indexer)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(idx *Indexer) {
		if logger != nil {
			idx.logger = logger
		}
	}
}

// WithChunker replaces the default chunker
func WithChunker(c *chunker.Chunker) Option {
	return func(idx *Indexer) {
		if c != nil {
			idx.chunker = c
		}
	}
}

// OnChange registers a callback run after any ingestion that modified the
// corpus, typically a searcher cache purge
func OnChange(fn func()) Option {
	return func(idx *Indexer) {
		if fn != nil {
			idx.onChange = append(idx.onChange, fn)
		}
	}
}

// New creates a new Indexer instance
func New(store storage.Storage, emb embedder.Embedder, opts ...Option) *Indexer {
	idx := &Indexer{
		chunker:  chunker.New(),
		storage:  store,
		embedder: emb,
		logger:   slog.Default().With("component", "indexer"),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// document is a source prepared for writing
type document struct {
	path       string
	hash       [32]byte
	size       int64
	existing   *storage.Source
	chunks     []*types.Chunk
	embeddings []*embedder.Embedding
	skip       bool
	err        error
}

// IndexCorpus ingests every supported file under root (or root itself when
// it is a file). Per-file failures are recorded in the statistics and do
// not abort the run; storage and context errors do.
func (idx *Indexer) IndexCorpus(ctx context.Context, root string, config *Config) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrIndexInProgress
	}
	defer idx.lock.Release()

	config = normalizeConfig(config)
	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	files, isDir, err := discoverFiles(absRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}
	idx.logger.Info("ingestion started", "root", absRoot, "files", len(files), "force", config.Force)

	docs, err := idx.prepareDocuments(ctx, files, config)
	if err != nil {
		return nil, err
	}

	for _, doc := range docs {
		switch {
		case doc.err != nil:
			stats.FilesFailed++
			stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", doc.path, doc.err))
			idx.logger.Warn("source failed", "path", doc.path, "error", doc.err)
		case doc.skip:
			stats.FilesSkipped++
		default:
			removed, err := idx.writeDocument(ctx, doc)
			if err != nil {
				return nil, fmt.Errorf("failed to store %s: %w", doc.path, err)
			}
			stats.FilesIndexed++
			stats.ChunksCreated += len(doc.chunks)
			stats.ChunksRemoved += removed
			stats.EmbeddingsGenerated += len(doc.embeddings)
		}
	}

	if config.Prune && isDir {
		if err := idx.pruneSources(ctx, absRoot, files, stats); err != nil {
			return nil, fmt.Errorf("failed to prune sources: %w", err)
		}
	}

	stats.Duration = time.Since(startTime)
	idx.logger.Info("ingestion finished",
		"indexed", stats.FilesIndexed,
		"skipped", stats.FilesSkipped,
		"failed", stats.FilesFailed,
		"removed", stats.FilesRemoved,
		"chunks", stats.ChunksCreated,
		"duration", stats.Duration)

	if stats.FilesIndexed > 0 || stats.FilesRemoved > 0 {
		for _, fn := range idx.onChange {
			fn()
		}
	}
	return stats, nil
}

func normalizeConfig(config *Config) *Config {
	cfg := Config{}
	if config != nil {
		cfg = *config
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embedder.DefaultBatchSize
	}
	if cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.MaxBatchSize
	}
	return &cfg
}

// discoverFiles returns supported files under root in path order. Hidden
// directories are skipped.
func discoverFiles(root string) ([]string, bool, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, false, err
	}
	if !info.IsDir() {
		if !IsSupported(root) {
			return nil, false, fmt.Errorf("unsupported file type: %s", filepath.Ext(root))
		}
		return []string{root}, false, nil
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSupported(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, true, err
	}

	sort.Strings(files)
	return files, true, nil
}

// IsSupported reports whether path has a corpus file extension
func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, supported := range SupportedExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// prepareDocuments reads, chunks and embeds files concurrently. The
// returned slice keeps the order of files.
func (idx *Indexer) prepareDocuments(ctx context.Context, files []string, config *Config) ([]*document, error) {
	docs := make([]*document, len(files))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Workers)

	for i, path := range files {
		g.Go(func() error {
			doc := &document{path: path}
			docs[i] = doc
			doc.err = idx.prepareDocument(gctx, doc, config)

			// Cancellation stops the whole run rather than failing one file
			if ctxErr := gctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func (idx *Indexer) prepareDocument(ctx context.Context, doc *document, config *Config) error {
	content, err := os.ReadFile(doc.path)
	if err != nil {
		return err
	}
	doc.hash = sha256.Sum256(content)
	doc.size = int64(len(content))

	existing, err := idx.storage.GetSource(ctx, doc.path)
	switch {
	case err == nil:
		doc.existing = existing
		if !config.Force && existing.ContentHash == doc.hash {
			doc.skip = true
			return nil
		}
	case !errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("failed to look up source: %w", err)
	}

	doc.chunks, err = idx.chunker.ChunkFile(doc.path)
	if err != nil {
		return err
	}

	doc.embeddings, err = idx.embedChunks(ctx, doc.chunks, config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	return nil
}

// embedChunks embeds chunk texts in batches, returning one embedding per chunk
func (idx *Indexer) embedChunks(ctx context.Context, chunks []*types.Chunk, batchSize int) ([]*embedder.Embedding, error) {
	embeddings := make([]*embedder.Embedding, 0, len(chunks))
	for start := 0; start < len(chunks); start += batchSize {
		end := min(start+batchSize, len(chunks))

		texts := make([]string, 0, end-start)
		for _, chunk := range chunks[start:end] {
			texts = append(texts, chunk.Text)
		}

		resp, err := idx.embedder.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: texts})
		if err != nil {
			return nil, err
		}
		if len(resp.Embeddings) != len(texts) {
			return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
				embedder.ErrProviderFailed, len(resp.Embeddings), len(texts))
		}
		embeddings = append(embeddings, resp.Embeddings...)
	}
	return embeddings, nil
}

// writeDocument replaces a source's chunks and embeddings in one transaction
func (idx *Indexer) writeDocument(ctx context.Context, doc *document) (int, error) {
	tx, err := idx.storage.BeginTx(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	removed := 0
	if doc.existing != nil {
		removed, err = tx.DeleteChunksBySource(ctx, doc.existing.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to delete old chunks: %w", err)
		}
	}

	source := &storage.Source{
		Path:        doc.path,
		ContentHash: doc.hash,
		SizeBytes:   doc.size,
		ChunkCount:  len(doc.chunks),
	}
	if err := tx.UpsertSource(ctx, source); err != nil {
		return 0, err
	}

	for i, chunk := range doc.chunks {
		chunk.SourceID = source.ID
		stored := storage.FromTypesChunk(*chunk)
		if err := tx.InsertChunk(ctx, stored); err != nil {
			return 0, err
		}
		chunk.ID = stored.ID

		emb := doc.embeddings[i]
		err := tx.UpsertEmbedding(ctx, &storage.Embedding{
			ChunkID:   stored.ID,
			Vector:    storage.SerializeVector(emb.Vector),
			Dimension: len(emb.Vector),
			Provider:  emb.Provider,
			Model:     emb.Model,
		})
		if err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	idx.logger.Debug("source indexed", "path", doc.path, "chunks", len(doc.chunks), "replaced", removed)
	return removed, nil
}

// pruneSources deletes stored sources under root that were not found on disk
func (idx *Indexer) pruneSources(ctx context.Context, root string, files []string, stats *Statistics) error {
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		seen[f] = struct{}{}
	}

	sources, err := idx.storage.ListSources(ctx)
	if err != nil {
		return err
	}

	prefix := root + string(filepath.Separator)
	for _, source := range sources {
		if !strings.HasPrefix(source.Path, prefix) {
			continue
		}
		if _, ok := seen[source.Path]; ok {
			continue
		}
		if err := idx.storage.DeleteSource(ctx, source.ID); err != nil {
			return err
		}
		stats.FilesRemoved++
		stats.ChunksRemoved += source.ChunkCount
		idx.logger.Debug("source removed", "path", source.Path)
	}
	return nil
}

// Running reports whether an ingestion run is in progress
func (idx *Indexer) Running() bool {
	return idx.lock.Held()
}
