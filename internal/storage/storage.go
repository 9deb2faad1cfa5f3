package storage

import (
	"context"
	"time"

	"github.com/dshills/hybridrag/pkg/types"
)

// TermIndex is the lexical prefilter over chunk text
type TermIndex interface {
	// LexicalCandidates matches ANY of terms and returns up to limit chunk
	// IDs, best first. It never fails: backend problems are reported through
	// the result status.
	LexicalCandidates(ctx context.Context, terms []string, limit int) LexicalResult
}

// VectorIndex performs nearest-neighbour search over chunk embeddings
type VectorIndex interface {
	// Nearest returns up to limit candidates ordered by ascending distance.
	// A non-empty restrictTo limits eligible neighbours to those chunk IDs.
	Nearest(ctx context.Context, queryVector []float32, restrictTo []int64, limit int) ([]types.Candidate, error)
}

// ChunkStore resolves chunk IDs to their stored text
type ChunkStore interface {
	// GetChunkText returns ErrNotFound when the chunk does not exist.
	GetChunkText(ctx context.Context, chunkID int64) (string, error)
}

// Storage defines the interface for persisting and querying the indexed corpus
type Storage interface {
	TermIndex
	VectorIndex
	ChunkStore

	// Source operations
	UpsertSource(ctx context.Context, source *Source) error
	GetSource(ctx context.Context, path string) (*Source, error)
	ListSources(ctx context.Context) ([]*Source, error)
	DeleteSource(ctx context.Context, sourceID int64) error

	// Chunk operations
	InsertChunk(ctx context.Context, chunk *Chunk) error
	GetChunk(ctx context.Context, chunkID int64) (*Chunk, error)
	ListChunksBySource(ctx context.Context, sourceID int64) ([]*Chunk, error)
	DeleteChunksBySource(ctx context.Context, sourceID int64) (deletedCount int, err error)

	// Embedding operations
	UpsertEmbedding(ctx context.Context, embedding *Embedding) error
	GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Source represents an ingested corpus document
type Source struct {
	ID            int64
	Path          string
	ContentHash   [32]byte
	SizeBytes     int64
	ChunkCount    int
	LastIndexedAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Chunk represents a stored passage of corpus text
type Chunk struct {
	ID          int64 // Assigned on insert when zero
	SourceID    *int64 // Nullable - chunks may be loaded without a source document
	Text        string
	ContentHash [32]byte
	TokenCount  int
	Ordinal     int
	CreatedAt   time.Time
}

// Embedding represents the vector for a chunk
type Embedding struct {
	ChunkID   int64
	Vector    []byte // Serialized little-endian float32 array, L2-normalized
	Dimension int
	Provider  string
	Model     string
	CreatedAt time.Time
}

// LexicalStatus tells apart the outcomes of a lexical prefilter
type LexicalStatus int

const (
	// LexicalOK means the FTS query ran; IDs may still be empty when nothing matched.
	LexicalOK LexicalStatus = iota
	// LexicalEmpty means nothing was queried by policy (no usable terms or no budget).
	LexicalEmpty
	// LexicalUnavailable means the FTS backend could not be queried.
	LexicalUnavailable
)

// String returns the status name
func (s LexicalStatus) String() string {
	switch s {
	case LexicalOK:
		return "ok"
	case LexicalEmpty:
		return "empty"
	case LexicalUnavailable:
		return "unavailable"
	default:
		return "unknown"
	}
}

// LexicalResult is the outcome of a lexical prefilter
type LexicalResult struct {
	IDs    []int64 // Best first
	Status LexicalStatus
	Err    error // Set when Status is LexicalUnavailable
}

// Status contains statistics about the indexed corpus
type Status struct {
	SourcesCount    int
	ChunksCount     int
	EmbeddingsCount int
	Dimension       int // 0 when no embeddings are stored
	IndexSizeMB     float64
	LastIndexedAt   time.Time
	Health          HealthStatus
}

// HealthStatus represents the health of the index
type HealthStatus struct {
	DatabaseAccessible   bool
	FTSIndexBuilt        bool
	VectorIndexAvailable bool
}

// ToTypesChunk converts storage Chunk to types.Chunk
func (c *Chunk) ToTypesChunk() types.Chunk {
	var sourceID int64
	if c.SourceID != nil {
		sourceID = *c.SourceID
	}
	return types.Chunk{
		ID:          c.ID,
		SourceID:    sourceID,
		Text:        c.Text,
		ContentHash: c.ContentHash,
		TokenCount:  c.TokenCount,
		Ordinal:     c.Ordinal,
	}
}

// FromTypesChunk converts types.Chunk to storage Chunk
func FromTypesChunk(c types.Chunk) *Chunk {
	chunk := &Chunk{
		ID:          c.ID,
		Text:        c.Text,
		ContentHash: c.ContentHash,
		TokenCount:  c.TokenCount,
		Ordinal:     c.Ordinal,
	}
	if c.SourceID != 0 {
		sourceID := c.SourceID
		chunk.SourceID = &sourceID
	}
	return chunk
}
