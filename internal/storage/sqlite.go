package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/hybridrag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when an embedding does not match the corpus dimension
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection serializes access to both the FTS and vector
	// indexes, which live in the same handle.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx := context.Background()

	// Apply migrations
	if err := ApplyMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Build or refresh the native vector index when the build carries one
	if err := prepareVectorIndex(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to prepare vector index: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Search operations

func (s *SQLiteStorage) LexicalCandidates(ctx context.Context, terms []string, limit int) LexicalResult {
	return lexicalCandidates(ctx, s.querier(), terms, limit)
}

func (s *SQLiteStorage) Nearest(ctx context.Context, queryVector []float32, restrictTo []int64, limit int) ([]types.Candidate, error) {
	return nearest(ctx, s.querier(), queryVector, restrictTo, limit)
}

// getChunkTextWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getChunkTextWithQuerier(ctx context.Context, q querier, chunkID int64) (string, error) {
	var text string
	err := q.QueryRowContext(ctx, `SELECT text FROM chunks WHERE id = ?`, chunkID).Scan(&text)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (s *SQLiteStorage) GetChunkText(ctx context.Context, chunkID int64) (string, error) {
	return s.getChunkTextWithQuerier(ctx, s.querier(), chunkID)
}

// Source operations

// upsertSourceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertSourceWithQuerier(ctx context.Context, q querier, source *Source) error {
	query := `
		INSERT INTO sources (path, content_hash, size_bytes, chunk_count, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			content_hash = excluded.content_hash,
			size_bytes = excluded.size_bytes,
			chunk_count = excluded.chunk_count,
			last_indexed_at = excluded.last_indexed_at,
			updated_at = excluded.updated_at
		RETURNING id, created_at
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		source.Path, source.ContentHash[:], source.SizeBytes, source.ChunkCount,
		now, now, now).Scan(&source.ID, &source.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert source: %w", err)
	}

	source.LastIndexedAt = now
	source.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertSource(ctx context.Context, source *Source) error {
	return s.upsertSourceWithQuerier(ctx, s.querier(), source)
}

// getSourceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getSourceWithQuerier(ctx context.Context, q querier, path string) (*Source, error) {
	query := `
		SELECT id, path, content_hash, size_bytes, chunk_count, last_indexed_at, created_at, updated_at
		FROM sources
		WHERE path = ?
	`
	source, err := scanSource(q.QueryRowContext(ctx, query, path))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return source, nil
}

func (s *SQLiteStorage) GetSource(ctx context.Context, path string) (*Source, error) {
	return s.getSourceWithQuerier(ctx, s.querier(), path)
}

// listSourcesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listSourcesWithQuerier(ctx context.Context, q querier) ([]*Source, error) {
	query := `
		SELECT id, path, content_hash, size_bytes, chunk_count, last_indexed_at, created_at, updated_at
		FROM sources
		ORDER BY path
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*Source, 0)
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

func (s *SQLiteStorage) ListSources(ctx context.Context) ([]*Source, error) {
	return s.listSourcesWithQuerier(ctx, s.querier())
}

// deleteSourceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) deleteSourceWithQuerier(ctx context.Context, q querier, sourceID int64) error {
	if err := deleteVectorsBySource(ctx, q, sourceID); err != nil {
		return fmt.Errorf("failed to delete source vectors: %w", err)
	}
	_, err := q.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, sourceID)
	return err
}

func (s *SQLiteStorage) DeleteSource(ctx context.Context, sourceID int64) error {
	return s.deleteSourceWithQuerier(ctx, s.querier(), sourceID)
}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSource(row rowScanner) (*Source, error) {
	var source Source
	var hash []byte
	var sizeBytes sql.NullInt64
	var lastIndexedAt sql.NullTime
	err := row.Scan(
		&source.ID, &source.Path, &hash, &sizeBytes, &source.ChunkCount,
		&lastIndexedAt, &source.CreatedAt, &source.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	copy(source.ContentHash[:], hash)
	if sizeBytes.Valid {
		source.SizeBytes = sizeBytes.Int64
	}
	if lastIndexedAt.Valid {
		source.LastIndexedAt = lastIndexedAt.Time
	}
	return &source, nil
}

// Chunk operations

// insertChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) insertChunkWithQuerier(ctx context.Context, q querier, chunk *Chunk) error {
	if strings.TrimSpace(chunk.Text) == "" {
		return fmt.Errorf("failed to insert chunk: %w", types.ErrEmptyContent)
	}

	var id interface{}
	if chunk.ID > 0 {
		id = chunk.ID
	}

	query := `
		INSERT INTO chunks (id, source_id, text, content_hash, token_count, ordinal, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	now := time.Now()
	err := q.QueryRowContext(ctx, query,
		id, chunk.SourceID, chunk.Text, chunk.ContentHash[:], chunk.TokenCount,
		chunk.Ordinal, now).Scan(&chunk.ID)
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	chunk.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return s.insertChunkWithQuerier(ctx, s.querier(), chunk)
}

const chunkColumns = `id, source_id, text, content_hash, token_count, ordinal, created_at`

func scanChunk(row rowScanner) (*Chunk, error) {
	var chunk Chunk
	var sourceID sql.NullInt64
	var hash []byte
	var tokenCount sql.NullInt64
	err := row.Scan(&chunk.ID, &sourceID, &chunk.Text, &hash, &tokenCount, &chunk.Ordinal, &chunk.CreatedAt)
	if err != nil {
		return nil, err
	}
	if sourceID.Valid {
		chunk.SourceID = &sourceID.Int64
	}
	if tokenCount.Valid {
		chunk.TokenCount = int(tokenCount.Int64)
	}
	copy(chunk.ContentHash[:], hash)
	return &chunk, nil
}

// getChunkWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getChunkWithQuerier(ctx context.Context, q querier, chunkID int64) (*Chunk, error) {
	chunk, err := scanChunk(q.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, chunkID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return chunk, nil
}

func (s *SQLiteStorage) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return s.getChunkWithQuerier(ctx, s.querier(), chunkID)
}

// listChunksBySourceWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listChunksBySourceWithQuerier(ctx context.Context, q querier, sourceID int64) ([]*Chunk, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE source_id = ? ORDER BY ordinal`, sourceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	chunks := make([]*Chunk, 0)
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (s *SQLiteStorage) ListChunksBySource(ctx context.Context, sourceID int64) ([]*Chunk, error) {
	return s.listChunksBySourceWithQuerier(ctx, s.querier(), sourceID)
}

// deleteChunksBySourceWithQuerier removes a source's chunks; the FTS rows
// follow through triggers and embeddings through ON DELETE CASCADE
func (s *SQLiteStorage) deleteChunksBySourceWithQuerier(ctx context.Context, q querier, sourceID int64) (int, error) {
	if err := deleteVectorsBySource(ctx, q, sourceID); err != nil {
		return 0, fmt.Errorf("failed to delete source vectors: %w", err)
	}

	result, err := q.ExecContext(ctx, `DELETE FROM chunks WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *SQLiteStorage) DeleteChunksBySource(ctx context.Context, sourceID int64) (int, error) {
	return s.deleteChunksBySourceWithQuerier(ctx, s.querier(), sourceID)
}

// Embedding operations

// upsertEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertEmbeddingWithQuerier(ctx context.Context, q querier, embedding *Embedding) error {
	if embedding.Dimension <= 0 || len(embedding.Vector) != embedding.Dimension*4 {
		return fmt.Errorf("%w: blob of %d bytes for dimension %d", ErrDimensionMismatch, len(embedding.Vector), embedding.Dimension)
	}

	// Every embedding in the corpus shares one dimension
	var existing int
	err := q.QueryRowContext(ctx, `SELECT dimension FROM embeddings WHERE chunk_id != ? LIMIT 1`, embedding.ChunkID).Scan(&existing)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to read corpus dimension: %w", err)
	}
	if err == nil && existing != embedding.Dimension {
		return fmt.Errorf("%w: corpus has %d, got %d", ErrDimensionMismatch, existing, embedding.Dimension)
	}

	query := `
		INSERT INTO embeddings (chunk_id, vector, dimension, provider, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chunk_id) DO UPDATE SET
			vector = excluded.vector,
			dimension = excluded.dimension,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
	`
	now := time.Now()
	_, err = q.ExecContext(ctx, query,
		embedding.ChunkID, embedding.Vector, embedding.Dimension,
		embedding.Provider, embedding.Model, now)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}

	if err := syncVector(ctx, q, embedding.ChunkID, embedding.Vector, embedding.Dimension); err != nil {
		return fmt.Errorf("failed to index embedding: %w", err)
	}

	embedding.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return s.upsertEmbeddingWithQuerier(ctx, s.querier(), embedding)
}

// getEmbeddingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getEmbeddingWithQuerier(ctx context.Context, q querier, chunkID int64) (*Embedding, error) {
	query := `
		SELECT chunk_id, vector, dimension, provider, model, created_at
		FROM embeddings
		WHERE chunk_id = ?
	`
	var emb Embedding
	err := q.QueryRowContext(ctx, query, chunkID).Scan(
		&emb.ChunkID, &emb.Vector, &emb.Dimension, &emb.Provider, &emb.Model, &emb.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &emb, nil
}

func (s *SQLiteStorage) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	return s.getEmbeddingWithQuerier(ctx, s.querier(), chunkID)
}

// Status operations

// getStatusWithQuerier collects corpus statistics and index health
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{}

	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM sources`).Scan(&status.SourcesCount); err != nil {
		return nil, fmt.Errorf("failed to count sources: %w", err)
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&status.ChunksCount); err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&status.EmbeddingsCount); err != nil {
		return nil, fmt.Errorf("failed to count embeddings: %w", err)
	}
	status.Health.DatabaseAccessible = true

	var dimension sql.NullInt64
	if err := q.QueryRowContext(ctx, `SELECT MAX(dimension) FROM embeddings`).Scan(&dimension); err == nil && dimension.Valid {
		status.Dimension = int(dimension.Int64)
	}

	var lastIndexed sql.NullString
	if err := q.QueryRowContext(ctx, `SELECT MAX(last_indexed_at) FROM sources`).Scan(&lastIndexed); err == nil && lastIndexed.Valid {
		if t, err := parseSQLiteTime(lastIndexed.String); err == nil {
			status.LastIndexedAt = t
		}
	}

	var pageCount, pageSize int64
	if err := q.QueryRowContext(ctx, `PRAGMA page_count`).Scan(&pageCount); err == nil {
		if err := q.QueryRowContext(ctx, `PRAGMA page_size`).Scan(&pageSize); err == nil {
			status.IndexSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
		}
	}

	var ftsRows int
	status.Health.FTSIndexBuilt = q.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks_fts`).Scan(&ftsRows) == nil
	status.Health.VectorIndexAvailable = vectorIndexAvailable(ctx, q)

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// DataVersion returns SQLite's data_version for the storage connection. It
// moves whenever another connection, in this process or another, commits to
// the database; commits made through this storage leave it unchanged.
func (s *SQLiteStorage) DataVersion(ctx context.Context) (int64, error) {
	var version int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read data version: %w", err)
	}
	return version, nil
}

// parseSQLiteTime parses the timestamp layouts the drivers write for MAX() aggregates
func parseSQLiteTime(raw string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
	}
	// modernc appends a monotonic clock suffix to time.Time strings
	if i := strings.Index(raw, " m="); i > 0 {
		raw = raw[:i]
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", raw)
}

// Transaction delegation

func (t *sqliteTx) LexicalCandidates(ctx context.Context, terms []string, limit int) LexicalResult {
	return lexicalCandidates(ctx, t.querier(), terms, limit)
}

func (t *sqliteTx) Nearest(ctx context.Context, queryVector []float32, restrictTo []int64, limit int) ([]types.Candidate, error) {
	return nearest(ctx, t.querier(), queryVector, restrictTo, limit)
}

func (t *sqliteTx) GetChunkText(ctx context.Context, chunkID int64) (string, error) {
	return t.storage.getChunkTextWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) UpsertSource(ctx context.Context, source *Source) error {
	return t.storage.upsertSourceWithQuerier(ctx, t.querier(), source)
}

func (t *sqliteTx) GetSource(ctx context.Context, path string) (*Source, error) {
	return t.storage.getSourceWithQuerier(ctx, t.querier(), path)
}

func (t *sqliteTx) ListSources(ctx context.Context) ([]*Source, error) {
	return t.storage.listSourcesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) DeleteSource(ctx context.Context, sourceID int64) error {
	return t.storage.deleteSourceWithQuerier(ctx, t.querier(), sourceID)
}

func (t *sqliteTx) InsertChunk(ctx context.Context, chunk *Chunk) error {
	return t.storage.insertChunkWithQuerier(ctx, t.querier(), chunk)
}

func (t *sqliteTx) GetChunk(ctx context.Context, chunkID int64) (*Chunk, error) {
	return t.storage.getChunkWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) ListChunksBySource(ctx context.Context, sourceID int64) ([]*Chunk, error) {
	return t.storage.listChunksBySourceWithQuerier(ctx, t.querier(), sourceID)
}

func (t *sqliteTx) DeleteChunksBySource(ctx context.Context, sourceID int64) (int, error) {
	return t.storage.deleteChunksBySourceWithQuerier(ctx, t.querier(), sourceID)
}

func (t *sqliteTx) UpsertEmbedding(ctx context.Context, embedding *Embedding) error {
	return t.storage.upsertEmbeddingWithQuerier(ctx, t.querier(), embedding)
}

func (t *sqliteTx) GetEmbedding(ctx context.Context, chunkID int64) (*Embedding, error) {
	return t.storage.getEmbeddingWithQuerier(ctx, t.querier(), chunkID)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
