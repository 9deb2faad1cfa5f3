// Package storage provides SQLite-based persistence and search for the indexed corpus.
//
// The storage layer manages:
//   - Source documents and their content hashes
//   - Text chunks
//   - Vector embeddings (one per chunk)
//   - The FTS5 term index over chunk text
//   - The vector index (vec0 with sqlite_vec builds, a Go scan otherwise)
//
// # Database Schema
//
// Tables:
//   - sources: ingested documents (path, SHA-256 hash, chunk count)
//   - chunks: passage text keyed by a stable integer ID
//   - chunks_fts: FTS5 index kept in sync with chunks by triggers
//   - embeddings: little-endian float32 blobs, L2-normalized
//   - vectors: vec0 KNN table mirroring embeddings (sqlite_vec builds only)
//
// # Search
//
// SQLiteStorage implements the three read interfaces the searcher needs:
//
//	lex := db.LexicalCandidates(ctx, []string{"ضمانت", "عدالت"}, 120)
//	if lex.Status == storage.LexicalOK {
//	    // lex.IDs best first by bm25
//	}
//
//	neighbours, err := db.Nearest(ctx, queryVector, lex.IDs, 20)
//	text, err := db.GetChunkText(ctx, neighbours[0].ChunkID)
//
// The lexical prefilter never fails: a missing FTS table or a malformed
// expression is reported as LexicalUnavailable. Vector search failures wrap
// types.ErrVectorUnavailable and are fatal to a search.
//
// # Distance
//
// Nearest reports Euclidean (L2) distance between unit vectors, in [0, 2].
// Cosine similarity is recovered as 1 - d*d/2.
//
// # Transactions
//
// Use transactions for atomic ingestion of a source:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	_ = tx.UpsertSource(ctx, source)
//	_ = tx.InsertChunk(ctx, chunk)
//	_ = tx.UpsertEmbedding(ctx, embedding)
//
//	return tx.Commit()
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (no CGO). Building with
// -tags sqlite_vec switches to github.com/mattn/go-sqlite3 and registers the
// sqlite-vec extension.
//
// # Concurrency
//
// The handle is opened with a single connection, so every query on both
// indexes is serialized through one shared lock inside database/sql. A
// SQLiteStorage is safe for concurrent use.
package storage
