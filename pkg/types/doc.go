// Package types provides shared type definitions for the hybridrag retrieval engine.
//
// This package defines domain types used across storage, fusion and search:
// indexed chunks, per-query candidates and scored results.
//
// # Core Types
//
// Chunk is an immutable passage of corpus text keyed by a stable integer ID:
//
//	chunk := &types.Chunk{
//	    ID:   42,
//	    Text: "ہائی کورٹ میں آئینی درخواست ...",
//	}
//
// Candidate is transient and lives for a single query. It carries the lexical
// rank (when the chunk came through the FTS prefilter) and the vector distance:
//
//	c := types.Candidate{ChunkID: 42, LexicalRank: 3, Distance: 0.41, HasDistance: true}
//
// ScoredResult is produced by the fusion ranker and ordered by descending score:
//
//	result := types.ScoredResult{ChunkID: 42, Text: chunk.Text, Score: 0.97}
//
// # Errors
//
// Retrieval failures are reported with sentinel errors so callers can tell
// "nothing relevant" (an empty slice) apart from "retrieval broken":
//
//	if errors.Is(err, types.ErrVectorUnavailable) {
//	    // index not loaded, surface as service unavailable
//	}
package types
