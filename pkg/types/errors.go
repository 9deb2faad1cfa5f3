package types

import "errors"

// Domain errors for validation
var (
	ErrInvalidChunkID = errors.New("invalid chunk ID")
	ErrEmptyContent   = errors.New("content cannot be empty")
	ErrEmptyQuery     = errors.New("query cannot be empty")
	ErrInvalidLimit   = errors.New("limit must be positive")
)

// Retrieval errors
var (
	// ErrLexicalUnavailable marks a term index that cannot be queried. It is
	// recovered locally and never returned from a search.
	ErrLexicalUnavailable = errors.New("lexical index unavailable")

	// ErrVectorUnavailable is fatal to a search call.
	ErrVectorUnavailable = errors.New("vector index unavailable")

	// ErrEmbeddingFailed is fatal to a search call.
	ErrEmbeddingFailed = errors.New("query embedding failed")

	// ErrMissingChunkText marks a candidate without stored text. The
	// candidate is dropped and the search continues.
	ErrMissingChunkText = errors.New("chunk text missing")
)
