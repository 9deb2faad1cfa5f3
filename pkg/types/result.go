package types

import "strings"

// Candidate is a chunk under consideration during a single query
type Candidate struct {
	ChunkID int64

	// LexicalRank is the 1-based position in the FTS prefilter, 0 when the
	// chunk was not produced by the prefilter.
	LexicalRank int

	// Distance is the vector distance reported by the vector index.
	Distance    float64
	HasDistance bool

	// Text is filled in from the chunk store before fusion.
	Text string
}

// ScoredResult is a fused, ranked passage
type ScoredResult struct {
	ChunkID int64
	Text    string
	Score   float64 // cosine similarity + keyword bonus
}

// Validate checks if the scored result is valid
func (sr *ScoredResult) Validate() error {
	if sr.ChunkID <= 0 {
		return ErrInvalidChunkID
	}

	if sr.Text == "" {
		return ErrEmptyContent
	}

	return nil
}

// Texts extracts the passage text of each result, preserving order
func Texts(results []ScoredResult) []string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Text
	}
	return texts
}

// ContextSeparator divides passages in a context block handed to a
// generative model
const ContextSeparator = "\n\n---\n\n"

// JoinContext concatenates passages into a single context block
func JoinContext(texts []string) string {
	return strings.Join(texts, ContextSeparator)
}

// PreviewRunes is the length of a passage preview shown in place of an answer
const PreviewRunes = 450

// Preview cuts text to at most n runes, marking a cut with "..."
func Preview(text string, n int) string {
	runes := []rune(text)
	if n < 0 || len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
