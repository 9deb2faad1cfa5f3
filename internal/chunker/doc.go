// Package chunker divides plain text and markdown documents into passages
// for embedding and search.
//
// # Basic Usage
//
//	c := chunker.New()
//	chunks, err := c.ChunkFile("/corpus/judgments/2019-lhr-412.md")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, chunk := range chunks {
//	    fmt.Printf("passage %d: %d tokens\n", chunk.Ordinal, chunk.TokenCount)
//	}
//
// # Chunking Strategy
//
// Paragraphs separated by blank lines are the basic unit. Short paragraphs
// are merged until a passage reaches MinTokensPerChunk, and a passage never
// grows past MaxTokensPerChunk. Markdown headings always open a new passage
// and stay attached to the paragraph that follows them.
//
// A single paragraph that is larger than the budget is split at sentence
// terminators (". ! ? ۔ ؟" followed by whitespace) and, failing that, at
// word boundaries.
//
// Token counts use the runes/4 heuristic from types.EstimateTokens. It is
// rough but language neutral, which matters for Urdu text where bytes per
// character differ from ASCII.
//
// Every returned chunk carries its Ordinal, TokenCount and ContentHash.
// SourceID is left for the caller to fill in.
package chunker
