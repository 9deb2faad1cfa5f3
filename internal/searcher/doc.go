// Package searcher answers a free-text query with the passages that best
// match it, combining an FTS5 prefilter with vector ranking.
//
// # Pipeline
//
// Each search runs these steps:
//
//  1. Expand the query with the configured synonym list.
//  2. Fetch up to lexicalLimit chunk IDs from the FTS5 index (any term matches).
//  3. Embed the original query. Steps 2 and 3 run concurrently.
//  4. Ask the vector index for the nearest neighbours. When the prefilter
//     found candidates the search is restricted to them and requests
//     min(5k, lexicalLimit) neighbours; otherwise it scans the whole corpus
//     for 5k.
//  5. Load the text of every neighbour, dropping IDs without stored text.
//  6. Score each passage as cosine similarity plus a keyword bonus and keep
//     the best k.
//
// # Basic Usage
//
//	s := searcher.NewSearcher(store, emb,
//	    searcher.WithLogger(logger),
//	    searcher.WithCache(1000, time.Hour),
//	)
//
//	passages, err := s.Search(ctx, "غیر قانونی حراست", 4, 120)
//	if err != nil {
//	    return err
//	}
//	if len(passages) == 0 {
//	    // nothing relevant, not a failure
//	}
//
// SearchScored returns the same ranking with scores and diagnostics:
//
//	resp, err := s.SearchScored(ctx, searcher.SearchRequest{Query: q, K: 4})
//	for _, r := range resp.Results {
//	    fmt.Printf("%d %.3f\n", r.ChunkID, r.Score)
//	}
//
// # Failure Modes
//
// The lexical prefilter degrades silently: when FTS5 cannot be queried the
// search falls back to the full corpus and logs a warning.
//
// Vector index and embedding failures are fatal and wrap
// types.ErrVectorUnavailable or types.ErrEmbeddingFailed, so callers can tell
// a broken retrieval apart from an empty answer.
//
// A cancelled or expired context returns nil and the context error. Partial
// results are never returned.
//
// # Caching
//
// Responses are cached in an LRU keyed by SHA-256 of (query, k, lexicalLimit)
// with a TTL. Call InvalidateCache after the corpus changes.
//
// # Concurrency
//
// A Searcher is safe for concurrent use. It performs no writes to the index.
package searcher
