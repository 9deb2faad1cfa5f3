// Package indexer ingests a corpus of text and markdown documents into the
// hybrid index.
//
// # Basic Usage
//
//	idx := indexer.New(store, emb, indexer.OnChange(srch.InvalidateCache))
//
//	stats, err := idx.IndexCorpus(ctx, "/srv/corpus", &indexer.Config{Workers: 4})
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("indexed %d, skipped %d, failed %d\n",
//	    stats.FilesIndexed, stats.FilesSkipped, stats.FilesFailed)
//
// # Pipeline
//
//  1. Discovery: walk the root for .txt and .md files, skipping hidden
//     directories. A root that is a file is ingested on its own.
//  2. Preparation (parallel, bounded by Config.Workers): hash the content,
//     skip sources whose SHA-256 is unchanged, chunk, embed in batches of
//     Config.BatchSize.
//  3. Write (sequential, path order): one transaction per source deletes
//     the previous chunks, upserts the source row and inserts each chunk
//     with its embedding. Chunk removal cascades to the FTS table and the
//     vector index.
//  4. Prune (optional): sources under the root that vanished from disk are
//     deleted.
//
// A file that cannot be read, is not UTF-8 or fails to embed is counted in
// Statistics.FilesFailed and left untouched in the store. Storage errors and
// context cancellation abort the run.
//
// # Concurrency
//
// IndexCorpus is guarded by an IndexLock. A second call while a run is in
// progress returns ErrIndexInProgress immediately. Searches may run during
// ingestion; each source becomes visible atomically when its transaction
// commits.
//
// OnChange callbacks run after any run that indexed or removed a source.
package indexer
