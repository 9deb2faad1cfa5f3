// Package mcp implements the Model Context Protocol (MCP) server for hybridrag.
//
// The server exposes three tools over stdio:
//   - search_passages: retrieve the passages most relevant to a query
//   - index_corpus: ingest .txt and .md documents
//   - get_status: index statistics, embedder identity and health
//
// Stdout carries the protocol, so all logging goes to the process logger
// (stderr in the CLI).
//
// # Tool: search_passages
//
//	Request:
//	{
//	  "name": "search_passages",
//	  "arguments": {"query": "غیر قانونی گرفتاری", "k": 4, "lexical_limit": 120}
//	}
//
//	Response:
//	{
//	  "query": "غیر قانونی گرفتاری",
//	  "passages": [
//	    {"rank": 1, "chunk_id": 3, "score": 1.12, "text": "..."}
//	  ],
//	  "total": 1,
//	  "context": "...",
//	  "lexical_status": "ok",
//	  "cache_hit": false,
//	  "duration_ms": 14
//	}
//
// "context" is the passages joined with types.ContextSeparator, ready to be
// placed in a prompt. An empty passage list is a normal answer.
//
// # Errors
//
// Failures are returned as *MCPError:
//
//	-32602  invalid parameters (k outside 1..100, relative path, ...)
//	-32603  internal error (storage failure during ingestion)
//	-32001  path missing or without documents
//	-32002  another ingestion run is active
//	-32003  retrieval service unavailable
//	-32004  empty query
//	-32005  request cancelled or deadline exceeded
//
// A failed vector search or query embedding is always reported as -32003
// with the fixed message "retrieval service unavailable"; the cause is
// logged, never returned.
//
// # Tool: index_corpus
//
//	{"name": "index_corpus", "arguments": {"path": "/srv/corpus", "force": false, "prune": true}}
//
// Returns file and chunk counters plus up to five per-file error messages.
package mcp
