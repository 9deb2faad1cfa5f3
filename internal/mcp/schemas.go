package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/hybridrag/internal/searcher"
)

// Tool names
const (
	ToolSearchPassages = "search_passages"
	ToolIndexCorpus    = "index_corpus"
	ToolGetStatus      = "get_status"
)

func searchPassagesTool() mcp.Tool {
	return mcp.NewTool(ToolSearchPassages,
		mcp.WithDescription("Retrieve the corpus passages most relevant to a query using FTS5 prefiltering, vector ranking and keyword bonuses"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Question or keywords, in Urdu or English"),
		),
		mcp.WithNumber("k",
			mcp.Description("Number of passages to return"),
			mcp.DefaultNumber(searcher.DefaultK),
			mcp.Min(1),
			mcp.Max(searcher.MaxK),
		),
		mcp.WithNumber("lexical_limit",
			mcp.Description("Maximum full-text candidates considered before vector ranking"),
			mcp.DefaultNumber(searcher.DefaultLexicalLimit),
			mcp.Min(1),
		),
	)
}

func indexCorpusTool() mcp.Tool {
	return mcp.NewTool(ToolIndexCorpus,
		mcp.WithDescription("Ingest .txt and .md documents from a file or directory into the index"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path to a corpus file or directory"),
		),
		mcp.WithBoolean("force",
			mcp.Description("Re-ingest every document even when its content hash is unchanged"),
			mcp.DefaultBool(false),
		),
		mcp.WithBoolean("prune",
			mcp.Description("Remove indexed documents under path that no longer exist"),
			mcp.DefaultBool(false),
		),
	)
}

func getStatusTool() mcp.Tool {
	return mcp.NewTool(ToolGetStatus,
		mcp.WithDescription("Report index statistics, embedding provider and health"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
}
