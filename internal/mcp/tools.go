package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/hybridrag/internal/indexer"
	"github.com/dshills/hybridrag/internal/searcher"
	"github.com/dshills/hybridrag/internal/storage"
	"github.com/dshills/hybridrag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound         = -32001 // Path does not exist or holds no corpus files
	ErrorCodeIndexingInProgress   = -32002 // Another ingestion run is already active
	ErrorCodeRetrievalUnavailable = -32003 // Vector index or embedding provider failed
	ErrorCodeEmptyQuery           = -32004 // Query parameter is empty
	ErrorCodeRequestCancelled     = -32005 // Caller cancelled or the deadline passed
)

// retrievalUnavailable is the only detail callers get about a failed search
const retrievalUnavailable = "retrieval service unavailable"

// maxReportedErrors bounds the per-file errors echoed by index_corpus
const maxReportedErrors = 5

func (s *Server) handleSearchPassages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, _ := args["query"].(string)
	if strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	k := getIntDefault(args, "k", s.app.Config.Search.K)
	if k < 1 || k > searcher.MaxK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("k must be between 1 and %d", searcher.MaxK), map[string]interface{}{
			"param": "k",
			"value": k,
		})
	}

	lexicalLimit := getIntDefault(args, "lexical_limit", s.app.Config.Search.LexicalLimit)
	if lexicalLimit < 1 {
		return nil, newMCPError(ErrorCodeInvalidParams, "lexical_limit must be positive", map[string]interface{}{
			"param": "lexical_limit",
			"value": lexicalLimit,
		})
	}

	resp, err := s.app.Searcher.SearchScored(ctx, searcher.SearchRequest{
		Query:        query,
		K:            k,
		LexicalLimit: lexicalLimit,
		UseCache:     true,
	})
	if err != nil {
		return nil, s.searchError(err)
	}

	passages := make([]map[string]interface{}, len(resp.Results))
	texts := make([]string, len(resp.Results))
	for i, r := range resp.Results {
		passages[i] = map[string]interface{}{
			"rank":     i + 1,
			"chunk_id": r.ChunkID,
			"score":    r.Score,
			"text":     r.Text,
		}
		texts[i] = r.Text
	}

	response := map[string]interface{}{
		"query":          query,
		"passages":       passages,
		"total":          len(passages),
		"context":        types.JoinContext(texts),
		"lexical_status": resp.LexicalStatus.String(),
		"cache_hit":      resp.CacheHit,
		"duration_ms":    resp.Duration.Milliseconds(),
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// searchError maps a search failure to a protocol error. Retrieval failures
// never surface their cause to the caller.
func (s *Server) searchError(err error) error {
	switch {
	case errors.Is(err, types.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", nil)
	case errors.Is(err, types.ErrInvalidLimit):
		return newMCPError(ErrorCodeInvalidParams, "invalid limit", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newMCPError(ErrorCodeRequestCancelled, "search cancelled", nil)
	default:
		s.logger.Error("search failed", "error", err)
		return newMCPError(ErrorCodeRetrievalUnavailable, retrievalUnavailable, nil)
	}
}

func (s *Server) handleIndexCorpus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	path, _ := args["path"].(string)
	if path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) || errors.Is(err, ErrNoCorpusFiles) {
			code = ErrorCodePathNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	force := getBoolDefault(args, "force", false)
	prune := getBoolDefault(args, "prune", false)

	stats, err := s.app.Indexer.IndexCorpus(ctx, path, s.app.IngestConfig(force, prune))
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		s.logger.Error("indexing failed", "path", path, "error", err)
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"indexed":              true,
		"files_indexed":        stats.FilesIndexed,
		"files_skipped":        stats.FilesSkipped,
		"files_failed":         stats.FilesFailed,
		"files_removed":        stats.FilesRemoved,
		"chunks_created":       stats.ChunksCreated,
		"chunks_removed":       stats.ChunksRemoved,
		"embeddings_generated": stats.EmbeddingsGenerated,
		"duration_ms":          stats.Duration.Milliseconds(),
	}

	if n := len(stats.ErrorMessages); n > 0 {
		response["errors"] = stats.ErrorMessages[:min(n, maxReportedErrors)]
		response["error_count"] = n
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.app.Storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}

	lastIndexed := ""
	if !status.LastIndexedAt.IsZero() {
		lastIndexed = status.LastIndexedAt.Format(time.RFC3339)
	}

	emb := s.app.Embedder
	response := map[string]interface{}{
		"indexed":  status.ChunksCount > 0,
		"indexing": s.app.Indexer.Running(),
		"statistics": map[string]interface{}{
			"sources_count":    status.SourcesCount,
			"chunks_count":     status.ChunksCount,
			"embeddings_count": status.EmbeddingsCount,
			"dimension":        status.Dimension,
			"index_size_mb":    fmt.Sprintf("%.2f", status.IndexSizeMB),
			"last_indexed_at":  lastIndexed,
			"cached_results":   s.app.Searcher.CacheLen(),
		},
		"embedder": map[string]interface{}{
			"provider":  emb.Provider(),
			"model":     emb.Model(),
			"dimension": emb.Dimension(),
		},
		"health": map[string]interface{}{
			"database_accessible":    status.Health.DatabaseAccessible,
			"fts_index_built":        status.Health.FTSIndexBuilt,
			"vector_index_available": status.Health.VectorIndexAvailable,
			"dimension_matches":      status.Dimension == 0 || status.Dimension == emb.Dimension(),
		},
		"build_mode": storage.BuildMode,
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// Path validation errors
var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrUnsupportedFile = errors.New("file is not a .txt or .md document")
	ErrNoCorpusFiles   = errors.New("directory does not contain .txt or .md documents")
)

// validatePath checks that path is an absolute, readable corpus file or a
// directory holding at least one
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}

	if !info.IsDir() {
		if !indexer.IsSupported(path) {
			return ErrUnsupportedFile
		}
		return nil
	}

	found := false
	errFound := errors.New("found")
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && indexer.IsSupported(p) {
			found = true
			return errFound
		}
		return nil
	})
	if err != nil && !errors.Is(err, errFound) {
		return ErrPathNotReadable
	}
	if !found {
		return ErrNoCorpusFiles
	}
	return nil
}

// formatJSON formats a map as indented JSON
func formatJSON(data map[string]interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value. JSON
// numbers arrive as float64.
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	switch val := args[key].(type) {
	case float64:
		return int(val)
	case int:
		return val
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return int(n)
		}
	}
	return defaultValue
}
