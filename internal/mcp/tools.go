package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/hybridindex/internal/indexer"
	"github.com/dshills/hybridindex/internal/storage"
	"github.com/dshills/hybridindex/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams      = -32602 // Invalid method parameters
	ErrorCodeInternalError      = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound       = -32001 // Path does not exist
	ErrorCodeIndexingInProgress = -32002 // Another directory run is already active
	ErrorCodeStoreUnavailable   = -32003 // A required store is DOWN
	ErrorCodeEmptyQuery         = -32004 // Query parameter is empty
	ErrorCodeNoEmbedding        = -32005 // Every embedding tier failed
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
	maxReportedErrors  = 5
)

// handleIndexFile handles the index_file tool invocation
func (s *Server) handleIndexFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}

	src := indexer.SourceFile{
		Path:     path,
		Language: getStringDefault(args, "language", ""),
	}
	if content, ok := args["content"].(string); ok {
		src.Content = []byte(content)
	} else {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, newMCPError(ErrorCodePathNotFound, "file not found", map[string]interface{}{
				"param": "path",
				"value": path,
			})
		}
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to read file", map[string]interface{}{
				"error": err.Error(),
			})
		}
		src.Content = data
	}

	summary, err := s.app.Pipeline.IndexSource(ctx, src)
	if err != nil && !errors.Is(err, types.ErrSuperseded) {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(summaryResponse(summary))), nil
}

// handleIndexDirectory handles the index_directory tool invocation
func (s *Server) handleIndexDirectory(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, err := requirePath(args)
	if err != nil {
		return nil, err
	}
	if err := validateDirectory(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) {
			code = ErrorCodePathNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	workers := getIntDefault(args, "workers", 0)
	if workers < 0 || workers > 64 {
		return nil, newMCPError(ErrorCodeInvalidParams, "workers must be between 1 and 64", map[string]interface{}{
			"param": "workers",
			"value": workers,
		})
	}
	opts := &indexer.Options{
		Workers:       workers,
		Force:         getBoolDefault(args, "force_reindex", false),
		IncludeTests:  getBoolDefault(args, "include_tests", false),
		IncludeVendor: getBoolDefault(args, "include_vendor", false),
	}

	stats, err := s.app.Pipeline.IndexPaths(ctx, []string{path}, opts)
	if errors.Is(err, indexer.ErrIndexInProgress) {
		return nil, newMCPError(ErrorCodeIndexingInProgress, "indexing already in progress", nil)
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "indexing failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"files_indexed":    stats.FilesIndexed,
		"files_skipped":    stats.FilesSkipped,
		"files_failed":     stats.FilesFailed,
		"files_superseded": stats.FilesSuperseded,
		"chunks_complete":  stats.ChunksComplete,
		"chunks_partial":   stats.ChunksPartial,
		"chunks_failed":    stats.ChunksFailed,
		"duration_ms":      stats.Duration.Milliseconds(),
	}
	if n := len(stats.ErrorMessages); n > 0 {
		if n > maxReportedErrors {
			response["errors"] = stats.ErrorMessages[:maxReportedErrors]
			response["error_count"] = n
		} else {
			response["errors"] = stats.ErrorMessages
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleRemoveFile handles the remove_file tool invocation
func (s *Server) handleRemoveFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return nil, missingParam("path")
	}

	if err := s.app.Hybrid.RemoveFile(ctx, path); err != nil {
		return nil, storeError("remove failed", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"removed": true,
		"path":    path,
	})), nil
}

// handleSearchCode handles the search_code tool invocation
func (s *Server) handleSearchCode(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	limit := getIntDefault(args, "limit", defaultSearchLimit)
	if limit < 1 || limit > maxSearchLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	var filter storage.VectorFilter
	if filters, ok := args["filters"].(map[string]interface{}); ok {
		filter.FilePath = getStringDefault(filters, "file_path", "")
		filter.Language = getStringDefault(filters, "language", "")
		filter.ChunkKind = types.ChunkKind(getStringDefault(filters, "chunk_kind", ""))
		filter.Tier = getStringDefault(filters, "tier", "")
		filter.MinScore = getFloatDefault(filters, "min_score", 0)
		if filter.MinScore < 0 || filter.MinScore > 1 {
			return nil, newMCPError(ErrorCodeInvalidParams, "min_score must be between 0 and 1", map[string]interface{}{
				"param": "filters.min_score",
				"value": filter.MinScore,
			})
		}
	}

	start := time.Now()
	hits, err := s.app.Search(ctx, query, limit, filter)
	if err != nil {
		return nil, storeError("search failed", err)
	}

	results := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		results = append(results, map[string]interface{}{
			"rank":     hit.Rank,
			"score":    hit.Score,
			"point_id": hit.PointID,
			"file": map[string]interface{}{
				"path":       hit.FilePath,
				"language":   hit.Language,
				"start_line": hit.StartLine,
				"end_line":   hit.EndLine,
			},
			"kind":    hit.Kind,
			"name":    hit.Name,
			"tier":    hit.Tier,
			"content": hit.Content,
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"results":     results,
		"total":       len(results),
		"duration_ms": time.Since(start).Milliseconds(),
	})), nil
}

// handleHealthStatus handles the health_status tool invocation
func (s *Server) handleHealthStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	health, err := s.app.Health(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get health", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(health)), nil
}

// handleReconcile handles the reconcile tool invocation
func (s *Server) handleReconcile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.app.Hybrid.Reconcile(ctx)
	if err != nil {
		return nil, storeError("reconcile failed", err)
	}
	return mcp.NewToolResultText(formatJSON(report)), nil
}

// Helper functions

func summaryResponse(summary *types.FileSummary) map[string]interface{} {
	response := map[string]interface{}{
		"path":        summary.FilePath,
		"version":     summary.Version,
		"chunks":      summary.Chunks,
		"complete":    summary.Complete,
		"partial":     summary.Partial,
		"failed":      summary.Failed,
		"degraded":    summary.Degraded,
		"superseded":  summary.Superseded,
		"duration_ms": summary.Duration.Milliseconds(),
	}
	var failures []map[string]interface{}
	for _, r := range summary.Records {
		if r.Status == types.StatusComplete {
			continue
		}
		failures = append(failures, map[string]interface{}{
			"chunk_id": r.ChunkID,
			"position": r.Position,
			"status":   r.Status,
			"error":    r.Error,
		})
	}
	if len(failures) > 0 {
		response["incomplete"] = failures
	}
	return response
}

// storeError maps store and embedding failures to their MCP codes
func storeError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, types.ErrStoreUnreachable):
		code = ErrorCodeStoreUnavailable
	case errors.Is(err, types.ErrAllTiersExhausted):
		code = ErrorCodeNoEmbedding
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
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

func missingParam(name string) error {
	return newMCPError(ErrorCodeInvalidParams, name+" parameter is required", map[string]interface{}{
		"param":  name,
		"reason": "missing or empty",
	})
}

func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// requirePath extracts an absolute path argument
func requirePath(args map[string]interface{}) (string, error) {
	path, ok := args["path"].(string)
	if !ok || path == "" {
		return "", missingParam("path")
	}
	if !filepath.IsAbs(path) {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": ErrPathNotAbsolute.Error(),
		})
	}
	return filepath.Clean(path), nil
}

// validateDirectory checks that path is a readable directory
func validateDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a response as indented JSON
func formatJSON(data interface{}) string {
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

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation errors

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
