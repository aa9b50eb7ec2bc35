package mcp

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/hybridindex/internal/app"
	"github.com/dshills/hybridindex/internal/config"
	"github.com/dshills/hybridindex/internal/embedder"
)

const source = `package store

// Open connects to the database at path
func Open(path string) (*DB, error) {
	return &DB{path: path, opened: true, retries: 3}, nil
}

// Close releases the database handle
func (d *DB) Close() error {
	d.opened = false
	return nil
}
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Path = filepath.Join(cfg.DataDir, "index.db")
	cfg.Cache.InMemory = true
	cfg.Embedder.Tiers = []embedder.TierConfig{{Kind: embedder.ProviderLocal}}

	a, err := app.New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return NewServer(a, "test")
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// decode unmarshals the text payload of a tool result
func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code)
}

func writeSource(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(source), 0644))
	return path
}

func TestHandleIndexFile(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	path := writeSource(t, t.TempDir(), "store.go")

	result, err := s.handleIndexFile(ctx, callRequest("index_file", map[string]interface{}{"path": path}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, path, out["path"])
	assert.Positive(t, out["chunks"])
	assert.Equal(t, out["chunks"], out["complete"])
	assert.Equal(t, false, out["superseded"])
	assert.NotContains(t, out, "incomplete")

	t.Run("inline content", func(t *testing.T) {
		result, err := s.handleIndexFile(ctx, callRequest("index_file", map[string]interface{}{
			"path":    "/virtual/store.go",
			"content": source,
		}))
		require.NoError(t, err)
		assert.Positive(t, decode(t, result)["complete"])
	})

	t.Run("errors", func(t *testing.T) {
		_, err := s.handleIndexFile(ctx, callRequest("index_file", map[string]interface{}{}))
		requireCode(t, err, ErrorCodeInvalidParams)

		_, err = s.handleIndexFile(ctx, callRequest("index_file", map[string]interface{}{"path": "relative.go"}))
		requireCode(t, err, ErrorCodeInvalidParams)

		_, err = s.handleIndexFile(ctx, callRequest("index_file", map[string]interface{}{
			"path": filepath.Join(t.TempDir(), "missing.go"),
		}))
		requireCode(t, err, ErrorCodePathNotFound)
	})
}

func TestHandleIndexDirectory(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeSource(t, dir, "a.go")
	writeSource(t, dir, "pkg/b.go")

	result, err := s.handleIndexDirectory(ctx, callRequest("index_directory", map[string]interface{}{
		"path":    dir,
		"workers": float64(2),
	}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, float64(2), out["files_indexed"])
	assert.Equal(t, float64(0), out["files_failed"])

	result, err = s.handleIndexDirectory(ctx, callRequest("index_directory", map[string]interface{}{"path": dir}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), decode(t, result)["files_skipped"])

	result, err = s.handleIndexDirectory(ctx, callRequest("index_directory", map[string]interface{}{
		"path":          dir,
		"force_reindex": true,
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(2), decode(t, result)["files_indexed"])

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing path", map[string]interface{}{}, ErrorCodeInvalidParams},
		{"relative path", map[string]interface{}{"path": "src"}, ErrorCodeInvalidParams},
		{"not found", map[string]interface{}{"path": filepath.Join(dir, "nope")}, ErrorCodePathNotFound},
		{"not a directory", map[string]interface{}{"path": filepath.Join(dir, "a.go")}, ErrorCodeInvalidParams},
		{"bad workers", map[string]interface{}{"path": dir, "workers": float64(500)}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleIndexDirectory(ctx, callRequest("index_directory", tt.args))
			requireCode(t, err, tt.code)
		})
	}
}

func TestHandleSearchCode(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIndexFile(ctx, callRequest("index_file", map[string]interface{}{
		"path":    "/src/store.go",
		"content": source,
	}))
	require.NoError(t, err)

	result, err := s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{
		"query": "close database handle",
		"limit": float64(1),
	}))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, float64(1), out["total"])
	results := out["results"].([]interface{})
	require.Len(t, results, 1)
	first := results[0].(map[string]interface{})
	assert.Equal(t, float64(1), first["rank"])
	assert.Equal(t, "/src/store.go", first["file"].(map[string]interface{})["path"])
	assert.Equal(t, embedder.ProviderLocal, first["tier"])

	result, err = s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{
		"query":   "close database handle",
		"filters": map[string]interface{}{"file_path": "/src/other.go"},
	}))
	require.NoError(t, err)
	assert.Equal(t, float64(0), decode(t, result)["total"])

	t.Run("errors", func(t *testing.T) {
		_, err := s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{}))
		requireCode(t, err, ErrorCodeEmptyQuery)

		_, err = s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{
			"query": "x",
			"limit": float64(101),
		}))
		requireCode(t, err, ErrorCodeInvalidParams)

		_, err = s.handleSearchCode(ctx, callRequest("search_code", map[string]interface{}{
			"query":   "x",
			"filters": map[string]interface{}{"min_score": 1.5},
		}))
		requireCode(t, err, ErrorCodeInvalidParams)
	})
}

func TestHandleRemoveFile(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, err := s.handleIndexFile(ctx, callRequest("index_file", map[string]interface{}{
		"path":    "/src/store.go",
		"content": source,
	}))
	require.NoError(t, err)

	result, err := s.handleRemoveFile(ctx, callRequest("remove_file", map[string]interface{}{"path": "/src/store.go"}))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, result)["removed"])

	records, err := s.app.Hybrid.Records(ctx, "/src/store.go")
	require.NoError(t, err)
	assert.Empty(t, records)

	_, err = s.handleRemoveFile(ctx, callRequest("remove_file", nil))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestHandleHealthStatusAndReconcile(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	result, err := s.handleHealthStatus(ctx, callRequest("health_status", nil))
	require.NoError(t, err)
	out := decode(t, result)
	stores := out["stores"].(map[string]interface{})
	assert.Equal(t, "UP", stores["vector"].(map[string]interface{})["status"])
	assert.Equal(t, "UP", stores["graph"].(map[string]interface{})["status"])
	assert.Len(t, out["tiers"], 1)

	result, err = s.handleReconcile(ctx, callRequest("reconcile", nil))
	require.NoError(t, err)
	assert.Equal(t, float64(0), decode(t, result)["pending"])
}

func TestToolSchemas(t *testing.T) {
	tools := []mcp.Tool{
		indexFileTool(),
		indexDirectoryTool(),
		removeFileTool(),
		searchCodeTool(),
		healthStatusTool(),
		reconcileTool(),
	}
	seen := map[string]bool{}
	for _, tool := range tools {
		assert.NotEmpty(t, tool.Description, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type, tool.Name)
		assert.False(t, seen[tool.Name], "duplicate tool %s", tool.Name)
		seen[tool.Name] = true
		for _, req := range tool.InputSchema.Required {
			assert.Contains(t, tool.InputSchema.Properties, req, tool.Name)
		}
	}
}
