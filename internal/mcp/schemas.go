package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// indexFileTool returns the tool definition for index_file
func indexFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_file",
		Description: "Chunk, embed and write one source file into the vector and graph stores",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the file; also its identity in both stores",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "File content to index instead of reading path from disk",
				},
				"language": map[string]interface{}{
					"type":        "string",
					"description": "Language override; detected from the extension when omitted",
				},
			},
			Required: []string{"path"},
		},
	}
}

// indexDirectoryTool returns the tool definition for index_directory
func indexDirectoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_directory",
		Description: "Index every eligible source file under a directory, skipping unchanged files",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the directory to index",
				},
				"force_reindex": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, re-index files whose content hash is unchanged",
					"default":     false,
				},
				"include_tests": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index test files and test directories",
					"default":     false,
				},
				"include_vendor": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, index vendor/ and node_modules/",
					"default":     false,
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Files indexed concurrently (default: number of CPUs)",
					"minimum":     1,
					"maximum":     64,
				},
			},
			Required: []string{"path"},
		},
	}
}

// removeFileTool returns the tool definition for remove_file
func removeFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "remove_file",
		Description: "Delete a file's chunks from both stores and the record catalog",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Path the file was indexed under",
				},
			},
			Required: []string{"path"},
		},
	}
}

// searchCodeTool returns the tool definition for search_code
func searchCodeTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_code",
		Description: "Semantic search over indexed chunks",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Natural language or code query",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     10,
					"minimum":     1,
					"maximum":     100,
				},
				"filters": map[string]interface{}{
					"type":        "object",
					"description": "Optional filters to narrow search",
					"properties": map[string]interface{}{
						"file_path": map[string]interface{}{
							"type":        "string",
							"description": "Only chunks of this file",
						},
						"language": map[string]interface{}{
							"type":        "string",
							"description": "Only chunks of this language (go, python, javascript, ...)",
						},
						"chunk_kind": map[string]interface{}{
							"type":        "string",
							"description": "Only chunks of this kind",
							"enum":        []string{"function", "class", "block"},
						},
						"tier": map[string]interface{}{
							"type":        "string",
							"description": "Compare against vectors of this embedding tier instead of the query's tier",
						},
						"min_score": map[string]interface{}{
							"type":        "number",
							"description": "Minimum similarity score (0.0-1.0)",
							"minimum":     0.0,
							"maximum":     1.0,
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// healthStatusTool returns the tool definition for health_status
func healthStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "health_status",
		Description: "Report store connectivity, embedding tier health, cache statistics and chunk status counts",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// reconcileTool returns the tool definition for reconcile
func reconcileTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reconcile",
		Description: "Delete graph data left behind by failed graph deletes, then replay pending graph writes for chunks that only reached the vector store",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
