// Package mcp implements the Model Context Protocol (MCP) server for hybridindex.
//
// The server exposes six tools to AI coding assistants:
//   - index_file: chunk, embed and write one file into both stores
//   - index_directory: index a tree, skipping files whose content is unchanged
//   - remove_file: delete a file from both stores
//   - search_code: semantic search over indexed chunks
//   - health_status: store, tier and cache health
//   - reconcile: finish owed graph deletes, then replay graph writes of
//     PARTIAL_VECTOR_ONLY chunks
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Logs go to stderr; stdout is reserved for the protocol.
//
// # Tool: index_file
//
//	Request:
//	{
//	  "name": "index_file",
//	  "arguments": {"path": "/src/app/auth.go"}
//	}
//
//	Response:
//	{
//	  "path": "/src/app/auth.go",
//	  "version": 1718000000000000001,
//	  "chunks": 12,
//	  "complete": 11,
//	  "partial": 1,
//	  "failed": 0,
//	  "degraded": false,
//	  "superseded": false,
//	  "incomplete": [
//	    {"chunk_id": "...", "position": 4, "status": "PARTIAL_VECTOR_ONLY", "error": "..."}
//	  ]
//	}
//
// A request overtaken by a newer one for the same path answers with
// "superseded": true rather than an error.
//
// # Tool: search_code
//
//	Request:
//	{
//	  "name": "search_code",
//	  "arguments": {
//	    "query": "token refresh",
//	    "limit": 5,
//	    "filters": {"language": "go", "chunk_kind": "function"}
//	  }
//	}
//
// Unless filters.tier is set, only vectors produced by the tier that
// embedded the query are compared.
//
// # Error Handling
//
// Failures are returned as MCPError values:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error
//   - -32001: Path not found
//   - -32002: Indexing in progress
//   - -32003: Store unavailable
//   - -32004: Empty query
//   - -32005: No embedding tier available
package mcp
