package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/hybridindex/internal/app"
)

// ServerName is the MCP server name
const ServerName = "hybridindex"

// Server exposes the indexing service as MCP tools
type Server struct {
	mcp    *server.MCPServer
	app    *app.App
	logger *slog.Logger
}

// NewServer creates an MCP server over an opened application. The caller
// keeps ownership of a and closes it after Serve returns.
func NewServer(a *app.App, version string) *Server {
	s := &Server{
		mcp:    server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false)),
		app:    a,
		logger: a.Logger.With(slog.String("component", "mcp")),
	}
	s.registerTools()
	return s
}

// Serve runs the MCP protocol on stdio and blocks until the client
// disconnects or ctx ends.
func (s *Server) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcp)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(indexFileTool(), s.handleIndexFile)
	s.mcp.AddTool(indexDirectoryTool(), s.handleIndexDirectory)
	s.mcp.AddTool(removeFileTool(), s.handleRemoveFile)
	s.mcp.AddTool(searchCodeTool(), s.handleSearchCode)
	s.mcp.AddTool(healthStatusTool(), s.handleHealthStatus)
	s.mcp.AddTool(reconcileTool(), s.handleReconcile)
}
