// Package mcp provides an MCP (Model Context Protocol) server exposing the
// tiered memory manager as agent tools.
package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/strata/api/search"
	"github.com/papercomputeco/strata/pkg/manager"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/utils"
)

// Memory is the subset of the manager the tools call.
type Memory interface {
	Put(ctx context.Context, key memory.Key, payload []byte) (*manager.PutResult, error)
	Get(ctx context.Context, key memory.Key) (*manager.GetResult, error)
	Flush(ctx context.Context, key memory.Key) (*manager.FlushResult, error)
}

type Config struct {
	// Memory serves memory_get, memory_put and memory_flush.
	Memory Memory

	// Searcher enables the memory_search tool when set.
	Searcher *search.Searcher

	// Noop for empty MCP server
	Noop bool

	Logger *slog.Logger
}

type Server struct {
	config    Config
	mcpServer *mcp.Server
	handler   *mcp.StreamableHTTPHandler
}

// NewServer creates a new MCP server with the memory tools.
func NewServer(c Config) (*Server, error) {
	s := &Server{
		config: c,
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "strata",
			Version: utils.Version,
		},
		&mcp.ServerOptions{},
	)

	if !c.Noop {
		if c.Memory == nil {
			return nil, errors.New("memory manager is required")
		}
		if c.Logger == nil {
			return nil, errors.New("logger is required")
		}

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryGetToolName,
			Description: memoryGetDescription,
		}, s.handleGet)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryPutToolName,
			Description: memoryPutDescription,
		}, s.handlePut)

		mcp.AddTool(mcpServer, &mcp.Tool{
			Name:        memoryFlushToolName,
			Description: memoryFlushDescription,
		}, s.handleFlush)

		if c.Searcher != nil {
			mcp.AddTool(mcpServer, &mcp.Tool{
				Name:        memorySearchToolName,
				Description: memorySearchDescription,
			}, s.handleSearch)
		}
	}

	s.mcpServer = mcpServer

	// Create a streamable HTTP net/http handler for stateless operations
	s.handler = mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server {
			return mcpServer
		},
		&mcp.StreamableHTTPOptions{
			Stateless: true,
		},
	)

	return s, nil
}

// Handler returns the HTTP handler for the MCP server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// MCPServer returns the underlying MCP server, used for in-memory transports.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcpServer
}
