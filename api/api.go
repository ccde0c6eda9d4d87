package api

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/strata/api/mcp"
	"github.com/papercomputeco/strata/pkg/manager"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/syncer"
)

// Memory is the manager surface served over HTTP.
type Memory interface {
	Put(ctx context.Context, key memory.Key, payload []byte) (*manager.PutResult, error)
	Get(ctx context.Context, key memory.Key) (*manager.GetResult, error)
	Flush(ctx context.Context, key memory.Key) (*manager.FlushResult, error)
	Invalidate(ctx context.Context, key memory.Key) error
	Stats() syncer.Stats
}

// Server is the API server for reading and writing tiered memory.
type Server struct {
	config    Config
	memory    Memory
	logger    *slog.Logger
	app       *fiber.App
	mcpServer *mcp.Server
}

// NewServer creates a new API server.
func NewServer(config Config, mem Memory, logger *slog.Logger) (*Server, error) {
	fc := fiber.Config{
		DisableStartupMessage: true,
	}
	if config.BodyLimit > 0 {
		fc.BodyLimit = config.BodyLimit
	}
	app := fiber.New(fc)

	mcpServer, err := mcp.NewServer(mcp.Config{
		Memory:   mem,
		Searcher: config.Searcher,
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("could not create MCP server: %w", err)
	}

	s := &Server{
		config:    config,
		memory:    mem,
		logger:    logger,
		app:       app,
		mcpServer: mcpServer,
	}

	app.Get("/ping", s.handlePing)

	v1 := app.Group("/v1")
	v1.Put("/memory/:namespace/:key", s.handlePut)
	v1.Get("/memory/:namespace/:key", s.handleGet)
	v1.Post("/memory/:namespace/:key/flush", s.handleFlush)
	v1.Delete("/memory/:namespace/:key/cache", s.handleInvalidate)
	v1.Get("/sync/stats", s.handleStats)
	v1.Get("/search", s.handleSearch)

	app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))

	return s, nil
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		"listen", s.config.ListenAddr,
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
