// Package api provides the HTTP front door to the tiered memory manager.
package api

import (
	"github.com/papercomputeco/strata/api/search"
)

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":7700")
	ListenAddr string

	// BodyLimit caps request bodies in bytes. Zero keeps fiber's default.
	BodyLimit int

	// Searcher enables GET /v1/search and the memory_search MCP tool.
	Searcher *search.Searcher
}
