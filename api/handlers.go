package api

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/strata/api/search"
	"github.com/papercomputeco/strata/pkg/memory"
)

const (
	headerVersion = "X-Strata-Version"
	headerStale   = "X-Strata-Stale"
	headerTier    = "X-Strata-Tier"
)

// PutResponse acknowledges a write.
type PutResponse struct {
	Version    uint64    `json:"version"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// GetResponse is the JSON form of a read. Payload is returned as text; use
// ?raw=true for the exact bytes.
type GetResponse struct {
	Payload  string `json:"payload"`
	Version  uint64 `json:"version"`
	Found    bool   `json:"found"`
	Stale    bool   `json:"stale"`
	TimedOut bool   `json:"timed_out"`
	Tier     string `json:"tier,omitempty"`
}

// FlushResponse reports the durable state of a key.
type FlushResponse struct {
	Committed bool   `json:"committed"`
	Version   uint64 `json:"version"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// keyParam copies the route params out of fiber's reusable buffers.
func keyParam(c *fiber.Ctx) memory.Key {
	return memory.Key{
		Namespace: param(c, "namespace"),
		Name:      param(c, "key"),
	}
}

func param(c *fiber.Ctx, name string) string {
	raw := c.Params(name)
	if v, err := url.PathUnescape(raw); err == nil {
		raw = v
	}
	return strings.Clone(raw)
}

// handlePut handles PUT /v1/memory/:namespace/:key. The request body is the payload.
func (s *Server) handlePut(c *fiber.Ctx) error {
	key := keyParam(c)

	res, err := s.memory.Put(c.UserContext(), key, bytes.Clone(c.Body()))
	if err != nil {
		return s.fail(c, "put", key, err)
	}

	return c.JSON(PutResponse{
		Version:    res.Version,
		AcceptedAt: res.AcceptedAt,
	})
}

// handleGet handles GET /v1/memory/:namespace/:key.
// Query parameters:
//   - raw (optional): return the payload bytes with metadata in headers
func (s *Server) handleGet(c *fiber.Ctx) error {
	key := keyParam(c)

	res, err := s.memory.Get(c.UserContext(), key)
	if err != nil {
		return s.fail(c, "get", key, err)
	}

	tier := ""
	if res.Found {
		tier = res.Tier.String()
	}

	if c.QueryBool("raw") {
		if !res.Found {
			if res.TimedOut {
				return c.Status(fiber.StatusGatewayTimeout).JSON(ErrorResponse{Error: "durable read timed out"})
			}
			return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "key not found"})
		}

		c.Set(headerVersion, strconv.FormatUint(res.Version, 10))
		c.Set(headerStale, strconv.FormatBool(res.Stale))
		c.Set(headerTier, tier)
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		return c.Send(res.Payload)
	}

	return c.JSON(GetResponse{
		Payload:  string(res.Payload),
		Version:  res.Version,
		Found:    res.Found,
		Stale:    res.Stale,
		TimedOut: res.TimedOut,
		Tier:     tier,
	})
}

// handleFlush handles POST /v1/memory/:namespace/:key/flush.
func (s *Server) handleFlush(c *fiber.Ctx) error {
	key := keyParam(c)

	res, err := s.memory.Flush(c.UserContext(), key)
	if err != nil {
		return s.fail(c, "flush", key, err)
	}

	return c.JSON(FlushResponse{
		Committed: res.Committed,
		Version:   res.Version,
	})
}

// handleInvalidate handles DELETE /v1/memory/:namespace/:key/cache. The
// durable copy and any pending write are untouched.
func (s *Server) handleInvalidate(c *fiber.Ctx) error {
	key := keyParam(c)

	if err := s.memory.Invalidate(c.UserContext(), key); err != nil {
		return s.fail(c, "invalidate", key, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// handleStats returns the sync engine counters.
func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.memory.Stats())
}

// handleSearch handles GET /v1/search requests.
// Query parameters:
//   - query (required): the search query text
//   - top_k (optional, default 5): number of results to return
//   - namespace (optional): restrict results to one namespace
func (s *Server) handleSearch(c *fiber.Ctx) error {
	if s.config.Searcher == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
			Error: "search is not configured: a vector store provider is required",
		})
	}

	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query parameter is required",
		})
	}

	topK := 0
	if topKStr := c.Query("top_k"); topKStr != "" {
		parsed, err := strconv.Atoi(topKStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "top_k must be a positive integer",
			})
		}
		topK = parsed
	}

	output, err := s.config.Searcher.Search(c.UserContext(), search.SearchInput{
		Query:     strings.Clone(query),
		TopK:      topK,
		Namespace: strings.Clone(c.Query("namespace")),
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Error: err.Error(),
		})
	}

	return c.JSON(output)
}
