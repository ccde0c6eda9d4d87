// Package search provides semantic search over committed memory items. It is
// used by both the REST API endpoint and the MCP server tool.
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/strata/pkg/embeddings"
	"github.com/papercomputeco/strata/pkg/manager"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/utils"
	"github.com/papercomputeco/strata/pkg/vector"
)

const (
	defaultTopK = 5
	maxTopK     = 100

	previewLen = 240
)

// Reader loads the current payload for a search hit.
type Reader interface {
	Get(ctx context.Context, key memory.Key) (*manager.GetResult, error)
}

// SearchInput represents the input arguments for a search request.
type SearchInput struct {
	Query     string `json:"query"`
	TopK      int    `json:"top_k,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// SearchResult represents a single search result.
type SearchResult struct {
	Namespace string  `json:"namespace"`
	Key       string  `json:"key"`
	Score     float32 `json:"score"`

	// IndexedVersion is the version the embedding was computed from.
	IndexedVersion uint64 `json:"indexed_version"`

	// Version and Preview reflect the current value, which may be newer than
	// the indexed one.
	Version uint64 `json:"version"`
	Preview string `json:"preview"`
	Stale   bool   `json:"stale"`
}

// SearchOutput represents the output of a search operation.
type SearchOutput struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
	Count   int            `json:"count"`
}

// Searcher embeds queries and resolves vector hits back to memory items.
type Searcher struct {
	embedder embeddings.Embedder
	driver   vector.Driver
	reader   Reader
	logger   *slog.Logger
}

func NewSearcher(embedder embeddings.Embedder, driver vector.Driver, reader Reader, logger *slog.Logger) *Searcher {
	return &Searcher{
		embedder: embedder,
		driver:   driver,
		reader:   reader,
		logger:   logger,
	}
}

// Search embeds the query text, queries the vector store for similar
// documents, then reads the current value of each hit through the reader.
// Hits whose key no longer resolves are skipped.
func (s *Searcher) Search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	topK := in.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	s.logger.Debug("search request",
		"query", in.Query,
		"top_k", topK,
		"namespace", in.Namespace,
	)

	queryEmbedding, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results, err := s.driver.Query(ctx, queryEmbedding, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vector store: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, result := range results {
		if in.Namespace != "" && result.Namespace != in.Namespace {
			continue
		}

		hit, ok := s.resolve(ctx, result)
		if !ok {
			continue
		}
		out = append(out, hit)
	}

	return &SearchOutput{
		Query:   in.Query,
		Results: out,
		Count:   len(out),
	}, nil
}

func (s *Searcher) resolve(ctx context.Context, result vector.QueryResult) (SearchResult, bool) {
	key, err := memory.ParseKey(result.ID)
	if err != nil {
		s.logger.Warn("skipping vector hit with malformed key", "id", result.ID, "error", err)
		return SearchResult{}, false
	}

	got, err := s.reader.Get(ctx, key)
	if err != nil {
		s.logger.Warn("failed to load search hit", "key", result.ID, "error", err)
		return SearchResult{}, false
	}
	if !got.Found {
		return SearchResult{}, false
	}

	return SearchResult{
		Namespace:      key.Namespace,
		Key:            key.Name,
		Score:          result.Score,
		IndexedVersion: result.Version,
		Version:        got.Version,
		Preview:        Preview(got.Payload),
		Stale:          got.Stale,
	}, true
}

// Preview truncates payload to a short, rune-safe string.
func Preview(payload []byte) string {
	return utils.Truncate(string(payload), previewLen)
}
