package vector

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/strata/pkg/embeddings"
)

// Metadata identifies the committed item being indexed.
type Metadata struct {
	Namespace string
	Version   uint64
	Checksum  string
}

// Indexer is the narrow interface the sync engine uses to notify the vector
// tier after a durable commit. It is never queried by the engine.
type Indexer interface {
	Upsert(ctx context.Context, key string, payload []byte, meta Metadata) error
}

// EmbeddingIndexer embeds payloads with an Embedder and stores them in a Driver.
type EmbeddingIndexer struct {
	embedder embeddings.Embedder
	driver   Driver
	logger   *slog.Logger
}

// NewEmbeddingIndexer creates an Indexer from an embedder and driver.
func NewEmbeddingIndexer(embedder embeddings.Embedder, driver Driver, logger *slog.Logger) (*EmbeddingIndexer, error) {
	if embedder == nil || driver == nil {
		return nil, ErrNotConfigured
	}

	return &EmbeddingIndexer{
		embedder: embedder,
		driver:   driver,
		logger:   logger,
	}, nil
}

// Upsert embeds payload and stores it under key.
func (i *EmbeddingIndexer) Upsert(ctx context.Context, key string, payload []byte, meta Metadata) error {
	emb, err := i.embedder.Embed(ctx, string(payload))
	if err != nil {
		return fmt.Errorf("embedding %s: %w", key, err)
	}

	doc := Document{
		ID:        key,
		Namespace: meta.Namespace,
		Version:   meta.Version,
		Checksum:  meta.Checksum,
		Embedding: emb,
	}
	if err := i.driver.Add(ctx, []Document{doc}); err != nil {
		return fmt.Errorf("indexing %s: %w", key, err)
	}

	i.logger.Debug("indexed memory item",
		"key", key,
		"version", meta.Version,
		"dimensions", len(emb),
	)

	return nil
}

// Close closes the embedder and the driver.
func (i *EmbeddingIndexer) Close() error {
	embErr := i.embedder.Close()
	drvErr := i.driver.Close()
	if embErr != nil {
		return embErr
	}
	return drvErr
}

var _ Indexer = (*EmbeddingIndexer)(nil)
