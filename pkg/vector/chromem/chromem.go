// Package chromem provides an embedded vector driver backed by chromem-go.
// No server is needed; the collection lives in process memory and is
// optionally persisted to a directory.
package chromem

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/papercomputeco/strata/pkg/vector"
)

const (
	// DefaultCollection is the collection name used when none is configured.
	DefaultCollection = "strata"

	metaNamespace = "namespace"
	metaVersion   = "version"
	metaChecksum  = "checksum"
)

// Config holds configuration for the chromem driver.
type Config struct {
	// Path persists the database to this directory. Empty keeps it in memory.
	Path string

	// Compress gzips persisted documents.
	Compress bool

	// Collection defaults to DefaultCollection.
	Collection string
}

// Driver implements vector.Driver using chromem-go.
type Driver struct {
	mu     sync.Mutex
	db     *chromem.DB
	col    *chromem.Collection
	logger *slog.Logger
}

// NewDriver opens (or creates) the chromem collection.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	name := c.Collection
	if name == "" {
		name = DefaultCollection
	}

	db := chromem.NewDB()
	if c.Path != "" {
		var err error
		db, err = chromem.NewPersistentDB(c.Path, c.Compress)
		if err != nil {
			return nil, fmt.Errorf("%w: opening chromem at %s: %v", vector.ErrConnection, c.Path, err)
		}
	}

	// Embeddings are always supplied by the indexer, so no embedding func.
	col, err := db.GetOrCreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	logger.Info("chromem vector driver initialized",
		"collection", name,
		"persistent", c.Path != "",
	)

	return &Driver{
		db:     db,
		col:    col,
		logger: logger,
	}, nil
}

// Add stores documents, skipping any that are older than the stored copy.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, doc := range docs {
		if existing, err := d.col.GetByID(ctx, doc.ID); err == nil {
			if v, _ := strconv.ParseUint(existing.Metadata[metaVersion], 10, 64); v > doc.Version {
				d.logger.Debug("skipping older vector document", "key", doc.ID, "version", doc.Version)
				continue
			}
		}

		err := d.col.AddDocument(ctx, chromem.Document{
			ID:        doc.ID,
			Content:   doc.ID,
			Embedding: doc.Embedding,
			Metadata: map[string]string{
				metaNamespace: doc.Namespace,
				metaVersion:   strconv.FormatUint(doc.Version, 10),
				metaChecksum:  doc.Checksum,
			},
		})
		if err != nil {
			return fmt.Errorf("add document %s: %w", doc.ID, err)
		}
	}

	return nil
}

// Query returns up to topK documents ordered by cosine similarity.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// chromem-go requires nResults <= collection size
	n := min(topK, d.col.Count())
	if n == 0 {
		return nil, nil
	}

	results, err := d.col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	out := make([]vector.QueryResult, 0, len(results))
	for _, r := range results {
		version, _ := strconv.ParseUint(r.Metadata[metaVersion], 10, 64)
		out = append(out, vector.QueryResult{
			Document: vector.Document{
				ID:        r.ID,
				Namespace: r.Metadata[metaNamespace],
				Version:   version,
				Checksum:  r.Metadata[metaChecksum],
				Embedding: r.Embedding,
			},
			Score: r.Similarity,
		})
	}

	return out, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.col.Delete(ctx, nil, nil, ids...); err != nil {
		return fmt.Errorf("chromem delete: %w", err)
	}
	return nil
}

// Close is a no-op; persistent databases write through on every add.
func (d *Driver) Close() error {
	return nil
}

var _ vector.Driver = (*Driver)(nil)
