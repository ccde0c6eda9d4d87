// Package vectorutils builds vector drivers and indexers from provider names.
package vectorutils

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	"github.com/papercomputeco/strata/pkg/embeddings"
	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/vector/chromem"
	"github.com/papercomputeco/strata/pkg/vector/nop"
	"github.com/papercomputeco/strata/pkg/vector/qdrant"
	"github.com/papercomputeco/strata/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	// ProviderType is one of "sqlite-vec", "qdrant" or "chromem".
	ProviderType string

	// Target is the sqlite-vec database path, the qdrant "host:port",
	// or the chromem persistence directory.
	Target string

	Dimensions uint
	Logger     *slog.Logger
}

func NewVectorDriver(ctx context.Context, o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite-vec", "sqlitevec":
		return sqlitevec.NewDriver(sqlitevec.Config{
			DBPath:     o.Target,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "qdrant":
		host, port, err := splitHostPort(o.Target, qdrant.DefaultPort)
		if err != nil {
			return nil, err
		}
		return qdrant.NewDriver(ctx, qdrant.Config{
			Host:       host,
			Port:       port,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "chromem":
		return chromem.NewDriver(chromem.Config{
			Path:     o.Target,
			Compress: true,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// NewIndexer returns the no-op indexer when provider is empty or "none";
// otherwise it wires the embedder into a freshly built driver.
func NewIndexer(ctx context.Context, embedder embeddings.Embedder, o *NewVectorDriverOpts) (vector.Indexer, error) {
	if o.ProviderType == "" || o.ProviderType == "none" {
		return nop.NewIndexer(), nil
	}

	driver, err := NewVectorDriver(ctx, o)
	if err != nil {
		return nil, err
	}

	return vector.NewEmbeddingIndexer(embedder, driver, o.Logger)
}

func splitHostPort(target string, defaultPort int) (string, int, error) {
	if target == "" {
		return "", 0, fmt.Errorf("vector store target is required")
	}

	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		return target, defaultPort, nil
	}

	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid port in %q: %w", target, err)
	}

	return host, port, nil
}
