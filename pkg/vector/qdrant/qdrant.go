// Package qdrant provides a vector driver backed by a Qdrant server over gRPC.
package qdrant

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/strata/pkg/vector"
)

const (
	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	// DefaultCollection is the collection name used when none is configured.
	DefaultCollection = "strata"

	payloadKey       = "key"
	payloadNamespace = "namespace"
	payloadVersion   = "version"
	payloadChecksum  = "checksum"
)

// Config holds configuration for the Qdrant driver.
type Config struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool

	// Collection defaults to DefaultCollection.
	Collection string

	// Dimensions is the embedding size the collection is created with.
	Dimensions uint
}

// Driver implements vector.Driver using Qdrant.
type Driver struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewDriver connects to Qdrant and creates the collection if it is missing.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Host == "" {
		return nil, fmt.Errorf("qdrant host is required")
	}
	if c.Dimensions == 0 {
		return nil, fmt.Errorf("qdrant embedding dimensions cannot be 0, must be configured")
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   c.Host,
		Port:   c.Port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", vector.ErrConnection, err)
	}

	exists, err := client.CollectionExists(ctx, c.Collection)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: checking collection: %v", vector.ErrConnection, err)
	}

	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: c.Collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(c.Dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("creating collection %s: %w", c.Collection, err)
		}
	}

	logger.Info("qdrant vector driver initialized",
		"host", c.Host,
		"port", c.Port,
		"collection", c.Collection,
		"created", !exists,
	)

	return &Driver{
		client:     client,
		collection: c.Collection,
		logger:     logger,
	}, nil
}

// PointID maps a memory key to a stable Qdrant point ID. Qdrant only accepts
// UUIDs or integers, so keys are hashed into a name-based UUID.
func PointID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("strata:"+key)).String()
}

// Add upserts documents, skipping any older than the stored point.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}

	ids := make([]*qdrant.PointId, len(docs))
	for i, doc := range docs {
		ids[i] = qdrant.NewIDUUID(PointID(doc.ID))
	}

	existing, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            ids,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return fmt.Errorf("reading existing points: %w", err)
	}

	stored := make(map[string]uint64, len(existing))
	for _, p := range existing {
		stored[p.GetPayload()[payloadKey].GetStringValue()] = uint64(p.GetPayload()[payloadVersion].GetIntegerValue())
	}

	points := make([]*qdrant.PointStruct, 0, len(docs))
	for i, doc := range docs {
		if v, ok := stored[doc.ID]; ok && v > doc.Version {
			d.logger.Debug("skipping older vector document", "key", doc.ID, "version", doc.Version)
			continue
		}

		points = append(points, &qdrant.PointStruct{
			Id:      ids[i],
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadKey:       doc.ID,
				payloadNamespace: doc.Namespace,
				payloadVersion:   int64(doc.Version),
				payloadChecksum:  doc.Checksum,
			}),
		})
	}

	if len(points) == 0 {
		return nil
	}

	_, err = d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(points))
	return nil
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		topK = 10
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		results = append(results, vector.QueryResult{
			Document: vector.Document{
				ID:        payload[payloadKey].GetStringValue(),
				Namespace: payload[payloadNamespace].GetStringValue(),
				Version:   uint64(payload[payloadVersion].GetIntegerValue()),
				Checksum:  payload[payloadChecksum].GetStringValue(),
			},
			Score: p.GetScore(),
		})
	}

	return results, nil
}

// Delete removes documents by their IDs.
func (d *Driver) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewIDUUID(PointID(id))
	}

	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("deleting points: %w", err)
	}

	return nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

var _ vector.Driver = (*Driver)(nil)
