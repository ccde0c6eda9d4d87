// Package vector provides the L4 semantic tier: drivers that store embeddings
// for committed memory items, and the Indexer the sync engine notifies after
// each durable commit.
package vector

import "context"

// Document is the vector-tier form of a committed memory item. Only
// identifying metadata is kept alongside the embedding; the payload itself
// lives in the durable tier.
type Document struct {
	// ID is the storage key ("namespace/name").
	ID string

	Namespace string
	Version   uint64
	Checksum  string

	// Embedding is the vector representation of the payload.
	Embedding []float32
}

// QueryResult represents a search result with similarity score.
type QueryResult struct {
	Document

	// Score represents the similarity score (higher = more similar).
	Score float32
}

// Driver handles storage and retrieval of vector embeddings.
type Driver interface {
	// Add stores documents with their embeddings.
	// If a document with the same ID already exists, implementers should update
	// the document.
	Add(ctx context.Context, docs []Document) error

	// Query finds the topK most similar documents to the given embedding.
	Query(ctx context.Context, embedding []float32, topK int) ([]QueryResult, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the driver.
	Close() error
}
