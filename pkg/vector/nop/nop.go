// Package nop provides an Indexer that discards everything.
package nop

import (
	"context"

	"github.com/papercomputeco/strata/pkg/vector"
)

// Indexer drops every upsert.
type Indexer struct{}

// NewIndexer returns a no-op indexer.
func NewIndexer() *Indexer {
	return &Indexer{}
}

func (*Indexer) Upsert(context.Context, string, []byte, vector.Metadata) error {
	return nil
}

var _ vector.Indexer = (*Indexer)(nil)
