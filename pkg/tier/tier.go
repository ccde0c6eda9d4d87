// Package tier defines the capability interface implemented by every volatile
// tier adapter. The manager is polymorphic over Store and never refers to a
// concrete adapter type.
package tier

import (
	"context"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Store is a volatile tier (L1 process-local, L2 shared cache).
//
// Implementations must:
//   - return memory.NotFoundError from Get for absent keys,
//   - refuse a Put that Accepts rejects with memory.ErrVersionConflict,
//   - refuse oversized payloads with memory.ErrCapacityExceeded,
//   - hand out copies, never shared payload buffers.
type Store interface {
	// Get retrieves the item stored under key.
	Get(ctx context.Context, key string) (*memory.Item, error)

	// Put stores item under item.Key.String().
	Put(ctx context.Context, item *memory.Item) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases adapter resources.
	Close() error
}

// Accepts reports whether next may replace cur. A newer version always wins.
// An equal version is accepted only with identical content, which lets the
// sync engine clear the dirty flag in place without ever letting two
// different payloads share a version.
func Accepts(cur, next *memory.Item) bool {
	if cur == nil {
		return true
	}
	if next.Version != cur.Version {
		return next.Version > cur.Version
	}

	return next.Checksum == cur.Checksum
}
