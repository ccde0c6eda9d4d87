// Package memory defines the data model shared by every strata tier: the
// memory item, its namespaced key, the tier identifiers, and the error taxonomy.
//
// An Item is the unit of storage. Its version is strictly increasing per key
// and is authoritative for ordering; LastModified is advisory only. The
// checksum always covers the uncompressed payload so that a change of
// compression algorithm never looks like a conflicting write.
package memory

import (
	"time"
)

// Tier identifies a storage layer.
type Tier int

const (
	// TierNone means no tier holds the item.
	TierNone Tier = iota

	// L1 is the process-local in-memory store.
	L1

	// L2 is the shared fast cache.
	L2

	// L3 is the durable store.
	L3
)

func (t Tier) String() string {
	switch t {
	case L1:
		return "L1"
	case L2:
		return "L2"
	case L3:
		return "L3"
	default:
		return "none"
	}
}

// Item is a memory item as held by a tier.
type Item struct {
	Key          Key       `json:"key"`
	Payload      []byte    `json:"payload"`
	Version      uint64    `json:"version"`
	Checksum     string    `json:"checksum"`
	TierOrigin   Tier      `json:"tier_origin"`
	LastModified time.Time `json:"last_modified"`

	// Dirty is true while the item is committed to a volatile tier but not
	// yet confirmed by the durable tier.
	Dirty bool `json:"dirty"`
}

// Clone returns a deep copy so callers never share payload buffers with a tier.
func (i *Item) Clone() *Item {
	if i == nil {
		return nil
	}

	c := *i
	if i.Payload != nil {
		c.Payload = make([]byte, len(i.Payload))
		copy(c.Payload, i.Payload)
	}

	return &c
}

// Size is the number of payload bytes, used for capacity accounting.
func (i *Item) Size() int {
	if i == nil {
		return 0
	}

	return len(i.Payload)
}
