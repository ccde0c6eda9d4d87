// Package checksum stamps memory items with a content digest and the next
// version, and verifies digests on read.
//
// The digest is the 64-bit xxhash of the uncompressed payload rendered as 16
// lowercase hex characters.
package checksum

import (
	"encoding/binary"
	"encoding/hex"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/papercomputeco/strata/pkg/memory"
)

// Size is the width of a rendered checksum.
const Size = 16

// Sum returns the digest of payload.
func Sum(payload []byte) string {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], xxhash.Sum64(payload))
	return hex.EncodeToString(buf[:])
}

// Valid reports whether the item's stored checksum matches its payload.
func Valid(item *memory.Item) bool {
	if item == nil {
		return false
	}

	return item.Checksum == Sum(item.Payload)
}

// Stamp builds a new dirty item for key at version prev+1. The payload is
// copied.
func Stamp(key memory.Key, payload []byte, prev uint64, origin memory.Tier, now time.Time) *memory.Item {
	p := make([]byte, len(payload))
	copy(p, payload)

	return &memory.Item{
		Key:          key,
		Payload:      p,
		Version:      prev + 1,
		Checksum:     Sum(p),
		TierOrigin:   origin,
		LastModified: now,
		Dirty:        true,
	}
}

// Restamp moves an item past a competing version without touching its
// payload. Used when a same-version collision is detected.
func Restamp(item *memory.Item, past uint64, now time.Time) *memory.Item {
	c := item.Clone()
	c.Version = past + 1
	c.Checksum = Sum(c.Payload)
	c.LastModified = now
	c.Dirty = true

	return c
}

// Same reports whether two items carry identical content.
func Same(a, b *memory.Item) bool {
	if a == nil || b == nil {
		return false
	}

	return a.Checksum == b.Checksum
}
