// Package durable defines the L3 durable-tier contract. The interface is
// intentionally minimal so any backend that can do a conditional write is
// pluggable.
package durable

import (
	"context"
	"time"
)

// Record is the durable form of a memory item. Payload holds the encoded
// (possibly compressed) frame; Checksum always covers the uncompressed payload.
type Record struct {
	Key       string
	Namespace string
	Payload   []byte
	Version   uint64
	Checksum  string
	UpdatedAt time.Time
}

// Driver persists records.
type Driver interface {
	// ReadRecord returns the record stored under key, or memory.NotFoundError.
	// Backend failures wrap memory.ErrDurableUnavailable.
	ReadRecord(ctx context.Context, key string) (*Record, error)

	// WriteRecord stores rec only if no record exists for rec.Key or the
	// stored version is lower than rec.Version. Otherwise it returns
	// memory.ErrVersionConflict. Backend failures wrap
	// memory.ErrDurableUnavailable.
	WriteRecord(ctx context.Context, rec *Record) error

	// Close releases driver resources.
	Close() error
}
