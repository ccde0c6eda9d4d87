// Package inmemory provides an in-memory durable driver for tests and
// single-process development setups.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/memory"
)

// Driver implements durable.Driver using a map.
type Driver struct {
	mu      sync.RWMutex
	records map[string]*durable.Record
	writes  map[string]int
}

// NewDriver creates a new in-memory durable driver.
func NewDriver() *Driver {
	return &Driver{
		records: make(map[string]*durable.Record),
		writes:  make(map[string]int),
	}
}

// ReadRecord returns a copy of the record stored under key.
func (d *Driver) ReadRecord(_ context.Context, key string) (*durable.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rec, ok := d.records[key]
	if !ok {
		return nil, memory.NotFoundError{Key: key}
	}

	return copyRecord(rec), nil
}

// WriteRecord stores rec if its version is higher than the stored one.
func (d *Driver) WriteRecord(_ context.Context, rec *durable.Record) error {
	if rec == nil {
		return fmt.Errorf("cannot write nil record")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.records[rec.Key]; ok && cur.Version >= rec.Version {
		return fmt.Errorf("%w: %s already holds version %d", memory.ErrVersionConflict, rec.Key, cur.Version)
	}

	d.records[rec.Key] = copyRecord(rec)
	d.writes[rec.Key]++

	return nil
}

// Writes returns the number of successful writes for key.
func (d *Driver) Writes(key string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.writes[key]
}

// Count returns the number of stored records.
func (d *Driver) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Close is a no-op for the in-memory driver.
func (d *Driver) Close() error {
	return nil
}

func copyRecord(rec *durable.Record) *durable.Record {
	out := *rec
	out.Payload = append([]byte(nil), rec.Payload...)
	return &out
}

var _ durable.Driver = (*Driver)(nil)
