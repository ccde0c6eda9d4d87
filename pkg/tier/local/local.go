// Package local provides the L1 process-local tier backed by ristretto.
//
// Entries are cost-bounded by payload size; when the cache is full ristretto's
// TinyLFU policy decides admission and eviction. L1 is a near cache in front
// of L2, so an item that is not admitted or is evicted only costs a slower read.
package local

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/papercomputeco/strata/pkg/keylock"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tier"
)

const (
	// DefaultMaxBytes is the default total payload budget.
	DefaultMaxBytes int64 = 64 << 20

	// DefaultMaxItemBytes is the default per-item payload limit.
	DefaultMaxItemBytes int64 = 1 << 20

	// itemOverhead approximates the bookkeeping cost of one entry.
	itemOverhead int64 = 128
)

// Config holds configuration for the L1 store.
type Config struct {
	// MaxBytes is the total cost budget. Defaults to DefaultMaxBytes.
	MaxBytes int64

	// MaxItemBytes rejects larger payloads with memory.ErrCapacityExceeded.
	// Defaults to DefaultMaxItemBytes.
	MaxItemBytes int64
}

// Store implements tier.Store on a ristretto cache.
type Store struct {
	config Config
	cache  *ristretto.Cache
	locks  *keylock.Locker
}

// NewStore creates an L1 store.
func NewStore(c Config) (*Store, error) {
	if c.MaxBytes <= 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.MaxItemBytes <= 0 {
		c.MaxItemBytes = DefaultMaxItemBytes
	}
	if c.MaxItemBytes > c.MaxBytes {
		return nil, fmt.Errorf("max item bytes %d exceeds max bytes %d", c.MaxItemBytes, c.MaxBytes)
	}

	// ristretto recommends ~10x counters per expected item; assume 1KiB items.
	counters := c.MaxBytes / 1024 * 10
	if counters < 1000 {
		counters = 1000
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: counters,
		MaxCost:     c.MaxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ristretto cache: %w", err)
	}

	return &Store{
		config: c,
		cache:  cache,
		locks:  keylock.New(0),
	}, nil
}

// Get retrieves a copy of the item under key.
func (s *Store) Get(_ context.Context, key string) (*memory.Item, error) {
	item, ok := s.load(key)
	if !ok {
		return nil, memory.NotFoundError{Key: key}
	}

	return item.Clone(), nil
}

// Put stores a copy of item. Same-key writes are serialized so the version
// check and the set are atomic with respect to each other.
func (s *Store) Put(_ context.Context, item *memory.Item) error {
	if item == nil {
		return fmt.Errorf("cannot store nil item")
	}
	if int64(item.Size()) > s.config.MaxItemBytes {
		return fmt.Errorf("%w: payload of %d bytes exceeds L1 limit of %d", memory.ErrCapacityExceeded, item.Size(), s.config.MaxItemBytes)
	}

	key := item.Key.String()
	unlock := s.locks.Lock(key)
	defer unlock()

	if cur, ok := s.load(key); ok && !tier.Accepts(cur, item) {
		return fmt.Errorf("%w: L1 holds %s at version %d, got %d", memory.ErrVersionConflict, key, cur.Version, item.Version)
	}

	// A dropped set only means the near cache misses; L2 still holds the item.
	s.cache.Set(key, item.Clone(), int64(item.Size())+itemOverhead)
	s.cache.Wait()

	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	s.cache.Del(key)
	return nil
}

// Close stops the cache's background goroutines.
func (s *Store) Close() error {
	s.cache.Close()
	return nil
}

func (s *Store) load(key string) (*memory.Item, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false
	}

	item, ok := v.(*memory.Item)
	return item, ok
}

var _ tier.Store = (*Store)(nil)
