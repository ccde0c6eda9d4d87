// Package inmemory provides a map-backed tier.Store. It serves as the L2
// adapter for single-process deployments and as a test double for either
// volatile tier.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tier"
)

// Config holds capacity limits for the store. Zero disables a limit.
type Config struct {
	MaxItems     int
	MaxItemBytes int
}

// Store implements tier.Store using an in-memory map.
type Store struct {
	config Config

	// mu guards items
	mu    sync.RWMutex
	items map[string]*memory.Item
}

// NewStore creates a new in-memory store.
func NewStore(c Config) *Store {
	return &Store{
		config: c,
		items:  make(map[string]*memory.Item),
	}
}

// Get retrieves a copy of the item under key.
func (s *Store) Get(_ context.Context, key string) (*memory.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, ok := s.items[key]
	if !ok {
		return nil, memory.NotFoundError{Key: key}
	}

	return item.Clone(), nil
}

// Put stores a copy of item, enforcing version ordering and capacity.
func (s *Store) Put(_ context.Context, item *memory.Item) error {
	if item == nil {
		return fmt.Errorf("cannot store nil item")
	}
	if s.config.MaxItemBytes > 0 && item.Size() > s.config.MaxItemBytes {
		return fmt.Errorf("%w: payload of %d bytes exceeds %d", memory.ErrCapacityExceeded, item.Size(), s.config.MaxItemBytes)
	}

	key := item.Key.String()

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.items[key]
	if ok && !tier.Accepts(cur, item) {
		return fmt.Errorf("%w: %s holds version %d, got %d", memory.ErrVersionConflict, key, cur.Version, item.Version)
	}
	if !ok && s.config.MaxItems > 0 && len(s.items) >= s.config.MaxItems {
		return fmt.Errorf("%w: store holds %d items", memory.ErrCapacityExceeded, len(s.items))
	}

	s.items[key] = item.Clone()
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.items, key)
	return nil
}

// Len returns the number of stored items.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Corrupt flips a payload byte of a stored item without updating its
// checksum. Tests use it to exercise corruption fall-through.
func (s *Store) Corrupt(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.items[key]
	if !ok || len(item.Payload) == 0 {
		return false
	}

	item.Payload[0] ^= 0xff
	return true
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

var _ tier.Store = (*Store)(nil)
