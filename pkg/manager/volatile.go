package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/keylock"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tier"
)

// volatile is the L1/L2 pair. It is the sync engine's view of the manager.
type volatile struct {
	l1     tier.Store
	l2     tier.Store
	locks  *keylock.Locker
	logger *slog.Logger
}

// peek returns the freshest valid copy across L1 and L2, plus the highest
// version seen in either tier, corrupt copies included.
func (v *volatile) peek(ctx context.Context, key memory.Key) (*memory.Item, uint64, bool) {
	k := key.String()

	var (
		best    *memory.Item
		highest uint64
		seen    bool
	)

	for _, t := range []struct {
		name  string
		store tier.Store
	}{{"L1", v.l1}, {"L2", v.l2}} {
		item, err := t.store.Get(ctx, k)
		if err != nil {
			if !memory.IsNotFound(err) {
				v.logger.Debug("volatile read failed", "key", k, "tier", t.name, "error", err)
			}
			continue
		}

		seen = true
		if item.Version > highest {
			highest = item.Version
		}
		if !checksum.Valid(item) {
			continue
		}
		if best == nil || item.Version > best.Version {
			best = item
		}
	}

	return best, highest, seen
}

// install writes a freshly stamped item to L1 then L2. A capacity failure in
// L2 takes the item back out of L1 so the caller's failed write leaves no
// trace. An unreachable L2 is logged and skipped.
func (v *volatile) install(ctx context.Context, item *memory.Item) error {
	k := item.Key.String()

	if err := v.l1.Put(ctx, item); err != nil {
		return fmt.Errorf("writing %s to L1: %w", k, err)
	}

	err := v.l2.Put(ctx, item)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, memory.ErrCapacityExceeded):
		if derr := v.l1.Delete(ctx, k); derr != nil {
			v.logger.Warn("rolling back L1 write failed", "key", k, "error", derr)
		}
		return fmt.Errorf("writing %s to L2: %w", k, err)
	case errors.Is(err, memory.ErrVersionConflict):
		return fmt.Errorf("writing %s to L2: %w", k, err)
	default:
		v.logger.Warn("L2 write failed, item held in L1 only", "key", k, "version", item.Version, "error", err)
		return nil
	}
}

// promote copies a clean item into one tier, ignoring version refusals.
func (v *volatile) promote(ctx context.Context, store tier.Store, name string, item *memory.Item) {
	err := store.Put(ctx, item)
	if err != nil && !errors.Is(err, memory.ErrVersionConflict) {
		v.logger.Debug("promotion failed", "key", item.Key.String(), "tier", name, "error", err)
	}
}

// Load implements syncer.Source.
func (v *volatile) Load(ctx context.Context, key memory.Key) (*memory.Item, error) {
	item, _, _ := v.peek(ctx, key)
	return item, nil
}

// Settle implements syncer.Source. It holds the key lock so it never
// interleaves with a Put for the same key.
func (v *volatile) Settle(ctx context.Context, item *memory.Item) error {
	unlock := v.locks.Lock(item.Key.String())
	defer unlock()

	var errs []error
	for _, store := range []tier.Store{v.l1, v.l2} {
		if err := store.Put(ctx, item); err != nil && !errors.Is(err, memory.ErrVersionConflict) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Evict implements syncer.Source.
func (v *volatile) Evict(ctx context.Context, key memory.Key) error {
	unlock := v.locks.Lock(key.String())
	defer unlock()

	return v.drop(ctx, key.String())
}

func (v *volatile) drop(ctx context.Context, key string) error {
	return errors.Join(v.l1.Delete(ctx, key), v.l2.Delete(ctx, key))
}
