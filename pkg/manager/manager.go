// Package manager is the tiered memory manager. It routes reads through
// L1, L2 and the durable tier, acknowledges writes once L1 and L2 hold
// them, and hands every write to the sync engine for durable persistence.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/compress"
	"github.com/papercomputeco/strata/pkg/conflict"
	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/keylock"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/spill"
	"github.com/papercomputeco/strata/pkg/syncer"
	"github.com/papercomputeco/strata/pkg/tier"
	"github.com/papercomputeco/strata/pkg/worker"
)

const (
	DefaultReadTimeout  = 2 * time.Second
	DefaultFlushTimeout = 10 * time.Second

	// putRounds bounds restamping when another writer moves L1 or L2 ahead
	// between reading the current version and installing the new one.
	putRounds = 3
)

// Config wires a Manager. The manager takes ownership of the tiers, the
// codec and the spill log and releases them on Close.
type Config struct {
	L1      tier.Store
	L2      tier.Store
	Durable durable.Driver
	Codec   *compress.Codec

	// Sync configures the sync engine. Its Resolver, Source, Spill,
	// SideJobs and Logger are filled in by the manager.
	Sync syncer.Config

	// Spill, when set, receives unfinished writes on Close and is replayed
	// by New.
	Spill *spill.Log

	ReadTimeout  time.Duration
	FlushTimeout time.Duration

	// SideWorkers sizes the pool shared by promotion, indexing and event
	// publishing.
	SideWorkers uint

	Logger *slog.Logger
}

// PutResult acknowledges a write.
type PutResult struct {
	Version    uint64    `json:"version"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// GetResult is the outcome of a read. A miss is not an error.
type GetResult struct {
	Payload []byte `json:"payload,omitempty"`
	Version uint64 `json:"version"`
	Found   bool   `json:"found"`

	// Stale is true when the copy has not been confirmed durable yet.
	Stale bool `json:"stale"`

	// TimedOut is true when the durable read ran out of time.
	TimedOut bool `json:"timed_out"`

	// Tier is the tier that served the read.
	Tier memory.Tier `json:"-"`
}

// FlushResult reports the durable state of a key after Flush.
type FlushResult struct {
	Committed bool   `json:"committed"`
	Version   uint64 `json:"version"`
}

// Manager is the tiered memory manager. It is safe for concurrent use.
type Manager struct {
	volatile *volatile
	durable  durable.Driver
	codec    *compress.Codec
	engine   *syncer.Engine
	spill    *spill.Log
	sideJobs *worker.Pool
	locks    *keylock.Locker

	readTimeout  time.Duration
	flushTimeout time.Duration

	logger *slog.Logger
	closed atomic.Bool
	now    func() time.Time
}

// New builds a Manager, starts its sync engine and replays the spill log.
func New(ctx context.Context, c Config) (*Manager, error) {
	if c.L1 == nil || c.L2 == nil {
		return nil, errors.New("manager requires L1 and L2 stores")
	}
	if c.Durable == nil {
		return nil, errors.New("manager requires a durable driver")
	}
	if c.Codec == nil {
		return nil, errors.New("manager requires a compression codec")
	}
	if c.Logger == nil {
		return nil, errors.New("manager requires a logger")
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
	if c.FlushTimeout <= 0 {
		c.FlushTimeout = DefaultFlushTimeout
	}

	locks := keylock.New(0)
	v := &volatile{
		l1:     c.L1,
		l2:     c.L2,
		locks:  locks,
		logger: c.Logger,
	}

	sideJobs, err := worker.NewPool(&worker.Config{
		NumWorkers: c.SideWorkers,
		Logger:     c.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating side job pool: %w", err)
	}

	sc := c.Sync
	sc.Resolver = conflict.NewResolver(c.Durable, c.Codec, c.Logger)
	sc.Source = v
	sc.SideJobs = sideJobs
	sc.Logger = c.Logger
	if c.Spill != nil {
		sc.Spill = c.Spill
	}

	engine, err := syncer.New(sc)
	if err != nil {
		sideJobs.Close()
		return nil, fmt.Errorf("starting sync engine: %w", err)
	}

	m := &Manager{
		volatile:     v,
		durable:      c.Durable,
		codec:        c.Codec,
		engine:       engine,
		spill:        c.Spill,
		sideJobs:     sideJobs,
		locks:        locks,
		readTimeout:  c.ReadTimeout,
		flushTimeout: c.FlushTimeout,
		logger:       c.Logger,
		now:          time.Now,
	}

	if err := m.replay(ctx); err != nil {
		_ = engine.Close(ctx)
		sideJobs.Close()
		return nil, err
	}

	return m, nil
}

// replay re-installs spilled writes and hands them back to the engine.
func (m *Manager) replay(ctx context.Context) error {
	if m.spill == nil {
		return nil
	}

	entries, err := m.spill.Load()
	if err != nil {
		return fmt.Errorf("loading spill log: %w", err)
	}
	if len(entries) == 0 {
		return nil
	}

	for _, entry := range entries {
		item := entry.Item.Clone()
		item.Dirty = true

		unlock := m.locks.Lock(item.Key.String())
		m.volatile.promote(ctx, m.volatile.l1, "L1", item)
		m.volatile.promote(ctx, m.volatile.l2, "L2", item)
		err := m.engine.Enqueue(item)
		unlock()
		if err != nil {
			return fmt.Errorf("re-enqueueing spilled write %s: %w", item.Key.String(), err)
		}
	}

	if err := m.spill.Clear(); err != nil {
		return fmt.Errorf("clearing spill log: %w", err)
	}

	m.logger.Info("replayed spilled writes", "count", len(entries))
	return nil
}

// Put stamps payload as the next version of key, writes it to L1 and L2 and
// schedules the durable write. It returns once the volatile tiers hold it.
// A payload identical to the freshest copy keeps that copy's version and
// schedules nothing.
func (m *Manager) Put(ctx context.Context, key memory.Key, payload []byte) (*PutResult, error) {
	if m.closed.Load() {
		return nil, memory.ErrClosed
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	k := key.String()
	sum := checksum.Sum(payload)
	unlock := m.locks.Lock(k)
	defer unlock()

	for range putRounds {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: put %s: %w", memory.ErrTimeout, k, err)
		}

		cur, prev, seen := m.volatile.peek(ctx, key)
		if target, ok := m.engine.Target(key); ok && target > prev {
			prev = target
		}
		if cur != nil && cur.Version >= prev && cur.Checksum == sum {
			return m.unchanged(cur)
		}

		if !seen {
			rec, err := m.durableRecord(ctx, k)
			if err != nil {
				return nil, err
			}
			if rec != nil {
				if rec.Version >= prev && rec.Checksum == sum {
					m.logger.Debug("put matches durable copy, skipping", "key", k, "version", rec.Version)
					return &PutResult{Version: rec.Version, AcceptedAt: m.now().UTC()}, nil
				}
				prev = max(prev, rec.Version)
			}
		}

		item := checksum.Stamp(key, payload, prev, memory.L1, m.now())
		err := m.volatile.install(ctx, item)
		if errors.Is(err, memory.ErrVersionConflict) {
			m.logger.Debug("volatile tier moved ahead, restamping", "key", k, "version", item.Version)
			continue
		}
		if err != nil {
			return nil, err
		}

		if err := m.engine.Enqueue(item); err != nil {
			return nil, err
		}

		m.logger.Debug("put", "key", k, "version", item.Version, "bytes", len(payload))
		return &PutResult{Version: item.Version, AcceptedAt: item.LastModified.UTC()}, nil
	}

	return nil, fmt.Errorf("%w: put %s: volatile tiers kept moving ahead", memory.ErrTimeout, k)
}

// unchanged acknowledges a put whose payload the freshest copy already
// holds. A dirty copy left behind by a dead-lettered task is handed back to
// the engine.
func (m *Manager) unchanged(cur *memory.Item) (*PutResult, error) {
	if cur.Dirty && !m.engine.Pending(cur.Key) {
		if err := m.engine.Enqueue(cur); err != nil {
			return nil, err
		}
	}

	m.logger.Debug("put matches current copy, skipping", "key", cur.Key.String(), "version", cur.Version)
	return &PutResult{Version: cur.Version, AcceptedAt: m.now().UTC()}, nil
}

// durableRecord seeds a key no volatile tier holds. A missing record is nil.
// Any other failure fails the put so a write is never stamped below the
// durable version.
func (m *Manager) durableRecord(ctx context.Context, key string) (*durable.Record, error) {
	rctx, cancel := context.WithTimeout(ctx, m.readTimeout)
	defer cancel()

	rec, err := m.durable.ReadRecord(rctx, key)
	switch {
	case err == nil:
		return rec, nil
	case memory.IsNotFound(err):
		return nil, nil
	case rctx.Err() != nil:
		return nil, fmt.Errorf("%w: seeding version of %s: %w", memory.ErrTimeout, key, err)
	case errors.Is(err, memory.ErrDurableUnavailable):
		return nil, fmt.Errorf("seeding version of %s: %w", key, err)
	default:
		return nil, fmt.Errorf("%w: seeding version of %s: %w", memory.ErrDurableUnavailable, key, err)
	}
}

// Get reads key from the fastest tier holding a valid copy. A durable read
// is bounded by the read timeout and by ctx; running out of time yields
// TimedOut rather than an error.
func (m *Manager) Get(ctx context.Context, key memory.Key) (*GetResult, error) {
	if m.closed.Load() {
		return nil, memory.ErrClosed
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	k := key.String()

	if item, ok := m.fromVolatile(ctx, m.volatile.l1, memory.L1, k); ok {
		return hit(item, memory.L1), nil
	}

	if item, ok := m.fromVolatile(ctx, m.volatile.l2, memory.L2, k); ok {
		m.volatile.promote(ctx, m.volatile.l1, "L1", item)
		return hit(item, memory.L2), nil
	}

	rctx, cancel := context.WithTimeout(ctx, m.readTimeout)
	defer cancel()

	rec, err := m.durable.ReadRecord(rctx, k)
	switch {
	case err == nil:
	case memory.IsNotFound(err):
		return &GetResult{}, nil
	case rctx.Err() != nil:
		m.logger.Warn("durable read timed out", "key", k, "error", err)
		return &GetResult{TimedOut: true}, nil
	default:
		return nil, err
	}

	item, err := durable.Decode(m.codec, rec)
	if err != nil {
		m.logger.Warn("durable record failed verification, treating as a miss", "key", k, "version", rec.Version, "error", err)
		return &GetResult{}, nil
	}

	m.volatile.promote(ctx, m.volatile.l1, "L1", item)
	promoted := item.Clone()
	m.sideJobs.Enqueue(worker.Job{
		Name: "promote",
		Key:  k,
		Run: func(ctx context.Context) error {
			m.volatile.promote(ctx, m.volatile.l2, "L2", promoted)
			return nil
		},
	})

	return hit(item, memory.L3), nil
}

// fromVolatile reads one volatile tier. Corrupt copies are dropped and count
// as a miss.
func (m *Manager) fromVolatile(ctx context.Context, store tier.Store, t memory.Tier, key string) (*memory.Item, bool) {
	item, err := store.Get(ctx, key)
	if err != nil {
		if !memory.IsNotFound(err) {
			m.logger.Warn("volatile read failed", "key", key, "tier", t.String(), "error", err)
		}
		return nil, false
	}

	if !checksum.Valid(item) {
		m.logger.Warn("checksum mismatch, falling through", "key", key, "tier", t.String(), "version", item.Version)
		if err := store.Delete(ctx, key); err != nil {
			m.logger.Debug("dropping corrupt copy failed", "key", key, "tier", t.String(), "error", err)
		}
		return nil, false
	}

	return item, true
}

func hit(item *memory.Item, t memory.Tier) *GetResult {
	return &GetResult{
		Payload: item.Payload,
		Version: item.Version,
		Found:   true,
		Stale:   item.Dirty,
		Tier:    t,
	}
}

// Invalidate drops key from L1 and L2. The durable tier and any pending
// durable write are untouched.
func (m *Manager) Invalidate(ctx context.Context, key memory.Key) error {
	if m.closed.Load() {
		return memory.ErrClosed
	}
	if err := key.Validate(); err != nil {
		return err
	}

	k := key.String()
	unlock := m.locks.Lock(k)
	defer unlock()

	if err := m.volatile.drop(ctx, k); err != nil {
		return fmt.Errorf("invalidating %s: %w", k, err)
	}

	m.logger.Debug("invalidated", "key", k)
	return nil
}

// Flush forces the pending durable write for key and waits for it. Without
// a deadline on ctx the flush timeout applies.
func (m *Manager) Flush(ctx context.Context, key memory.Key) (*FlushResult, error) {
	if m.closed.Load() {
		return nil, memory.ErrClosed
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.flushTimeout)
		defer cancel()
	}

	res, err := m.engine.Flush(ctx, key)
	if res.Pending || err != nil {
		return &FlushResult{Committed: res.Committed, Version: res.Version}, err
	}

	k := key.String()
	if cur, _, _ := m.volatile.peek(ctx, key); cur != nil {
		if !cur.Dirty {
			return &FlushResult{Committed: true, Version: cur.Version}, nil
		}

		// Dirty with no task: the last attempt was dead-lettered.
		m.logger.Info("re-submitting dirty item on flush", "key", k, "version", cur.Version)
		if err := m.engine.Enqueue(cur); err != nil {
			return nil, err
		}
		res, err := m.engine.Flush(ctx, key)
		return &FlushResult{Committed: res.Committed, Version: res.Version}, err
	}

	rec, err := m.durable.ReadRecord(ctx, k)
	if err != nil {
		if memory.IsNotFound(err) {
			return &FlushResult{}, nil
		}
		return nil, err
	}

	return &FlushResult{Committed: true, Version: rec.Version}, nil
}

// Stats returns sync engine counters.
func (m *Manager) Stats() syncer.Stats {
	return m.engine.Stats()
}

// Close drains the sync engine, spilling unfinished writes, and releases
// every tier.
func (m *Manager) Close(ctx context.Context) error {
	if !m.closed.CompareAndSwap(false, true) {
		return nil
	}

	var errs []error
	if err := m.engine.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("closing sync engine: %w", err))
	}
	m.sideJobs.Close()

	if err := m.volatile.l1.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing L1: %w", err))
	}
	if err := m.volatile.l2.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing L2: %w", err))
	}
	if err := m.durable.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing durable tier: %w", err))
	}
	if err := m.codec.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing codec: %w", err))
	}

	return errors.Join(errs...)
}
