// Package syncer is the debounce and sync engine. It owns one pending task
// per dirty key, waits out the debounce window, and pushes the freshest
// volatile copy through the conflict resolver into the durable tier.
//
// Deadlines live in a single min-heap polled by one scheduler goroutine; due
// tasks go to a ready queue drained by a fixed set of workers. Task lifetimes
// are independent of the callers that created them.
package syncer

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/conflict"
	"github.com/papercomputeco/strata/pkg/deadletter"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/keylock"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/spill"
	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/worker"
)

const (
	DefaultDebounce      = 500 * time.Millisecond
	DefaultRetryBase     = 200 * time.Millisecond
	DefaultRetryCap      = 30 * time.Second
	DefaultJitter        = 0.2
	DefaultMaxAttempts   = 8
	DefaultWorkers       = 32
	DefaultWriteTimeout  = 5 * time.Second
	DefaultShutdownGrace = 5 * time.Second
)

// Source is the volatile side of the manager as the engine sees it.
type Source interface {
	// Load returns the current volatile copy of key, or nil when no volatile
	// tier holds it.
	Load(ctx context.Context, key memory.Key) (*memory.Item, error)

	// Settle installs a clean item into the volatile tiers, guarded by
	// version so a newer local write is never overwritten.
	Settle(ctx context.Context, item *memory.Item) error

	// Evict drops key from the volatile tiers.
	Evict(ctx context.Context, key memory.Key) error
}

// Resolver commits an item against the durable tier.
type Resolver interface {
	Resolve(ctx context.Context, item *memory.Item) (*conflict.Result, error)
}

// SpillSink receives tasks that did not finish before shutdown.
type SpillSink interface {
	Write(entries []spill.Entry) error
}

// Config configures an Engine. Zero durations and counts take the package
// defaults.
type Config struct {
	Debounce      time.Duration
	RetryBase     time.Duration
	RetryCap      time.Duration
	Jitter        float64
	MaxAttempts   int
	Workers       int
	WriteTimeout  time.Duration
	ShutdownGrace time.Duration

	Resolver   Resolver
	Source     Source
	DeadLetter deadletter.Sink
	Spill      SpillSink

	// Indexer and Publisher are optional. Their calls run on SideJobs.
	Indexer   vector.Indexer
	Publisher eventstream.Publisher

	// SideJobs runs indexing and event publishing. The engine creates and
	// owns a pool when nil.
	SideJobs *worker.Pool

	Meter    metric.Meter
	Instance string
	Logger   *slog.Logger
}

// FlushResult reports how a flush ended.
type FlushResult struct {
	// Pending is false when there was no task for the key.
	Pending bool

	// Committed is true when the durable tier holds the flushed version.
	Committed bool

	// Version is the committed version, or the winning durable version for
	// a superseded task.
	Version uint64
}

// Stats is a snapshot of engine counters.
type Stats struct {
	Pending      int    `json:"pending"`
	InFlight     int    `json:"in_flight"`
	Committed    uint64 `json:"committed"`
	Noop         uint64 `json:"noop"`
	Restamped    uint64 `json:"restamped"`
	Superseded   uint64 `json:"superseded"`
	Retried      uint64 `json:"retried"`
	DeadLettered uint64 `json:"dead_lettered"`
	Spilled      uint64 `json:"spilled"`
}

type counters struct {
	committed    atomic.Uint64
	noop         atomic.Uint64
	restamped    atomic.Uint64
	superseded   atomic.Uint64
	retried      atomic.Uint64
	deadLettered atomic.Uint64
	spilled      atomic.Uint64
}

// Engine is the debounce and sync engine.
type Engine struct {
	config Config
	logger *slog.Logger
	source eventstream.EventSource
	locks  *keylock.Locker

	sideJobs     *worker.Pool
	ownsSideJobs bool

	mu      sync.Mutex
	cond    *sync.Cond
	tasks   map[string]*task
	delay   delayHeap
	ready   []*task
	running int

	// closing stops new tasks and retries; stopped releases the workers.
	closing bool
	stopped bool

	drained       chan struct{}
	drainedClosed bool

	wake chan struct{}
	stop chan struct{}
	wg   sync.WaitGroup

	stats   counters
	metrics *metrics
	now     func() time.Time
}

// New creates an Engine and starts its scheduler and workers.
func New(c Config) (*Engine, error) {
	if c.Resolver == nil {
		return nil, errors.New("sync engine requires a resolver")
	}
	if c.Source == nil {
		return nil, errors.New("sync engine requires a volatile source")
	}
	if c.Logger == nil {
		return nil, errors.New("sync engine requires a logger")
	}

	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}
	if c.RetryBase <= 0 {
		c.RetryBase = DefaultRetryBase
	}
	if c.RetryCap <= 0 {
		c.RetryCap = DefaultRetryCap
	}
	if c.RetryCap < c.RetryBase {
		c.RetryCap = c.RetryBase
	}
	if c.Jitter < 0 || c.Jitter >= 1 {
		return nil, fmt.Errorf("jitter %v out of range [0, 1)", c.Jitter)
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
	if c.DeadLetter == nil {
		c.Logger.Warn("no dead-letter log configured, dead letters are kept in memory only")
		c.DeadLetter = deadletter.NewMemory()
	}

	e := &Engine{
		config:  c,
		logger:  c.Logger,
		locks:   keylock.New(0),
		tasks:   make(map[string]*task),
		drained: make(chan struct{}),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		metrics: newMetrics(c.Meter, c.Logger),
		now:     time.Now,
	}
	e.cond = sync.NewCond(&e.mu)

	hostname, _ := os.Hostname()
	e.source = eventstream.EventSource{Instance: c.Instance, Hostname: hostname}

	if c.SideJobs != nil {
		e.sideJobs = c.SideJobs
	} else {
		pool, err := worker.NewPool(&worker.Config{
			NumWorkers: 2,
			JobTimeout: 30 * time.Second,
			Logger:     c.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating side job pool: %w", err)
		}
		e.sideJobs = pool
		e.ownsSideJobs = true
	}

	e.wg.Add(1 + c.Workers)
	go e.scheduler()
	for i := range c.Workers {
		go e.worker(i)
	}

	return e, nil
}

// Enqueue registers a dirty item. A new task fires one debounce interval
// from now; a pending task for the same key takes the newer target without
// moving its deadline.
func (e *Engine) Enqueue(item *memory.Item) error {
	if item == nil {
		return errors.New("nil item")
	}

	key := item.Key.String()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closing {
		return memory.ErrClosed
	}

	now := e.now()
	t, ok := e.tasks[key]
	if !ok {
		t = &task{
			key:        item.Key,
			target:     item.Version,
			latest:     item.Clone(),
			enqueuedAt: now,
			deadline:   now.Add(e.config.Debounce),
			index:      -1,
		}
		e.tasks[key] = t
		e.schedule(t)
		e.logger.Debug("sync task created", "key", key, "version", item.Version)
		return nil
	}

	if item.Version > t.target {
		t.target = item.Version
		t.latest = item.Clone()
	}
	if t.state == stateRunning && t.dirtySince.IsZero() {
		t.dirtySince = now
	}

	e.logger.Debug("sync task coalesced", "key", key, "version", item.Version, "target", t.target)
	return nil
}

// Pending reports whether key has an unfinished task.
func (e *Engine) Pending(key memory.Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := e.tasks[key.String()]
	return ok
}

// Target returns the version the pending task for key will commit, and false
// when there is no task.
func (e *Engine) Target(key memory.Key) (uint64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tasks[key.String()]
	if !ok {
		return 0, false
	}
	return t.target, true
}

// Flush runs the task for key now and waits for the attempt that reaches the
// task's current target. ctx only bounds the wait; the task itself carries on.
func (e *Engine) Flush(ctx context.Context, key memory.Key) (FlushResult, error) {
	k := key.String()

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return FlushResult{}, memory.ErrClosed
	}

	t, ok := e.tasks[k]
	if !ok {
		e.mu.Unlock()
		return FlushResult{}, nil
	}
	if t.state == stateParked {
		e.mu.Unlock()
		return FlushResult{Pending: true}, fmt.Errorf("%w: %s is waiting for the spill log", memory.ErrClosed, k)
	}

	w := newWaiter(t.target)
	t.waiters = append(t.waiters, w)
	if t.state == stateWaiting {
		e.makeReady(t)
	}
	e.mu.Unlock()

	e.logger.Debug("flush requested", "key", k, "version", w.target)

	select {
	case out := <-w.done:
		return FlushResult{Pending: true, Committed: out.committed, Version: out.version}, out.err
	case <-ctx.Done():
		e.dropWaiter(k, w)
		return FlushResult{Pending: true}, fmt.Errorf("%w: flushing %s: %w", memory.ErrTimeout, k, ctx.Err())
	}
}

// Stats returns a snapshot of the engine counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	pending := len(e.tasks) - e.running
	inFlight := e.running
	e.mu.Unlock()

	return Stats{
		Pending:      pending,
		InFlight:     inFlight,
		Committed:    e.stats.committed.Load(),
		Noop:         e.stats.noop.Load(),
		Restamped:    e.stats.restamped.Load(),
		Superseded:   e.stats.superseded.Load(),
		Retried:      e.stats.retried.Load(),
		DeadLettered: e.stats.deadLettered.Load(),
		Spilled:      e.stats.spilled.Load(),
	}
}

// Close drains the engine. Every pending task is made due at once and gets
// one more attempt; whatever is still unfinished when the shutdown grace or
// ctx runs out is written to the spill log.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return nil
	}
	e.closing = true
	for e.delay.Len() > 0 {
		t := heap.Pop(&e.delay).(*task)
		t.state = stateReady
		e.ready = append(e.ready, t)
	}
	e.cond.Broadcast()
	e.checkDrained()
	pending := len(e.tasks)
	e.mu.Unlock()

	e.logger.Info("draining sync engine", "pending", pending, "grace", e.config.ShutdownGrace)

	drainCtx, cancel := context.WithTimeout(ctx, e.config.ShutdownGrace)
	defer cancel()

	select {
	case <-e.drained:
	case <-drainCtx.Done():
		e.logger.Warn("sync engine drain deadline reached")
	}

	e.mu.Lock()
	e.stopped = true
	e.cond.Broadcast()
	e.mu.Unlock()

	close(e.stop)
	e.wg.Wait()

	err := e.spillLeftovers()

	if e.ownsSideJobs {
		e.sideJobs.Close()
	}

	stats := e.Stats()
	e.logger.Info("sync engine stopped",
		"committed", stats.Committed,
		"superseded", stats.Superseded,
		"retried", stats.Retried,
		"dead_lettered", stats.DeadLettered,
		"spilled", stats.Spilled,
	)

	return err
}

func (e *Engine) spillLeftovers() error {
	e.mu.Lock()
	leftovers := make([]*task, 0, len(e.tasks))
	for _, t := range e.tasks {
		leftovers = append(leftovers, t)
		for _, w := range t.waiters {
			w.resolve(flushOutcome{err: memory.ErrClosed})
		}
		t.waiters = nil
	}
	e.tasks = make(map[string]*task)
	e.ready = nil
	e.mu.Unlock()

	if len(leftovers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.config.WriteTimeout)
	defer cancel()

	entries := make([]spill.Entry, 0, len(leftovers))
	for _, t := range leftovers {
		entry := spill.Entry{
			Item:      e.freshest(ctx, t.key, t.latest),
			Attempts:  t.attempts,
			SpilledAt: e.now().UTC(),
		}
		if t.lastErr != nil {
			entry.LastError = t.lastErr.Error()
		}
		entries = append(entries, entry)
	}

	if e.config.Spill == nil {
		for _, entry := range entries {
			e.logger.Error("unfinished durable write lost, no spill log configured",
				"key", entry.Item.Key.String(),
				"version", entry.Item.Version,
			)
		}
		return fmt.Errorf("%d unfinished durable writes not spilled", len(entries))
	}

	if err := e.config.Spill.Write(entries); err != nil {
		for _, entry := range entries {
			e.logger.Error("unfinished durable write could not be spilled",
				"key", entry.Item.Key.String(),
				"version", entry.Item.Version,
				"error", err,
			)
		}
		return fmt.Errorf("writing spill log: %w", err)
	}

	e.stats.spilled.Add(uint64(len(entries)))
	for _, entry := range entries {
		e.metrics.add(e.metrics.spilled, entry.Item.Key.Namespace, 1)
	}
	e.logger.Warn("spilled unfinished durable writes", "count", len(entries))

	return nil
}

// schedule puts t in the delay heap. e.mu must be held.
func (e *Engine) schedule(t *task) {
	if e.closing {
		e.makeReady(t)
		return
	}

	t.state = stateWaiting
	heap.Push(&e.delay, t)

	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// makeReady moves t to the ready queue. e.mu must be held.
func (e *Engine) makeReady(t *task) {
	if t.state == stateWaiting && t.index >= 0 {
		heap.Remove(&e.delay, t.index)
	}

	t.state = stateReady
	e.ready = append(e.ready, t)
	e.cond.Signal()
}

// checkDrained closes e.drained once a closing engine has nothing queued or
// running. e.mu must be held.
func (e *Engine) checkDrained() {
	if !e.closing || e.drainedClosed {
		return
	}
	if e.running == 0 && len(e.ready) == 0 && e.delay.Len() == 0 {
		e.drainedClosed = true
		close(e.drained)
	}
}

func (e *Engine) dropWaiter(key string, w *waiter) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.tasks[key]
	if !ok {
		return
	}
	for i, cur := range t.waiters {
		if cur == w {
			t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
			return
		}
	}
}

func (e *Engine) scheduler() {
	defer e.wg.Done()

	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		e.mu.Lock()
		now := e.now()
		for e.delay.Len() > 0 && !e.delay[0].deadline.After(now) {
			t := heap.Pop(&e.delay).(*task)
			t.state = stateReady
			e.ready = append(e.ready, t)
			e.cond.Signal()
		}

		next := time.Duration(-1)
		if e.delay.Len() > 0 {
			next = e.delay[0].deadline.Sub(now)
		}
		e.mu.Unlock()

		if next >= 0 {
			timer.Reset(next)
		}

		select {
		case <-e.stop:
			timer.Stop()
			return
		case <-e.wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (e *Engine) worker(id int) {
	defer e.wg.Done()

	for {
		e.mu.Lock()
		for len(e.ready) == 0 && !e.stopped {
			e.cond.Wait()
		}
		if e.stopped {
			e.mu.Unlock()
			return
		}

		t := e.ready[0]
		e.ready[0] = nil
		e.ready = e.ready[1:]

		t.state = stateRunning
		t.dirtySince = time.Time{}
		fallback := t.latest
		attempt := t.attempts + 1
		e.running++
		e.mu.Unlock()

		e.logger.Debug("sync attempt", "worker_id", id, "key", t.key.String(), "attempt", attempt)
		e.run(t, fallback, attempt)
	}
}

// run performs one resolver round trip for t. It never uses a caller's
// context.
func (e *Engine) run(t *task, fallback *memory.Item, attempt int) {
	ctx, cancel := context.WithTimeout(context.Background(), e.config.WriteTimeout)
	defer cancel()

	key := t.key.String()
	item := e.freshest(ctx, t.key, fallback)

	unlock := e.locks.Lock(key)
	res, err := e.config.Resolver.Resolve(ctx, item)
	unlock()

	if err != nil {
		e.fail(t, item, attempt, err)
		return
	}

	e.apply(ctx, t, res, attempt)
	e.complete(t, res)
}

// freshest picks the newer of the volatile copy and the task's fallback.
// Corrupt volatile copies are ignored.
func (e *Engine) freshest(ctx context.Context, key memory.Key, fallback *memory.Item) *memory.Item {
	cur, err := e.config.Source.Load(ctx, key)
	if err != nil {
		e.logger.Debug("volatile read failed, using task copy", "key", key.String(), "error", err)
		return fallback
	}
	if cur == nil || !checksum.Valid(cur) {
		return fallback
	}
	if fallback == nil || cur.Version >= fallback.Version {
		return cur
	}

	return fallback
}

// apply pushes a resolver result back into the volatile tiers and fires the
// side effects.
func (e *Engine) apply(ctx context.Context, t *task, res *conflict.Result, attempt int) {
	key := t.key.String()
	ns := t.key.Namespace

	switch res.Outcome {
	case conflict.Superseded:
		e.stats.superseded.Add(1)
		e.metrics.add(e.metrics.superseded, ns, 1)

		if res.Item != nil {
			if err := e.config.Source.Settle(ctx, res.Item); err != nil && !errors.Is(err, memory.ErrVersionConflict) {
				e.logger.Warn("refreshing volatile tiers failed", "key", key, "version", res.DurableVersion, "error", err)
			}
		} else if err := e.config.Source.Evict(ctx, t.key); err != nil {
			e.logger.Warn("evicting superseded key failed", "key", key, "error", err)
		}

		e.logger.Info("sync task superseded by newer durable version",
			"key", key,
			"version", t.target,
			"durable_version", res.DurableVersion,
		)
		e.publish(eventstream.EventTypeSuperseded, t.key, res.Item, eventstream.SyncMeta{
			Attempts:       attempt,
			DurableVersion: res.DurableVersion,
		})
		return

	case conflict.Noop:
		e.stats.noop.Add(1)
		e.metrics.add(e.metrics.noops, ns, 1)

	case conflict.Restamped:
		e.stats.restamped.Add(1)
		e.stats.committed.Add(1)
		e.metrics.add(e.metrics.commits, ns, 1)

	default:
		e.stats.committed.Add(1)
		e.metrics.add(e.metrics.commits, ns, 1)
	}

	if err := e.config.Source.Settle(ctx, res.Item); err != nil && !errors.Is(err, memory.ErrVersionConflict) {
		e.logger.Warn("clearing dirty flag failed", "key", key, "version", res.Item.Version, "error", err)
	}

	if res.Outcome == conflict.Noop {
		e.logger.Debug("durable tier already current", "key", key, "version", res.Item.Version)
		return
	}

	mctx := context.Background()
	e.metrics.latency.Record(mctx, float64(e.now().Sub(t.enqueuedAt).Milliseconds()), nsAttr(ns))
	e.metrics.storedBytes.Add(mctx, int64(res.StoredBytes), nsAttr(ns))
	if res.StoredBytes > 0 {
		e.metrics.ratio.Record(mctx, float64(res.RawBytes)/float64(res.StoredBytes), nsAttr(ns))
	}

	e.logger.Debug("durable commit",
		"key", key,
		"version", res.Item.Version,
		"outcome", res.Outcome.String(),
		"attempt", attempt,
		"raw_bytes", res.RawBytes,
		"stored_bytes", res.StoredBytes,
	)

	e.index(res.Item)
	e.publish(eventstream.EventTypeCommitted, t.key, res.Item, eventstream.SyncMeta{
		Attempts:       attempt,
		DurableVersion: res.DurableVersion,
		RawBytes:       res.RawBytes,
		StoredBytes:    res.StoredBytes,
	})
}

// complete settles the task after a successful round trip.
func (e *Engine) complete(t *task, res *conflict.Result) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running--
	t.attempts = 0
	t.lastErr = nil

	var done bool
	if res.Outcome == conflict.Superseded {
		done = t.target <= res.DurableVersion
		remaining := t.waiters[:0]
		for _, w := range t.waiters {
			if w.target <= res.DurableVersion {
				w.resolve(flushOutcome{version: res.DurableVersion})
				continue
			}
			remaining = append(remaining, w)
		}
		t.waiters = remaining
	} else {
		v := res.Item.Version
		// Same version with a different payload means a local write landed
		// on the version the resolver restamped to; it still needs a commit.
		done = t.target < v || (t.target == v && t.latest.Checksum == res.Item.Checksum)
		remaining := t.waiters[:0]
		for _, w := range t.waiters {
			if w.target <= v {
				w.resolve(flushOutcome{committed: true, version: v})
				continue
			}
			remaining = append(remaining, w)
		}
		t.waiters = remaining
	}

	if done {
		delete(e.tasks, t.key.String())
		e.checkDrained()
		return
	}

	if len(t.waiters) > 0 {
		e.makeReady(t)
		return
	}

	since := t.dirtySince
	if since.IsZero() {
		since = e.now()
	}
	t.deadline = since.Add(e.config.Debounce)
	e.schedule(t)
}

// fail handles a failed round trip: retry with backoff, or dead-letter once
// the attempt budget is spent or the failure is not retryable.
func (e *Engine) fail(t *task, item *memory.Item, attempt int, cause error) {
	key := t.key.String()
	ns := t.key.Namespace
	divergent := errors.Is(cause, conflict.ErrDivergent)

	e.mu.Lock()
	e.running--
	t.attempts = attempt
	t.lastErr = cause
	closing := e.closing

	exhausted := divergent || attempt >= e.config.MaxAttempts
	waiterErr := fmt.Errorf("%w: %w", memory.ErrDurableUnavailable, cause)
	if exhausted {
		e.stats.deadLettered.Add(1)
		waiterErr = fmt.Errorf("%w: %w", memory.ErrDeadLettered, cause)
	}
	for _, w := range t.waiters {
		w.resolve(flushOutcome{err: waiterErr})
	}
	t.waiters = nil

	switch {
	case exhausted:
		if t.target > item.Version {
			// A newer write arrived after the dead item; it gets a fresh budget.
			t.attempts = 0
			t.lastErr = nil
			t.deadline = e.now().Add(e.config.Debounce)
			e.schedule(t)
		} else {
			delete(e.tasks, key)
		}

	case closing:
		t.state = stateParked

	default:
		delay := e.backoff(attempt)
		t.deadline = e.now().Add(delay)
		e.schedule(t)
		e.stats.retried.Add(1)
		e.metrics.add(e.metrics.retries, ns, 1)
		e.logger.Warn("durable write failed, retrying",
			"key", key,
			"version", item.Version,
			"attempt", attempt,
			"backoff", delay,
			"error", cause,
		)
	}

	e.checkDrained()
	e.mu.Unlock()

	if exhausted {
		e.deadLetter(item, attempt, cause)
	} else if closing {
		e.logger.Warn("durable write failed during shutdown, leaving it for the spill log",
			"key", key,
			"version", item.Version,
			"attempt", attempt,
			"error", cause,
		)
	}
}

func (e *Engine) deadLetter(item *memory.Item, attempts int, cause error) {
	key := item.Key.String()
	entry := deadletter.Entry{
		Key:           key,
		Namespace:     item.Key.Namespace,
		TargetVersion: item.Version,
		PayloadDigest: item.Checksum,
		Attempts:      attempts,
		LastError:     cause.Error(),
		Timestamp:     e.now().UTC(),
	}

	e.metrics.add(e.metrics.deadLetters, item.Key.Namespace, 1)

	if err := e.config.DeadLetter.Append(entry); err != nil {
		e.logger.Error("dead-letter log write failed",
			"key", key,
			"version", item.Version,
			"payload_digest", item.Checksum,
			"attempts", attempts,
			"last_error", cause,
			"error", err,
		)
	} else {
		e.logger.Error("durable write dead-lettered",
			"key", key,
			"version", item.Version,
			"attempts", attempts,
			"error", cause,
		)
	}

	e.publish(eventstream.EventTypeDeadLettered, item.Key, item, eventstream.SyncMeta{
		Attempts: attempts,
		Error:    cause.Error(),
	})
}

func (e *Engine) index(item *memory.Item) {
	if e.config.Indexer == nil {
		return
	}

	key := item.Key.String()
	payload := item.Payload
	meta := vector.Metadata{
		Namespace: item.Key.Namespace,
		Version:   item.Version,
		Checksum:  item.Checksum,
	}

	e.sideJobs.Enqueue(worker.Job{
		Name: "index",
		Key:  key,
		Run: func(ctx context.Context) error {
			return e.config.Indexer.Upsert(ctx, key, payload, meta)
		},
	})
}

func (e *Engine) publish(eventType string, key memory.Key, item *memory.Item, meta eventstream.SyncMeta) {
	if e.config.Publisher == nil {
		return
	}

	im := eventstream.ItemMeta{Key: key.String(), Namespace: key.Namespace}
	if item != nil {
		im.Version = item.Version
		im.Checksum = item.Checksum
	}
	event := eventstream.NewEvent(eventType, e.source, im, meta)

	e.sideJobs.Enqueue(worker.Job{
		Name: "publish",
		Key:  im.Key,
		Run: func(ctx context.Context) error {
			return e.config.Publisher.Publish(ctx, event)
		},
	})
}
