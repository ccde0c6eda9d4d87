package syncer_test

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/compress"
	"github.com/papercomputeco/strata/pkg/conflict"
	"github.com/papercomputeco/strata/pkg/deadletter"
	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/durable/inmemory"
	"github.com/papercomputeco/strata/pkg/eventstream"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/spill"
	"github.com/papercomputeco/strata/pkg/syncer"
	"github.com/papercomputeco/strata/pkg/tier"
	testutils "github.com/papercomputeco/strata/pkg/utils/test"
)

// volatileMap stands in for the manager's L1/L2 pair.
type volatileMap struct {
	mu    sync.Mutex
	items map[string]*memory.Item
}

func newVolatileMap() *volatileMap {
	return &volatileMap{items: make(map[string]*memory.Item)}
}

func (v *volatileMap) Load(_ context.Context, key memory.Key) (*memory.Item, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.items[key.String()].Clone(), nil
}

func (v *volatileMap) Settle(_ context.Context, item *memory.Item) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !tier.Accepts(v.items[item.Key.String()], item) {
		return memory.ErrVersionConflict
	}
	v.items[item.Key.String()] = item.Clone()
	return nil
}

func (v *volatileMap) Evict(_ context.Context, key memory.Key) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.items, key.String())
	return nil
}

func (v *volatileMap) set(item *memory.Item) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.items[item.Key.String()] = item.Clone()
}

func (v *volatileMap) get(key memory.Key) *memory.Item {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.items[key.String()].Clone()
}

var _ = Describe("Engine", func() {
	var (
		ctx       context.Context
		store     *inmemory.Driver
		flaky     *testutils.FlakyDurable
		codec     *compress.Codec
		source    *volatileMap
		dead      *deadletter.Memory
		publisher *testutils.MockPublisher
		indexer   *testutils.MockIndexer
		engine    *syncer.Engine
		key       memory.Key
	)

	// write stamps the next version and hands it to the engine the way the
	// manager's Put does.
	write := func(payload string, version uint64) *memory.Item {
		item := checksum.Stamp(key, []byte(payload), version-1, memory.L1, time.Now())
		source.set(item)
		Expect(engine.Enqueue(item)).To(Succeed())
		return item
	}

	durablePayload := func() string {
		rec, err := store.ReadRecord(ctx, key.String())
		if err != nil {
			return ""
		}
		item, err := durable.Decode(codec, rec)
		Expect(err).NotTo(HaveOccurred())
		return string(item.Payload)
	}

	durableVersion := func() uint64 {
		rec, err := store.ReadRecord(ctx, key.String())
		if err != nil {
			return 0
		}
		return rec.Version
	}

	start := func(mutate func(c *syncer.Config)) {
		c := syncer.Config{
			Debounce:      100 * time.Millisecond,
			RetryBase:     5 * time.Millisecond,
			RetryCap:      20 * time.Millisecond,
			Jitter:        0.2,
			MaxAttempts:   8,
			Workers:       4,
			WriteTimeout:  time.Second,
			ShutdownGrace: time.Second,
			Resolver:      conflict.NewResolver(flaky, codec, logger.Nop()),
			Source:        source,
			DeadLetter:    dead,
			Indexer:       indexer,
			Publisher:     publisher,
			Instance:      "test",
			Logger:        logger.Nop(),
		}
		if mutate != nil {
			mutate(&c)
		}

		var err error
		engine, err = syncer.New(c)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			_ = engine.Close(context.Background())
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		flaky = testutils.NewFlakyDurable(store)
		source = newVolatileMap()
		dead = deadletter.NewMemory()
		publisher = testutils.NewMockPublisher()
		indexer = testutils.NewMockIndexer()
		key = memory.Key{Namespace: "u1", Name: "notes"}

		var err error
		codec, err = compress.NewCodec(compress.Config{Algorithm: compress.Zstd})
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(codec.Close)
	})

	It("requires a resolver and a source", func() {
		_, err := syncer.New(syncer.Config{Logger: logger.Nop()})
		Expect(err).To(HaveOccurred())
	})

	Describe("debounce", func() {
		BeforeEach(func() {
			start(nil)
		})

		It("coalesces rapid writes into one durable write of the latest payload", func() {
			write("a", 1)
			write("b", 2)
			write("c", 3)

			Eventually(durablePayload).Should(Equal("c"))
			Consistently(func() int { return store.Writes(key.String()) }, 200*time.Millisecond).Should(Equal(1))
			Expect(durableVersion()).To(Equal(uint64(3)))
		})

		It("does not write before the debounce window elapses", func() {
			write("a", 1)
			Consistently(func() int { return flaky.Attempts() }, 60*time.Millisecond).Should(BeZero())
			Eventually(durablePayload).Should(Equal("a"))
		})

		It("commits the freshest volatile copy rather than the enqueued one", func() {
			first := checksum.Stamp(key, []byte("old"), 0, memory.L1, time.Now())
			Expect(engine.Enqueue(first)).To(Succeed())
			source.set(checksum.Stamp(key, []byte("new"), 1, memory.L1, time.Now()))

			Eventually(durablePayload).Should(Equal("new"))
			Expect(durableVersion()).To(Equal(uint64(2)))
		})

		It("falls back to the task copy when the volatile tiers lost the key", func() {
			write("kept", 1)
			Expect(source.Evict(ctx, key)).To(Succeed())

			Eventually(durablePayload).Should(Equal("kept"))
		})

		It("clears the dirty flag after the commit", func() {
			write("a", 1)

			Eventually(func() bool { return source.get(key).Dirty }).Should(BeFalse())
			Expect(source.get(key).TierOrigin).To(Equal(memory.L3))
		})

		It("commits a write that arrives while a task is in flight", func() {
			release := make(chan struct{})
			var once sync.Once
			flaky.BeforeWrite(func(*durable.Record) {
				once.Do(func() { <-release })
			})

			write("a", 1)
			Eventually(flaky.Attempts).Should(Equal(1))
			write("b", 2)
			close(release)

			Eventually(durablePayload).Should(Equal("b"))
			Eventually(func() bool { return engine.Pending(key) }).Should(BeFalse())
		})

		It("indexes and publishes after a commit", func() {
			write("indexed", 1)

			Eventually(func() []testutils.IndexCall { return indexer.Calls() }).Should(HaveLen(1))
			call := indexer.Calls()[0]
			Expect(call.Key).To(Equal("u1/notes"))
			Expect(string(call.Payload)).To(Equal("indexed"))
			Expect(call.Meta.Version).To(Equal(uint64(1)))
			Expect(call.Meta.Namespace).To(Equal("u1"))

			Eventually(publisher.EventTypes).Should(ContainElement(eventstream.EventTypeCommitted))
		})
	})

	Describe("retries", func() {
		It("retries transient failures until the write lands", func() {
			start(nil)
			flaky.FailWrites(3)

			item := write("persist", 1)

			Eventually(durablePayload).Should(Equal("persist"))
			rec, err := store.ReadRecord(ctx, key.String())
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Checksum).To(Equal(item.Checksum))
			Expect(engine.Stats().Retried).To(Equal(uint64(3)))
			Expect(dead.Entries()).To(BeEmpty())
		})

		It("dead-letters a write that exhausts its attempts", func() {
			start(func(c *syncer.Config) { c.MaxAttempts = 3 })
			flaky.FailWrites(100)

			item := write("doomed", 1)

			Eventually(dead.Entries).Should(HaveLen(1))
			entry := dead.Entries()[0]
			Expect(entry.Key).To(Equal("u1/notes"))
			Expect(entry.Namespace).To(Equal("u1"))
			Expect(entry.TargetVersion).To(Equal(uint64(1)))
			Expect(entry.PayloadDigest).To(Equal(item.Checksum))
			Expect(entry.Attempts).To(Equal(3))
			Expect(entry.LastError).To(ContainSubstring("injected write failure"))
			Expect(entry.ID).NotTo(BeEmpty())

			Expect(flaky.Attempts()).To(Equal(3))
			Expect(engine.Pending(key)).To(BeFalse())
			Expect(engine.Stats().DeadLettered).To(Equal(uint64(1)))
			Eventually(publisher.EventTypes).Should(ContainElement(eventstream.EventTypeDeadLettered))
		})

		It("gives a newer write a fresh budget after a dead letter", func() {
			start(func(c *syncer.Config) { c.MaxAttempts = 2 })
			flaky.FailWrites(2)
			flaky.BeforeWrite(func(rec *durable.Record) {
				if rec.Version == 1 && flaky.Attempts() == 2 {
					next := checksum.Stamp(key, []byte("second"), 1, memory.L1, time.Now())
					source.set(next)
					_ = engine.Enqueue(next)
				}
			})

			write("first", 1)

			Eventually(durablePayload).Should(Equal("second"))
			Expect(dead.Entries()).To(HaveLen(1))
		})
	})

	Describe("metrics", func() {
		var reader *sdkmetric.ManualReader

		total := func(name string) func() int64 {
			return func() int64 {
				var rm metricdata.ResourceMetrics
				Expect(reader.Collect(ctx, &rm)).To(Succeed())

				var sum int64
				for _, sm := range rm.ScopeMetrics {
					for _, m := range sm.Metrics {
						if m.Name != name {
							continue
						}
						data, ok := m.Data.(metricdata.Sum[int64])
						Expect(ok).To(BeTrue())
						for _, dp := range data.DataPoints {
							sum += dp.Value
						}
					}
				}
				return sum
			}
		}

		BeforeEach(func() {
			reader = sdkmetric.NewManualReader()
			provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
			DeferCleanup(provider.Shutdown, context.Background())

			start(func(c *syncer.Config) {
				c.MaxAttempts = 2
				c.Meter = provider.Meter(syncer.MeterName)
			})
		})

		It("counts commits, retries and dead letters", func() {
			flaky.FailWrites(1)
			write("eventually", 1)

			Eventually(total("strata_sync_commits_total")).Should(Equal(int64(1)))
			Expect(total("strata_sync_retries_total")()).To(Equal(int64(1)))
			Expect(total("strata_sync_deadletters_total")()).To(BeZero())

			key = memory.Key{Namespace: "u1", Name: "doomed"}
			flaky.FailWrites(2)
			write("never", 1)

			Eventually(total("strata_sync_deadletters_total")).Should(Equal(int64(1)))
			Expect(total("strata_sync_retries_total")()).To(Equal(int64(2)))
			Expect(total("strata_sync_commits_total")()).To(Equal(int64(1)))
		})
	})

	Describe("Flush", func() {
		BeforeEach(func() {
			start(func(c *syncer.Config) { c.Debounce = time.Hour })
		})

		It("reports no pending task for an unknown key", func() {
			res, err := engine.Flush(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Pending).To(BeFalse())
		})

		It("bypasses the debounce window", func() {
			write("now", 1)

			res, err := engine.Flush(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(res).To(Equal(syncer.FlushResult{Pending: true, Committed: true, Version: 1}))
			Expect(durablePayload()).To(Equal("now"))
			Expect(engine.Pending(key)).To(BeFalse())
		})

		It("returns a durable error while the task keeps retrying", func() {
			flaky.FailWrites(1)
			write("later", 1)

			_, err := engine.Flush(ctx, key)
			Expect(err).To(MatchError(memory.ErrDurableUnavailable))

			Eventually(durablePayload).Should(Equal("later"))
		})

		It("times out without cancelling the task", func() {
			release := make(chan struct{})
			flaky.BeforeWrite(func(*durable.Record) { <-release })
			write("slow", 1)

			tctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
			defer cancel()
			_, err := engine.Flush(tctx, key)
			Expect(err).To(MatchError(memory.ErrTimeout))

			close(release)
			Eventually(durablePayload).Should(Equal("slow"))
		})
	})

	Describe("stale writers", func() {
		BeforeEach(func() {
			start(nil)
		})

		It("discards a task behind the durable tier and refreshes the volatile copy", func() {
			winner := checksum.Stamp(key, []byte("from A"), 4, memory.L1, time.Now())
			rec, err := durable.Encode(codec, winner)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.WriteRecord(ctx, rec)).To(Succeed())

			write("from B", 4)

			Eventually(func() uint64 { return source.get(key).Version }).Should(Equal(uint64(5)))
			refreshed := source.get(key)
			Expect(string(refreshed.Payload)).To(Equal("from A"))
			Expect(refreshed.Dirty).To(BeFalse())
			Expect(durablePayload()).To(Equal("from A"))
			Expect(engine.Stats().Superseded).To(Equal(uint64(1)))
			Expect(dead.Entries()).To(BeEmpty())
			Eventually(publisher.EventTypes).Should(ContainElement(eventstream.EventTypeSuperseded))
		})

		It("tells a flushing caller which version won", func() {
			winner := checksum.Stamp(key, []byte("from A"), 4, memory.L1, time.Now())
			rec, err := durable.Encode(codec, winner)
			Expect(err).NotTo(HaveOccurred())
			Expect(store.WriteRecord(ctx, rec)).To(Succeed())

			write("from B", 4)
			res, err := engine.Flush(ctx, key)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Committed).To(BeFalse())
			Expect(res.Version).To(Equal(uint64(5)))
		})
	})

	Describe("Close", func() {
		It("drains pending tasks before returning", func() {
			start(func(c *syncer.Config) { c.Debounce = time.Hour })
			write("drained", 1)

			Expect(engine.Close(ctx)).To(Succeed())
			Expect(durablePayload()).To(Equal("drained"))
		})

		It("spills writes that could not be committed", func() {
			log := spill.New(filepath.Join(GinkgoT().TempDir(), spill.FileName))
			start(func(c *syncer.Config) {
				c.Debounce = time.Hour
				c.Spill = log
			})
			flaky.FailWrites(100)
			item := write("spilled", 1)

			Expect(engine.Close(ctx)).To(Succeed())

			entries, err := log.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))
			Expect(entries[0].Item.Version).To(Equal(uint64(1)))
			Expect(entries[0].Item.Checksum).To(Equal(item.Checksum))
			Expect(entries[0].Attempts).To(Equal(1))
			Expect(entries[0].LastError).To(ContainSubstring("injected"))
			Expect(engine.Stats().Spilled).To(Equal(uint64(1)))
			Expect(dead.Entries()).To(BeEmpty())
		})

		It("refuses new work once closed", func() {
			start(nil)
			Expect(engine.Close(ctx)).To(Succeed())

			item := checksum.Stamp(key, []byte("late"), 0, memory.L1, time.Now())
			Expect(engine.Enqueue(item)).To(MatchError(memory.ErrClosed))
			_, err := engine.Flush(ctx, key)
			Expect(err).To(MatchError(memory.ErrClosed))
		})
	})
})
