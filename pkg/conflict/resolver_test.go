package conflict_test

import (
	"context"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/compress"
	"github.com/papercomputeco/strata/pkg/conflict"
	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/durable/inmemory"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
	testutils "github.com/papercomputeco/strata/pkg/utils/test"
)

var _ = Describe("Resolver", func() {
	var (
		ctx      context.Context
		store    *inmemory.Driver
		flaky    *testutils.FlakyDurable
		codec    *compress.Codec
		resolver *conflict.Resolver
		key      memory.Key
	)

	stamp := func(payload string, version uint64) *memory.Item {
		return checksum.Stamp(key, []byte(payload), version-1, memory.L1, time.Now())
	}

	seed := func(payload string, version uint64) {
		rec, err := durable.Encode(codec, stamp(payload, version))
		Expect(err).NotTo(HaveOccurred())
		Expect(store.WriteRecord(ctx, rec)).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		flaky = testutils.NewFlakyDurable(store)
		key = memory.Key{Namespace: "u1", Name: "greeting"}

		var err error
		codec, err = compress.NewCodec(compress.Config{Algorithm: compress.Zstd})
		Expect(err).NotTo(HaveOccurred())
		resolver = conflict.NewResolver(flaky, codec, logger.Nop())
	})

	AfterEach(func() {
		Expect(codec.Close()).To(Succeed())
	})

	It("commits the first write for a key", func() {
		res, err := resolver.Resolve(ctx, stamp("hello", 1))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(conflict.Committed))
		Expect(res.Item.Dirty).To(BeFalse())
		Expect(res.Item.TierOrigin).To(Equal(memory.L3))
		Expect(res.DurableVersion).To(Equal(uint64(1)))

		rec, err := store.ReadRecord(ctx, "u1/greeting")
		Expect(err).NotTo(HaveOccurred())
		item, err := durable.Decode(codec, rec)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(item.Payload)).To(Equal("hello"))
	})

	It("commits forward progress over an older durable version", func() {
		seed("old", 2)

		res, err := resolver.Resolve(ctx, stamp("new", 5))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(conflict.Committed))
		Expect(store.Writes("u1/greeting")).To(Equal(2))
	})

	It("treats a replay of the same task as a no-op both times", func() {
		item := stamp("hello", 1)
		_, err := resolver.Resolve(ctx, item)
		Expect(err).NotTo(HaveOccurred())

		for range 2 {
			res, err := resolver.Resolve(ctx, item)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Outcome).To(Equal(conflict.Noop))
			Expect(res.Item.Dirty).To(BeFalse())
		}
		Expect(store.Writes("u1/greeting")).To(Equal(1))
	})

	It("discards a stale task and returns the durable winner", func() {
		seed("from process A", 5)

		res, err := resolver.Resolve(ctx, stamp("from process B", 4))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(conflict.Superseded))
		Expect(res.DurableVersion).To(Equal(uint64(5)))
		Expect(res.Item).NotTo(BeNil())
		Expect(string(res.Item.Payload)).To(Equal("from process A"))
		Expect(res.Item.Version).To(Equal(uint64(5)))
		Expect(store.Writes("u1/greeting")).To(Equal(1))
	})

	It("restamps past a divergent record at the same version", func() {
		seed("theirs", 3)

		res, err := resolver.Resolve(ctx, stamp("ours", 3))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(conflict.Restamped))
		Expect(res.Item.Version).To(Equal(uint64(4)))
		Expect(string(res.Item.Payload)).To(Equal("ours"))

		rec, err := store.ReadRecord(ctx, "u1/greeting")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Version).To(Equal(uint64(4)))
		Expect(rec.Checksum).To(Equal(checksum.Sum([]byte("ours"))))
	})

	It("escalates when the restamped version collides again", func() {
		seed("theirs", 3)
		flaky.BeforeWrite(func(r *durable.Record) {
			// another writer lands a different v4 between our read and write
			if r.Version == 4 {
				seed("someone else", 4)
			}
		})

		_, err := resolver.Resolve(ctx, stamp("ours", 3))
		Expect(err).To(MatchError(conflict.ErrDivergent))
	})

	It("re-reads after losing a write race", func() {
		flaky.BeforeWrite(func(r *durable.Record) {
			if r.Version == 2 && flaky.Attempts() == 1 {
				seed("racer", 7)
			}
		})

		res, err := resolver.Resolve(ctx, stamp("slow", 2))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Outcome).To(Equal(conflict.Superseded))
		Expect(res.DurableVersion).To(Equal(uint64(7)))
	})

	It("surfaces durable outages as transient errors", func() {
		flaky.FailWrites(1)
		_, err := resolver.Resolve(ctx, stamp("hello", 1))
		Expect(err).To(MatchError(memory.ErrDurableUnavailable))

		flaky.FailReads(true)
		_, err = resolver.Resolve(ctx, stamp("hello", 1))
		Expect(err).To(MatchError(memory.ErrDurableUnavailable))
	})

	It("compresses large payloads but reports raw sizes", func() {
		payload := strings.Repeat("the user prefers concise answers. ", 200)
		res, err := resolver.Resolve(ctx, stamp(payload, 1))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.RawBytes).To(Equal(len(payload)))
		Expect(res.StoredBytes).To(BeNumerically("<", len(payload)/4))
	})
})
