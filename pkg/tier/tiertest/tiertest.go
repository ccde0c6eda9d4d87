// Package tiertest holds the shared ginkgo behaviours every tier.Store
// adapter must satisfy.
package tiertest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/tier"
)

// ItBehavesLikeAStore registers the tier.Store contract specs. newStore is
// called before each spec; maxItemBytes is the adapter's configured limit.
func ItBehavesLikeAStore(newStore func() tier.Store, maxItemBytes int) {
	var (
		store tier.Store
		ctx   context.Context
		key   memory.Key
	)

	BeforeEach(func() {
		store = newStore()
		ctx = context.Background()
		key = memory.Key{Namespace: "u1", Name: "greeting"}
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	It("returns NotFoundError for absent keys", func() {
		_, err := store.Get(ctx, key.String())
		Expect(memory.IsNotFound(err)).To(BeTrue())
	})

	It("stores and retrieves an item", func() {
		item := checksum.Stamp(key, []byte("hello"), 0, memory.L1, time.Unix(1735689600, 0))
		Expect(store.Put(ctx, item)).To(Succeed())

		got, err := store.Get(ctx, key.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Key).To(Equal(key))
		Expect(string(got.Payload)).To(Equal("hello"))
		Expect(got.Version).To(Equal(uint64(1)))
		Expect(got.Checksum).To(Equal(item.Checksum))
		Expect(got.Dirty).To(BeTrue())
		Expect(got.LastModified.Equal(item.LastModified)).To(BeTrue())
	})

	It("accepts newer versions", func() {
		Expect(store.Put(ctx, checksum.Stamp(key, []byte("a"), 0, memory.L1, time.Now()))).To(Succeed())
		Expect(store.Put(ctx, checksum.Stamp(key, []byte("b"), 1, memory.L1, time.Now()))).To(Succeed())

		got, err := store.Get(ctx, key.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got.Payload)).To(Equal("b"))
		Expect(got.Version).To(Equal(uint64(2)))
	})

	It("refuses older versions", func() {
		Expect(store.Put(ctx, checksum.Stamp(key, []byte("b"), 4, memory.L1, time.Now()))).To(Succeed())

		err := store.Put(ctx, checksum.Stamp(key, []byte("a"), 2, memory.L1, time.Now()))
		Expect(err).To(MatchError(memory.ErrVersionConflict))

		got, err := store.Get(ctx, key.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Version).To(Equal(uint64(5)))
	})

	It("refuses a different payload at the same version", func() {
		Expect(store.Put(ctx, checksum.Stamp(key, []byte("a"), 0, memory.L1, time.Now()))).To(Succeed())

		err := store.Put(ctx, checksum.Stamp(key, []byte("b"), 0, memory.L1, time.Now()))
		Expect(err).To(MatchError(memory.ErrVersionConflict))
	})

	It("accepts the same content at the same version to update metadata", func() {
		item := checksum.Stamp(key, []byte("a"), 0, memory.L1, time.Now())
		Expect(store.Put(ctx, item)).To(Succeed())

		clean := item.Clone()
		clean.Dirty = false
		clean.TierOrigin = memory.L3
		Expect(store.Put(ctx, clean)).To(Succeed())

		got, err := store.Get(ctx, key.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Dirty).To(BeFalse())
		Expect(got.TierOrigin).To(Equal(memory.L3))
	})

	It("rejects oversized payloads", func() {
		big := make([]byte, maxItemBytes+1)
		err := store.Put(ctx, checksum.Stamp(key, big, 0, memory.L1, time.Now()))
		Expect(err).To(MatchError(memory.ErrCapacityExceeded))
	})

	It("deletes keys idempotently", func() {
		Expect(store.Put(ctx, checksum.Stamp(key, []byte("a"), 0, memory.L1, time.Now()))).To(Succeed())
		Expect(store.Delete(ctx, key.String())).To(Succeed())
		Expect(store.Delete(ctx, key.String())).To(Succeed())

		_, err := store.Get(ctx, key.String())
		Expect(memory.IsNotFound(err)).To(BeTrue())
	})

	It("hands out copies", func() {
		Expect(store.Put(ctx, checksum.Stamp(key, []byte("hello"), 0, memory.L1, time.Now()))).To(Succeed())

		got, err := store.Get(ctx, key.String())
		Expect(err).NotTo(HaveOccurred())
		got.Payload[0] = 'j'

		again, err := store.Get(ctx, key.String())
		Expect(err).NotTo(HaveOccurred())
		Expect(string(again.Payload)).To(Equal("hello"))
	})
}
