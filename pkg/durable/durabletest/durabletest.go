// Package durabletest holds the shared behavior specs every durable.Driver
// must satisfy.
package durabletest

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/memory"
)

// NewRecord builds a record for key at the given version.
func NewRecord(key string, version uint64, payload string) *durable.Record {
	return &durable.Record{
		Key:       key,
		Namespace: "test",
		Payload:   []byte(payload),
		Version:   version,
		Checksum:  "0000000000000000",
		UpdatedAt: time.Unix(0, int64(version)*int64(time.Millisecond)),
	}
}

// ItBehavesLikeADriver registers the conditional-write contract specs.
func ItBehavesLikeADriver(newDriver func() durable.Driver) {
	var (
		driver durable.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		driver = nil
		driver = newDriver()
	})

	AfterEach(func() {
		if driver != nil {
			Expect(driver.Close()).To(Succeed())
		}
	})

	It("returns NotFoundError for a missing key", func() {
		_, err := driver.ReadRecord(ctx, "test/missing")
		Expect(err).To(HaveOccurred())
		Expect(memory.IsNotFound(err)).To(BeTrue())
	})

	It("writes and reads back a record", func() {
		Expect(driver.WriteRecord(ctx, NewRecord("test/a", 1, "one"))).To(Succeed())

		rec, err := driver.ReadRecord(ctx, "test/a")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Key).To(Equal("test/a"))
		Expect(rec.Namespace).To(Equal("test"))
		Expect(rec.Payload).To(Equal([]byte("one")))
		Expect(rec.Version).To(Equal(uint64(1)))
		Expect(rec.Checksum).To(Equal("0000000000000000"))
		Expect(rec.UpdatedAt.Equal(time.Unix(0, int64(time.Millisecond)))).To(BeTrue())
	})

	It("overwrites with a higher version", func() {
		Expect(driver.WriteRecord(ctx, NewRecord("test/a", 1, "one"))).To(Succeed())
		Expect(driver.WriteRecord(ctx, NewRecord("test/a", 5, "five"))).To(Succeed())

		rec, err := driver.ReadRecord(ctx, "test/a")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Version).To(Equal(uint64(5)))
		Expect(rec.Payload).To(Equal([]byte("five")))
	})

	It("rejects an equal version with ErrVersionConflict", func() {
		Expect(driver.WriteRecord(ctx, NewRecord("test/a", 2, "two"))).To(Succeed())

		err := driver.WriteRecord(ctx, NewRecord("test/a", 2, "other"))
		Expect(err).To(MatchError(memory.ErrVersionConflict))

		rec, err := driver.ReadRecord(ctx, "test/a")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Payload).To(Equal([]byte("two")))
	})

	It("rejects a lower version with ErrVersionConflict", func() {
		Expect(driver.WriteRecord(ctx, NewRecord("test/a", 3, "three"))).To(Succeed())

		err := driver.WriteRecord(ctx, NewRecord("test/a", 1, "one"))
		Expect(err).To(MatchError(memory.ErrVersionConflict))

		rec, err := driver.ReadRecord(ctx, "test/a")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Version).To(Equal(uint64(3)))
	})

	It("keeps keys independent", func() {
		Expect(driver.WriteRecord(ctx, NewRecord("test/a", 3, "a"))).To(Succeed())
		Expect(driver.WriteRecord(ctx, NewRecord("test/b", 1, "b"))).To(Succeed())

		rec, err := driver.ReadRecord(ctx, "test/b")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Payload).To(Equal([]byte("b")))
	})

	It("stores binary payloads intact", func() {
		payload := string([]byte{0x00, 0x01, 0xff, 0xfe, 0x00})
		Expect(driver.WriteRecord(ctx, NewRecord("test/bin", 1, payload))).To(Succeed())

		rec, err := driver.ReadRecord(ctx, "test/bin")
		Expect(err).NotTo(HaveOccurred())
		Expect(rec.Payload).To(Equal([]byte(payload)))
	})
}
