package checksum_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/memory"
)

var _ = Describe("Checksum", func() {
	key := memory.Key{Namespace: "u1", Name: "greeting"}

	It("produces fixed width deterministic digests", func() {
		a := checksum.Sum([]byte("hello"))
		Expect(a).To(HaveLen(checksum.Size))
		Expect(checksum.Sum([]byte("hello"))).To(Equal(a))
		Expect(checksum.Sum([]byte("hello!"))).NotTo(Equal(a))
	})

	It("stamps the next version as a dirty item", func() {
		now := time.Now()
		item := checksum.Stamp(key, []byte("hello"), 4, memory.L1, now)

		Expect(item.Version).To(Equal(uint64(5)))
		Expect(item.Dirty).To(BeTrue())
		Expect(item.TierOrigin).To(Equal(memory.L1))
		Expect(item.LastModified).To(Equal(now))
		Expect(checksum.Valid(item)).To(BeTrue())
	})

	It("does not alias the caller's payload", func() {
		payload := []byte("hello")
		item := checksum.Stamp(key, payload, 0, memory.L1, time.Now())
		payload[0] = 'j'

		Expect(string(item.Payload)).To(Equal("hello"))
		Expect(checksum.Valid(item)).To(BeTrue())
	})

	It("detects corrupted payloads", func() {
		item := checksum.Stamp(key, []byte("hello"), 0, memory.L1, time.Now())
		item.Payload[0] = 'j'

		Expect(checksum.Valid(item)).To(BeFalse())
		Expect(checksum.Valid(nil)).To(BeFalse())
	})

	It("restamps past a competing version keeping the payload", func() {
		item := checksum.Stamp(key, []byte("hello"), 0, memory.L1, time.Now())
		moved := checksum.Restamp(item, 7, time.Now())

		Expect(moved.Version).To(Equal(uint64(8)))
		Expect(checksum.Same(item, moved)).To(BeTrue())
		Expect(item.Version).To(Equal(uint64(1)))
	})
})
