package spill_test

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/checksum"
	"github.com/papercomputeco/strata/pkg/memory"
	"github.com/papercomputeco/strata/pkg/spill"
)

var _ = Describe("Log", func() {
	var (
		log *spill.Log
		key memory.Key
	)

	entry := func(payload string, version uint64) spill.Entry {
		return spill.Entry{
			Item:      checksum.Stamp(key, []byte(payload), version-1, memory.L1, time.Now()),
			Attempts:  2,
			LastError: "durable unavailable",
			SpilledAt: time.Now(),
		}
	}

	BeforeEach(func() {
		log = spill.New(filepath.Join(GinkgoT().TempDir(), "sub", spill.FileName))
		key = memory.Key{Namespace: "u1", Name: "notes"}
	})

	It("loads nothing when no spill file exists", func() {
		entries, err := log.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("round-trips items including binary payloads", func() {
		e := entry(string([]byte{0, 1, 2, 0xff}), 4)
		Expect(log.Write([]spill.Entry{e})).To(Succeed())

		entries, err := log.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(entries[0].Item.Key).To(Equal(key))
		Expect(entries[0].Item.Payload).To(Equal(e.Item.Payload))
		Expect(entries[0].Item.Version).To(Equal(uint64(4)))
		Expect(entries[0].Item.Dirty).To(BeTrue())
		Expect(checksum.Valid(entries[0].Item)).To(BeTrue())
		Expect(entries[0].Attempts).To(Equal(2))
	})

	It("keeps only the highest version per key", func() {
		Expect(log.Write([]spill.Entry{entry("a", 2)})).To(Succeed())
		Expect(log.Write([]spill.Entry{entry("c", 5), entry("b", 3)})).To(Succeed())

		entries, err := log.Load()
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(1))
		Expect(string(entries[0].Item.Payload)).To(Equal("c"))
	})

	It("clears the file", func() {
		Expect(log.Write([]spill.Entry{entry("a", 1)})).To(Succeed())
		Expect(log.Clear()).To(Succeed())

		_, err := os.Stat(log.Path())
		Expect(os.IsNotExist(err)).To(BeTrue())
		Expect(log.Clear()).To(Succeed())
	})
})
