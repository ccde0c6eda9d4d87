package deadletter_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/deadletter"
)

var _ = Describe("Log", func() {
	var (
		dir  string
		path string
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		path = filepath.Join(dir, "nested", deadletter.FileName)
	})

	It("returns no entries for a missing log", func() {
		entries, err := deadletter.List(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(BeEmpty())
	})

	It("appends entries that List reads back in order", func() {
		log, err := deadletter.Open(path)
		Expect(err).NotTo(HaveOccurred())

		Expect(log.Append(deadletter.Entry{Key: "u1/a", Namespace: "u1", TargetVersion: 3, PayloadDigest: "aaaa", Attempts: 8, LastError: "durable unavailable"})).To(Succeed())
		Expect(log.Append(deadletter.Entry{Key: "u1/b", Namespace: "u1", TargetVersion: 1, Attempts: 8})).To(Succeed())
		Expect(log.Close()).To(Succeed())

		entries, err := deadletter.List(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Key).To(Equal("u1/a"))
		Expect(entries[0].TargetVersion).To(Equal(uint64(3)))
		Expect(entries[0].LastError).To(Equal("durable unavailable"))
		Expect(entries[0].ID).To(HaveLen(26))
		Expect(entries[0].Timestamp.IsZero()).To(BeFalse())
		Expect(entries[0].ID < entries[1].ID).To(BeTrue())
	})

	It("keeps earlier entries across reopen", func() {
		log, err := deadletter.Open(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(log.Append(deadletter.Entry{Key: "u1/a"})).To(Succeed())
		Expect(log.Close()).To(Succeed())

		log, err = deadletter.Open(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(log.Append(deadletter.Entry{Key: "u1/b"})).To(Succeed())
		Expect(log.Close()).To(Succeed())

		entries, err := deadletter.List(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(entries).To(HaveLen(2))
	})

	It("reports malformed lines", func() {
		Expect(os.MkdirAll(filepath.Dir(path), 0o755)).To(Succeed())
		Expect(os.WriteFile(path, []byte("{\"key\":\"u1/a\"}\nnot json\n"), 0o600)).To(Succeed())

		entries, err := deadletter.List(path)
		Expect(err).To(MatchError(ContainSubstring("line 2")))
		Expect(entries).To(HaveLen(1))
	})

	It("follows newly appended entries", func() {
		log, err := deadletter.Open(path)
		Expect(err).NotTo(HaveOccurred())
		defer log.Close()
		Expect(log.Append(deadletter.Entry{Key: "u1/before"})).To(Succeed())

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var (
			mu   sync.Mutex
			seen []string
		)
		done := make(chan error, 1)
		go func() {
			done <- deadletter.Follow(ctx, path, func(e deadletter.Entry) error {
				mu.Lock()
				defer mu.Unlock()
				seen = append(seen, e.Key)
				return nil
			})
		}()

		// give the watcher time to register
		time.Sleep(100 * time.Millisecond)
		Expect(log.Append(deadletter.Entry{Key: "u1/after"})).To(Succeed())

		Eventually(func() []string {
			mu.Lock()
			defer mu.Unlock()
			return append([]string(nil), seen...)
		}, 2*time.Second, 20*time.Millisecond).Should(Equal([]string{"u1/after"}))

		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})
})

var _ = Describe("Memory", func() {
	It("records entries with generated IDs", func() {
		m := deadletter.NewMemory()
		Expect(m.Append(deadletter.Entry{Key: "u1/a"})).To(Succeed())
		Expect(m.Entries()).To(HaveLen(1))
		Expect(m.Entries()[0].ID).NotTo(BeEmpty())
	})
})
