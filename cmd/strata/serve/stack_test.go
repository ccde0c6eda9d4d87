package servecmder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/api/search"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/deadletter"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
)

var _ = Describe("buildStack", func() {
	var (
		ctx context.Context
		dir string
		cfg *config.Config
		out *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		out = &bytes.Buffer{}

		cfg = config.NewDefaultConfig()
		cfg.Durable.Provider = "inmemory"
		cfg.Sync.Debounce = "10ms"
		cfg.Server.Instance = "test-node"
	})

	It("wires a working manager from in-memory providers", func() {
		st, err := buildStack(ctx, cfg, dir, out, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(st.manager).NotTo(BeNil())
		Expect(st.searcher).To(BeNil())

		key, err := memory.NewKey("agent", "plan")
		Expect(err).NotTo(HaveOccurred())

		put, err := st.manager.Put(ctx, key, []byte("step one"))
		Expect(err).NotTo(HaveOccurred())

		flushed, err := st.manager.Flush(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(flushed.Committed).To(BeTrue())
		Expect(flushed.Version).To(Equal(put.Version))

		got, err := st.manager.Get(ctx, key)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Payload).To(Equal([]byte("step one")))

		Expect(st.close(ctx)).To(Succeed())

		_, err = os.Stat(filepath.Join(dir, deadletter.FileName))
		Expect(err).NotTo(HaveOccurred())
		Expect(out.String()).To(ContainSubstring("Starting memory manager"))
	})

	It("exports sync metrics through the configured exporter", func() {
		cfg.Metrics.Exporter = "stdout"
		cfg.Metrics.Interval = "1h"

		st, err := buildStack(ctx, cfg, dir, out, logger.Nop())
		Expect(err).NotTo(HaveOccurred())

		key, err := memory.NewKey("agent", "plan")
		Expect(err).NotTo(HaveOccurred())
		_, err = st.manager.Put(ctx, key, []byte("step one"))
		Expect(err).NotTo(HaveOccurred())
		_, err = st.manager.Flush(ctx, key)
		Expect(err).NotTo(HaveOccurred())

		Expect(st.close(ctx)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("strata_sync_commits_total"))
		Expect(out.String()).To(ContainSubstring("test-node"))
	})

	It("places the sqlite database in the strata directory by default", func() {
		cfg.Durable.Provider = "sqlite"

		st, err := buildStack(ctx, cfg, dir, out, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(st.close(ctx)).To(Succeed())

		_, err = os.Stat(filepath.Join(dir, durableFileName))
		Expect(err).NotTo(HaveOccurred())
	})

	It("builds a searcher when a vector store is configured", func() {
		cfg.VectorStore.Provider = "chromem"
		cfg.Embedding.Provider = "hashing"
		cfg.Embedding.Dimensions = 32

		st, err := buildStack(ctx, cfg, dir, out, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = st.close(context.Background()) })

		Expect(st.searcher).NotTo(BeNil())

		key, err := memory.NewKey("notes", "coffee")
		Expect(err).NotTo(HaveOccurred())
		_, err = st.manager.Put(ctx, key, []byte("the espresso machine is on the third floor"))
		Expect(err).NotTo(HaveOccurred())
		_, err = st.manager.Flush(ctx, key)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func(g Gomega) {
			res, err := st.searcher.Search(ctx, search.SearchInput{Query: "espresso machine", Namespace: "notes"})
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(res.Results).NotTo(BeEmpty())
			g.Expect(res.Results[0].Key).To(Equal("coffee"))
		}).WithTimeout(5 * time.Second).WithPolling(20 * time.Millisecond).Should(Succeed())
	})

	It("rejects an unknown compression algorithm", func() {
		cfg.Compression.Algorithm = "brotli"

		_, err := buildStack(ctx, cfg, dir, out, logger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown shared cache provider", func() {
		cfg.L2.Provider = "memcached"

		_, err := buildStack(ctx, cfg, dir, out, logger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unsupported l2 provider")))
	})
})

var _ = Describe("instanceName", func() {
	It("prefers the configured instance", func() {
		cfg := config.NewDefaultConfig()
		cfg.Server.Instance = "node-a"
		Expect(instanceName(cfg)).To(Equal("node-a"))
	})

	It("falls back to the hostname", func() {
		cfg := config.NewDefaultConfig()
		host, err := os.Hostname()
		Expect(err).NotTo(HaveOccurred())
		Expect(instanceName(cfg)).To(Equal(host))
	})
})
