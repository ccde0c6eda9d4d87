package vector_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/logger"
	testutils "github.com/papercomputeco/strata/pkg/utils/test"
	"github.com/papercomputeco/strata/pkg/vector"
)

var _ = Describe("EmbeddingIndexer", func() {
	var (
		embedder *testutils.MockEmbedder
		driver   *testutils.MockVectorDriver
		indexer  *vector.EmbeddingIndexer
	)

	BeforeEach(func() {
		embedder = testutils.NewMockEmbedder()
		driver = testutils.NewMockVectorDriver()

		var err error
		indexer, err = vector.NewEmbeddingIndexer(embedder, driver, logger.Nop())
		Expect(err).NotTo(HaveOccurred())
	})

	It("requires an embedder and a driver", func() {
		_, err := vector.NewEmbeddingIndexer(nil, driver, logger.Nop())
		Expect(err).To(MatchError(vector.ErrNotConfigured))
	})

	It("embeds the payload and stores metadata without the payload", func() {
		embedder.Embeddings["remember the milk"] = []float32{1, 2, 3}

		err := indexer.Upsert(context.Background(), "ns/todo", []byte("remember the milk"), vector.Metadata{
			Namespace: "ns",
			Version:   4,
			Checksum:  "abcdabcdabcdabcd",
		})
		Expect(err).NotTo(HaveOccurred())

		docs := driver.Documents()
		Expect(docs).To(HaveLen(1))
		Expect(docs[0]).To(Equal(vector.Document{
			ID:        "ns/todo",
			Namespace: "ns",
			Version:   4,
			Checksum:  "abcdabcdabcdabcd",
			Embedding: []float32{1, 2, 3},
		}))
	})

	It("reports embedding failures without storing", func() {
		embedder.FailOn = "bad"
		err := indexer.Upsert(context.Background(), "ns/x", []byte("bad"), vector.Metadata{})
		Expect(err).To(HaveOccurred())
		Expect(driver.Documents()).To(BeEmpty())
	})
})
