package sqlitevec_test

import (
	"context"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/vector/sqlitevec"
)

func doc(id string, version uint64, v float32) vector.Document {
	return vector.Document{
		ID:        id,
		Namespace: "test",
		Version:   version,
		Checksum:  "0123456789abcdef",
		Embedding: []float32{v, v, v, v},
	}
}

var _ = Describe("Driver", func() {
	var (
		log    *slog.Logger
		driver *sqlitevec.Driver
		ctx    context.Context
	)

	BeforeEach(func() {
		log = logger.Nop()
		ctx = context.Background()
	})

	Describe("NewDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{Dimensions: 4}, log)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewDriver(sqlitevec.Config{DBPath: ":memory:"}, log)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with an in-memory database", func() {
		BeforeEach(func() {
			var err error
			driver, err = sqlitevec.NewDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, log)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should do nothing when given empty docs", func() {
			Expect(driver.Add(ctx, nil)).To(Succeed())
		})

		It("should reject embeddings of the wrong size", func() {
			bad := doc("test/a", 1, 0.1)
			bad.Embedding = []float32{0.1, 0.2}
			Expect(driver.Add(ctx, []vector.Document{bad})).To(MatchError(vector.ErrDimensions))
		})

		It("should return the closest documents with metadata", func() {
			Expect(driver.Add(ctx, []vector.Document{
				doc("test/a", 1, 0.1),
				doc("test/b", 2, 0.2),
				doc("test/c", 3, 0.3),
				doc("test/d", 4, 0.4),
				doc("test/e", 5, 0.5),
			})).To(Succeed())

			results, err := driver.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 3)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(3))
			Expect(results[0].ID).To(Equal("test/c"))
			Expect(results[0].Namespace).To(Equal("test"))
			Expect(results[0].Version).To(Equal(uint64(3)))
			Expect(results[0].Checksum).To(Equal("0123456789abcdef"))

			for i := 1; i < len(results); i++ {
				Expect(results[i-1].Score).To(BeNumerically(">=", results[i].Score))
			}
		})

		It("should default topK to 10 when zero or negative", func() {
			Expect(driver.Add(ctx, []vector.Document{
				doc("test/a", 1, 0.1),
				doc("test/b", 1, 0.2),
			})).To(Succeed())

			results, err := driver.Query(ctx, []float32{0.1, 0.1, 0.1, 0.1}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
		})

		It("should replace a document with a newer version", func() {
			Expect(driver.Add(ctx, []vector.Document{doc("test/a", 1, 0.1)})).To(Succeed())
			Expect(driver.Add(ctx, []vector.Document{doc("test/a", 2, 0.9)})).To(Succeed())

			results, err := driver.Query(ctx, []float32{0.9, 0.9, 0.9, 0.9}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Version).To(Equal(uint64(2)))
			Expect(results[0].Score).To(BeNumerically("~", 1.0, 0.001))
		})

		It("should keep the newer document when an older version arrives late", func() {
			Expect(driver.Add(ctx, []vector.Document{doc("test/a", 5, 0.5)})).To(Succeed())
			Expect(driver.Add(ctx, []vector.Document{doc("test/a", 3, 0.1)})).To(Succeed())

			results, err := driver.Query(ctx, []float32{0.5, 0.5, 0.5, 0.5}, 5)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Version).To(Equal(uint64(5)))
		})

		It("should remove documents from query results after deletion", func() {
			Expect(driver.Add(ctx, []vector.Document{
				doc("test/a", 1, 0.1),
				doc("test/b", 1, 0.2),
				doc("test/c", 1, 0.3),
			})).To(Succeed())

			Expect(driver.Delete(ctx, []string{"test/c", "test/missing"})).To(Succeed())

			results, err := driver.Query(ctx, []float32{0.3, 0.3, 0.3, 0.3}, 10)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(2))
			for _, r := range results {
				Expect(r.ID).NotTo(Equal("test/c"))
			}
		})
	})
})
