package qdrant_test

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/vector"
	"github.com/papercomputeco/strata/pkg/vector/qdrant"
)

var _ = Describe("Driver", func() {
	Describe("NewDriver", func() {
		It("should return an error when host is empty", func() {
			_, err := qdrant.NewDriver(context.Background(), qdrant.Config{Dimensions: 4}, logger.Nop())
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("qdrant host is required"))
		})

		It("should return an error when dimensions are zero", func() {
			_, err := qdrant.NewDriver(context.Background(), qdrant.Config{Host: "localhost"}, logger.Nop())
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("PointID", func() {
		It("is stable and distinct per key", func() {
			Expect(qdrant.PointID("ns/a")).To(Equal(qdrant.PointID("ns/a")))
			Expect(qdrant.PointID("ns/a")).NotTo(Equal(qdrant.PointID("ns/b")))
			Expect(qdrant.PointID("ns/a")).To(HaveLen(36))
		})
	})

	Describe("against a running server", func() {
		var driver *qdrant.Driver

		BeforeEach(func() {
			host := os.Getenv("STRATA_TEST_QDRANT_HOST")
			if host == "" {
				Skip("Requires running Qdrant instance (set STRATA_TEST_QDRANT_HOST)")
			}

			var err error
			driver, err = qdrant.NewDriver(context.Background(), qdrant.Config{
				Host:       host,
				Collection: "strata_test",
				Dimensions: 3,
			}, logger.Nop())
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			if driver != nil {
				Expect(driver.Close()).To(Succeed())
			}
		})

		It("adds, queries, and deletes", func() {
			ctx := context.Background()
			Expect(driver.Add(ctx, []vector.Document{
				{ID: "test/x", Namespace: "test", Version: 1, Embedding: []float32{1, 0, 0}},
			})).To(Succeed())

			results, err := driver.Query(ctx, []float32{1, 0, 0}, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].ID).To(Equal("test/x"))

			Expect(driver.Delete(ctx, []string{"test/x"})).To(Succeed())
		})
	})
})
