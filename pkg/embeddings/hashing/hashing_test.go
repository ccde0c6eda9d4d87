package hashing_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/embeddings/hashing"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

var _ = Describe("Embedder", func() {
	ctx := context.Background()

	It("produces normalized vectors of the configured size", func() {
		e := hashing.NewEmbedder(64)
		v, err := e.Embed(ctx, "the quick brown fox")
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(HaveLen(64))
		Expect(math.Sqrt(dot(v, v))).To(BeNumerically("~", 1.0, 1e-5))
	})

	It("defaults the dimensions", func() {
		Expect(hashing.NewEmbedder(0).Dimensions()).To(Equal(hashing.DefaultDimensions))
	})

	It("is deterministic and case-insensitive", func() {
		e := hashing.NewEmbedder(128)
		a, _ := e.Embed(ctx, "Hello World")
		b, _ := e.Embed(ctx, "hello, world!")
		Expect(a).To(Equal(b))
	})

	It("scores overlapping text higher than unrelated text", func() {
		e := hashing.NewEmbedder(256)
		base, _ := e.Embed(ctx, "user prefers dark mode in the editor")
		near, _ := e.Embed(ctx, "the user prefers dark mode")
		far, _ := e.Embed(ctx, "quarterly revenue forecast spreadsheet")
		Expect(dot(base, near)).To(BeNumerically(">", dot(base, far)))
	})

	It("never returns an all-zero vector", func() {
		v, err := hashing.NewEmbedder(8).Embed(ctx, "   ")
		Expect(err).NotTo(HaveOccurred())
		Expect(v[0]).To(Equal(float32(1)))
	})
})
