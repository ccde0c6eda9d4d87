package inmemory_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/durable/durabletest"
	"github.com/papercomputeco/strata/pkg/durable/inmemory"
)

var _ = Describe("Driver", func() {
	durabletest.ItBehavesLikeADriver(func() durable.Driver {
		return inmemory.NewDriver()
	})

	It("counts successful writes per key", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()

		Expect(d.WriteRecord(ctx, durabletest.NewRecord("test/a", 1, "x"))).To(Succeed())
		Expect(d.WriteRecord(ctx, durabletest.NewRecord("test/a", 1, "x"))).NotTo(Succeed())
		Expect(d.WriteRecord(ctx, durabletest.NewRecord("test/a", 2, "y"))).To(Succeed())

		Expect(d.Writes("test/a")).To(Equal(2))
		Expect(d.Writes("test/b")).To(Equal(0))
		Expect(d.Count()).To(Equal(1))
	})

	It("returns copies", func() {
		ctx := context.Background()
		d := inmemory.NewDriver()
		rec := durabletest.NewRecord("test/a", 1, "abc")
		Expect(d.WriteRecord(ctx, rec)).To(Succeed())
		rec.Payload[0] = 'z'

		got, err := d.ReadRecord(ctx, "test/a")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(got.Payload)).To(Equal("abc"))
	})
})
