package local_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/strata/pkg/tier"
	"github.com/papercomputeco/strata/pkg/tier/local"
	"github.com/papercomputeco/strata/pkg/tier/tiertest"
)

var _ = Describe("Store", func() {
	tiertest.ItBehavesLikeAStore(func() tier.Store {
		s, err := local.NewStore(local.Config{MaxBytes: 1 << 20, MaxItemBytes: 1024})
		Expect(err).NotTo(HaveOccurred())
		return s
	}, 1024)

	It("refuses an item limit above the total budget", func() {
		_, err := local.NewStore(local.Config{MaxBytes: 1024, MaxItemBytes: 4096})
		Expect(err).To(HaveOccurred())
	})
})
