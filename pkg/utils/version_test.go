package utils

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("UserAgent", func() {
	It("carries the stamped version", func() {
		DeferCleanup(func(v string) { Version = v }, Version)
		Version = "v1.4.0"

		Expect(UserAgent()).To(Equal("strata/v1.4.0"))
	})
})
