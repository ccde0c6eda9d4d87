package syncer

import (
	"container/heap"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("backoffDelay", func() {
	base := 200 * time.Millisecond
	ceiling := 30 * time.Second

	It("doubles per attempt without jitter", func() {
		Expect(backoffDelay(base, ceiling, 0, 1, 0.5)).To(Equal(200 * time.Millisecond))
		Expect(backoffDelay(base, ceiling, 0, 2, 0.5)).To(Equal(400 * time.Millisecond))
		Expect(backoffDelay(base, ceiling, 0, 3, 0.5)).To(Equal(800 * time.Millisecond))
	})

	It("is capped", func() {
		Expect(backoffDelay(base, ceiling, 0, 9, 0.5)).To(Equal(ceiling))
		Expect(backoffDelay(base, ceiling, 0, 200, 0.5)).To(Equal(ceiling))
	})

	It("treats attempts below one as the first attempt", func() {
		Expect(backoffDelay(base, ceiling, 0, 0, 0.5)).To(Equal(base))
	})

	It("stays within the jitter band", func() {
		Expect(backoffDelay(base, ceiling, 0.2, 1, 0)).To(Equal(160 * time.Millisecond))
		Expect(backoffDelay(base, ceiling, 0.2, 1, 0.5)).To(Equal(200 * time.Millisecond))
		Expect(backoffDelay(base, ceiling, 0.2, 1, 0.999)).To(BeNumerically("~", 240*time.Millisecond, time.Millisecond))
	})
})

var _ = Describe("delayHeap", func() {
	It("pops tasks in deadline order and tracks indexes", func() {
		now := time.Now()
		h := &delayHeap{}

		late := &task{deadline: now.Add(3 * time.Second)}
		early := &task{deadline: now.Add(time.Second)}
		mid := &task{deadline: now.Add(2 * time.Second)}
		heap.Push(h, late)
		heap.Push(h, early)
		heap.Push(h, mid)

		heap.Remove(h, mid.index)
		Expect(mid.index).To(Equal(-1))

		Expect(heap.Pop(h)).To(BeIdenticalTo(early))
		Expect(heap.Pop(h)).To(BeIdenticalTo(late))
		Expect(h.Len()).To(BeZero())
	})
})
