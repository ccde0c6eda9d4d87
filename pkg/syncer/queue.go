package syncer

import (
	"time"

	"github.com/papercomputeco/strata/pkg/memory"
)

type taskState int

const (
	// in the delay heap, waiting for its deadline
	stateWaiting taskState = iota

	// in the ready queue
	stateReady

	// a worker is resolving it
	stateRunning

	// failed during shutdown; left for the spill log
	stateParked
)

// task is the pending durable write for one key. There is at most one task
// per key, which is what keeps a key to a single in-flight durable write.
type task struct {
	key        memory.Key
	target     uint64
	latest     *memory.Item
	enqueuedAt time.Time
	deadline   time.Time
	attempts   int
	lastErr    error
	state      taskState

	// dirtySince is set when a write arrives while the task is running.
	dirtySince time.Time

	waiters []*waiter

	// index in the delay heap, -1 when not in it
	index int
}

type flushOutcome struct {
	committed bool
	version   uint64
	err       error
}

type waiter struct {
	target uint64
	done   chan flushOutcome
}

func newWaiter(target uint64) *waiter {
	return &waiter{target: target, done: make(chan flushOutcome, 1)}
}

func (w *waiter) resolve(o flushOutcome) {
	select {
	case w.done <- o:
	default:
	}
}

// delayHeap is a container/heap of tasks ordered by deadline.
type delayHeap []*task

func (h delayHeap) Len() int { return len(h) }

func (h delayHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }

func (h delayHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayHeap) Push(x any) {
	t := x.(*task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *delayHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
