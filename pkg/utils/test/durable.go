package testutils

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/papercomputeco/strata/pkg/durable"
	"github.com/papercomputeco/strata/pkg/memory"
)

// FlakyDurable wraps a durable.Driver and fails the next N writes (and,
// optionally, reads) with memory.ErrDurableUnavailable.
type FlakyDurable struct {
	durable.Driver

	mu         sync.Mutex
	failWrites int
	failReads  bool
	attempts   atomic.Int64
	hook       func(*durable.Record)
}

// NewFlakyDurable wraps d.
func NewFlakyDurable(d durable.Driver) *FlakyDurable {
	return &FlakyDurable{Driver: d}
}

// FailWrites makes the next n writes fail.
func (f *FlakyDurable) FailWrites(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = n
}

// FailReads toggles read failures.
func (f *FlakyDurable) FailReads(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failReads = fail
}

// BeforeWrite installs a hook called with every record before it is written.
func (f *FlakyDurable) BeforeWrite(hook func(*durable.Record)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

// Attempts returns the number of WriteRecord calls, failed or not.
func (f *FlakyDurable) Attempts() int {
	return int(f.attempts.Load())
}

func (f *FlakyDurable) ReadRecord(ctx context.Context, key string) (*durable.Record, error) {
	f.mu.Lock()
	fail := f.failReads
	f.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("%w: injected read failure", memory.ErrDurableUnavailable)
	}
	return f.Driver.ReadRecord(ctx, key)
}

func (f *FlakyDurable) WriteRecord(ctx context.Context, rec *durable.Record) error {
	f.attempts.Add(1)

	f.mu.Lock()
	hook := f.hook
	fail := f.failWrites > 0
	if fail {
		f.failWrites--
	}
	f.mu.Unlock()

	if hook != nil {
		hook(rec)
	}
	if fail {
		return fmt.Errorf("%w: injected write failure", memory.ErrDurableUnavailable)
	}
	return f.Driver.WriteRecord(ctx, rec)
}
