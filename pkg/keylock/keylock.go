// Package keylock provides striped per-key mutexes. Operations on the same
// key serialize; operations on different keys rarely contend.
package keylock

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 256

// Locker is a fixed set of mutex stripes selected by key hash.
type Locker struct {
	stripes []sync.Mutex
}

// New creates a Locker with n stripes (256 when n <= 0).
func New(n int) *Locker {
	if n <= 0 {
		n = defaultStripes
	}

	return &Locker{stripes: make([]sync.Mutex, n)}
}

// Lock locks the stripe owning key and returns its unlock function.
func (l *Locker) Lock(key string) func() {
	m := &l.stripes[xxhash.Sum64String(key)%uint64(len(l.stripes))]
	m.Lock()
	return m.Unlock
}
