// Package pool provides reusable slice storage for the staging hot path.
//
// A Manager hands out slices in fixed size classes backed by sync.Pool so the
// steady state of the tick loop performs no allocations. Managers are built
// once at process start and injected into every container; there is no
// package-level singleton.
package pool

import (
	"sync"
	"sync/atomic"
)

// Size classes for rented slices, in elements. Staging buckets are small and
// frozen batches are bounded by the global window cap, so the ladder stays
// shallow.
var classSizes = [...]int{8, 16, 32, 64, 128, 256, 512, 1024}

const numClasses = len(classSizes)

// Stats is a point-in-time copy of the manager's counters.
type Stats struct {
	Rents    uint64
	Returns  uint64
	Growths  uint64
	Oversize uint64
}

// Manager is a tiered slice allocator. All methods are safe for concurrent
// use. A rented slice is exclusively owned by its renter until returned; its
// prior contents are undefined.
type Manager[T any] struct {
	classes [numClasses]sync.Pool

	rents    atomic.Uint64
	returns  atomic.Uint64
	growths  atomic.Uint64
	oversize atomic.Uint64
}

// NewManager builds a manager with an empty warm set. Every fresh backing
// allocation is counted as a growth event; growth is expected during warm-up
// and a diagnostic signal afterwards.
func NewManager[T any]() *Manager[T] {
	m := &Manager[T]{}
	for i := range m.classes {
		size := classSizes[i]
		m.classes[i].New = func() any {
			m.growths.Add(1)
			s := make([]T, 0, size)
			return &s
		}
	}
	return m
}

// classFor returns the index of the smallest class holding n elements, or -1
// when n exceeds the largest class.
func classFor(n int) int {
	for i, size := range classSizes {
		if n <= size {
			return i
		}
	}
	return -1
}

// classForCap returns the class index for an exact capacity match, or -1.
func classForCap(c int) int {
	for i, size := range classSizes {
		if c == size {
			return i
		}
	}
	return -1
}

// Rent returns a zero-length slice with capacity for at least n elements.
// Requests beyond the largest class are allocated directly and counted as
// oversize growth.
func (m *Manager[T]) Rent(n int) []T {
	if n < 0 {
		n = 0
	}
	idx := classFor(n)
	if idx < 0 {
		m.oversize.Add(1)
		m.growths.Add(1)
		return make([]T, 0, n)
	}
	m.rents.Add(1)
	sp := m.classes[idx].Get().(*[]T)
	return (*sp)[:0]
}

// Return gives a slice back to the manager. Slices whose capacity does not
// match a size class are discarded. Contents are cleared so pooled storage
// does not pin items for the garbage collector.
func (m *Manager[T]) Return(s []T) {
	if s == nil {
		return
	}
	c := cap(s)
	idx := classForCap(c)
	if idx < 0 {
		return
	}
	s = s[:c]
	clear(s)
	s = s[:0]
	m.returns.Add(1)
	m.classes[idx].Put(&s)
}

// Statistics returns a copy of the manager's monotonic counters.
func (m *Manager[T]) Statistics() Stats {
	return Stats{
		Rents:    m.rents.Load(),
		Returns:  m.returns.Load(),
		Growths:  m.growths.Load(),
		Oversize: m.oversize.Load(),
	}
}
