package staging

import (
	"cmp"
	"sort"
)

// Entry is one staged item inside a frozen batch.
type Entry[K cmp.Ordered, T any] struct {
	// Key is the staging key that owns the item.
	Key K
	// ID is the item's natural identifier, part of the freeze ordering.
	ID uint64
	// Seq is the per-(tick, key) sequence assigned during freeze. It is a
	// tie-break and diagnostic field only, never part of the sort itself.
	Seq uint32
	// Item is the staged payload.
	Item T
}

// Batch is an immutable, tick-stamped, ordered collection of entries. Once
// committed for a tick it never mutates. A nil batch reads as empty.
type Batch[K cmp.Ordered, T any] struct {
	tick    uint64
	entries []Entry[K, T]
}

// Tick returns the tick the batch was committed for.
func (b *Batch[K, T]) Tick() uint64 {
	if b == nil {
		return 0
	}
	return b.tick
}

// Len returns the number of entries in the batch.
func (b *Batch[K, T]) Len() int {
	if b == nil {
		return 0
	}
	return len(b.entries)
}

// At returns the entry at position i in frozen order.
func (b *Batch[K, T]) At(i int) Entry[K, T] {
	return b.entries[i]
}

// ForKey returns the contiguous run of entries belonging to key. The returned
// slice aliases the batch and must not be mutated or retained past the
// batch's retention horizon.
func (b *Batch[K, T]) ForKey(key K) []Entry[K, T] {
	if b == nil {
		return nil
	}
	start := sort.Search(len(b.entries), func(i int) bool {
		return b.entries[i].Key >= key
	})
	end := start
	for end < len(b.entries) && b.entries[end].Key == key {
		end++
	}
	if start == end {
		return nil
	}
	return b.entries[start:end]
}
