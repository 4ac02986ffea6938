// Package staging implements the bounded per-key staging container that turns
// concurrently submitted inputs into immutable, deterministically ordered
// per-tick batches.
//
// Producers call TryStage concurrently; the tick scheduler's authoritative
// goroutine calls Freeze once per window. One mutex guards the whole
// container so a freeze observes a consistent point-in-time view: an item
// accepted during window T is present in the Freeze(T) output, and no item
// accepted after Freeze(T) begins can leak into it.
package staging

import (
	"cmp"
	"fmt"
	"slices"
	"sync"

	apperrors "github.com/mhollis/shardfall/internal/platform/errors"
	"github.com/mhollis/shardfall/internal/services/arena/core/pool"
	"github.com/mhollis/shardfall/internal/services/arena/observability/diag"
)

// OverflowPolicy selects what happens when a capacity cap is hit.
type OverflowPolicy uint8

const (
	// DropNewest rejects the incoming item and leaves staged items untouched.
	DropNewest OverflowPolicy = iota
	// DropOldest is declared for wire compatibility but unimplemented; the
	// constructor rejects it.
	DropOldest
)

// Config bounds a container.
type Config struct {
	// PerKeyCap is the maximum number of items one key may stage per window.
	// It may exceed GlobalCap, in which case the global cap binds first.
	PerKeyCap int
	// GlobalCap is the maximum number of items per window across all keys.
	GlobalCap int
	// Retention is how many trailing frozen batches stay readable before
	// Prune releases them.
	Retention int
	// Policy is the overflow policy. Only DropNewest is implemented.
	Policy OverflowPolicy
}

// Rejection describes one refused submission.
type Rejection[K cmp.Ordered] struct {
	Code   apperrors.Code
	Key    K
	ItemID uint64
	Window uint64
}

// RejectionSink observes every rejection synchronously, before the rejected
// call returns.
type RejectionSink[K cmp.Ordered] interface {
	OnRejected(Rejection[K])
}

// SinkFunc adapts a function to a RejectionSink.
type SinkFunc[K cmp.Ordered] func(Rejection[K])

// OnRejected implements RejectionSink.
func (f SinkFunc[K]) OnRejected(r Rejection[K]) { f(r) }

// Deps are the injected collaborators of a container.
type Deps[K cmp.Ordered, T any] struct {
	// Pool supplies bucket and batch entry storage.
	Pool *pool.Manager[Entry[K, T]]
	// Sink observes rejections. Optional.
	Sink RejectionSink[K]
	// KeyOf extracts the staging key from an item.
	KeyOf func(T) K
	// IDOf extracts the item's natural identifier.
	IDOf func(T) uint64
	// Counters is the diagnostics group the container increments. Optional.
	Counters *diag.StagingCounters
}

// window accumulates staged items between freezes.
type window[K cmp.Ordered, T any] struct {
	index   uint64
	buckets map[K][]Entry[K, T]
	total   int
}

// Container is a bounded per-key staging container. Instantiate it once per
// input class (actor intents, session commands).
type Container[K cmp.Ordered, T any] struct {
	mu   sync.Mutex
	cfg  Config
	deps Deps[K, T]

	windows map[uint64]*window[K, T]
	batches map[uint64]*Batch[K, T]
	latest  *Batch[K, T]

	// nextFreeze is the lowest window that has not been frozen yet.
	nextFreeze uint64

	freeWindows []*window[K, T]
	freeBatches []*Batch[K, T]
}

// New validates cfg and builds an empty container.
func New[K cmp.Ordered, T any](cfg Config, deps Deps[K, T]) (*Container[K, T], error) {
	if cfg.Policy == DropOldest {
		return nil, apperrors.New(apperrors.CodePolicyUnimplemented, "drop-oldest overflow policy is not implemented")
	}
	if cfg.Policy != DropNewest {
		return nil, apperrors.New(apperrors.CodePolicyUnimplemented, fmt.Sprintf("unknown overflow policy %d", cfg.Policy))
	}
	if cfg.PerKeyCap <= 0 || cfg.GlobalCap <= 0 {
		return nil, apperrors.New(apperrors.CodeStagingInvalidCaps, fmt.Sprintf("invalid staging caps: per-key %d, global %d", cfg.PerKeyCap, cfg.GlobalCap))
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 2
	}
	if deps.Pool == nil {
		panic("staging: pool manager is required")
	}
	if deps.KeyOf == nil || deps.IDOf == nil {
		panic("staging: key and id extractors are required")
	}
	return &Container[K, T]{
		cfg:     cfg,
		deps:    deps,
		windows: make(map[uint64]*window[K, T]),
		batches: make(map[uint64]*Batch[K, T]),
	}, nil
}

// Config returns the container's configuration.
func (c *Container[K, T]) Config() Config { return c.cfg }

// TryStage submits an item against the given window. A nil return means the
// item was accepted and is owned by the container until frozen. Rejections
// return a typed *errors.Error after the rejection sink has fired. Staging an
// item with a zero-value key is a precondition violation and panics: keys are
// authenticated upstream and a zero key cannot come from untrusted input.
func (c *Container[K, T]) TryStage(windowIndex uint64, item T) error {
	key := c.deps.KeyOf(item)
	var zero K
	if key == zero {
		panic("staging: zero-value staging key")
	}
	id := c.deps.IDOf(item)

	c.mu.Lock()
	if windowIndex < c.nextFreeze {
		c.mu.Unlock()
		return c.reject(apperrors.CodeRejectStale, key, id, windowIndex)
	}

	w := c.openWindowLocked(windowIndex)
	bucket, ok := w.buckets[key]
	if ok && len(bucket) >= c.cfg.PerKeyCap {
		c.mu.Unlock()
		return c.reject(apperrors.CodeRejectOverflowKey, key, id, windowIndex)
	}
	if w.total >= c.cfg.GlobalCap {
		c.mu.Unlock()
		return c.reject(apperrors.CodeRejectOverflowGlobal, key, id, windowIndex)
	}

	if !ok {
		bucket = c.deps.Pool.Rent(c.cfg.PerKeyCap)
	}
	w.buckets[key] = append(bucket, Entry[K, T]{Key: key, ID: id, Item: item})
	w.total++
	buffered := uint64(w.total)
	c.mu.Unlock()

	if c.deps.Counters != nil {
		c.deps.Counters.Accepted.Add(1)
		c.deps.Counters.RecordBuffered(buffered)
	}
	return nil
}

// reject fires the sink and returns the typed rejection.
func (c *Container[K, T]) reject(code apperrors.Code, key K, id uint64, windowIndex uint64) error {
	if c.deps.Counters != nil {
		switch code {
		case apperrors.CodeRejectOverflowKey:
			c.deps.Counters.RejectedOverflowKey.Add(1)
		case apperrors.CodeRejectOverflowGlobal:
			c.deps.Counters.RejectedOverflowGlobal.Add(1)
		case apperrors.CodeRejectStale:
			c.deps.Counters.RejectedStale.Add(1)
		}
	}
	if c.deps.Sink != nil {
		c.deps.Sink.OnRejected(Rejection[K]{Code: code, Key: key, ItemID: id, Window: windowIndex})
	}
	return apperrors.WithMetadata(code, fmt.Sprintf("staging rejected item %d for window %d", id, windowIndex), map[string]string{
		"window": fmt.Sprintf("%d", windowIndex),
	})
}

// openWindowLocked returns the accumulation state for windowIndex, creating
// it lazily from the recycle list.
func (c *Container[K, T]) openWindowLocked(windowIndex uint64) *window[K, T] {
	if w, ok := c.windows[windowIndex]; ok {
		return w
	}
	var w *window[K, T]
	if n := len(c.freeWindows); n > 0 {
		w = c.freeWindows[n-1]
		c.freeWindows = c.freeWindows[:n-1]
	} else {
		w = &window[K, T]{buckets: make(map[K][]Entry[K, T])}
	}
	w.index = windowIndex
	w.total = 0
	c.windows[windowIndex] = w
	return w
}

// Freeze commits every item staged up to and including windowIndex into an
// immutable batch stamped for tick windowIndex+1. Entries are ordered by
// (key, natural identifier) using ordinal comparison only; arrival order and
// caller-supplied fields play no part. Sequence numbers restart at 1 per key
// in sorted order. A window with no staged items still yields a canonical
// empty batch. Freezing an already-frozen window is a contract violation and
// panics; the one-freeze-per-tick guarantee depends on it.
func (c *Container[K, T]) Freeze(windowIndex uint64) *Batch[K, T] {
	c.mu.Lock()
	defer c.mu.Unlock()

	if windowIndex < c.nextFreeze {
		panic(fmt.Sprintf("staging: window %d already frozen", windowIndex))
	}

	total := 0
	for idx, w := range c.windows {
		if idx <= windowIndex {
			total += w.total
		}
	}

	entries := c.deps.Pool.Rent(total)
	for idx, w := range c.windows {
		if idx > windowIndex {
			continue
		}
		for key, bucket := range w.buckets {
			entries = append(entries, bucket...)
			c.deps.Pool.Return(bucket)
			delete(w.buckets, key)
		}
		delete(c.windows, idx)
		c.freeWindows = append(c.freeWindows, w)
	}

	slices.SortFunc(entries, func(a, b Entry[K, T]) int {
		if r := cmp.Compare(a.Key, b.Key); r != 0 {
			return r
		}
		return cmp.Compare(a.ID, b.ID)
	})

	var seq uint32
	for i := range entries {
		if i == 0 || entries[i].Key != entries[i-1].Key {
			seq = 0
		}
		seq++
		entries[i].Seq = seq
	}

	batch := c.newBatchLocked()
	batch.tick = windowIndex + 1
	batch.entries = entries

	c.batches[batch.tick] = batch
	c.latest = batch
	c.nextFreeze = windowIndex + 1

	if c.deps.Counters != nil {
		c.deps.Counters.Freezes.Add(1)
		c.deps.Counters.LastFrozenCount.Store(uint64(total))
	}
	return batch
}

func (c *Container[K, T]) newBatchLocked() *Batch[K, T] {
	if n := len(c.freeBatches); n > 0 {
		b := c.freeBatches[n-1]
		c.freeBatches = c.freeBatches[:n-1]
		return b
	}
	return &Batch[K, T]{}
}

// Latest returns the most recently frozen batch. The read is repeatable and
// stable until the next freeze. Before the first freeze it returns a nil
// batch, which reads as empty.
func (c *Container[K, T]) Latest() *Batch[K, T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// LatestForKey returns the latest frozen batch's contiguous run of entries
// for key, in sequence order.
func (c *Container[K, T]) LatestForKey(key K) []Entry[K, T] {
	return c.Latest().ForKey(key)
}

// Frozen returns the batch committed for the given tick, if it is still
// within the retention horizon.
func (c *Container[K, T]) Frozen(tick uint64) (*Batch[K, T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.batches[tick]
	return b, ok
}

// Prune releases frozen batches stamped strictly before oldestRetained,
// returning their storage to the pool.
func (c *Container[K, T]) Prune(oldestRetained uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for tick, b := range c.batches {
		if tick >= oldestRetained {
			continue
		}
		if b == c.latest {
			continue
		}
		c.deps.Pool.Return(b.entries)
		b.entries = nil
		b.tick = 0
		delete(c.batches, tick)
		c.freeBatches = append(c.freeBatches, b)
	}
}

// Reset releases all staged and frozen state and zeroes the container's
// counters. It is idempotent and intended for session boundaries and test
// teardown.
func (c *Container[K, T]) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for idx, w := range c.windows {
		for key, bucket := range w.buckets {
			c.deps.Pool.Return(bucket)
			delete(w.buckets, key)
		}
		w.total = 0
		delete(c.windows, idx)
		c.freeWindows = append(c.freeWindows, w)
	}
	for tick, b := range c.batches {
		c.deps.Pool.Return(b.entries)
		b.entries = nil
		b.tick = 0
		delete(c.batches, tick)
		c.freeBatches = append(c.freeBatches, b)
	}
	c.latest = nil
	c.nextFreeze = 0

	if c.deps.Counters != nil {
		c.deps.Counters.Reset()
	}
}
