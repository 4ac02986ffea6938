// Package ring implements a session-scoped single-ring pipeline for
// unordered-key, FIFO workloads such as connection handshakes.
//
// Unlike the staging container it has no per-key caps and no freeze: one
// shared bounded ring drains incrementally, at most a fixed number of items
// per tick, so a single tick can never absorb an unbounded backlog. Excess
// items are deferred to later ticks, never dropped.
package ring

import (
	"fmt"
	"sync"

	apperrors "github.com/mhollis/shardfall/internal/platform/errors"
	"github.com/mhollis/shardfall/internal/services/arena/observability/diag"
)

// Config bounds a pipeline.
type Config struct {
	// Capacity is the fixed ring size.
	Capacity int
	// MaxPerTick bounds how many items ProcessTick drains in one call.
	MaxPerTick int
}

// Deps are the injected collaborators of a pipeline.
type Deps[K comparable, T any] struct {
	// Exec runs one drained item on the authoritative goroutine.
	Exec func(key K, item T)
	// Rejected observes full-ring rejections synchronously. Optional.
	Rejected func(key K)
	// Counters is the diagnostics group the pipeline increments. Optional.
	Counters *diag.RingCounters
}

type slot[K comparable, T any] struct {
	key  K
	item T
}

// Pipeline is a bounded FIFO ring. TryEnqueue may be called concurrently;
// ProcessNext, ProcessTick, Drop and Reset belong to the authoritative
// goroutine.
type Pipeline[K comparable, T any] struct {
	mu    sync.Mutex
	cfg   Config
	deps  Deps[K, T]
	slots []slot[K, T]
	head  int
	count int
}

// New validates cfg and builds an empty pipeline. The backing ring is
// allocated once; the steady state allocates nothing.
func New[K comparable, T any](cfg Config, deps Deps[K, T]) (*Pipeline[K, T], error) {
	if cfg.Capacity <= 0 {
		return nil, apperrors.New(apperrors.CodeRingInvalidCapacity, fmt.Sprintf("invalid ring capacity %d", cfg.Capacity))
	}
	if cfg.MaxPerTick <= 0 {
		return nil, apperrors.New(apperrors.CodeRingInvalidCapacity, fmt.Sprintf("invalid ring max-per-tick %d", cfg.MaxPerTick))
	}
	if deps.Exec == nil {
		panic("ring: exec function is required")
	}
	return &Pipeline[K, T]{
		cfg:   cfg,
		deps:  deps,
		slots: make([]slot[K, T], cfg.Capacity),
	}, nil
}

// TryEnqueue appends an item to the ring. When the ring is full the item is
// rejected with a typed error after the rejection observer has fired;
// already-queued items are untouched.
func (p *Pipeline[K, T]) TryEnqueue(key K, item T) error {
	p.mu.Lock()
	if p.count == p.cfg.Capacity {
		p.mu.Unlock()
		if p.deps.Counters != nil {
			p.deps.Counters.RejectedFull.Add(1)
		}
		if p.deps.Rejected != nil {
			p.deps.Rejected(key)
		}
		return apperrors.New(apperrors.CodeRejectRingFull, "pipeline ring is full")
	}
	p.slots[(p.head+p.count)%p.cfg.Capacity] = slot[K, T]{key: key, item: item}
	p.count++
	p.mu.Unlock()

	if p.deps.Counters != nil {
		p.deps.Counters.Enqueued.Add(1)
	}
	return nil
}

// ProcessNext drains and executes exactly one pending item. It reports
// whether an item was processed. The exec function runs outside the ring
// lock so handlers may enqueue follow-up work.
func (p *Pipeline[K, T]) ProcessNext() bool {
	p.mu.Lock()
	if p.count == 0 {
		p.mu.Unlock()
		return false
	}
	s := p.slots[p.head]
	p.slots[p.head] = slot[K, T]{}
	p.head = (p.head + 1) % p.cfg.Capacity
	p.count--
	p.mu.Unlock()

	p.deps.Exec(s.key, s.item)
	if p.deps.Counters != nil {
		p.deps.Counters.Processed.Add(1)
	}
	return true
}

// ProcessTick drains up to the per-tick bound and returns how many items ran.
// When the bound is hit with work still pending, the deferred-tick counter
// increments; the remainder runs on later ticks.
func (p *Pipeline[K, T]) ProcessTick() int {
	processed := 0
	for processed < p.cfg.MaxPerTick {
		if !p.ProcessNext() {
			return processed
		}
		processed++
	}
	if p.Len() > 0 && p.deps.Counters != nil {
		p.deps.Counters.DeferredTicks.Add(1)
	}
	return processed
}

// Drop removes all pending items for one key without disturbing the relative
// order of the remainder. It returns how many items were removed.
func (p *Pipeline[K, T]) Drop(key K) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	kept := 0
	dropped := 0
	for i := 0; i < p.count; i++ {
		s := p.slots[(p.head+i)%p.cfg.Capacity]
		if s.key == key {
			dropped++
			continue
		}
		p.slots[(p.head+kept)%p.cfg.Capacity] = s
		kept++
	}
	for i := kept; i < p.count; i++ {
		p.slots[(p.head+i)%p.cfg.Capacity] = slot[K, T]{}
	}
	p.count = kept

	if dropped > 0 && p.deps.Counters != nil {
		p.deps.Counters.Dropped.Add(uint64(dropped))
	}
	return dropped
}

// Len returns the number of pending items.
func (p *Pipeline[K, T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// Reset discards all pending items. Idempotent.
func (p *Pipeline[K, T]) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.slots)
	p.head = 0
	p.count = 0
}
