// Package diag records allocation-free monotonic counters for the arena core
// and exposes them as point-in-time snapshots.
//
// Counter groups are owned by the components that increment them; the
// Recorder only aggregates reads. Reading a snapshot never mutates state and
// must never influence control flow.
package diag

import (
	"sync/atomic"

	"github.com/mhollis/shardfall/internal/services/arena/core/pool"
)

// StagingCounters tracks one staging container.
type StagingCounters struct {
	Accepted               atomic.Uint64
	RejectedStructural     atomic.Uint64
	RejectedOverflowKey    atomic.Uint64
	RejectedOverflowGlobal atomic.Uint64
	RejectedStale          atomic.Uint64
	Freezes                atomic.Uint64

	// PeakBuffered is a high-water mark, not a monotonic count.
	PeakBuffered atomic.Uint64
	// LastFrozenCount is the item count of the most recent frozen batch.
	LastFrozenCount atomic.Uint64
}

// RecordBuffered updates the high-water mark of concurrently buffered items.
func (c *StagingCounters) RecordBuffered(n uint64) {
	for {
		peak := c.PeakBuffered.Load()
		if n <= peak {
			return
		}
		if c.PeakBuffered.CompareAndSwap(peak, n) {
			return
		}
	}
}

// Reset zeroes the group. Used at session boundaries alongside container
// resets; snapshots taken before and after a reset are not comparable.
func (c *StagingCounters) Reset() {
	c.Accepted.Store(0)
	c.RejectedStructural.Store(0)
	c.RejectedOverflowKey.Store(0)
	c.RejectedOverflowGlobal.Store(0)
	c.RejectedStale.Store(0)
	c.Freezes.Store(0)
	c.PeakBuffered.Store(0)
	c.LastFrozenCount.Store(0)
}

// RejectedTotal sums all rejection counters.
func (c *StagingCounters) RejectedTotal() uint64 {
	return c.RejectedStructural.Load() +
		c.RejectedOverflowKey.Load() +
		c.RejectedOverflowGlobal.Load() +
		c.RejectedStale.Load()
}

// RingCounters tracks one ring pipeline.
type RingCounters struct {
	Enqueued     atomic.Uint64
	RejectedFull atomic.Uint64
	Processed    atomic.Uint64
	Dropped      atomic.Uint64
	UnknownKind  atomic.Uint64

	// DeferredTicks counts ticks that hit the per-tick processing bound with
	// work still pending. Deferred items are never dropped.
	DeferredTicks atomic.Uint64
}

// LoopCounters tracks the tick scheduler.
type LoopCounters struct {
	Ticks          atomic.Uint64
	ClampedUpdates atomic.Uint64
	DroppedBacklog atomic.Uint64
	BudgetOverruns atomic.Uint64

	// LastTickMicros is the duration of the most recent tick, a gauge.
	LastTickMicros atomic.Uint64
}

// StagingSnapshot are the staging counter values at one instant.
type StagingSnapshot struct {
	Accepted               uint64
	RejectedStructural     uint64
	RejectedOverflowKey    uint64
	RejectedOverflowGlobal uint64
	RejectedStale          uint64
	Freezes                uint64
	PeakBuffered           uint64
	LastFrozenCount        uint64
}

// RejectedTotal sums the snapshot's rejection counters.
func (s StagingSnapshot) RejectedTotal() uint64 {
	return s.RejectedStructural + s.RejectedOverflowKey + s.RejectedOverflowGlobal + s.RejectedStale
}

// RingSnapshot are the ring counter values at one instant.
type RingSnapshot struct {
	Enqueued      uint64
	RejectedFull  uint64
	Processed     uint64
	Dropped       uint64
	UnknownKind   uint64
	DeferredTicks uint64
}

// LoopSnapshot are the scheduler counter values at one instant.
type LoopSnapshot struct {
	Ticks          uint64
	ClampedUpdates uint64
	DroppedBacklog uint64
	BudgetOverruns uint64
	LastTickMicros uint64
}

// Snapshot is a full view of arena core counters. Callers own the struct and
// may reuse it across reads.
type Snapshot struct {
	Intents    StagingSnapshot
	Commands   StagingSnapshot
	Handshakes RingSnapshot
	Loop       LoopSnapshot
	Pools      pool.Stats
}

// Recorder aggregates counter groups owned elsewhere.
type Recorder struct {
	intents    *StagingCounters
	commands   *StagingCounters
	handshakes *RingCounters
	loop       *LoopCounters
	pools      []func() pool.Stats
}

// NewRecorder wires a recorder over the given counter groups. Nil groups are
// tolerated and read as zero.
func NewRecorder(intents, commands *StagingCounters, handshakes *RingCounters, loop *LoopCounters, pools ...func() pool.Stats) *Recorder {
	return &Recorder{
		intents:    intents,
		commands:   commands,
		handshakes: handshakes,
		loop:       loop,
		pools:      pools,
	}
}

// Read fills dst with the current counter values. It performs no allocations
// and never mutates the underlying counters.
func (r *Recorder) Read(dst *Snapshot) {
	if r == nil || dst == nil {
		return
	}
	readStaging(r.intents, &dst.Intents)
	readStaging(r.commands, &dst.Commands)
	readRing(r.handshakes, &dst.Handshakes)
	readLoop(r.loop, &dst.Loop)

	dst.Pools = pool.Stats{}
	for _, sample := range r.pools {
		if sample == nil {
			continue
		}
		s := sample()
		dst.Pools.Rents += s.Rents
		dst.Pools.Returns += s.Returns
		dst.Pools.Growths += s.Growths
		dst.Pools.Oversize += s.Oversize
	}
}

func readStaging(src *StagingCounters, dst *StagingSnapshot) {
	if src == nil {
		*dst = StagingSnapshot{}
		return
	}
	dst.Accepted = src.Accepted.Load()
	dst.RejectedStructural = src.RejectedStructural.Load()
	dst.RejectedOverflowKey = src.RejectedOverflowKey.Load()
	dst.RejectedOverflowGlobal = src.RejectedOverflowGlobal.Load()
	dst.RejectedStale = src.RejectedStale.Load()
	dst.Freezes = src.Freezes.Load()
	dst.PeakBuffered = src.PeakBuffered.Load()
	dst.LastFrozenCount = src.LastFrozenCount.Load()
}

func readRing(src *RingCounters, dst *RingSnapshot) {
	if src == nil {
		*dst = RingSnapshot{}
		return
	}
	dst.Enqueued = src.Enqueued.Load()
	dst.RejectedFull = src.RejectedFull.Load()
	dst.Processed = src.Processed.Load()
	dst.Dropped = src.Dropped.Load()
	dst.UnknownKind = src.UnknownKind.Load()
	dst.DeferredTicks = src.DeferredTicks.Load()
}

func readLoop(src *LoopCounters, dst *LoopSnapshot) {
	if src == nil {
		*dst = LoopSnapshot{}
		return
	}
	dst.Ticks = src.Ticks.Load()
	dst.ClampedUpdates = src.ClampedUpdates.Load()
	dst.DroppedBacklog = src.DroppedBacklog.Load()
	dst.BudgetOverruns = src.BudgetOverruns.Load()
	dst.LastTickMicros = src.LastTickMicros.Load()
}
