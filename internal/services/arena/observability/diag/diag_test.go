package diag

import (
	"testing"

	"github.com/mhollis/shardfall/internal/services/arena/core/pool"
)

func TestRecordBufferedKeepsHighWater(t *testing.T) {
	var c StagingCounters
	c.RecordBuffered(5)
	c.RecordBuffered(3)
	if got := c.PeakBuffered.Load(); got != 5 {
		t.Fatalf("expected peak 5, got %d", got)
	}
	c.RecordBuffered(9)
	if got := c.PeakBuffered.Load(); got != 9 {
		t.Fatalf("expected peak 9, got %d", got)
	}
}

func TestReadIsIdempotent(t *testing.T) {
	var intents, commands StagingCounters
	var ring RingCounters
	var loop LoopCounters
	intents.Accepted.Store(7)
	ring.Processed.Store(2)
	loop.Ticks.Store(11)

	r := NewRecorder(&intents, &commands, &ring, &loop)

	var first, second Snapshot
	r.Read(&first)
	r.Read(&second)

	if first != second {
		t.Fatalf("expected identical snapshots, got %+v vs %+v", first, second)
	}
	if first.Intents.Accepted != 7 {
		t.Fatalf("expected 7 accepted intents, got %d", first.Intents.Accepted)
	}
	if first.Loop.Ticks != 11 {
		t.Fatalf("expected 11 ticks, got %d", first.Loop.Ticks)
	}
	if intents.Accepted.Load() != 7 {
		t.Fatal("read must not mutate counters")
	}
}

func TestReadToleratesNilGroups(t *testing.T) {
	r := NewRecorder(nil, nil, nil, nil)
	var snap Snapshot
	snap.Intents.Accepted = 99
	r.Read(&snap)
	if snap.Intents.Accepted != 0 {
		t.Fatalf("expected nil group to read as zero, got %d", snap.Intents.Accepted)
	}
}

func TestReadAggregatesPoolStats(t *testing.T) {
	a := pool.NewManager[int]()
	b := pool.NewManager[string]()
	_ = a.Rent(8)
	_ = b.Rent(8)

	r := NewRecorder(nil, nil, nil, nil, a.Statistics, b.Statistics)
	var snap Snapshot
	r.Read(&snap)
	if snap.Pools.Rents != 2 {
		t.Fatalf("expected 2 aggregated rents, got %d", snap.Pools.Rents)
	}
	if snap.Pools.Growths == 0 {
		t.Fatal("expected growth events from cold pools")
	}
}

func TestRejectedTotal(t *testing.T) {
	var c StagingCounters
	c.RejectedStructural.Store(1)
	c.RejectedOverflowKey.Store(2)
	c.RejectedOverflowGlobal.Store(3)
	c.RejectedStale.Store(4)
	if got := c.RejectedTotal(); got != 10 {
		t.Fatalf("expected 10 total rejections, got %d", got)
	}
}
