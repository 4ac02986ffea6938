package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mhollis/shardfall/internal/services/arena/observability/diag"
	"github.com/mhollis/shardfall/internal/services/arena/storage"
)

type fakeStore struct {
	mu         sync.Mutex
	samples    []storage.DiagSample
	rejections []storage.RejectionRecord
}

func (f *fakeStore) RecordSample(_ context.Context, sample storage.DiagSample) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples = append(f.samples, sample)
	return nil
}

func (f *fakeStore) ListSamples(context.Context, int) ([]storage.DiagSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.DiagSample(nil), f.samples...), nil
}

func (f *fakeStore) RecordRejection(_ context.Context, rec storage.RejectionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejections = append(f.rejections, rec)
	return nil
}

func (f *fakeStore) ListRejections(context.Context, int) ([]storage.RejectionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.RejectionRecord(nil), f.rejections...), nil
}

func (f *fakeStore) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.samples), len(f.rejections)
}

func TestEmitterStampsCaptureTime(t *testing.T) {
	store := &fakeStore{}
	emitter := NewEmitter(store)
	fixed := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	emitter.clock = func() time.Time { return fixed }

	if err := emitter.EmitSample(context.Background(), storage.DiagSample{Tick: 3}); err != nil {
		t.Fatalf("emit sample: %v", err)
	}
	if err := emitter.EmitRejection(context.Background(), storage.RejectionRecord{Code: "REJECT_STALE_WINDOW"}); err != nil {
		t.Fatalf("emit rejection: %v", err)
	}

	if !store.samples[0].CapturedAt.Equal(fixed) {
		t.Fatalf("sample captured at = %v, want %v", store.samples[0].CapturedAt, fixed)
	}
	if !store.rejections[0].CapturedAt.Equal(fixed) {
		t.Fatalf("rejection captured at = %v, want %v", store.rejections[0].CapturedAt, fixed)
	}
}

func TestEmitterNilStoreIsNoop(t *testing.T) {
	emitter := NewEmitter(nil)
	if err := emitter.EmitSample(context.Background(), storage.DiagSample{}); err != nil {
		t.Fatalf("emit sample with nil store: %v", err)
	}
	if err := emitter.EmitRejection(context.Background(), storage.RejectionRecord{}); err != nil {
		t.Fatalf("emit rejection with nil store: %v", err)
	}
}

func TestFlusherPersistsSnapshotAndRejections(t *testing.T) {
	store := &fakeStore{}
	loop := &diag.LoopCounters{}
	loop.ClampedUpdates.Store(2)
	loop.DroppedBacklog.Store(9)
	intents := &diag.StagingCounters{}
	intents.Accepted.Store(41)
	intents.RejectedStale.Store(1)
	recorder := diag.NewRecorder(intents, nil, nil, loop)

	flusher := NewFlusher(NewEmitter(store), recorder, func() uint64 { return 77 }, FlusherConfig{Interval: time.Hour})
	flusher.ObserveRejection(storage.RejectionRecord{Code: "REJECT_OVERFLOW_PER_KEY", Key: "actor:4", Window: 76})

	flusher.Start(context.Background())
	flusher.Stop()

	samples, rejections := store.counts()
	if samples != 1 {
		t.Fatalf("samples = %d, want 1", samples)
	}
	if rejections != 1 {
		t.Fatalf("rejections = %d, want 1", rejections)
	}
	sample := store.samples[0]
	if sample.Tick != 77 {
		t.Fatalf("sample tick = %d, want 77", sample.Tick)
	}
	if sample.IntentsAccepted != 41 {
		t.Fatalf("intents accepted = %d, want 41", sample.IntentsAccepted)
	}
	if sample.IntentsRejected != 1 {
		t.Fatalf("intents rejected = %d, want 1", sample.IntentsRejected)
	}
	if sample.DroppedBacklog != 9 {
		t.Fatalf("dropped backlog = %d, want 9", sample.DroppedBacklog)
	}
	if store.rejections[0].Key != "actor:4" {
		t.Fatalf("rejection key = %q, want %q", store.rejections[0].Key, "actor:4")
	}
}

func TestFlusherStartStopIdempotent(t *testing.T) {
	flusher := NewFlusher(NewEmitter(&fakeStore{}), nil, nil, FlusherConfig{Interval: time.Hour})
	flusher.Start(context.Background())
	flusher.Start(context.Background())
	flusher.Stop()
	flusher.Stop()
}

func TestFlusherPeriodicFlush(t *testing.T) {
	store := &fakeStore{}
	recorder := diag.NewRecorder(nil, nil, nil, nil)
	flusher := NewFlusher(NewEmitter(store), recorder, nil, FlusherConfig{Interval: time.Millisecond})
	flusher.Start(context.Background())
	defer flusher.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if samples, _ := store.counts(); samples >= 2 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("flusher produced no periodic samples")
		}
		time.Sleep(time.Millisecond)
	}
}
