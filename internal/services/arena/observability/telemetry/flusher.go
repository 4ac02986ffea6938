package telemetry

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/mhollis/shardfall/internal/platform/id"
	"github.com/mhollis/shardfall/internal/services/arena/observability/diag"
	"github.com/mhollis/shardfall/internal/services/arena/storage"
)

// rejectionBuffer bounds the mirror channel. Overflow drops records rather
// than blocking the submission path.
const rejectionBuffer = 256

// FlusherConfig configures the diagnostics flusher.
type FlusherConfig struct {
	// Interval between diagnostics samples. Defaults to 5s.
	Interval time.Duration
}

// Flusher periodically snapshots diagnostics counters and persists them,
// and mirrors rejection records handed to ObserveRejection. All persistence
// happens on the flusher goroutine.
type Flusher struct {
	emitter  *Emitter
	recorder *diag.Recorder
	tick     func() uint64
	interval time.Duration
	runID    string

	rejections chan storage.RejectionRecord
	dropped    atomic.Uint64

	mu      sync.Mutex
	stop    chan struct{}
	done    chan struct{}
	running bool
}

// NewFlusher builds a flusher over the recorder. tick reports the currently
// published tick and may be nil.
func NewFlusher(emitter *Emitter, recorder *diag.Recorder, tick func() uint64, cfg FlusherConfig) *Flusher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	runID, err := id.NewID()
	if err != nil {
		log.Printf("telemetry: generate run id: %v", err)
	}
	return &Flusher{
		emitter:    emitter,
		recorder:   recorder,
		tick:       tick,
		interval:   interval,
		runID:      runID,
		rejections: make(chan storage.RejectionRecord, rejectionBuffer),
	}
}

// ObserveRejection queues a rejection record for persistence. It never
// blocks; records are dropped when the buffer is full.
func (f *Flusher) ObserveRejection(rec storage.RejectionRecord) {
	if f == nil {
		return
	}
	select {
	case f.rejections <- rec:
	default:
		f.dropped.Add(1)
	}
}

// DroppedRejections reports how many records overflowed the mirror buffer.
func (f *Flusher) DroppedRejections() uint64 {
	return f.dropped.Load()
}

// Start launches the flusher goroutine. It is a no-op when already running.
func (f *Flusher) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return
	}
	f.running = true
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	go f.run(ctx, f.stop, f.done)
}

// Stop flushes once more and waits for the goroutine to exit.
func (f *Flusher) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	stop, done := f.stop, f.done
	f.mu.Unlock()

	close(stop)
	<-done
}

func (f *Flusher) run(ctx context.Context, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			f.flush(ctx)
			return
		case <-ctx.Done():
			return
		case rec := <-f.rejections:
			if err := f.emitter.EmitRejection(ctx, rec); err != nil {
				log.Printf("telemetry: emit rejection: %v", err)
			}
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

// flush drains queued rejections and persists one diagnostics sample.
func (f *Flusher) flush(ctx context.Context) {
	for {
		select {
		case rec := <-f.rejections:
			if err := f.emitter.EmitRejection(ctx, rec); err != nil {
				log.Printf("telemetry: emit rejection: %v", err)
			}
			continue
		default:
		}
		break
	}

	if f.recorder == nil {
		return
	}

	ctx, span := otel.Tracer("arena/telemetry").Start(ctx, "diag.flush")
	defer span.End()

	var snap diag.Snapshot
	f.recorder.Read(&snap)

	sample := storage.DiagSample{
		RunID:              f.runID,
		IntentsAccepted:    snap.Intents.Accepted,
		IntentsRejected:    snap.Intents.RejectedTotal(),
		CommandsAccepted:   snap.Commands.Accepted,
		CommandsRejected:   snap.Commands.RejectedTotal(),
		HandshakesEnqueued: snap.Handshakes.Enqueued,
		HandshakesRejected: snap.Handshakes.RejectedFull,
		RingDropped:        snap.Handshakes.Dropped,
		ClampedUpdates:     snap.Loop.ClampedUpdates,
		DroppedBacklog:     snap.Loop.DroppedBacklog,
		BudgetOverruns:     snap.Loop.BudgetOverruns,
		LastTickMicros:     snap.Loop.LastTickMicros,
	}
	if f.tick != nil {
		sample.Tick = f.tick()
	}
	if err := f.emitter.EmitSample(ctx, sample); err != nil {
		log.Printf("telemetry: emit sample: %v", err)
	}
}
