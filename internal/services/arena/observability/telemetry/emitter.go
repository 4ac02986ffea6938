// Package telemetry moves diagnostics off the hot path. The tick loop and
// staging containers only touch atomic counters; this package snapshots
// those counters on its own goroutine and persists the results.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/mhollis/shardfall/internal/services/arena/storage"
)

// Emitter records diagnostics samples and rejection records.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// EmitSample records a diagnostics sample, stamping capture time and the
// active trace context. It is a no-op when the store is nil.
func (e *Emitter) EmitSample(ctx context.Context, sample storage.DiagSample) error {
	if e == nil || e.store == nil {
		return nil
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = e.now()
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		sample.TraceID = sc.TraceID().String()
		sample.SpanID = sc.SpanID().String()
	}
	return e.store.RecordSample(ctx, sample)
}

// EmitRejection records a rejection record. It is a no-op when the store
// is nil.
func (e *Emitter) EmitRejection(ctx context.Context, rec storage.RejectionRecord) error {
	if e == nil || e.store == nil {
		return nil
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = e.now()
	}
	return e.store.RecordRejection(ctx, rec)
}

func (e *Emitter) now() time.Time {
	if e.clock == nil {
		return time.Now().UTC()
	}
	return e.clock().UTC()
}
