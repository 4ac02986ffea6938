// Package storage defines the persistence interfaces for arena telemetry.
// Persistence sits off the hot path: the flusher snapshots diagnostics
// counters and hands durable records here on its own goroutine.
package storage

import (
	"context"
	"time"
)

// DiagSample is one flushed diagnostics snapshot tied to a published tick.
// RunID identifies the process run that produced the sample.
type DiagSample struct {
	ID    int64
	RunID string
	Tick  uint64

	IntentsAccepted    uint64
	IntentsRejected    uint64
	CommandsAccepted   uint64
	CommandsRejected   uint64
	HandshakesEnqueued uint64
	HandshakesRejected uint64
	RingDropped        uint64

	ClampedUpdates uint64
	DroppedBacklog uint64
	BudgetOverruns uint64
	LastTickMicros uint64

	TraceID    string
	SpanID     string
	CapturedAt time.Time
}

// RejectionRecord is one persisted rejection, mirrored from the synchronous
// rejection sink.
type RejectionRecord struct {
	ID         int64
	Code       string
	Key        string
	ItemID     uint64
	Window     uint64
	CapturedAt time.Time
}

// TelemetryStore persists diagnostics samples and rejection records.
type TelemetryStore interface {
	RecordSample(ctx context.Context, sample DiagSample) error
	ListSamples(ctx context.Context, limit int) ([]DiagSample, error)
	RecordRejection(ctx context.Context, rec RejectionRecord) error
	ListRejections(ctx context.Context, limit int) ([]RejectionRecord, error)
}
