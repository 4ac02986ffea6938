// Package sqlite provides the SQLite-backed telemetry store.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/mhollis/shardfall/internal/platform/storage/sqlitemigrate"
	"github.com/mhollis/shardfall/internal/services/arena/storage"
	"github.com/mhollis/shardfall/internal/services/arena/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed arena telemetry persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens an arena telemetry store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordSample persists one diagnostics snapshot.
func (s *Store) RecordSample(ctx context.Context, sample storage.DiagSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if sample.CapturedAt.IsZero() {
		sample.CapturedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO diag_samples (
	run_id,
	tick,
	intents_accepted,
	intents_rejected,
	commands_accepted,
	commands_rejected,
	handshakes_enqueued,
	handshakes_rejected,
	ring_dropped,
	clamped_updates,
	dropped_backlog,
	budget_overruns,
	last_tick_micros,
	trace_id,
	span_id,
	captured_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		sample.RunID,
		sample.Tick,
		sample.IntentsAccepted,
		sample.IntentsRejected,
		sample.CommandsAccepted,
		sample.CommandsRejected,
		sample.HandshakesEnqueued,
		sample.HandshakesRejected,
		sample.RingDropped,
		sample.ClampedUpdates,
		sample.DroppedBacklog,
		sample.BudgetOverruns,
		sample.LastTickMicros,
		sample.TraceID,
		sample.SpanID,
		sample.CapturedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record sample: %w", err)
	}
	return nil
}

// ListSamples lists newest-first diagnostics samples.
func (s *Store) ListSamples(ctx context.Context, limit int) ([]storage.DiagSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	run_id,
	tick,
	intents_accepted,
	intents_rejected,
	commands_accepted,
	commands_rejected,
	handshakes_enqueued,
	handshakes_rejected,
	ring_dropped,
	clamped_updates,
	dropped_backlog,
	budget_overruns,
	last_tick_micros,
	trace_id,
	span_id,
	captured_at
FROM diag_samples
ORDER BY captured_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list samples: %w", err)
	}
	defer rows.Close()

	samples := make([]storage.DiagSample, 0, limit)
	for rows.Next() {
		var sample storage.DiagSample
		var capturedAt int64
		if err := rows.Scan(
			&sample.ID,
			&sample.RunID,
			&sample.Tick,
			&sample.IntentsAccepted,
			&sample.IntentsRejected,
			&sample.CommandsAccepted,
			&sample.CommandsRejected,
			&sample.HandshakesEnqueued,
			&sample.HandshakesRejected,
			&sample.RingDropped,
			&sample.ClampedUpdates,
			&sample.DroppedBacklog,
			&sample.BudgetOverruns,
			&sample.LastTickMicros,
			&sample.TraceID,
			&sample.SpanID,
			&capturedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sample.CapturedAt = time.UnixMilli(capturedAt).UTC()
		samples = append(samples, sample)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate samples: %w", err)
	}
	return samples, nil
}

// RecordRejection persists one rejection record.
func (s *Store) RecordRejection(ctx context.Context, rec storage.RejectionRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	rec.Code = strings.TrimSpace(rec.Code)
	if rec.Code == "" {
		return fmt.Errorf("rejection code is required")
	}
	if rec.CapturedAt.IsZero() {
		rec.CapturedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO rejection_records (
	code,
	key,
	item_id,
	window_index,
	captured_at
) VALUES (?, ?, ?, ?, ?)
`,
		rec.Code,
		rec.Key,
		rec.ItemID,
		rec.Window,
		rec.CapturedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record rejection: %w", err)
	}
	return nil
}

// ListRejections lists newest-first rejection records.
func (s *Store) ListRejections(ctx context.Context, limit int) ([]storage.RejectionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	code,
	key,
	item_id,
	window_index,
	captured_at
FROM rejection_records
ORDER BY captured_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list rejections: %w", err)
	}
	defer rows.Close()

	records := make([]storage.RejectionRecord, 0, limit)
	for rows.Next() {
		var rec storage.RejectionRecord
		var capturedAt int64
		if err := rows.Scan(
			&rec.ID,
			&rec.Code,
			&rec.Key,
			&rec.ItemID,
			&rec.Window,
			&capturedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rejection: %w", err)
		}
		rec.CapturedAt = time.UnixMilli(capturedAt).UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rejections: %w", err)
	}
	return records, nil
}

var _ storage.TelemetryStore = (*Store)(nil)
