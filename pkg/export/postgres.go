package export

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/streamguard/streamguard/pkg/moderation"
)

const auditSchema = `
CREATE TABLE IF NOT EXISTS moderation_audit (
	id          BIGSERIAL PRIMARY KEY,
	platform    TEXT        NOT NULL,
	channel     TEXT        NOT NULL,
	username    TEXT        NOT NULL,
	action      TEXT        NOT NULL,
	duration_ms BIGINT      NOT NULL DEFAULT 0,
	severity    TEXT        NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	filters     TEXT[]      NOT NULL,
	latency_us  BIGINT      NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const auditInsert = `
INSERT INTO moderation_audit
	(platform, channel, username, action, duration_ms, severity, confidence, filters, latency_us)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

// AuditSink writes every decision to Postgres as an append-only audit trail.
// Inserts are fire-and-forget: a down database costs dropped rows, never a
// slow or failed decision.
type AuditSink struct {
	pool *pgxpool.Pool
	sem  *Semaphore
}

// NewAuditSink connects to the database and ensures the audit table exists.
func NewAuditSink(ctx context.Context, dsn string) (*AuditSink, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect audit database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping audit database: %w", err)
	}
	if _, err := pool.Exec(ctx, auditSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create audit table: %w", err)
	}
	return &AuditSink{pool: pool, sem: NewSemaphore(32)}, nil
}

// Record queues one decision row. Never blocks; drops under backpressure.
func (s *AuditSink) Record(msg moderation.ChatMessage, d *moderation.Decision) {
	if d == nil || !s.sem.TryAcquire() {
		return
	}
	go func() {
		defer s.sem.Release()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := s.pool.Exec(ctx, auditInsert,
			msg.Platform,
			msg.Channel,
			msg.Username,
			string(d.Action.Type),
			d.Action.Duration.Milliseconds(),
			d.Severity.String(),
			d.Confidence,
			d.TriggeredFilters,
			d.Latency.Microseconds(),
		)
		if err != nil {
			log.Printf("[AUDIT] insert failed: %v", err)
		}
	}()
}

// Dropped reports rows lost to backpressure since startup.
func (s *AuditSink) Dropped() int64 {
	return s.sem.DroppedCount()
}

// Close releases the pool.
func (s *AuditSink) Close() {
	s.pool.Close()
}
