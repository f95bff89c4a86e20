package export

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/streamguard/streamguard/pkg/analytics"
	"github.com/streamguard/streamguard/pkg/escalation"
)

const (
	analyticsKeyPrefix = "streamguard:analytics:"
	ledgerKeyPrefix    = "streamguard:ledger:"
	globalKey          = "streamguard:global"

	// Exported keys expire on their own so a retired filter or idle user
	// does not live in Redis forever.
	exportTTL = 48 * time.Hour

	exportTimeout = 5 * time.Second
)

// RedisExporter pushes analytics and ledger snapshots into Redis for
// external dashboards and warm restarts. The decision core never reads any
// of this back; it is strictly an outbound mirror.
type RedisExporter struct {
	client *redis.Client
	sem    *Semaphore
}

// NewRedisExporter connects a client for the given address. The connection
// is verified lazily; a down Redis only costs dropped exports, never a
// failed decision.
func NewRedisExporter(addr string) *RedisExporter {
	return &RedisExporter{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		sem:    NewSemaphore(8),
	}
}

// Ping verifies connectivity, for startup status logging.
func (e *RedisExporter) Ping(ctx context.Context) error {
	return e.client.Ping(ctx).Err()
}

// Close releases the client.
func (e *RedisExporter) Close() error {
	return e.client.Close()
}

// ExportAnalytics writes one hash per filter plus the global snapshot.
func (e *RedisExporter) ExportAnalytics(ctx context.Context, reg *analytics.Registry) error {
	for _, snap := range reg.Snapshots() {
		key := analyticsKeyPrefix + snap.FilterID
		fields := map[string]interface{}{
			"filter_type":          snap.FilterType,
			"total_triggers":       snap.TotalTriggers,
			"true_positives":       snap.TruePositives,
			"false_positives":      snap.FalsePositives,
			"false_negatives":      snap.FalseNegatives,
			"precision":            snap.Precision,
			"recall":               snap.Recall,
			"f1":                   snap.F1,
			"accuracy":             snap.Accuracy,
			"avg_response_time_ms": snap.AvgResponseTimeMs,
		}
		if err := e.client.HSet(ctx, key, fields).Err(); err != nil {
			return fmt.Errorf("export filter %s: %w", snap.FilterID, err)
		}
		e.client.Expire(ctx, key, exportTTL)
	}

	global, err := json.Marshal(reg.Global().Snapshot())
	if err != nil {
		return fmt.Errorf("marshal global snapshot: %w", err)
	}
	if err := e.client.Set(ctx, globalKey, global, exportTTL).Err(); err != nil {
		return fmt.Errorf("export global snapshot: %w", err)
	}
	return nil
}

// ExportLedger mirrors each user's retained violation history as JSON.
func (e *RedisExporter) ExportLedger(ctx context.Context, ledger *escalation.Ledger) error {
	now := time.Now()
	for _, key := range ledger.Keys() {
		violations, positives := ledger.History(key, now)
		if len(violations) == 0 && len(positives) == 0 {
			continue
		}
		payload, err := json.Marshal(map[string]interface{}{
			"violations": violations,
			"positives":  positives,
		})
		if err != nil {
			return fmt.Errorf("marshal ledger %s: %w", key, err)
		}
		if err := e.client.Set(ctx, ledgerKeyPrefix+key, payload, exportTTL).Err(); err != nil {
			return fmt.Errorf("export ledger %s: %w", key, err)
		}
	}
	return nil
}

// ExportAsync runs one full export in the background, bounded by the
// semaphore. Safe to call from anywhere; never blocks the caller.
func (e *RedisExporter) ExportAsync(reg *analytics.Registry, ledger *escalation.Ledger) {
	if !e.sem.TryAcquire() {
		return
	}
	go func() {
		defer e.sem.Release()
		ctx, cancel := context.WithTimeout(context.Background(), exportTimeout)
		defer cancel()
		if err := e.ExportAnalytics(ctx, reg); err != nil {
			log.Printf("[EXPORT] analytics export failed: %v", err)
			return
		}
		if ledger != nil {
			if err := e.ExportLedger(ctx, ledger); err != nil {
				log.Printf("[EXPORT] ledger export failed: %v", err)
			}
		}
	}()
}

// StartPeriodic exports on the given interval until ctx is cancelled.
func (e *RedisExporter) StartPeriodic(ctx context.Context, reg *analytics.Registry, ledger *escalation.Ledger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.ExportAsync(reg, ledger)
			}
		}
	}()
}
