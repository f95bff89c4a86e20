// Package escalation converts rule violations plus a user's recent history
// into a graduated corrective action. State lives in a per-user ledger:
// an append-and-prune history of violations and positive actions.
package escalation

import (
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/streamguard/streamguard/pkg/moderation"
)

// ViolationRecord is one violation event in a user's ledger.
type ViolationRecord struct {
	Timestamp   time.Time             `json:"timestamp"`
	FilterID    string                `json:"filter_id"`
	Severity    moderation.Severity   `json:"severity"`
	ActionTaken moderation.ActionType `json:"action_taken"`
}

// PositiveRecord is one rehabilitating action in a user's ledger.
type PositiveRecord struct {
	Timestamp time.Time                     `json:"timestamp"`
	Type      moderation.PositiveActionType `json:"type"`
}

// userLedger holds one user's history. All access goes through the entry
// lock, so mutations for the same user serialize; independent users live in
// different entries of the sharded map and never contend.
type userLedger struct {
	mu         sync.Mutex
	violations []ViolationRecord
	positives  []PositiveRecord
	lastStamp  time.Time
}

// Ledger is the per-user violation/positive-action history, keyed by
// "platform:username". Entries are created on first event and bounded by
// retention pruning, so memory is active users x window size.
type Ledger struct {
	entries   *xsync.MapOf[string, *userLedger]
	retention time.Duration
}

// NewLedger creates a ledger that prunes records older than retention on
// access. Retention should be at least the longest policy window.
func NewLedger(retention time.Duration) *Ledger {
	return &Ledger{
		entries:   xsync.NewMapOf[string, *userLedger](),
		retention: retention,
	}
}

func (l *Ledger) entry(key string) *userLedger {
	e, _ := l.entries.LoadOrCompute(key, func() *userLedger {
		return &userLedger{}
	})
	return e
}

// stamp assigns a monotonic timestamp within one user's ledger. Events for a
// single user must serialize in submission order even if the wall clock
// jitters backwards between calls.
func (u *userLedger) stamp(now time.Time) time.Time {
	if !now.After(u.lastStamp) {
		now = u.lastStamp.Add(time.Nanosecond)
	}
	u.lastStamp = now
	return now
}

// prune drops records older than the retention horizon. Called under the
// entry lock by every accessor, keeping pruning lazy and O(expired).
func (u *userLedger) prune(horizon time.Time) {
	u.violations = trimViolations(u.violations, horizon)
	u.positives = trimPositives(u.positives, horizon)
}

func trimViolations(recs []ViolationRecord, horizon time.Time) []ViolationRecord {
	i := 0
	for i < len(recs) && recs[i].Timestamp.Before(horizon) {
		i++
	}
	if i == 0 {
		return recs
	}
	return append(recs[:0], recs[i:]...)
}

func trimPositives(recs []PositiveRecord, horizon time.Time) []PositiveRecord {
	i := 0
	for i < len(recs) && recs[i].Timestamp.Before(horizon) {
		i++
	}
	if i == 0 {
		return recs
	}
	return append(recs[:0], recs[i:]...)
}

// RecordViolation appends a violation to the user's ledger. Callers invoke
// this after CalculateAction so an event never inflates its own tier.
func (l *Ledger) RecordViolation(key, filterID string, severity moderation.Severity, taken moderation.ActionType, now time.Time) {
	e := l.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prune(now.Add(-l.retention))
	e.violations = append(e.violations, ViolationRecord{
		Timestamp:   e.stamp(now),
		FilterID:    filterID,
		Severity:    severity,
		ActionTaken: taken,
	})
}

// RecordPositiveAction appends a rehabilitating action to the user's ledger.
func (l *Ledger) RecordPositiveAction(key string, kind moderation.PositiveActionType, now time.Time) {
	e := l.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prune(now.Add(-l.retention))
	e.positives = append(e.positives, PositiveRecord{
		Timestamp: e.stamp(now),
		Type:      kind,
	})
}

// window is the view of one user's history restricted to a lookback window,
// computed under the entry lock with pruning applied first.
type window struct {
	violations []ViolationRecord
	positives  int
}

// view prunes expired records and returns the slice of violations plus the
// positive-action count inside the lookback window ending at now.
func (l *Ledger) view(key string, lookback time.Duration, now time.Time) window {
	e := l.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prune(now.Add(-l.retention))

	cutoff := now.Add(-lookback)
	var w window
	for _, v := range e.violations {
		if !v.Timestamp.Before(cutoff) {
			w.violations = append(w.violations, v)
		}
	}
	for _, p := range e.positives {
		if !p.Timestamp.Before(cutoff) {
			w.positives++
		}
	}
	return w
}

// History returns a copy of the user's full retained ledger for audit and
// dashboard use.
func (l *Ledger) History(key string, now time.Time) ([]ViolationRecord, []PositiveRecord) {
	e := l.entry(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prune(now.Add(-l.retention))
	return append([]ViolationRecord(nil), e.violations...),
		append([]PositiveRecord(nil), e.positives...)
}

// Users returns the number of tracked ledger entries.
func (l *Ledger) Users() int {
	return l.entries.Size()
}

// Keys returns the tracked user keys. Meant for export/backup sweeps, not
// the hot path.
func (l *Ledger) Keys() []string {
	keys := make([]string, 0, l.entries.Size())
	l.entries.Range(func(k string, _ *userLedger) bool {
		keys = append(keys, k)
		return true
	})
	return keys
}
