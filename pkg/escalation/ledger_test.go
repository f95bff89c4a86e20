package escalation

import (
	"testing"
	"time"

	"github.com/streamguard/streamguard/pkg/moderation"
)

func TestLedgerMonotonicTimestamps(t *testing.T) {
	l := NewLedger(24 * time.Hour)
	now := time.Now()

	// Same wall-clock instant for both events: the ledger must still order
	// them in submission order.
	l.RecordViolation("k", "a", moderation.SeverityMinor, moderation.ActionWarn, now)
	l.RecordViolation("k", "b", moderation.SeverityMinor, moderation.ActionWarn, now)

	violations, _ := l.History("k", now)
	if len(violations) != 2 {
		t.Fatalf("got %d violations, want 2", len(violations))
	}
	if !violations[1].Timestamp.After(violations[0].Timestamp) {
		t.Errorf("timestamps not strictly increasing: %v then %v",
			violations[0].Timestamp, violations[1].Timestamp)
	}
}

func TestLedgerClockJitter(t *testing.T) {
	l := NewLedger(24 * time.Hour)
	now := time.Now()

	l.RecordViolation("k", "a", moderation.SeverityMinor, moderation.ActionWarn, now)
	// Wall clock stepping backwards must not reorder the ledger.
	l.RecordViolation("k", "b", moderation.SeverityMinor, moderation.ActionWarn, now.Add(-time.Second))

	violations, _ := l.History("k", now)
	if len(violations) != 2 {
		t.Fatalf("got %d violations, want 2", len(violations))
	}
	if !violations[1].Timestamp.After(violations[0].Timestamp) {
		t.Error("backwards clock reordered the ledger")
	}
	if violations[1].FilterID != "b" {
		t.Errorf("submission order lost: last record is %q", violations[1].FilterID)
	}
}

func TestLedgerPrunesExpired(t *testing.T) {
	l := NewLedger(time.Hour)
	now := time.Now()

	l.RecordViolation("k", "old", moderation.SeverityMinor, moderation.ActionWarn, now.Add(-2*time.Hour))
	l.RecordPositiveAction("k", moderation.PositiveModeratorPraise, now.Add(-2*time.Hour))
	l.RecordViolation("k", "fresh", moderation.SeverityMinor, moderation.ActionWarn, now)

	violations, positives := l.History("k", now)
	if len(violations) != 1 || violations[0].FilterID != "fresh" {
		t.Errorf("violations = %+v, want only the fresh one", violations)
	}
	if len(positives) != 0 {
		t.Errorf("positives = %+v, want pruned", positives)
	}
}

func TestLedgerKeysAndUsers(t *testing.T) {
	l := NewLedger(time.Hour)
	now := time.Now()
	l.RecordViolation("twitch:a", "f", moderation.SeverityMinor, moderation.ActionWarn, now)
	l.RecordViolation("youtube:a", "f", moderation.SeverityMinor, moderation.ActionWarn, now)

	if l.Users() != 2 {
		t.Errorf("Users() = %d, want 2 (platforms keep separate ledgers)", l.Users())
	}
	keys := l.Keys()
	if len(keys) != 2 {
		t.Errorf("Keys() = %v, want 2 entries", keys)
	}
}

func TestLedgerHistoryReturnsCopies(t *testing.T) {
	l := NewLedger(time.Hour)
	now := time.Now()
	l.RecordViolation("k", "f", moderation.SeverityMinor, moderation.ActionWarn, now)

	violations, _ := l.History("k", now)
	violations[0].FilterID = "mutated"

	again, _ := l.History("k", now)
	if again[0].FilterID != "f" {
		t.Error("History exposed internal storage")
	}
}
