package escalation

import (
	"fmt"
	"log"
	"time"

	"github.com/streamguard/streamguard/pkg/moderation"
)

// Policy is the configurable escalation table. The defaults implement:
//
//	violations in window | max severity  | action
//	1                    | minor/moderate| warn
//	1                    | major/severe  | short timeout
//	2-3                  | any           | timeout, doubling per extra violation
//	>=4                  | any           | long timeout, ban candidate
type Policy struct {
	// Windows are the named lookback windows selectable per call. An unknown
	// name falls back to the longest window (conservative, never fail-open).
	Windows       map[string]time.Duration
	DefaultWindow string

	ShortTimeout time.Duration // first violation at major/severe
	BaseTimeout  time.Duration // 2 violations; doubles for the 3rd
	LongTimeout  time.Duration // 4th violation onwards

	// RehabCredit is how many effective violations one positive action
	// offsets. The historical record is untouched; only the decision shifts.
	RehabCredit int
}

// DefaultPolicy returns the policy table used when nothing is configured.
func DefaultPolicy() Policy {
	return Policy{
		Windows: map[string]time.Duration{
			"short":    30 * time.Minute,
			"standard": 2 * time.Hour,
			"extended": 24 * time.Hour,
		},
		DefaultWindow: "standard",
		ShortTimeout:  time.Minute,
		BaseTimeout:   2 * time.Minute,
		LongTimeout:   24 * time.Hour,
		RehabCredit:   1,
	}
}

// longestWindow is the conservative fallback for unknown window names and
// the ledger retention horizon.
func (p Policy) longestWindow() time.Duration {
	var longest time.Duration
	for _, w := range p.Windows {
		if w > longest {
			longest = w
		}
	}
	if longest == 0 {
		longest = 24 * time.Hour
	}
	return longest
}

// Calculator derives a corrective action from a violation plus the user's
// ledger. It is deterministic given the ledger state at call time: callers
// compute the action first, then record the violation, so an event never
// self-inflates its own tier.
type Calculator struct {
	ledger *Ledger
	policy Policy
}

// NewCalculator builds a calculator with its own ledger.
func NewCalculator(policy Policy) *Calculator {
	if len(policy.Windows) == 0 {
		policy = DefaultPolicy()
	}
	return &Calculator{
		ledger: NewLedger(policy.longestWindow()),
		policy: policy,
	}
}

// Ledger exposes the backing ledger for recording and audit reads.
func (c *Calculator) Ledger() *Ledger {
	return c.ledger
}

// CalculateAction decides the corrective action for one violation event.
// sourceFilters is provenance only (it lands in the action reason); the tier
// is driven by the violation count in the window and the maximum severity
// seen, offset by positive-action credits. The offset never drops the event
// below the first-violation row: a current violation always draws at least
// the action a clean user would get for it.
func (c *Calculator) CalculateAction(userKey string, sourceFilters []string, severity moderation.Severity, channel, windowName string) moderation.Action {
	now := time.Now()
	lookback, ok := c.policy.Windows[windowName]
	if !ok && windowName == "" {
		lookback, ok = c.policy.Windows[c.policy.DefaultWindow]
	}
	if !ok {
		// Unknown window name: fall back to the longest configured window
		// rather than failing open with no history.
		if windowName != "" {
			log.Printf("[ESCALATION] unknown policy window %q for %s, using longest window", windowName, userKey)
		}
		lookback = c.policy.longestWindow()
	}

	w := c.ledger.view(userKey, lookback, now)

	maxSev := severity
	for _, v := range w.violations {
		maxSev = moderation.MaxSeverity(maxSev, v.Severity)
	}

	// Effective count includes the current event. Rehabilitation credits
	// offset prior violations only, and the clamp to 1 is the floor effect.
	effective := len(w.violations) + 1 - w.positives*c.policy.RehabCredit
	if effective < 1 {
		effective = 1
	}

	reason := fmt.Sprintf("violation #%d in window (severity %s, filters %v)", effective, maxSev, sourceFilters)

	switch {
	case effective == 1:
		if maxSev >= moderation.SeverityMajor {
			return moderation.Action{Type: moderation.ActionTimeout, Duration: c.policy.ShortTimeout, Reason: reason}
		}
		return moderation.Action{Type: moderation.ActionWarn, Reason: reason}

	case effective <= 3:
		// Doubling: 2 violations -> base, 3 -> 2x base.
		d := c.policy.BaseTimeout << (effective - 2)
		return moderation.Action{Type: moderation.ActionTimeout, Duration: d, Reason: reason}

	default:
		return moderation.Action{
			Type:         moderation.ActionTimeout,
			Duration:     c.policy.LongTimeout,
			Reason:       reason,
			BanCandidate: true,
		}
	}
}

// RecordViolation appends the event to the ledger after its action was
// decided.
func (c *Calculator) RecordViolation(userKey, filterID string, severity moderation.Severity, taken moderation.ActionType) {
	c.ledger.RecordViolation(userKey, filterID, severity, taken, time.Now())
}

// RecordPositiveAction credits rehabilitating behavior.
func (c *Calculator) RecordPositiveAction(userKey string, kind moderation.PositiveActionType) {
	c.ledger.RecordPositiveAction(userKey, kind, time.Now())
}
