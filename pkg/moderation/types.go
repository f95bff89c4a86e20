// Package moderation defines the shared value types that flow between the
// pattern matcher, the escalation calculator, the analytics registry and the
// decision engine. It owns no state and has no dependencies on the other
// core packages, so every layer can import it freely.
package moderation

import (
	"time"
)

// Severity classifies how serious a violation is. The ordering is a total
// order and is load-bearing: when multiple filters fire on one message the
// engine takes the maximum.
type Severity int

const (
	SeverityMinor Severity = iota
	SeverityModerate
	SeverityMajor
	SeveritySevere
)

// String returns the lowercase name used in logs and API responses.
func (s Severity) String() string {
	switch s {
	case SeverityMinor:
		return "minor"
	case SeverityModerate:
		return "moderate"
	case SeverityMajor:
		return "major"
	case SeveritySevere:
		return "severe"
	default:
		return "unknown"
	}
}

// MaxSeverity returns the more severe of a and b.
func MaxSeverity(a, b Severity) Severity {
	if a > b {
		return a
	}
	return b
}

// ParseSeverity maps a severity name back to its value. Unknown names map to
// SeverityMinor so a sloppy config degrades to the mildest classification
// instead of failing.
func ParseSeverity(name string) Severity {
	switch name {
	case "moderate":
		return SeverityModerate
	case "major":
		return SeverityMajor
	case "severe":
		return SeveritySevere
	default:
		return SeverityMinor
	}
}

// ActionType is the kind of corrective action the engine decided on.
type ActionType string

const (
	ActionNone    ActionType = "none"
	ActionWarn    ActionType = "warn"
	ActionTimeout ActionType = "timeout"
	ActionBan     ActionType = "ban"
)

// Action is the abstract moderation action produced by the escalation
// calculator. The platform layer translates it into the concrete API call
// (delete/timeout/ban); this core never talks to a platform.
type Action struct {
	Type     ActionType    `json:"type"`
	Duration time.Duration `json:"duration,omitempty"` // Only meaningful for timeouts
	Reason   string        `json:"reason,omitempty"`
	// BanCandidate marks a long timeout that a human moderator should review
	// for permanent removal. The engine never bans on its own.
	BanCandidate bool `json:"ban_candidate,omitempty"`
}

// HeavierThan reports whether a is a stricter action than b.
// none < warn < timeout (by duration) < ban.
func (a Action) HeavierThan(b Action) bool {
	ra, rb := actionRank(a.Type), actionRank(b.Type)
	if ra != rb {
		return ra > rb
	}
	if a.Type == ActionTimeout {
		return a.Duration > b.Duration
	}
	return false
}

func actionRank(t ActionType) int {
	switch t {
	case ActionWarn:
		return 1
	case ActionTimeout:
		return 2
	case ActionBan:
		return 3
	default:
		return 0
	}
}

// ChatMessage is the read-only view of an inbound platform message. The core
// never mutates or sends one.
type ChatMessage struct {
	Platform     string    `json:"platform"`
	Channel      string    `json:"channel"`
	Username     string    `json:"username"`
	Content      string    `json:"content"`
	IsModerator  bool      `json:"is_moderator"`
	IsSubscriber bool      `json:"is_subscriber"`
	Timestamp    time.Time `json:"timestamp"`
}

// UserKey returns the ledger key for the message author. Ledgers are keyed
// per platform so the same nickname on two platforms never shares history.
func (m *ChatMessage) UserKey() string {
	return m.Platform + ":" + m.Username
}

// FilterResult is one already-computed base rule-filter violation handed in
// by the moderation/config layer (caps, links, length, rate, emotes, symbols).
// The core treats it as opaque provenance plus a severity to merge.
type FilterResult struct {
	FilterID string   `json:"filter_id"`
	Severity Severity `json:"severity"`
}

// Decision is the engine's verdict for one message. A nil *Decision means
// nothing triggered and no side effects happened.
type Decision struct {
	Action           Action        `json:"action"`
	Confidence       float64       `json:"confidence"`
	TriggeredFilters []string      `json:"triggered_filters"`
	Severity         Severity      `json:"severity"`
	Latency          time.Duration `json:"latency"`
}

// PositiveActionType classifies rehabilitating behavior that offsets a
// user's escalation tier.
type PositiveActionType string

const (
	PositiveAccurateReport   PositiveActionType = "accurate_report"
	PositiveCommunitySupport PositiveActionType = "community_support"
	PositiveModeratorPraise  PositiveActionType = "moderator_praise"
)
