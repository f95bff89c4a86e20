package analytics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const suggestionQueueLimit = 128

// SuggestionType names the recommended optimization.
type SuggestionType string

const (
	SuggestPatternImprovement   SuggestionType = "pattern_improvement"
	SuggestAddExemptions        SuggestionType = "add_exemptions"
	SuggestAlgorithmReplacement SuggestionType = "algorithm_replacement"
	SuggestRemoval              SuggestionType = "removal"
)

// OptimizationSuggestion is a descriptive recommendation for tuning a
// filter. The registry only proposes; applying a suggestion belongs to an
// external, audited layer and never happens inside the hot path.
type OptimizationSuggestion struct {
	ID          string         `json:"id"`
	FilterID    string         `json:"filter_id"`
	Type        SuggestionType `json:"type"`
	Description string         `json:"description"`
	// AutoImplementable marks suggestions a closed-loop tuner could apply
	// without human review (exemptions, removals). Algorithm replacements
	// and pattern rewrites always need a human.
	AutoImplementable bool      `json:"auto_implementable"`
	CreatedAt         time.Time `json:"created_at"`
}

// evaluateSuggestions runs the live checks for one filter. Caller holds the
// filter lock. Near-zero-usage removal is handled by Sweep, since a dormant
// filter never reaches this path.
func (r *Registry) evaluateSuggestions(f *filterState, now time.Time) []OptimizationSuggestion {
	var out []OptimizationSuggestion
	mk := func(typ SuggestionType, auto bool, desc string) {
		out = append(out, OptimizationSuggestion{
			ID:                uuid.NewString(),
			FilterID:          f.id,
			Type:              typ,
			Description:       desc,
			AutoImplementable: auto,
			CreatedAt:         now,
		})
	}

	if f.accuracy < r.thresholds.AccuracyWarning {
		mk(SuggestPatternImprovement, false,
			fmt.Sprintf("accuracy %.3f: tighten or rewrite the pattern", f.accuracy))
	}
	if fpRate := float64(f.falsePositives) / float64(f.totalTriggers); fpRate > r.thresholds.FalsePositiveRate {
		mk(SuggestAddExemptions, true,
			fmt.Sprintf("false-positive rate %.3f: add exemptions for the common benign hits", fpRate))
	}
	if avg := f.avgResponseTime(); avg > r.thresholds.ResponseTimeMs {
		mk(SuggestAlgorithmReplacement, false,
			fmt.Sprintf("avg response time %.2fms: replace the matching algorithm", avg))
	}
	return out
}

// Sweep scans every tracked filter for sustained near-zero usage and queues
// removal suggestions. Meant to be called periodically by the daemon, not
// per message.
func (r *Registry) Sweep() []OptimizationSuggestion {
	now := time.Now()
	var out []OptimizationSuggestion
	r.filters.Range(func(_ string, f *filterState) bool {
		f.mu.Lock()
		if now.Sub(f.createdAt) >= r.thresholds.RemovalAge && f.totalTriggers <= r.thresholds.RemovalMaxTriggers {
			out = append(out, OptimizationSuggestion{
				ID:                uuid.NewString(),
				FilterID:          f.id,
				Type:              SuggestRemoval,
				Description:       fmt.Sprintf("only %d triggers since %s: candidate for removal", f.totalTriggers, f.createdAt.Format(time.RFC3339)),
				AutoImplementable: true,
				CreatedAt:         now,
			})
		}
		f.mu.Unlock()
		return true
	})
	r.enqueueSuggestions(out)
	return out
}
