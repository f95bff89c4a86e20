// Package engine wires the pattern matcher, escalation calculator and
// analytics registry into the per-message decision pipeline. The engine owns
// no state of its own beyond the three component handles.
package engine

import (
	"time"

	"github.com/streamguard/streamguard/pkg/analytics"
	"github.com/streamguard/streamguard/pkg/escalation"
	"github.com/streamguard/streamguard/pkg/moderation"
	"github.com/streamguard/streamguard/pkg/patterns"
)

// Confidence model: a base value plus a capped bonus per independent signal.
// More signals raise confidence, never lower it, and the sum caps at 1.0.
const (
	baseConfidence  = 0.5
	filterBonus     = 0.05 // per triggered filter (base rules + patterns)
	filterBonusCap  = 0.25
	patternBonus    = 0.08 // extra credit per advanced-pattern hit
	patternBonusCap = 0.2
)

// Options configures the engine.
type Options struct {
	// EnableAdvancedPatterns toggles the pattern matcher. When disabled the
	// engine still honors base rule-filter results instead of passing all
	// messages.
	EnableAdvancedPatterns bool

	// WindowName selects the escalation policy lookback window.
	WindowName string
}

// Engine is the thin per-message coordinator.
type Engine struct {
	matcher  *patterns.Matcher
	calc     *escalation.Calculator
	registry *analytics.Registry
	opts     Options
}

// New assembles an engine from its three components.
func New(matcher *patterns.Matcher, calc *escalation.Calculator, registry *analytics.Registry, opts Options) *Engine {
	return &Engine{
		matcher:  matcher,
		calc:     calc,
		registry: registry,
		opts:     opts,
	}
}

// Matcher exposes the pattern matcher for feedback and export callers.
func (e *Engine) Matcher() *patterns.Matcher { return e.matcher }

// Registry exposes the analytics registry for dashboards and reports.
func (e *Engine) Registry() *analytics.Registry { return e.registry }

// Calculator exposes the escalation calculator for positive-action intake.
func (e *Engine) Calculator() *escalation.Calculator { return e.calc }

// CheckMessage runs the decision pipeline for one message. baseResults are
// the already-computed simple rule-filter violations handed in by the
// moderation layer. Returns nil when nothing triggers; in that case no
// ledger or filter analytics writes happen.
func (e *Engine) CheckMessage(msg moderation.ChatMessage, baseResults []moderation.FilterResult) *moderation.Decision {
	start := time.Now()
	e.registry.Global().MessageProcessed()

	var triggered []string
	severity := moderation.SeverityMinor
	patternHits := 0

	if e.opts.EnableAdvancedPatterns {
		for _, id := range e.matcher.Matches(msg.Content) {
			triggered = append(triggered, id)
			patternHits++
			if def, ok := e.matcher.Store().Pattern(id); ok {
				severity = moderation.MaxSeverity(severity, def.Severity)
			}
		}
	}

	for _, res := range baseResults {
		triggered = append(triggered, res.FilterID)
		severity = moderation.MaxSeverity(severity, res.Severity)
	}

	if len(triggered) == 0 {
		return nil
	}

	action := e.calc.CalculateAction(msg.UserKey(), triggered, severity, msg.Channel, e.opts.WindowName)
	// Record after calculating so the event never inflates its own tier.
	e.calc.RecordViolation(msg.UserKey(), triggered[0], severity, action.Type)

	latency := time.Since(start)
	decision := &moderation.Decision{
		Action:           action,
		Confidence:       confidence(len(triggered), patternHits),
		TriggeredFilters: triggered,
		Severity:         severity,
		Latency:          latency,
	}

	// Analytics are a fire-and-forget signal; they happen after the decision
	// is fully formed and can never change it.
	latencyMs := float64(latency.Microseconds()) / 1000.0
	for _, id := range triggered {
		e.registry.RecordTrigger(id, filterType(e.matcher, id, patternHits), true, latencyMs)
	}
	e.registry.Global().ViolationDetected(severity.String())
	e.registry.Global().DecisionLatency(latency.Seconds())

	return decision
}

// confidence implements the capped additive model.
func confidence(totalFilters, patternHits int) float64 {
	conf := baseConfidence
	conf += capped(float64(totalFilters)*filterBonus, filterBonusCap)
	conf += capped(float64(patternHits)*patternBonus, patternBonusCap)
	if conf > 1.0 {
		conf = 1.0
	}
	return conf
}

func capped(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	return v
}

// filterType labels a trigger for analytics: the pattern kind for advanced
// patterns, "base_rule" for everything handed in by the moderation layer.
func filterType(m *patterns.Matcher, id string, patternHits int) string {
	if patternHits > 0 {
		if def, ok := m.Store().Pattern(id); ok {
			return string(def.Kind)
		}
	}
	return "base_rule"
}
