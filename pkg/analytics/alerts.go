package analytics

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

const alertQueueLimit = 256

// AlertLevel is the operator-facing urgency of an alert.
type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertWarning  AlertLevel = "warning"
)

// AlertType names the metric that crossed its threshold.
type AlertType string

const (
	AlertAccuracyCritical  AlertType = "accuracy_critical"
	AlertAccuracyWarning   AlertType = "accuracy_warning"
	AlertFalsePositiveRate AlertType = "false_positive_rate"
	AlertResponseTime      AlertType = "response_time"
)

// Alert is a signal that a filter's live metrics crossed a configured
// threshold. Alerts are queued and logged for operators; they never feed
// back into decisions.
type Alert struct {
	ID        string     `json:"id"`
	FilterID  string     `json:"filter_id"`
	Level     AlertLevel `json:"level"`
	Type      AlertType  `json:"type"`
	Message   string     `json:"message"`
	Value     float64    `json:"value"`
	Threshold float64    `json:"threshold"`
	CreatedAt time.Time  `json:"created_at"`
}

// Thresholds configures alert and suggestion evaluation.
type Thresholds struct {
	AccuracyCritical  float64 // accuracy below this -> critical alert
	AccuracyWarning   float64 // accuracy below this -> warning alert
	FalsePositiveRate float64 // FP/total above this -> warning alert
	ResponseTimeMs    float64 // avg response time above this -> warning alert

	// MinSamples gates alert evaluation so a filter's first few triggers
	// cannot page anyone.
	MinSamples int64

	// SuggestionInterval is the per-filter trigger count between
	// optimization-suggestion evaluations.
	SuggestionInterval int

	// RemovalAge and RemovalMaxTriggers define "sustained near-zero usage":
	// a filter older than RemovalAge with at most RemovalMaxTriggers total
	// triggers draws a removal suggestion.
	RemovalAge         time.Duration
	RemovalMaxTriggers int64
}

// DefaultThresholds returns the values used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AccuracyCritical:   0.5,
		AccuracyWarning:    0.7,
		FalsePositiveRate:  0.3,
		ResponseTimeMs:     10,
		MinSamples:         10,
		SuggestionInterval: 50,
		RemovalAge:         7 * 24 * time.Hour,
		RemovalMaxTriggers: 5,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	def := DefaultThresholds()
	if t.AccuracyCritical == 0 {
		t.AccuracyCritical = def.AccuracyCritical
	}
	if t.AccuracyWarning == 0 {
		t.AccuracyWarning = def.AccuracyWarning
	}
	if t.FalsePositiveRate == 0 {
		t.FalsePositiveRate = def.FalsePositiveRate
	}
	if t.ResponseTimeMs == 0 {
		t.ResponseTimeMs = def.ResponseTimeMs
	}
	if t.MinSamples == 0 {
		t.MinSamples = def.MinSamples
	}
	if t.SuggestionInterval == 0 {
		t.SuggestionInterval = def.SuggestionInterval
	}
	if t.RemovalAge == 0 {
		t.RemovalAge = def.RemovalAge
	}
	if t.RemovalMaxTriggers == 0 {
		t.RemovalMaxTriggers = def.RemovalMaxTriggers
	}
	return t
}

// evaluateAlerts checks one filter's metrics against the thresholds.
// Caller holds the filter lock.
func (r *Registry) evaluateAlerts(f *filterState, now time.Time) []Alert {
	if f.totalTriggers < r.thresholds.MinSamples {
		return nil
	}

	var alerts []Alert
	mk := func(level AlertLevel, typ AlertType, msg string, value, threshold float64) {
		alerts = append(alerts, Alert{
			ID:        uuid.NewString(),
			FilterID:  f.id,
			Level:     level,
			Type:      typ,
			Message:   msg,
			Value:     value,
			Threshold: threshold,
			CreatedAt: now,
		})
	}

	switch {
	case f.accuracy < r.thresholds.AccuracyCritical:
		mk(AlertCritical, AlertAccuracyCritical,
			fmt.Sprintf("accuracy %.3f below critical threshold", f.accuracy),
			f.accuracy, r.thresholds.AccuracyCritical)
	case f.accuracy < r.thresholds.AccuracyWarning:
		mk(AlertWarning, AlertAccuracyWarning,
			fmt.Sprintf("accuracy %.3f below warning threshold", f.accuracy),
			f.accuracy, r.thresholds.AccuracyWarning)
	}

	if fpRate := float64(f.falsePositives) / float64(f.totalTriggers); fpRate > r.thresholds.FalsePositiveRate {
		mk(AlertWarning, AlertFalsePositiveRate,
			fmt.Sprintf("false-positive rate %.3f above threshold", fpRate),
			fpRate, r.thresholds.FalsePositiveRate)
	}

	if avg := f.avgResponseTime(); avg > r.thresholds.ResponseTimeMs {
		mk(AlertWarning, AlertResponseTime,
			fmt.Sprintf("avg response time %.2fms above threshold", avg),
			avg, r.thresholds.ResponseTimeMs)
	}

	return alerts
}
