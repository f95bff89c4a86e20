package analytics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the operator-facing /metrics endpoint. Registered
// once at package load; the per-filter label set stays small because filter
// ids come from configuration, not user input.
var (
	promMessagesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamguard_messages_processed_total",
		Help: "Messages run through the decision pipeline.",
	})
	promViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamguard_violations_total",
		Help: "Violations detected, by severity.",
	}, []string{"severity"})
	promFilterTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamguard_filter_triggers_total",
		Help: "Filter trigger events, by filter id.",
	}, []string{"filter"})
	promDecisionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "streamguard_decision_latency_seconds",
		Help:    "End-to-end decision latency.",
		Buckets: prometheus.ExponentialBuckets(0.00005, 2, 12), // 50us .. ~200ms
	})
)

// GlobalSnapshot is the exported aggregate view across all filters.
type GlobalSnapshot struct {
	MessagesProcessed  int64   `json:"messages_processed"`
	ViolationsDetected int64   `json:"violations_detected"`
	TotalTriggers      int64   `json:"total_triggers"`
	OverallAccuracy    float64 `json:"overall_accuracy"`
	HealthScore        float64 `json:"health_score"`
}

// GlobalMetrics tracks aggregate counters incrementally so a snapshot is a
// handful of atomic loads, never a scan of all filters.
type GlobalMetrics struct {
	messagesProcessed  atomic.Int64
	violationsDetected atomic.Int64
	totalTriggers      atomic.Int64
	truePositives      atomic.Int64
	falsePositives     atomic.Int64
}

// NewGlobalMetrics creates an empty aggregate tracker.
func NewGlobalMetrics() *GlobalMetrics {
	return &GlobalMetrics{}
}

// MessageProcessed counts one inbound message through the pipeline.
func (g *GlobalMetrics) MessageProcessed() {
	g.messagesProcessed.Add(1)
	promMessagesProcessed.Inc()
}

// ViolationDetected counts one non-nil decision.
func (g *GlobalMetrics) ViolationDetected(severity string) {
	g.violationsDetected.Add(1)
	promViolations.WithLabelValues(severity).Inc()
}

// DecisionLatency records the end-to-end pipeline latency in seconds.
func (g *GlobalMetrics) DecisionLatency(seconds float64) {
	promDecisionLatency.Observe(seconds)
}

func (g *GlobalMetrics) recordTrigger(filterID string, isTruePositive bool, _ float64) {
	g.totalTriggers.Add(1)
	if isTruePositive {
		g.truePositives.Add(1)
	} else {
		g.falsePositives.Add(1)
	}
	promFilterTriggers.WithLabelValues(filterID).Inc()
}

// Snapshot returns the aggregate view. Overall accuracy carries the same
// precision conflation as the per-filter metric. The health score blends
// accuracy with the false-positive rate; 1.0 is a perfectly quiet system.
func (g *GlobalMetrics) Snapshot() GlobalSnapshot {
	tp := g.truePositives.Load()
	fp := g.falsePositives.Load()

	accuracy := 1.0
	if tp+fp > 0 {
		accuracy = float64(tp) / float64(tp+fp)
	}
	fpRate := 0.0
	if total := g.totalTriggers.Load(); total > 0 {
		fpRate = float64(fp) / float64(total)
	}

	return GlobalSnapshot{
		MessagesProcessed:  g.messagesProcessed.Load(),
		ViolationsDetected: g.violationsDetected.Load(),
		TotalTriggers:      g.totalTriggers.Load(),
		OverallAccuracy:    accuracy,
		HealthScore:        0.5*accuracy + 0.5*(1.0-fpRate),
	}
}
