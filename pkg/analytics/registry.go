// Package analytics tracks each filter's live precision/recall over time,
// raises alerts when metrics cross thresholds, and proposes optimizations.
// Everything here is a side-effect signal: nothing in this package ever
// alters a moderation decision or mutates pattern configuration.
package analytics

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

// Ring and bucket bounds. Fixed capacities keep every filter's footprint
// constant regardless of uptime.
const (
	responseTimeCapacity = 1000
	hourlyBucketLimit    = 24
	feedbackLimit        = 256
)

// ReportType classifies user/moderator feedback about a filter.
type ReportType string

const (
	ReportFalsePositive   ReportType = "false_positive"
	ReportMissedViolation ReportType = "missed_violation"
	ReportConfirmed       ReportType = "confirmed"
)

// FeedbackRecord is one accumulated user or moderator report.
type FeedbackRecord struct {
	ID            string     `json:"id"`
	UserID        string     `json:"user_id"`
	Type          ReportType `json:"type"`
	Content       string     `json:"content,omitempty"`
	FromModerator bool       `json:"from_moderator"`
	CreatedAt     time.Time  `json:"created_at"`
}

// HourBucket aggregates trigger activity for one wall-clock hour.
type HourBucket struct {
	Hour           time.Time `json:"hour"`
	Triggers       int64     `json:"triggers"`
	TruePositives  int64     `json:"true_positives"`
	FalsePositives int64     `json:"false_positives"`
}

// FilterSnapshot is the exported point-in-time view of one filter's metrics.
type FilterSnapshot struct {
	FilterID       string  `json:"filter_id"`
	FilterType     string  `json:"filter_type"`
	TotalTriggers  int64   `json:"total_triggers"`
	TruePositives  int64   `json:"true_positives"`
	FalsePositives int64   `json:"false_positives"`
	FalseNegatives int64   `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	F1             float64 `json:"f1"`
	// Accuracy equals precision: the engine has no true-negative stream, so
	// the two metrics deliberately conflate. Changing this would change what
	// the alert thresholds mean.
	Accuracy          float64      `json:"accuracy"`
	AvgResponseTimeMs float64      `json:"avg_response_time_ms"`
	Hourly            []HourBucket `json:"hourly"`
	FeedbackCount     int          `json:"feedback_count"`
	CreatedAt         time.Time    `json:"created_at"`
}

// filterState is the live metrics record for one filter id. All mutation
// happens under the per-filter lock; independent filters never contend.
type filterState struct {
	mu sync.Mutex

	id        string
	ftype     string
	createdAt time.Time

	totalTriggers  int64
	truePositives  int64
	falsePositives int64
	falseNegatives int64

	precision float64
	recall    float64
	f1        float64
	accuracy  float64

	// Fixed-capacity response-time ring, oldest evicted.
	respTimes []float64
	respNext  int
	respFull  bool

	hourly   []HourBucket
	feedback []FeedbackRecord

	triggersSinceSuggest int
}

// recompute derives precision/recall/F1 from the four counters. Denominators
// of zero resolve to the neutral defaults (precision/recall 1.0, F1 0.0)
// rather than surfacing an error.
func (f *filterState) recompute() {
	if den := f.truePositives + f.falsePositives; den > 0 {
		f.precision = float64(f.truePositives) / float64(den)
	} else {
		f.precision = 1.0
	}
	if den := f.truePositives + f.falseNegatives; den > 0 {
		f.recall = float64(f.truePositives) / float64(den)
	} else {
		f.recall = 1.0
	}
	if f.precision+f.recall > 0 {
		f.f1 = 2 * f.precision * f.recall / (f.precision + f.recall)
	} else {
		f.f1 = 0.0
	}
	f.accuracy = f.precision
}

func (f *filterState) pushResponseTime(ms float64) {
	if len(f.respTimes) < responseTimeCapacity {
		f.respTimes = append(f.respTimes, ms)
		return
	}
	f.respTimes[f.respNext] = ms
	f.respNext = (f.respNext + 1) % responseTimeCapacity
	f.respFull = true
}

func (f *filterState) avgResponseTime() float64 {
	if len(f.respTimes) == 0 {
		return 0
	}
	var sum float64
	for _, v := range f.respTimes {
		sum += v
	}
	return sum / float64(len(f.respTimes))
}

// bucketFor returns the current-hour bucket, opening a new one (and evicting
// the oldest beyond the limit) when the hour rolls over.
func (f *filterState) bucketFor(now time.Time) *HourBucket {
	hour := now.Truncate(time.Hour)
	if n := len(f.hourly); n > 0 && f.hourly[n-1].Hour.Equal(hour) {
		return &f.hourly[n-1]
	}
	f.hourly = append(f.hourly, HourBucket{Hour: hour})
	if len(f.hourly) > hourlyBucketLimit {
		f.hourly = append(f.hourly[:0], f.hourly[len(f.hourly)-hourlyBucketLimit:]...)
	}
	return &f.hourly[len(f.hourly)-1]
}

func (f *filterState) addFeedback(rec FeedbackRecord) {
	f.feedback = append(f.feedback, rec)
	if len(f.feedback) > feedbackLimit {
		f.feedback = append(f.feedback[:0], f.feedback[len(f.feedback)-feedbackLimit:]...)
	}
}

func (f *filterState) snapshot() FilterSnapshot {
	return FilterSnapshot{
		FilterID:          f.id,
		FilterType:        f.ftype,
		TotalTriggers:     f.totalTriggers,
		TruePositives:     f.truePositives,
		FalsePositives:    f.falsePositives,
		FalseNegatives:    f.falseNegatives,
		Precision:         f.precision,
		Recall:            f.recall,
		F1:                f.f1,
		Accuracy:          f.accuracy,
		AvgResponseTimeMs: f.avgResponseTime(),
		Hourly:            append([]HourBucket(nil), f.hourly...),
		FeedbackCount:     len(f.feedback),
		CreatedAt:         f.createdAt,
	}
}

// Registry holds per-filter rolling metrics plus the alert and suggestion
// queues. Filter states are created on first trigger and live for the
// process lifetime (identity = configuration).
type Registry struct {
	filters    *xsync.MapOf[string, *filterState]
	thresholds Thresholds
	global     *GlobalMetrics

	queueMu     sync.Mutex
	alerts      []Alert
	suggestions []OptimizationSuggestion
}

// NewRegistry creates a registry with the given alert thresholds.
func NewRegistry(thresholds Thresholds, global *GlobalMetrics) *Registry {
	if global == nil {
		global = NewGlobalMetrics()
	}
	return &Registry{
		filters:    xsync.NewMapOf[string, *filterState](),
		thresholds: thresholds.withDefaults(),
		global:     global,
	}
}

// Global exposes the aggregate metrics.
func (r *Registry) Global() *GlobalMetrics {
	return r.global
}

func (r *Registry) state(filterID, filterType string) *filterState {
	f, _ := r.filters.LoadOrCompute(filterID, func() *filterState {
		return &filterState{
			id:        filterID,
			ftype:     filterType,
			createdAt: time.Now(),
			respTimes: make([]float64, 0, responseTimeCapacity),
		}
	})
	return f
}

// RecordTrigger updates one filter's metrics for a trigger event. O(1)
// amortized. Raised alerts are returned (and queued and logged) purely as a
// side-effect signal; they never alter the decision that caused them.
func (r *Registry) RecordTrigger(filterID, filterType string, isTruePositive bool, responseTimeMs float64) []Alert {
	now := time.Now()
	f := r.state(filterID, filterType)

	f.mu.Lock()
	f.totalTriggers++
	if isTruePositive {
		f.truePositives++
	} else {
		f.falsePositives++
	}
	f.pushResponseTime(responseTimeMs)
	f.recompute()

	b := f.bucketFor(now)
	b.Triggers++
	if isTruePositive {
		b.TruePositives++
	} else {
		b.FalsePositives++
	}

	alerts := r.evaluateAlerts(f, now)

	f.triggersSinceSuggest++
	var suggestions []OptimizationSuggestion
	if f.triggersSinceSuggest >= r.thresholds.SuggestionInterval {
		f.triggersSinceSuggest = 0
		suggestions = r.evaluateSuggestions(f, now)
	}
	f.mu.Unlock()

	r.global.recordTrigger(filterID, isTruePositive, responseTimeMs)
	r.enqueueAlerts(alerts)
	r.enqueueSuggestions(suggestions)
	return alerts
}

// RecordUserReport folds user feedback into a filter's counters.
//
// A FalsePositive report corrects earlier optimistic accounting: one
// true-positive credit moves to the false-positive column. A MissedViolation
// report bumps false negatives only; it does not flag any specific past
// message. Reports are append-only and deliberately not deduplicated:
// duplicate reports shift the counters again.
func (r *Registry) RecordUserReport(filterID, userID string, reportType ReportType, content string) {
	r.recordReport(filterID, userID, reportType, content, false)
}

// RecordModeratorReview is the moderator-weight variant of RecordUserReport.
func (r *Registry) RecordModeratorReview(filterID, moderatorID string, reportType ReportType, notes string) {
	r.recordReport(filterID, moderatorID, reportType, notes, true)
}

func (r *Registry) recordReport(filterID, userID string, reportType ReportType, content string, fromModerator bool) {
	f := r.state(filterID, "")
	now := time.Now()

	f.mu.Lock()
	defer f.mu.Unlock()

	switch reportType {
	case ReportFalsePositive:
		if f.truePositives > 0 {
			f.truePositives--
		}
		f.falsePositives++
	case ReportMissedViolation:
		f.falseNegatives++
	case ReportConfirmed:
		// Confirmation leaves counters alone; the trigger was already
		// counted optimistically as a true positive.
	}
	f.recompute()
	f.addFeedback(FeedbackRecord{
		ID:            uuid.NewString(),
		UserID:        userID,
		Type:          reportType,
		Content:       content,
		FromModerator: fromModerator,
		CreatedAt:     now,
	})
}

// Snapshot returns the metrics view for one filter.
func (r *Registry) Snapshot(filterID string) (FilterSnapshot, bool) {
	f, ok := r.filters.Load(filterID)
	if !ok {
		return FilterSnapshot{}, false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot(), true
}

// Snapshots returns the metrics view for every tracked filter.
func (r *Registry) Snapshots() []FilterSnapshot {
	var out []FilterSnapshot
	r.filters.Range(func(_ string, f *filterState) bool {
		f.mu.Lock()
		out = append(out, f.snapshot())
		f.mu.Unlock()
		return true
	})
	return out
}

// Feedback returns a copy of the accumulated feedback for one filter.
func (r *Registry) Feedback(filterID string) []FeedbackRecord {
	f, ok := r.filters.Load(filterID)
	if !ok {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FeedbackRecord(nil), f.feedback...)
}

func (r *Registry) enqueueAlerts(alerts []Alert) {
	if len(alerts) == 0 {
		return
	}
	r.queueMu.Lock()
	r.alerts = append(r.alerts, alerts...)
	if len(r.alerts) > alertQueueLimit {
		r.alerts = append(r.alerts[:0], r.alerts[len(r.alerts)-alertQueueLimit:]...)
	}
	r.queueMu.Unlock()
	for _, a := range alerts {
		log.Printf("[ALERT] %s filter=%s %s (value=%.3f threshold=%.3f)", a.Level, a.FilterID, a.Message, a.Value, a.Threshold)
	}
}

func (r *Registry) enqueueSuggestions(suggestions []OptimizationSuggestion) {
	if len(suggestions) == 0 {
		return
	}
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	r.suggestions = append(r.suggestions, suggestions...)
	if len(r.suggestions) > suggestionQueueLimit {
		r.suggestions = append(r.suggestions[:0], r.suggestions[len(r.suggestions)-suggestionQueueLimit:]...)
	}
}

// Alerts returns a copy of the queued alerts, most recent last.
func (r *Registry) Alerts() []Alert {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	return append([]Alert(nil), r.alerts...)
}

// Suggestions returns a copy of the queued optimization suggestions.
func (r *Registry) Suggestions() []OptimizationSuggestion {
	r.queueMu.Lock()
	defer r.queueMu.Unlock()
	return append([]OptimizationSuggestion(nil), r.suggestions...)
}
