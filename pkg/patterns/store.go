package patterns

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultMaxCompareLen caps the rune count handed to detectors whose cost
// grows with input length (fuzzy, encoded). Chat messages are short; anything
// past this is padding.
const DefaultMaxCompareLen = 512

// DefaultMinSamples is the minimum trigger count before a pattern can be
// reported as ineffective, so a single early false positive cannot get a
// young pattern pruned.
const DefaultMinSamples = 10

// Stats is a point-in-time snapshot of one pattern's effectiveness counters.
type Stats struct {
	Triggers       int64     `json:"triggers"`
	TruePositives  int64     `json:"true_positives"`
	FalsePositives int64     `json:"false_positives"`
	LastTriggered  time.Time `json:"last_triggered"`
}

// compiled pairs a pattern definition with its match function and live
// counters. Counters are atomics so the hot path never takes a lock.
type compiled struct {
	def   AdvancedPattern
	match func(string) bool

	triggers       atomic.Int64
	truePositives  atomic.Int64
	falsePositives atomic.Int64
	lastTriggered  atomic.Int64 // unix nanos, 0 = never
}

func (c *compiled) recordTrigger(now time.Time) {
	c.triggers.Add(1)
	// Optimistic accounting: a trigger is a true positive until a false
	// positive report says otherwise.
	c.truePositives.Add(1)
	c.lastTriggered.Store(now.UnixNano())
}

func (c *compiled) stats() Stats {
	s := Stats{
		Triggers:       c.triggers.Load(),
		TruePositives:  c.truePositives.Load(),
		FalsePositives: c.falsePositives.Load(),
	}
	if ns := c.lastTriggered.Load(); ns > 0 {
		s.LastTriggered = time.Unix(0, ns)
	}
	return s
}

// Store owns the configured detector set and per-pattern effectiveness
// counters. Reads go through an immutable snapshot slice: Add publishes a new
// slice, so concurrent Matches calls see either the old set or the new one,
// never a partial mix. Writers serialize on a mutex; readers never block.
type Store struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[[]*compiled]
	gen      atomic.Uint64

	maxCompareLen int
	minSamples    int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxCompareLen overrides the truncation cap for length-sensitive
// detectors.
func WithMaxCompareLen(n int) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.maxCompareLen = n
		}
	}
}

// WithMinSamples overrides the minimum trigger count required before a
// pattern can be flagged as ineffective.
func WithMinSamples(n int64) StoreOption {
	return func(s *Store) {
		if n > 0 {
			s.minSamples = n
		}
	}
}

// NewStore creates an empty pattern store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		maxCompareLen: DefaultMaxCompareLen,
		minSamples:    DefaultMinSamples,
	}
	for _, opt := range opts {
		opt(s)
	}
	empty := make([]*compiled, 0, 16)
	s.snapshot.Store(&empty)
	return s
}

// Add validates, compiles and registers a detector. Safe to call while
// Matches calls are in flight: the new pattern is visible to every Matches
// call that begins after Add returns.
func (s *Store) Add(p AdvancedPattern) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	match, err := p.compile(s.maxCompareLen)
	if err != nil {
		return err
	}

	current := *s.snapshot.Load()
	for _, c := range current {
		if c.def.ID == p.ID {
			return ErrDuplicateID
		}
	}

	next := make([]*compiled, len(current), len(current)+1)
	copy(next, current)
	next = append(next, &compiled{def: p, match: match})
	s.snapshot.Store(&next)
	s.gen.Add(1)
	return nil
}

// Remove unregisters a pattern by id. Matching decisions already returned are
// unaffected. Returns false if the id is unknown.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := *s.snapshot.Load()
	next := make([]*compiled, 0, len(current))
	found := false
	for _, c := range current {
		if c.def.ID == id {
			found = true
			continue
		}
		next = append(next, c)
	}
	if found {
		s.snapshot.Store(&next)
		s.gen.Add(1)
	}
	return found
}

// patterns returns the current immutable snapshot.
func (s *Store) patterns() []*compiled {
	return *s.snapshot.Load()
}

// generation increments on every mutation; the matcher uses it to invalidate
// cached results.
func (s *Store) generation() uint64 {
	return s.gen.Load()
}

// Len returns the number of registered patterns.
func (s *Store) Len() int {
	return len(s.patterns())
}

// Pattern returns the definition for an id.
func (s *Store) Pattern(id string) (AdvancedPattern, bool) {
	for _, c := range s.patterns() {
		if c.def.ID == id {
			return c.def, true
		}
	}
	return AdvancedPattern{}, false
}

// Definitions returns a copy of all registered pattern definitions.
func (s *Store) Definitions() []AdvancedPattern {
	current := s.patterns()
	defs := make([]AdvancedPattern, 0, len(current))
	for _, c := range current {
		defs = append(defs, c.def)
	}
	return defs
}

// ReportFalsePositive moves one optimistic true-positive credit to the
// false-positive column for the pattern. It never retroactively changes a
// decision that was already returned. Returns false for an unknown id.
func (s *Store) ReportFalsePositive(id string) bool {
	for _, c := range s.patterns() {
		if c.def.ID != id {
			continue
		}
		c.falsePositives.Add(1)
		// Keep the credit non-negative even under duplicate reports.
		for {
			tp := c.truePositives.Load()
			if tp <= 0 {
				break
			}
			if c.truePositives.CompareAndSwap(tp, tp-1) {
				break
			}
		}
		return true
	}
	return false
}

// Stats returns the counter snapshot for one pattern.
func (s *Store) Stats(id string) (Stats, bool) {
	for _, c := range s.patterns() {
		if c.def.ID == id {
			return c.stats(), true
		}
	}
	return Stats{}, false
}

// AllStats returns counter snapshots for every registered pattern.
func (s *Store) AllStats() map[string]Stats {
	current := s.patterns()
	out := make(map[string]Stats, len(current))
	for _, c := range current {
		out[c.def.ID] = c.stats()
	}
	return out
}

// IneffectivePatterns returns the ids whose true-positive ratio sits below
// threshold, skipping patterns with fewer than the minimum sample count.
// The store never prunes itself; an external optimizer decides what to do
// with the list.
func (s *Store) IneffectivePatterns(threshold float64) []string {
	var ids []string
	for _, c := range s.patterns() {
		triggers := c.triggers.Load()
		if triggers < s.minSamples {
			continue
		}
		ratio := float64(c.truePositives.Load()) / float64(triggers)
		if ratio < threshold {
			ids = append(ids, c.def.ID)
		}
	}
	return ids
}
