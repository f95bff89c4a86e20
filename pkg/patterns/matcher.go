package patterns

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// matchCacheSize bounds the memory the result cache can hold. Chat traffic is
// heavy on repeated messages (copypasta, spam floods), which is exactly what
// the cache exists for.
const matchCacheSize = 4096

type cachedMatch struct {
	gen uint64
	ids []string
}

// Matcher evaluates messages against a Store. Every configured pattern is
// evaluated independently and all hits are collected; matching never
// short-circuits, because downstream confidence scoring depends on the count
// of independent signals.
type Matcher struct {
	store *Store
	cache *lru.Cache[string, cachedMatch]
}

// NewMatcher creates a matcher over the given store.
func NewMatcher(store *Store) *Matcher {
	// lru.New only errors on a non-positive size.
	cache, _ := lru.New[string, cachedMatch](matchCacheSize)
	return &Matcher{store: store, cache: cache}
}

// Store exposes the backing store for stats/report/export callers.
func (m *Matcher) Store() *Store {
	return m.store
}

// Matches returns the ids of every pattern that fires on text. The result is
// order-stable (registration order) and duplicate-free since ids are unique.
// Trigger counters are bumped for each hit, including cache hits: a repeated
// message is a new trigger.
func (m *Matcher) Matches(text string) []string {
	gen := m.store.generation()
	now := time.Now()

	if hit, ok := m.cache.Get(text); ok && hit.gen == gen {
		m.recordTriggers(hit.ids, now)
		return append([]string(nil), hit.ids...)
	}

	var ids []string
	for _, c := range m.store.patterns() {
		if c.match(text) {
			c.recordTrigger(now)
			ids = append(ids, c.def.ID)
		}
	}

	m.cache.Add(text, cachedMatch{gen: gen, ids: ids})
	return append([]string(nil), ids...)
}

// recordTriggers bumps counters for a cached result. Patterns removed since
// the cache entry was written are silently skipped; the generation check
// makes that window tiny.
func (m *Matcher) recordTriggers(ids []string, now time.Time) {
	if len(ids) == 0 {
		return
	}
	byID := make(map[string]*compiled, len(ids))
	for _, c := range m.store.patterns() {
		byID[c.def.ID] = c
	}
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			c.recordTrigger(now)
		}
	}
}
