package patterns

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/streamguard/streamguard/pkg/moderation"
)

func TestStoreAddRemove(t *testing.T) {
	store := NewStore()

	if err := store.Add(AdvancedPattern{ID: "a", Kind: KindLeetspeak, Target: "spam"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("Len() = %d, want 1", store.Len())
	}

	err := store.Add(AdvancedPattern{ID: "a", Kind: KindLeetspeak, Target: "other"})
	if !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate Add error = %v, want ErrDuplicateID", err)
	}

	if !store.Remove("a") {
		t.Error("Remove existing id returned false")
	}
	if store.Remove("a") {
		t.Error("Remove unknown id returned true")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after remove, want 0", store.Len())
	}
}

func TestStoreRejectsInvalid(t *testing.T) {
	store := NewStore()
	if err := store.Add(AdvancedPattern{Kind: KindLeetspeak, Target: "spam"}); err == nil {
		t.Error("expected error for pattern without id")
	}
	if store.Len() != 0 {
		t.Error("invalid pattern was registered")
	}
}

func TestMatcherCollectsAllHits(t *testing.T) {
	store := NewStore()
	must := func(p AdvancedPattern) {
		t.Helper()
		if err := store.Add(p); err != nil {
			t.Fatal(err)
		}
	}
	must(AdvancedPattern{ID: "leet", Kind: KindLeetspeak, Target: "spam"})
	must(AdvancedPattern{ID: "rep", Kind: KindRepeatedChar, Target: "spam"})
	must(AdvancedPattern{ID: "uni", Kind: KindUnicodeNormalized, Target: "giveaway"})

	m := NewMatcher(store)
	ids := m.Matches("sp4m spaaaam")

	// Matching never short-circuits: both spam detectors fire, in
	// registration order.
	if len(ids) != 2 || ids[0] != "leet" || ids[1] != "rep" {
		t.Errorf("Matches = %v, want [leet rep]", ids)
	}
}

func TestMatcherCacheStillCountsTriggers(t *testing.T) {
	store := NewStore()
	if err := store.Add(AdvancedPattern{ID: "leet", Kind: KindLeetspeak, Target: "spam"}); err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(store)

	// Same text three times: second and third hit the cache, but a repeated
	// message is still a new trigger.
	for i := 0; i < 3; i++ {
		if ids := m.Matches("sp4m"); len(ids) != 1 {
			t.Fatalf("Matches = %v, want one hit", ids)
		}
	}

	stats, ok := store.Stats("leet")
	if !ok {
		t.Fatal("no stats for leet")
	}
	if stats.Triggers != 3 {
		t.Errorf("Triggers = %d, want 3", stats.Triggers)
	}
	if stats.TruePositives != 3 {
		t.Errorf("TruePositives = %d, want 3 (optimistic accounting)", stats.TruePositives)
	}
}

func TestMatcherSeesPatternsAddedAfterCache(t *testing.T) {
	store := NewStore()
	if err := store.Add(AdvancedPattern{ID: "leet", Kind: KindLeetspeak, Target: "spam"}); err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(store)

	if ids := m.Matches("sp4m spaaaam"); len(ids) != 1 {
		t.Fatalf("Matches = %v, want one hit", ids)
	}

	// Adding a pattern bumps the generation and invalidates the cached entry.
	if err := store.Add(AdvancedPattern{ID: "rep", Kind: KindRepeatedChar, Target: "spam"}); err != nil {
		t.Fatal(err)
	}
	if ids := m.Matches("sp4m spaaaam"); len(ids) != 2 {
		t.Errorf("Matches = %v after Add, want two hits", ids)
	}
}

func TestReportFalsePositive(t *testing.T) {
	store := NewStore()
	if err := store.Add(AdvancedPattern{ID: "leet", Kind: KindLeetspeak, Target: "spam"}); err != nil {
		t.Fatal(err)
	}
	m := NewMatcher(store)
	m.Matches("sp4m")

	if !store.ReportFalsePositive("leet") {
		t.Fatal("ReportFalsePositive returned false for known id")
	}
	stats, _ := store.Stats("leet")
	if stats.TruePositives != 0 || stats.FalsePositives != 1 {
		t.Errorf("after report: TP=%d FP=%d, want TP=0 FP=1", stats.TruePositives, stats.FalsePositives)
	}

	// Duplicate reports keep counting FPs but never push TP negative.
	store.ReportFalsePositive("leet")
	stats, _ = store.Stats("leet")
	if stats.TruePositives != 0 || stats.FalsePositives != 2 {
		t.Errorf("after duplicate report: TP=%d FP=%d, want TP=0 FP=2", stats.TruePositives, stats.FalsePositives)
	}

	if store.ReportFalsePositive("nope") {
		t.Error("ReportFalsePositive returned true for unknown id")
	}
}

func TestIneffectivePatterns(t *testing.T) {
	store := NewStore(WithMinSamples(3))
	must := func(p AdvancedPattern) {
		t.Helper()
		if err := store.Add(p); err != nil {
			t.Fatal(err)
		}
	}
	must(AdvancedPattern{ID: "noisy", Kind: KindLeetspeak, Target: "spam"})
	must(AdvancedPattern{ID: "young", Kind: KindLeetspeak, Target: "scam"})

	m := NewMatcher(store)
	for i := 0; i < 3; i++ {
		m.Matches("sp4m")
	}
	m.Matches("sc4m") // one trigger, below the sample minimum

	store.ReportFalsePositive("noisy")
	store.ReportFalsePositive("noisy") // TP 1/3 triggers
	store.ReportFalsePositive("young")

	ids := store.IneffectivePatterns(0.5)
	if len(ids) != 1 || ids[0] != "noisy" {
		t.Errorf("IneffectivePatterns = %v, want [noisy]", ids)
	}
}

func TestStoreConcurrentAddAndMatch(t *testing.T) {
	store := NewStore()
	m := NewMatcher(store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.Add(AdvancedPattern{
				ID:     fmt.Sprintf("p%d", n),
				Kind:   KindLeetspeak,
				Target: "spam",
			})
		}(i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = m.Matches("sp4m hello")
			}
		}()
	}
	wg.Wait()

	if store.Len() != 8 {
		t.Errorf("Len() = %d after concurrent adds, want 8", store.Len())
	}
	// Post-quiescence match sees the complete set.
	if ids := m.Matches("sp4m hello"); len(ids) != 8 {
		t.Errorf("Matches = %d hits, want 8", len(ids))
	}
}

func TestSeverityOrdering(t *testing.T) {
	ordered := []moderation.Severity{
		moderation.SeverityMinor,
		moderation.SeverityModerate,
		moderation.SeverityMajor,
		moderation.SeveritySevere,
	}
	for i := 1; i < len(ordered); i++ {
		if moderation.MaxSeverity(ordered[i-1], ordered[i]) != ordered[i] {
			t.Errorf("MaxSeverity(%v, %v) should be %v", ordered[i-1], ordered[i], ordered[i])
		}
	}
}

func BenchmarkMatcherCacheHit(b *testing.B) {
	store := NewStore()
	LoadDefaults(store)
	m := NewMatcher(store)
	text := "hey check out this sp4m right here"
	m.Matches(text)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Matches(text)
	}
}

func BenchmarkMatcherFullScan(b *testing.B) {
	store := NewStore()
	LoadDefaults(store)
	m := NewMatcher(store)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// Unique text defeats the cache and exercises every detector.
		_ = m.Matches(fmt.Sprintf("ordinary chat message number %d", i))
	}
}
