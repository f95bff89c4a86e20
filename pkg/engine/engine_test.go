package engine

import (
	"testing"
	"time"

	"github.com/streamguard/streamguard/pkg/analytics"
	"github.com/streamguard/streamguard/pkg/escalation"
	"github.com/streamguard/streamguard/pkg/moderation"
	"github.com/streamguard/streamguard/pkg/patterns"
)

func newTestEngine(t *testing.T, opts Options, defs ...patterns.AdvancedPattern) *Engine {
	t.Helper()
	store := patterns.NewStore()
	for _, d := range defs {
		if err := store.Add(d); err != nil {
			t.Fatal(err)
		}
	}
	calc := escalation.NewCalculator(escalation.DefaultPolicy())
	reg := analytics.NewRegistry(analytics.Thresholds{
		MinSamples:         1 << 30,
		SuggestionInterval: 1 << 30,
	}, analytics.NewGlobalMetrics())
	return New(patterns.NewMatcher(store), calc, reg, opts)
}

func chatMsg(content string) moderation.ChatMessage {
	return moderation.ChatMessage{
		Platform:  "twitch",
		Channel:   "somestreamer",
		Username:  "chatter99",
		Content:   content,
		Timestamp: time.Now(),
	}
}

func TestEvasiveSpamWithBaseFilter(t *testing.T) {
	eng := newTestEngine(t, Options{EnableAdvancedPatterns: true, WindowName: "standard"},
		patterns.AdvancedPattern{
			ID: "leet_spam", Kind: patterns.KindLeetspeak, Target: "spam",
			Severity: moderation.SeverityModerate,
		})

	base := []moderation.FilterResult{
		{FilterID: "repeated_messages", Severity: moderation.SeverityModerate},
	}
	d := eng.CheckMessage(chatMsg("sp4m sp4m sp4m"), base)
	if d == nil {
		t.Fatal("expected a decision for evasive spam")
	}

	if len(d.TriggeredFilters) != 2 {
		t.Errorf("triggered = %v, want pattern + base filter", d.TriggeredFilters)
	}
	if d.Severity != moderation.SeverityModerate {
		t.Errorf("severity = %v, want moderate", d.Severity)
	}
	if d.Action.Type != moderation.ActionWarn {
		t.Errorf("first offense action = %v, want warn", d.Action.Type)
	}
	// Two independent signals, one of them an advanced pattern: confidence
	// sits above the single-signal base.
	if d.Confidence <= 0.5 || d.Confidence > 1.0 {
		t.Errorf("confidence = %v, want in (0.5, 1.0]", d.Confidence)
	}

	// The pattern trigger is labeled with its kind in analytics.
	snap, ok := eng.Registry().Snapshot("leet_spam")
	if !ok {
		t.Fatal("no analytics for leet_spam")
	}
	if snap.FilterType != "leetspeak" {
		t.Errorf("filter type = %q, want leetspeak", snap.FilterType)
	}
}

func TestCleanMessageNoSideEffects(t *testing.T) {
	eng := newTestEngine(t, Options{EnableAdvancedPatterns: true},
		patterns.AdvancedPattern{ID: "leet_spam", Kind: patterns.KindLeetspeak, Target: "spam"})

	if d := eng.CheckMessage(chatMsg("great play, well done"), nil); d != nil {
		t.Fatalf("decision = %+v, want nil", d)
	}

	// No ledger entry, no filter analytics; only the message counter moves.
	if users := eng.Calculator().Ledger().Users(); users != 0 {
		t.Errorf("ledger users = %d, want 0", users)
	}
	if snaps := eng.Registry().Snapshots(); len(snaps) != 0 {
		t.Errorf("filter snapshots = %d, want 0", len(snaps))
	}
	if got := eng.Registry().Global().Snapshot().MessagesProcessed; got != 1 {
		t.Errorf("messages processed = %d, want 1", got)
	}
}

func TestAdvancedPatternsDisabled(t *testing.T) {
	eng := newTestEngine(t, Options{EnableAdvancedPatterns: false},
		patterns.AdvancedPattern{ID: "leet_spam", Kind: patterns.KindLeetspeak, Target: "spam"})

	// The evasive text alone passes when the matcher is off.
	if d := eng.CheckMessage(chatMsg("sp4m sp4m"), nil); d != nil {
		t.Fatalf("decision = %+v, want nil with matcher disabled", d)
	}

	// Base rule results still work.
	base := []moderation.FilterResult{{FilterID: "excessive_caps", Severity: moderation.SeverityMinor}}
	d := eng.CheckMessage(chatMsg("HELLO EVERYONE"), base)
	if d == nil {
		t.Fatal("expected a decision from base filters")
	}
	snap, _ := eng.Registry().Snapshot("excessive_caps")
	if snap.FilterType != "base_rule" {
		t.Errorf("filter type = %q, want base_rule", snap.FilterType)
	}
}

func TestRepeatOffenderEscalates(t *testing.T) {
	eng := newTestEngine(t, Options{EnableAdvancedPatterns: true, WindowName: "standard"},
		patterns.AdvancedPattern{
			ID: "leet_spam", Kind: patterns.KindLeetspeak, Target: "spam",
			Severity: moderation.SeverityModerate,
		})

	var last *moderation.Decision
	for i := 0; i < 4; i++ {
		last = eng.CheckMessage(chatMsg("sp4m attack"), nil)
		if last == nil {
			t.Fatalf("message %d produced no decision", i+1)
		}
	}

	if last.Action.Type != moderation.ActionTimeout || last.Action.Duration != 24*time.Hour {
		t.Errorf("fourth offense = %+v, want 24h timeout", last.Action)
	}
	if !last.Action.BanCandidate {
		t.Error("fourth offense should be a ban candidate")
	}
}

func TestSeverityMergeTakesMax(t *testing.T) {
	eng := newTestEngine(t, Options{EnableAdvancedPatterns: true},
		patterns.AdvancedPattern{
			ID: "homoglyph_bitcoin", Kind: patterns.KindHomoglyph, Target: "bitcoin",
			Severity: moderation.SeverityMajor,
		})

	base := []moderation.FilterResult{{FilterID: "link", Severity: moderation.SeverityMinor}}
	d := eng.CheckMessage(chatMsg("free bitcoin click here"), base)
	if d == nil {
		t.Fatal("expected decision")
	}
	if d.Severity != moderation.SeverityMajor {
		t.Errorf("severity = %v, want major (max across signals)", d.Severity)
	}
	// First offense at major severity draws the short timeout, not a warn.
	if d.Action.Type != moderation.ActionTimeout {
		t.Errorf("action = %v, want timeout", d.Action.Type)
	}
}

func TestConfidenceCaps(t *testing.T) {
	eng := newTestEngine(t, Options{EnableAdvancedPatterns: true})

	base := make([]moderation.FilterResult, 20)
	for i := range base {
		base[i] = moderation.FilterResult{FilterID: "f" + string(rune('a'+i)), Severity: moderation.SeverityMinor}
	}
	d := eng.CheckMessage(chatMsg("whatever"), base)
	if d == nil {
		t.Fatal("expected decision")
	}
	// 20 base signals saturate the filter bonus: 0.5 + 0.25, no pattern bonus.
	if !(d.Confidence > 0.74 && d.Confidence < 0.76) {
		t.Errorf("confidence = %v, want ~0.75 (capped)", d.Confidence)
	}
}

func BenchmarkCheckMessageClean(b *testing.B) {
	store := patterns.NewStore()
	patterns.LoadDefaults(store)
	eng := New(
		patterns.NewMatcher(store),
		escalation.NewCalculator(escalation.DefaultPolicy()),
		analytics.NewRegistry(analytics.DefaultThresholds(), analytics.NewGlobalMetrics()),
		Options{EnableAdvancedPatterns: true},
	)
	msg := chatMsg("perfectly ordinary chat message")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = eng.CheckMessage(msg, nil)
	}
}
