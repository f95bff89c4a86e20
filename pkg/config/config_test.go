package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.ListenAddr != ":3000" {
		t.Errorf("ListenAddr = %q, want :3000", cfg.ListenAddr)
	}
	if !cfg.EnableAdvancedPatterns {
		t.Error("advanced patterns should default on")
	}
	if cfg.EscalationWindow != "standard" {
		t.Errorf("EscalationWindow = %q, want standard", cfg.EscalationWindow)
	}
	if cfg.BaseTimeout != 2*time.Minute {
		t.Errorf("BaseTimeout = %v, want 2m", cfg.BaseTimeout)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STREAMGUARD_LISTEN_ADDR", ":9000")
	t.Setenv("STREAMGUARD_ADVANCED_PATTERNS", "false")
	t.Setenv("STREAMGUARD_REHAB_CREDIT", "2")
	t.Setenv("STREAMGUARD_ACCURACY_WARNING", "0.85")

	cfg := NewDefaultConfig()
	if cfg.ListenAddr != ":9000" {
		t.Errorf("ListenAddr = %q, want :9000", cfg.ListenAddr)
	}
	if cfg.EnableAdvancedPatterns {
		t.Error("env false did not disable advanced patterns")
	}
	if cfg.RehabCredit != 2 {
		t.Errorf("RehabCredit = %d, want 2", cfg.RehabCredit)
	}
	if cfg.AccuracyWarning != 0.85 {
		t.Errorf("AccuracyWarning = %v, want 0.85", cfg.AccuracyWarning)
	}
}

func TestEnvParseFailureKeepsDefault(t *testing.T) {
	t.Setenv("STREAMGUARD_REHAB_CREDIT", "lots")
	t.Setenv("STREAMGUARD_ADVANCED_PATTERNS", "yep")

	cfg := NewDefaultConfig()
	if cfg.RehabCredit != 1 {
		t.Errorf("RehabCredit = %d, want default 1 on parse failure", cfg.RehabCredit)
	}
	if !cfg.EnableAdvancedPatterns {
		t.Error("unparsable bool should keep the default")
	}
}

func TestPolicyBuilder(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.EscalationWindow = "extended"
	cfg.BaseTimeout = 10 * time.Minute

	p := cfg.Policy()
	if p.DefaultWindow != "extended" {
		t.Errorf("DefaultWindow = %q, want extended", p.DefaultWindow)
	}
	if p.BaseTimeout != 10*time.Minute {
		t.Errorf("BaseTimeout = %v, want 10m", p.BaseTimeout)
	}
}

func TestPolicyBuilderRejectsUnknownWindow(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.EscalationWindow = "fortnight"

	if p := cfg.Policy(); p.DefaultWindow != "standard" {
		t.Errorf("DefaultWindow = %q, want standard fallback", p.DefaultWindow)
	}
}

func TestPresets(t *testing.T) {
	strict := NewStrictConfig()
	if strict.EscalationWindow != "extended" {
		t.Errorf("strict window = %q, want extended", strict.EscalationWindow)
	}
	if strict.ShortTimeout != 5*time.Minute {
		t.Errorf("strict short timeout = %v, want 5m", strict.ShortTimeout)
	}

	lenient := NewLenientConfig()
	if lenient.EscalationWindow != "short" {
		t.Errorf("lenient window = %q, want short", lenient.EscalationWindow)
	}
	if lenient.RehabCredit != 2 {
		t.Errorf("lenient rehab credit = %d, want 2", lenient.RehabCredit)
	}
}

func TestGetEnvSlice(t *testing.T) {
	t.Setenv("STREAMGUARD_TEST_SLICE", "a, b ,, c")
	got := GetEnvSlice("STREAMGUARD_TEST_SLICE", nil)
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("GetEnvSlice = %v, want [a b c]", got)
	}
	if def := GetEnvSlice("STREAMGUARD_TEST_MISSING", []string{"x"}); len(def) != 1 || def[0] != "x" {
		t.Errorf("default = %v, want [x]", def)
	}
}
