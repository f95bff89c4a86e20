// Package config holds global settings for the StreamGuard engine.
// All settings can be configured via environment variables or
// programmatically.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/streamguard/streamguard/pkg/analytics"
	"github.com/streamguard/streamguard/pkg/escalation"
)

// Config holds global settings for the StreamGuard daemon.
type Config struct {
	// === Core settings ===
	ListenAddr  string // HTTP listen address (default ":3000")
	PatternFile string // Path to a YAML pattern set; empty = built-in defaults

	// === Detection ===
	EnableAdvancedPatterns bool // Pattern matcher on/off; base rules always run
	MaxCompareLen          int  // Rune cap for length-sensitive detectors
	MinPatternSamples      int  // Min triggers before a pattern can be called ineffective

	// === Escalation policy ===
	EscalationWindow string        // Named lookback window: short, standard, extended
	ShortTimeout     time.Duration // First major/severe violation
	BaseTimeout      time.Duration // Second violation; doubles for the third
	LongTimeout      time.Duration // Fourth violation onwards
	RehabCredit      int           // Violations offset per positive action

	// === Analytics thresholds ===
	AccuracyCritical   float64
	AccuracyWarning    float64
	FalsePositiveRate  float64
	ResponseTimeMs     float64
	SuggestionInterval int

	// === Export sinks (optional, empty = disabled) ===
	RedisAddr      string
	PostgresDSN    string
	ExportInterval time.Duration
}

// NewDefaultConfig creates a Config with sensible defaults. All settings can
// be overridden via environment variables.
func NewDefaultConfig() *Config {
	return &Config{
		ListenAddr:  GetEnv("STREAMGUARD_LISTEN_ADDR", ":3000"),
		PatternFile: GetEnv("STREAMGUARD_PATTERN_FILE", ""),

		EnableAdvancedPatterns: GetEnvBool("STREAMGUARD_ADVANCED_PATTERNS", true),
		MaxCompareLen:          GetEnvInt("STREAMGUARD_MAX_COMPARE_LEN", 512),
		MinPatternSamples:      GetEnvInt("STREAMGUARD_MIN_PATTERN_SAMPLES", 10),

		EscalationWindow: GetEnv("STREAMGUARD_ESCALATION_WINDOW", "standard"),
		ShortTimeout:     time.Duration(GetEnvInt("STREAMGUARD_SHORT_TIMEOUT_SECONDS", 60)) * time.Second,
		BaseTimeout:      time.Duration(GetEnvInt("STREAMGUARD_BASE_TIMEOUT_SECONDS", 120)) * time.Second,
		LongTimeout:      time.Duration(GetEnvInt("STREAMGUARD_LONG_TIMEOUT_SECONDS", 86400)) * time.Second,
		RehabCredit:      GetEnvInt("STREAMGUARD_REHAB_CREDIT", 1),

		AccuracyCritical:   GetEnvFloat("STREAMGUARD_ACCURACY_CRITICAL", 0.5),
		AccuracyWarning:    GetEnvFloat("STREAMGUARD_ACCURACY_WARNING", 0.7),
		FalsePositiveRate:  GetEnvFloat("STREAMGUARD_FP_RATE_THRESHOLD", 0.3),
		ResponseTimeMs:     GetEnvFloat("STREAMGUARD_RESPONSE_TIME_MS", 10),
		SuggestionInterval: GetEnvInt("STREAMGUARD_SUGGESTION_INTERVAL", 50),

		RedisAddr:      GetEnv("STREAMGUARD_REDIS_ADDR", ""),
		PostgresDSN:    GetEnv("STREAMGUARD_POSTGRES_DSN", os.Getenv("DATABASE_URL")),
		ExportInterval: time.Duration(GetEnvInt("STREAMGUARD_EXPORT_INTERVAL_SECONDS", 60)) * time.Second,
	}
}

// NewStrictConfig is tuned for channels under active attack: longer lookback,
// harsher timeouts, more aggressive alerting.
func NewStrictConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.EscalationWindow = "extended"
	cfg.ShortTimeout = 5 * time.Minute
	cfg.BaseTimeout = 10 * time.Minute
	cfg.AccuracyWarning = 0.8
	cfg.FalsePositiveRate = 0.5 // tolerate more FPs while under attack
	return cfg
}

// NewLenientConfig minimizes false-positive pain for relaxed communities.
func NewLenientConfig() *Config {
	cfg := NewDefaultConfig()
	cfg.EscalationWindow = "short"
	cfg.RehabCredit = 2
	cfg.FalsePositiveRate = 0.15
	return cfg
}

// Policy builds the escalation policy table from the config.
func (c *Config) Policy() escalation.Policy {
	p := escalation.DefaultPolicy()
	p.DefaultWindow = c.EscalationWindow
	if _, ok := p.Windows[c.EscalationWindow]; !ok {
		p.DefaultWindow = "standard"
	}
	p.ShortTimeout = c.ShortTimeout
	p.BaseTimeout = c.BaseTimeout
	p.LongTimeout = c.LongTimeout
	p.RehabCredit = c.RehabCredit
	return p
}

// Thresholds builds the analytics thresholds from the config.
func (c *Config) Thresholds() analytics.Thresholds {
	t := analytics.DefaultThresholds()
	t.AccuracyCritical = c.AccuracyCritical
	t.AccuracyWarning = c.AccuracyWarning
	t.FalsePositiveRate = c.FalsePositiveRate
	t.ResponseTimeMs = c.ResponseTimeMs
	t.SuggestionInterval = c.SuggestionInterval
	return t
}

// Helper functions for environment variable parsing.

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// GetEnvBool returns the boolean value of an environment variable or a
// default value.
func GetEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

// GetEnvInt returns the integer value of an environment variable or a
// default value.
func GetEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

// GetEnvFloat returns the float64 value of an environment variable or a
// default value.
func GetEnvFloat(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// GetEnvSlice returns a comma-separated list from an environment variable or
// a default value.
func GetEnvSlice(key string, defaultValue []string) []string {
	if v := os.Getenv(key); v != "" {
		var parts []string
		for _, p := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				parts = append(parts, trimmed)
			}
		}
		if len(parts) > 0 {
			return parts
		}
	}
	return defaultValue
}
