// Package patterns implements the advanced pattern matcher: a set of
// detector strategies that catch evasive spam/abuse text (fuzzy spelling,
// leetspeak, unicode obfuscation, homoglyphs, zalgo, repeated-character
// padding, encoded payloads, phonetic near-matches).
//
// Design principles:
// - COMPILE ONCE: every detector is validated and compiled at registration
// - PURE MATCHING: a match function is text -> bool with no side effects
// - BOUNDED TIME: no detector may backtrack; fuzzy comparison is capped
// - SNAPSHOT READS: matching sees a consistent pattern set, never a partial one
package patterns

import (
	"errors"
	"fmt"
	"strings"

	"github.com/streamguard/streamguard/pkg/moderation"
)

// Kind selects the detector strategy for an AdvancedPattern.
type Kind string

const (
	KindFuzzyMatch        Kind = "fuzzy"
	KindLeetspeak         Kind = "leetspeak"
	KindUnicodeNormalized Kind = "unicode"
	KindZalgoText         Kind = "zalgo"
	KindHomoglyph         Kind = "homoglyph"
	KindRepeatedChar      Kind = "repeated_char"
	KindEncodedContent    Kind = "encoded"
	KindPhonetic          Kind = "phonetic"
)

// Registration errors. A malformed pattern is rejected with one of these and
// skipped; it is never silently degraded to a different detector type.
var (
	ErrUnknownKind   = errors.New("unknown pattern kind")
	ErrMissingID     = errors.New("pattern id is required")
	ErrMissingTarget = errors.New("pattern target is required")
	ErrBadThreshold  = errors.New("fuzzy threshold must be in (0, 1]")
	ErrDuplicateID   = errors.New("pattern id already registered")
)

// AdvancedPattern is one configured detector.
// Target is required for every kind except ZalgoText, which detects
// combining-mark density rather than a specific word.
// Threshold is only meaningful for FuzzyMatch.
type AdvancedPattern struct {
	ID        string
	Kind      Kind
	Target    string
	Threshold float64
	Severity  moderation.Severity
}

// Validate checks the pattern definition without compiling it.
func (p AdvancedPattern) Validate() error {
	if p.ID == "" {
		return ErrMissingID
	}
	switch p.Kind {
	case KindZalgoText:
		// No target: zalgo is a density heuristic.
	case KindFuzzyMatch:
		if strings.TrimSpace(p.Target) == "" {
			return fmt.Errorf("pattern %q: %w", p.ID, ErrMissingTarget)
		}
		if p.Threshold <= 0 || p.Threshold > 1 {
			return fmt.Errorf("pattern %q: %w (got %v)", p.ID, ErrBadThreshold, p.Threshold)
		}
	case KindLeetspeak, KindUnicodeNormalized, KindHomoglyph,
		KindRepeatedChar, KindEncodedContent, KindPhonetic:
		if strings.TrimSpace(p.Target) == "" {
			return fmt.Errorf("pattern %q: %w", p.ID, ErrMissingTarget)
		}
	default:
		return fmt.Errorf("pattern %q: %w (%q)", p.ID, ErrUnknownKind, p.Kind)
	}
	return nil
}

// compile validates the pattern and builds its match function. All per-target
// precomputation (case folding, run collapsing, phonetic keys) happens here so
// the hot path only transforms the message text.
func (p AdvancedPattern) compile(maxCompareLen int) (func(string) bool, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	switch p.Kind {
	case KindFuzzyMatch:
		target := strings.ToLower(p.Target)
		threshold := p.Threshold
		return func(text string) bool {
			return fuzzyWordMatch(truncateRunes(text, maxCompareLen), target, threshold)
		}, nil

	case KindLeetspeak:
		target := strings.ToLower(p.Target)
		return func(text string) bool {
			return strings.Contains(normalizeLeetspeak(strings.ToLower(text)), target)
		}, nil

	case KindUnicodeNormalized:
		target := foldUnicode(p.Target)
		return func(text string) bool {
			return strings.Contains(foldUnicode(text), target)
		}, nil

	case KindZalgoText:
		return func(text string) bool {
			return isZalgo(text)
		}, nil

	case KindHomoglyph:
		target := strings.ToLower(p.Target)
		return func(text string) bool {
			folded := strings.ToLower(foldHomoglyphs(stripInvisibles(text)))
			return strings.Contains(folded, target)
		}, nil

	case KindRepeatedChar:
		target := collapseRuns(strings.ToLower(p.Target))
		return func(text string) bool {
			return strings.Contains(collapseRuns(strings.ToLower(text)), target)
		}, nil

	case KindEncodedContent:
		target := strings.ToLower(p.Target)
		return func(text string) bool {
			decoded := decodePayloads(truncateRunes(text, maxCompareLen))
			return decoded != "" && strings.Contains(strings.ToLower(decoded), target)
		}, nil

	case KindPhonetic:
		key := phoneticKey(p.Target)
		if key == "" {
			return nil, fmt.Errorf("pattern %q: target %q has no phonetic key", p.ID, p.Target)
		}
		return func(text string) bool {
			return phoneticWordMatch(truncateRunes(text, maxCompareLen), key)
		}, nil
	}

	return nil, fmt.Errorf("pattern %q: %w (%q)", p.ID, ErrUnknownKind, p.Kind)
}
