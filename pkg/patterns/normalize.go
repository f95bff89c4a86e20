package patterns

import (
	"encoding/base64"
	"encoding/hex"
	"net/url"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xrash/smetrics"
	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// Package-level compiled regex patterns for performance.
// Compiled once at startup instead of on every call.
var (
	// Base64 pattern: 8+ chars of base64 alphabet with optional padding
	reBase64 = regexp.MustCompile(`[A-Za-z0-9+/]{8,}={0,2}`)

	// Pure hex runs long enough to encode at least six bytes
	rePureHex = regexp.MustCompile(`\b[0-9a-fA-F]{12,}\b`)

	// Word boundary pattern for fuzzy/phonetic word scans
	reWord = regexp.MustCompile(`[a-zA-Z]+`)
)

// leetspeakMap provides the digit/symbol substitutions commonly used to dodge
// word filters. Input is lowercased before lookup.
var leetspeakMap = map[rune]rune{
	// Numbers -> letters
	'0': 'o', '1': 'i', '2': 'z', '3': 'e', '4': 'a', '5': 's', '6': 'g', '7': 't', '8': 'b', '9': 'g',
	// Symbols -> letters
	'@': 'a', '$': 's', '!': 'i', '+': 't', '|': 'i', '(': 'c', ')': 'd',
	// Less common
	'<': 'c', '>': 'd', '{': 'c', '}': 'd', '[': 'c', ']': 'd',
}

// normalizeLeetspeak maps leetspeak substitutions back to letters.
// Returns the input unchanged when no substitution applies.
func normalizeLeetspeak(text string) string {
	return strings.Map(func(r rune) rune {
		if mapped, ok := leetspeakMap[r]; ok {
			return mapped
		}
		return r
	}, text)
}

// homoglyphMap folds visually-confusable characters (Cyrillic/Greek
// lookalikes, IPA, fullwidth forms) to their Latin equivalents.
var homoglyphMap = map[rune]rune{
	// Cyrillic lowercase
	'а': 'a', 'е': 'e', 'і': 'i', 'о': 'o', 'р': 'p', 'с': 'c', 'у': 'y', 'х': 'x',
	// Cyrillic uppercase
	'А': 'A', 'В': 'B', 'С': 'C', 'Е': 'E', 'Н': 'H', 'І': 'I', 'К': 'K', 'М': 'M',
	'О': 'O', 'Р': 'P', 'Т': 'T', 'Х': 'X',
	// Greek
	'α': 'a', 'β': 'b', 'ε': 'e', 'η': 'n', 'ι': 'i', 'κ': 'k', 'ν': 'v', 'ο': 'o',
	'ρ': 'p', 'τ': 't', 'υ': 'u', 'χ': 'x',
	// IPA
	'ɑ': 'a', 'ɡ': 'g', 'ɩ': 'i', 'ɪ': 'i',
	// Misc symbols
	'ℓ': 'l', '€': 'e', '£': 'l',
}

// foldHomoglyphs maps confusable characters to Latin, then applies width
// folding so fullwidth forms collapse too.
func foldHomoglyphs(text string) string {
	mapped := strings.Map(func(r rune) rune {
		if folded, ok := homoglyphMap[r]; ok {
			return folded
		}
		return r
	}, text)
	return width.Fold.String(mapped)
}

// stripInvisibles drops format characters, zero-width joiners and variation
// selectors that are used to split filtered words invisibly.
func stripInvisibles(text string) string {
	return strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Cf, r) || r == 0xFE0E || r == 0xFE0F || r == 0x20E3 {
			return -1
		}
		return r
	}, text)
}

// foldUnicode is the canonical normalization used by the UnicodeNormalized
// detector: width fold, NFKC, case fold. Idempotent on plain ASCII.
func foldUnicode(text string) string {
	return strings.ToLower(norm.NFKC.String(width.Fold.String(text)))
}

// Zalgo thresholds: at least this many combining marks AND this density
// relative to total runes before text counts as zalgo. Ordinary accented
// text stays well under both.
const (
	zalgoMinMarks = 4
	zalgoRatio    = 0.25
)

// isZalgo reports whether the combining-mark density exceeds the zalgo
// threshold. Single pass, O(n).
func isZalgo(text string) bool {
	var marks, total int
	for _, r := range text {
		total++
		if unicode.Is(unicode.Mn, r) || unicode.Is(unicode.Me, r) {
			marks++
		}
	}
	if total == 0 || marks < zalgoMinMarks {
		return false
	}
	return float64(marks)/float64(total) >= zalgoRatio
}

// collapseRuns collapses runs of 3+ identical runes down to a single rune,
// so "spaaaam" and "spam" compare equal. Runs of exactly 2 are left alone
// because doubled letters are normal spelling.
func collapseRuns(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(runes); {
		j := i
		for j < len(runes) && runes[j] == runes[i] {
			j++
		}
		if j-i >= 3 {
			b.WriteRune(runes[i])
		} else {
			for k := i; k < j; k++ {
				b.WriteRune(runes[k])
			}
		}
		i = j
	}
	return b.String()
}

// decodePayloads extracts and decodes embedded base64, URL-encoded and hex
// segments. Only printable decodings are kept; binary garbage is discarded.
func decodePayloads(text string) string {
	var results []string

	for _, match := range reBase64.FindAllString(text, -1) {
		if decoded, err := base64.StdEncoding.DecodeString(match); err == nil {
			if s := string(decoded); isPrintable(s) && len(s) > 2 {
				results = append(results, s)
			}
		}
	}

	for _, match := range rePureHex.FindAllString(text, -1) {
		if decoded, err := hex.DecodeString(match); err == nil {
			if s := string(decoded); isPrintable(s) {
				results = append(results, s)
			}
		}
	}

	if strings.Contains(text, "%") {
		if decoded, err := url.QueryUnescape(text); err == nil && decoded != text {
			results = append(results, decoded)
		}
	}

	return strings.Join(results, " ")
}

// isPrintable rejects decodings that produced invalid UTF-8 or control bytes,
// which filters out the false hits from decoding random base64-looking runs.
func isPrintable(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r == unicode.ReplacementChar {
			return false
		}
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return len(s) > 0
}

// fuzzyWordMatch scans words in text for one whose normalized edit-distance
// similarity to target meets the threshold. Cost is O(words * |w| * |target|)
// with |w| bounded by the truncation cap upstream.
func fuzzyWordMatch(text, target string, threshold float64) bool {
	for _, word := range reWord.FindAllString(strings.ToLower(text), -1) {
		// A word much longer or shorter than the target can never clear a
		// sane threshold; skip the quadratic comparison.
		if abs(len(word)-len(target)) > len(target) {
			continue
		}
		dist := smetrics.WagnerFischer(word, target, 1, 1, 1)
		longest := len(word)
		if len(target) > longest {
			longest = len(target)
		}
		if longest == 0 {
			continue
		}
		if 1.0-float64(dist)/float64(longest) >= threshold {
			return true
		}
	}
	return false
}

// phoneticKey returns the soundex key for the first word of target, or "".
func phoneticKey(target string) string {
	words := reWord.FindAllString(target, 1)
	if len(words) == 0 {
		return ""
	}
	return smetrics.Soundex(words[0])
}

// phoneticWordMatch reports whether any word in text shares a soundex key
// with the target.
func phoneticWordMatch(text, key string) bool {
	for _, word := range reWord.FindAllString(text, -1) {
		if smetrics.Soundex(word) == key {
			return true
		}
	}
	return false
}

// truncateRunes caps text at n runes. Detectors whose worst case grows with
// input length (fuzzy, encoded) work on the truncated prefix so a pathological
// wall of text cannot blow the latency budget.
func truncateRunes(text string, n int) string {
	if n <= 0 || len(text) <= n {
		return text
	}
	count := 0
	for i := range text {
		if count == n {
			return text[:i]
		}
		count++
	}
	return text
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
