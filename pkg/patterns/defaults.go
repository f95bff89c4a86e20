package patterns

import (
	"log"

	"github.com/streamguard/streamguard/pkg/moderation"
)

// DefaultPatterns is the built-in detector set used when no pattern file is
// configured. Targets cover the evasion families seen in live chat spam;
// operators extend or replace the set via the YAML codec.
func DefaultPatterns() []AdvancedPattern {
	return []AdvancedPattern{
		// Spam evasion via character tricks
		{ID: "leet_spam", Kind: KindLeetspeak, Target: "spam", Severity: moderation.SeverityModerate},
		{ID: "leet_free_money", Kind: KindLeetspeak, Target: "free money", Severity: moderation.SeverityModerate},
		{ID: "fuzzy_follower_scam", Kind: KindFuzzyMatch, Target: "followers", Threshold: 0.8, Severity: moderation.SeverityModerate},
		{ID: "repeated_buy", Kind: KindRepeatedChar, Target: "buy now", Severity: moderation.SeverityModerate},

		// Unicode obfuscation
		{ID: "unicode_giveaway", Kind: KindUnicodeNormalized, Target: "giveaway", Severity: moderation.SeverityModerate},
		{ID: "homoglyph_bitcoin", Kind: KindHomoglyph, Target: "bitcoin", Severity: moderation.SeverityMajor},
		{ID: "zalgo_flood", Kind: KindZalgoText, Severity: moderation.SeverityMinor},

		// Payload smuggling
		{ID: "encoded_scam_link", Kind: KindEncodedContent, Target: "http", Severity: moderation.SeverityMajor},

		// Phonetic slur evasion placeholder target; real deployments swap in
		// their channel's blocklist.
		{ID: "phonetic_scam", Kind: KindPhonetic, Target: "scam", Severity: moderation.SeverityModerate},
	}
}

// LoadDefaults registers the built-in set into a store, logging and skipping
// any entry the store rejects.
func LoadDefaults(store *Store) {
	for _, p := range DefaultPatterns() {
		if err := store.Add(p); err != nil {
			log.Printf("[PATTERNS] skipping default pattern %q: %v", p.ID, err)
		}
	}
}
