package patterns

import (
	"fmt"
	"log"

	"gopkg.in/yaml.v3"

	"github.com/streamguard/streamguard/pkg/moderation"
)

// patternConfig is the YAML shape of one detector definition.
type patternConfig struct {
	ID        string  `yaml:"id"`
	Type      string  `yaml:"type"`
	Target    string  `yaml:"target,omitempty"`
	Threshold float64 `yaml:"threshold,omitempty"`
	Severity  string  `yaml:"severity"`
}

// patternFile is the top-level YAML document for a pattern set.
type patternFile struct {
	Patterns []patternConfig `yaml:"patterns"`
}

// ExportYAML serializes the current pattern set. Counters are runtime state
// and deliberately not part of the document: importing an export yields an
// equivalent matcher, not a clone of its history.
func (s *Store) ExportYAML() ([]byte, error) {
	defs := s.Definitions()
	doc := patternFile{Patterns: make([]patternConfig, 0, len(defs))}
	for _, d := range defs {
		doc.Patterns = append(doc.Patterns, patternConfig{
			ID:        d.ID,
			Type:      string(d.Kind),
			Target:    d.Target,
			Threshold: d.Threshold,
			Severity:  d.Severity.String(),
		})
	}
	return yaml.Marshal(&doc)
}

// ImportYAML parses a pattern set document and registers each entry into a
// fresh store. A malformed entry is fatal to that pattern only: it is logged,
// collected into the returned slice and skipped, and the rest of the set
// still loads.
func ImportYAML(data []byte, opts ...StoreOption) (*Store, []error) {
	var doc patternFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, []error{fmt.Errorf("parse pattern set: %w", err)}
	}

	store := NewStore(opts...)
	var rejected []error
	for _, pc := range doc.Patterns {
		p := AdvancedPattern{
			ID:        pc.ID,
			Kind:      Kind(pc.Type),
			Target:    pc.Target,
			Threshold: pc.Threshold,
			Severity:  moderation.ParseSeverity(pc.Severity),
		}
		if err := store.Add(p); err != nil {
			log.Printf("[PATTERNS] rejected pattern %q: %v", pc.ID, err)
			rejected = append(rejected, err)
		}
	}
	return store, rejected
}
