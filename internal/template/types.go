// Package template persists per-label learned field patterns (spec.md
// §3, §4.3): a durable mapping label -> list<Template>, backed by
// Postgres via database/sql + lib/pq, the teacher's own stack
// (internal/repository/user_repository.go).
package template

import "time"

// Direction is the relative position of a contextual pattern's anchor
// text to its value.
type Direction string

const (
	DirectionRight    Direction = "right"
	DirectionBelow    Direction = "below"
	DirectionSameLine Direction = "same_line"
)

// PositionalPattern locates a value by a normalised bounding region on a
// given page (spec.md §3, Pattern #1).
type PositionalPattern struct {
	Page int     `json:"page"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	W    float64 `json:"w"`
	H    float64 `json:"h"`
}

// ContextualPattern locates a value relative to a nearby anchor text
// (spec.md §3, Pattern #2).
type ContextualPattern struct {
	AnchorText string    `json:"anchor_text"`
	Direction  Direction `json:"direction"`
}

// RegexPattern locates a value by a regular expression induced from the
// value's character classes (spec.md §3, Pattern #3).
type RegexPattern struct {
	Expr string `json:"expr"`
}

// Pattern is the per-field disjunction of extractors, tried in order
// positional -> contextual -> regex (spec.md §3). Any of the three may
// be absent (nil) if that shape was never learned for the field.
type Pattern struct {
	Positional *PositionalPattern `json:"positional,omitempty"`
	Contextual *ContextualPattern `json:"contextual,omitempty"`
	Regex      *RegexPattern      `json:"regex,omitempty"`
}

// StructuralSignature is the unordered set of schema keys plus anchor
// tokens observed during learning (spec.md §3).
type StructuralSignature struct {
	SchemaKeys   []string `json:"schema_keys"`
	AnchorTokens []string `json:"anchor_tokens"`
}

// Set flattens the signature into the token set the matcher computes
// Jaccard similarity against.
func (s StructuralSignature) Set() map[string]struct{} {
	out := make(map[string]struct{}, len(s.SchemaKeys)+len(s.AnchorTokens))
	for _, k := range s.SchemaKeys {
		out[k] = struct{}{}
	}
	for _, t := range s.AnchorTokens {
		out[t] = struct{}{}
	}
	return out
}

// Template is a stored, per-label collection of field patterns with
// confidence scores (spec.md §3). Identity is (Label, ID); Label is not
// unique, multiple variants ("siblings") are allowed per label.
type Template struct {
	ID                   string
	Label                string
	SampleCount          int
	StructuralSignature  StructuralSignature
	FieldPatterns        map[string]Pattern
	FieldConfidence      map[string]float64
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// DefaultMinSamples is the minimum sample_count before a template may
// be consulted for extraction, used when config.TemplateConfig.MinSamples
// is unset (spec.md §3 invariant, §6 "template.min_samples").
const DefaultMinSamples = 2

// DefaultConfidenceThreshold is the per-field gate above which a field
// may be extracted without LLM fallback, used when
// config.TemplateConfig.ConfidenceThreshold is unset (spec.md §3
// invariant, §6 "template.confidence_threshold").
const DefaultConfidenceThreshold = 0.8

// DefaultSimilarityThreshold is the template-application gate internal/matcher
// consults, used when config.TemplateConfig.SimilarityThreshold is unset
// (spec.md §4.4, §6 "template.similarity_threshold").
const DefaultSimilarityThreshold = 0.70

// ConfidenceAlpha is the EMA smoothing factor used by the pattern
// learner when updating FieldConfidence (spec.md §4.5).
const ConfidenceAlpha = 0.3

// DefaultPerLabelCap bounds how many templates a single label may
// retain before the lowest-confidence, lowest-sample-count template is
// evicted, used when config.TemplateConfig.MaxPerLabel is unset
// (spec.md §5 quotas; §9 resolves the unstated eviction policy; §6
// "template.max_per_label").
const DefaultPerLabelCap = 16
