// Package model holds the data types shared across the extraction
// pipeline (spec.md §3): requests, results, parsed documents and the
// method tag. It exists so internal/pipeline, internal/cache,
// internal/template, internal/matcher, internal/fieldextract,
// internal/learner, internal/llm and internal/parser can all depend on
// one vocabulary without importing each other.
package model

import (
	"encoding/json"
	"sort"
	"strings"
)

// SchemaField is one entry of an extraction schema: a field name and a
// human-readable description of what should be extracted for it.
type SchemaField struct {
	Name        string `validate:"required"`
	Description string
}

// Schema is the caller-supplied ordered field_name -> description
// mapping (spec.md §3). Order is preserved for display purposes; the
// cache key and matching logic treat it as a set.
type Schema []SchemaField

// Keys returns the field names in schema order.
func (s Schema) Keys() []string {
	keys := make([]string, len(s))
	for i, f := range s {
		keys[i] = f.Name
	}
	return keys
}

// Subset returns a new Schema containing only the named fields, in the
// receiver's order. Used to build the reduced schema for hybrid LLM calls.
func (s Schema) Subset(names map[string]bool) Schema {
	var out Schema
	for _, f := range s {
		if names[f.Name] {
			out = append(out, f)
		}
	}
	return out
}

// Canonical returns the canonical JSON serialization used by the
// fingerprinter (spec.md §4.1): keys sorted, whitespace stripped, so two
// requests differing only in schema ordering fingerprint identically.
func (s Schema) Canonical() string {
	sorted := make([]SchemaField, len(s))
	copy(sorted, s)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	m := make(map[string]string, len(sorted))
	for _, f := range sorted {
		m[f.Name] = strings.TrimSpace(f.Description)
	}
	b, _ := json.Marshal(m)
	return string(b)
}

// ExtractionRequest is the caller's immutable request (spec.md §3).
type ExtractionRequest struct {
	PDFBytes []byte `validate:"min=4"`
	Label    string `validate:"required"`
	Schema   Schema `validate:"required,min=1,dive"`
}

// Method tags which execution path produced a result (spec.md §3, §9:
// "a tagged variant, not a string soup").
type Method string

const (
	MethodCacheL1   Method = "cache_l1"
	MethodCacheL2   Method = "cache_l2"
	MethodTemplate  Method = "template"
	MethodHybrid    Method = "hybrid"
	MethodLLM       Method = "llm"
	MethodError     Method = "error"
	MethodCoalesced Method = "coalesced"
)

// Metadata records which path produced a result and path-specific detail
// (spec.md §3).
type Metadata struct {
	Method         Method
	TimeSeconds    float64
	Similarity     float64 `json:",omitempty"`
	Confidence     float64 `json:",omitempty"`
	TemplateFields int     `json:",omitempty"`
	LLMFields      int     `json:",omitempty"`
	Warning        string  `json:",omitempty"`
	LastAttempted  Method  `json:",omitempty"`
	LLMRetries     int     `json:",omitempty"`
}

// ExtractionResult is the immutable result returned to the caller
// (spec.md §3). Data values are pointers so a present-but-null field is
// distinguishable from an absent key, though on success the key set is
// always exactly the schema's.
type ExtractionResult struct {
	Success  bool
	Data     map[string]*string
	Metadata Metadata
	Error    string
}

// ElementKind classifies a parsed document element.
type ElementKind string

const (
	KindParagraph ElementKind = "paragraph"
	KindTableCell ElementKind = "table_cell"
	KindLine      ElementKind = "line"
)

// Element is one piece of text the parser recovered from the document,
// with its page and bounding box in the parser's own coordinate
// convention (spec.md §3, §9: "not re-normalised by the core").
type Element struct {
	Text string
	Page int
	X0   float64
	Y0   float64
	X1   float64
	Y1   float64
	Kind ElementKind
}

// CenterX and CenterY return the element's bounding-box center, used by
// positional pattern matching (spec.md §4.6).
func (e Element) CenterX() float64 { return (e.X0 + e.X1) / 2 }
func (e Element) CenterY() float64 { return (e.Y0 + e.Y1) / 2 }
func (e Element) Area() float64    { return (e.X1 - e.X0) * (e.Y1 - e.Y0) }

// ParsedDocument is the external parser's output (spec.md §3, §6).
type ParsedDocument struct {
	Elements []Element
	NumPages int
}

// Text concatenates every element's text, used by the matcher's token
// and LCS scoring and by regex pattern induction.
func (d ParsedDocument) Text() string {
	var b strings.Builder
	for i, e := range d.Elements {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(e.Text)
	}
	return b.String()
}

// Lines groups elements into lines by near-equal Y, as spec.md §3
// requires ("Elements are grouped into lines by near-equal y").
func (d ParsedDocument) Lines(tolerance float64) [][]Element {
	byPage := make(map[int][]Element)
	for _, e := range d.Elements {
		byPage[e.Page] = append(byPage[e.Page], e)
	}

	var lines [][]Element
	for page := 0; page <= d.maxPage(); page++ {
		elems := byPage[page]
		sort.SliceStable(elems, func(i, j int) bool {
			if abs(elems[i].Y0-elems[j].Y0) > tolerance {
				return elems[i].Y0 < elems[j].Y0
			}
			return elems[i].X0 < elems[j].X0
		})

		var current []Element
		var currentY float64
		for _, e := range elems {
			if len(current) == 0 {
				current = []Element{e}
				currentY = e.Y0
				continue
			}
			if abs(e.Y0-currentY) <= tolerance {
				current = append(current, e)
				continue
			}
			lines = append(lines, current)
			current = []Element{e}
			currentY = e.Y0
		}
		if len(current) > 0 {
			lines = append(lines, current)
		}
	}
	return lines
}

func (d ParsedDocument) maxPage() int {
	max := 0
	for _, e := range d.Elements {
		if e.Page > max {
			max = e.Page
		}
	}
	return max
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
