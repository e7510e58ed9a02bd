// Package learner induces or refines per-field patterns from LLM
// outputs (spec.md §4.5). Regex induction over character classes
// mirrors the teacher's own ordered, narrowly-scoped regex rules in
// internal/extraction/fallback.go, generalised from a fixed rule list
// to patterns derived per field at runtime.
package learner

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/divyang-garg/docxtract/internal/fieldextract"
	"github.com/divyang-garg/docxtract/internal/model"
	"github.com/divyang-garg/docxtract/internal/template"
)

// SignatureDelta is the structural-signature change ratio above which a
// sibling template is created rather than the existing one updated
// (spec.md §4.5, §9: "the source does not state a precise rule" —
// resolved here at 30%).
const SignatureDelta = 0.30

// maxAnchorTokens is the short-anchor bound for contextual patterns
// (spec.md §3: "is short (<=6 tokens)").
const maxAnchorTokens = 6

// maxRegexMatches mirrors fieldextract's acceptance bound so a pattern
// is only recorded if it would also be accepted at extraction time.
const maxRegexMatches = 3

// Learn applies one learning event to existing (nil if this is the
// first sample for label) and returns the template to upsert. When the
// document's structural signature differs from existing's by more than
// SignatureDelta, a sibling template is created instead of mutating
// existing.
func Learn(label string, doc *model.ParsedDocument, llmResult *model.ExtractionResult, existing *template.Template) *template.Template {
	docSignature := deriveSignature(llmResult, doc)

	target := existing
	if target == nil {
		target = &template.Template{
			Label:           label,
			FieldPatterns:   map[string]template.Pattern{},
			FieldConfidence: map[string]float64{},
		}
	} else if signatureDelta(existing.StructuralSignature, docSignature) > SignatureDelta {
		target = &template.Template{
			Label:           label,
			FieldPatterns:   map[string]template.Pattern{},
			FieldConfidence: map[string]float64{},
		}
	}

	target.StructuralSignature = docSignature
	target.SampleCount++

	lines := doc.Lines(2.0)
	docText := doc.Text()

	for field, value := range llmResult.Data {
		if value == nil || *value == "" {
			continue
		}
		v := *value

		pattern, trial := inducePattern(doc, lines, docText, v)
		existingPattern, hadPattern := target.FieldPatterns[field]

		success := 0
		if hadPattern {
			if raw, ok := fieldextract.ApplyPattern(doc, docText, existingPattern); ok && strings.EqualFold(raw, v) {
				success = 1
			}
			target.FieldPatterns[field] = mergePattern(existingPattern, pattern)
		} else {
			target.FieldPatterns[field] = pattern
			success = trial
		}

		target.FieldConfidence[field] = updateConfidence(target.FieldConfidence[field], hadPattern, success)
	}

	return target
}

// updateConfidence applies the EMA update (spec.md §4.5): seeded at 1.0
// on creation, otherwise alpha*success + (1-alpha)*previous.
func updateConfidence(previous float64, hadPrior bool, success int) float64 {
	if !hadPrior {
		return 1.0
	}
	return template.ConfidenceAlpha*float64(success) + (1-template.ConfidenceAlpha)*previous
}

// inducePattern builds a fresh Pattern for a learned value, trying
// positional, then contextual, then regex, recording whichever steps
// succeed (spec.md §4.5). trial is 1 when the induced pattern
// immediately reproduces the value in this document (self-consistency
// at creation time).
func inducePattern(doc *model.ParsedDocument, lines [][]model.Element, docText, value string) (template.Pattern, int) {
	var p template.Pattern

	elem, found := locate(doc, value)
	if found {
		p.Positional = &template.PositionalPattern{
			Page: elem.Page,
			X:    elem.X0, Y: elem.Y0,
			W: elem.X1 - elem.X0, H: elem.Y1 - elem.Y0,
		}
		if ctx := induceContextual(lines, elem); ctx != nil {
			p.Contextual = ctx
		}
	}

	if rx := induceRegex(value); rx != nil {
		if re, err := regexp.Compile(rx.Expr); err == nil {
			if n := len(re.FindAllString(docText, -1)); n > 0 && n <= maxRegexMatches {
				p.Regex = rx
			}
		}
	}

	trial := 0
	if raw, ok := fieldextract.ApplyPattern(doc, docText, p); ok && strings.EqualFold(raw, value) {
		trial = 1
	}
	return p, trial
}

// mergePattern keeps an existing pattern's shapes but refreshes any
// shape the new observation can (re)confirm, never discarding a
// previously-learned shape that is absent from the new induction.
func mergePattern(existing, fresh template.Pattern) template.Pattern {
	out := existing
	if fresh.Positional != nil {
		out.Positional = fresh.Positional
	}
	if fresh.Contextual != nil {
		out.Contextual = fresh.Contextual
	}
	if fresh.Regex != nil {
		out.Regex = fresh.Regex
	}
	return out
}

func locate(doc *model.ParsedDocument, value string) (model.Element, bool) {
	var best model.Element
	bestArea := 0.0
	found := false
	norm := strings.ToLower(strings.TrimSpace(value))

	for _, e := range doc.Elements {
		if e.Text == "" {
			continue
		}
		if !strings.Contains(strings.ToLower(e.Text), norm) {
			continue
		}
		area := e.Area()
		if !found || area < bestArea {
			best, bestArea, found = e, area, true
		}
	}
	return best, found
}

// induceContextual looks for a short anchor on the same line (to the
// left) or the line above the value's element (spec.md §4.5 step 2).
func induceContextual(lines [][]model.Element, valueElem model.Element) *template.ContextualPattern {
	for li, line := range lines {
		for i, e := range line {
			if e != valueElem {
				continue
			}
			if i > 0 && tokenCount(line[i-1].Text) <= maxAnchorTokens && line[i-1].Text != "" {
				return &template.ContextualPattern{AnchorText: strings.TrimSpace(line[i-1].Text), Direction: template.DirectionRight}
			}
			if li > 0 {
				if anchor, ok := nearestAbove(lines[li-1], e); ok && tokenCount(anchor) <= maxAnchorTokens {
					return &template.ContextualPattern{AnchorText: strings.TrimSpace(anchor), Direction: template.DirectionBelow}
				}
			}
			return nil
		}
	}
	return nil
}

func nearestAbove(line []model.Element, value model.Element) (string, bool) {
	var best *model.Element
	bestDist := 0.0
	for i := range line {
		e := &line[i]
		d := e.X0 - value.X0
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestDist {
			best, bestDist = e, d
		}
	}
	if best == nil || best.Text == "" {
		return "", false
	}
	return best.Text, true
}

func tokenCount(s string) int {
	return len(strings.Fields(s))
}

// induceRegex derives a character-class regex from value's shape
// (spec.md §4.5 step 3, e.g. "123.456.789-00" -> `\d{3}\.\d{3}\.\d{3}-\d{2}`).
func induceRegex(value string) *template.RegexPattern {
	if value == "" {
		return nil
	}
	var b strings.Builder
	runs := runLengthEncode(value)
	for _, r := range runs {
		switch r.class {
		case classDigit:
			b.WriteString(`\d`)
			if r.count > 1 {
				b.WriteString(repeatQuantifier(r.count))
			}
		case classLetter:
			b.WriteString(`\p{L}`)
			if r.count > 1 {
				b.WriteString(repeatQuantifier(r.count))
			}
		default:
			b.WriteString(strings.Repeat(regexp.QuoteMeta(string(r.char)), r.count))
		}
	}
	return &template.RegexPattern{Expr: b.String()}
}

func repeatQuantifier(n int) string {
	return "{" + itoa(n) + "}"
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

type charClass int

const (
	classDigit charClass = iota
	classLetter
	classOther
)

type run struct {
	class charClass
	char  rune
	count int
}

func runLengthEncode(s string) []run {
	var runs []run
	for _, r := range s {
		c := classify(r)
		if len(runs) > 0 {
			last := &runs[len(runs)-1]
			if last.class == c && (c != classOther || last.char == r) {
				last.count++
				continue
			}
		}
		runs = append(runs, run{class: c, char: r, count: 1})
	}
	return runs
}

func classify(r rune) charClass {
	switch {
	case unicode.IsDigit(r):
		return classDigit
	case unicode.IsLetter(r):
		return classLetter
	default:
		return classOther
	}
}

// deriveSignature builds the structural signature for this learning
// event: the schema keys plus anchor tokens observed in the document
// (spec.md §3). Anchor tokens are the first 50 distinct lower-cased
// whitespace-separated tokens at least four bytes long; stopwords are
// not filtered out beyond that length cut.
func deriveSignature(llmResult *model.ExtractionResult, doc *model.ParsedDocument) template.StructuralSignature {
	keys := make([]string, 0, len(llmResult.Data))
	for k := range llmResult.Data {
		keys = append(keys, k)
	}

	tokens := strings.Fields(strings.ToLower(doc.Text()))
	seen := make(map[string]bool, len(tokens))
	var anchors []string
	for _, t := range tokens {
		if len(t) < 4 || seen[t] {
			continue
		}
		seen[t] = true
		anchors = append(anchors, t)
		if len(anchors) >= 50 {
			break
		}
	}

	return template.StructuralSignature{SchemaKeys: keys, AnchorTokens: anchors}
}

// signatureDelta is the fraction of tokens in the union of a and b's
// sets that are not shared, i.e. 1 - Jaccard similarity.
func signatureDelta(a, b template.StructuralSignature) float64 {
	sa, sb := a.Set(), b.Set()
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	intersection := 0
	for k := range sa {
		if _, ok := sb[k]; ok {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	if union == 0 {
		return 0
	}
	return 1 - float64(intersection)/float64(union)
}
