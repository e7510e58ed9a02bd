// Package fieldextract applies a template's patterns to a parsed
// document (spec.md §4.6). Pattern application style (disjunction of
// small rules tried in order, first match wins) is grounded on the
// teacher's internal/extraction/fallback.go regex-fallback extractor.
package fieldextract

import (
	"regexp"
	"strings"

	"github.com/divyang-garg/docxtract/internal/model"
	"github.com/divyang-garg/docxtract/internal/template"
	"github.com/divyang-garg/docxtract/internal/validate"
)

// positionalTolerance is the bounding-region expansion applied on each
// side before testing whether a candidate element's centre falls
// inside it (spec.md §4.6).
const positionalTolerance = 0.10

// maxRegexMatches is the acceptance bound on a regex pattern's global
// match count (spec.md §4.6).
const maxRegexMatches = 3

// Result is the field extractor's output (spec.md §4.6).
type Result struct {
	Data         map[string]*string
	FieldsFilled map[string]bool
}

// Extract tries, for each schema field, the pattern disjunction
// (positional -> contextual -> regex) recorded in tmpl, then validates
// the raw candidate via the shape classified from the field's
// description. A rejected or absent value is left nil.
func Extract(doc *model.ParsedDocument, tmpl *template.Template, schema model.Schema) Result {
	res := Result{Data: make(map[string]*string, len(schema)), FieldsFilled: make(map[string]bool)}
	docText := doc.Text()

	for _, f := range schema {
		res.Data[f.Name] = nil

		pattern, ok := tmpl.FieldPatterns[f.Name]
		if !ok {
			continue
		}
		raw, found := ApplyPattern(doc, docText, pattern)
		if !found {
			continue
		}

		shape := validate.ClassifyShape(f.Description)
		normalised, valid := validate.Validate(raw, shape)
		if !valid {
			continue
		}

		v := normalised
		res.Data[f.Name] = &v
		res.FieldsFilled[f.Name] = true
	}
	return res
}

// ApplyPattern runs the positional -> contextual -> regex disjunction
// for a single field and returns the first non-empty raw match.
func ApplyPattern(doc *model.ParsedDocument, docText string, p template.Pattern) (string, bool) {
	if p.Positional != nil {
		if v, ok := applyPositional(doc, p.Positional); ok {
			return v, true
		}
	}
	if p.Contextual != nil {
		if v, ok := applyContextual(doc, p.Contextual); ok {
			return v, true
		}
	}
	if p.Regex != nil {
		if v, ok := applyRegex(docText, p.Regex); ok {
			return v, true
		}
	}
	return "", false
}

func applyPositional(doc *model.ParsedDocument, p *template.PositionalPattern) (string, bool) {
	tolW := p.W * positionalTolerance
	tolH := p.H * positionalTolerance
	minX, maxX := p.X-tolW, p.X+p.W+tolW
	minY, maxY := p.Y-tolH, p.Y+p.H+tolH

	var best *model.Element
	bestArea := 0.0
	for i := range doc.Elements {
		e := &doc.Elements[i]
		if e.Page != p.Page {
			continue
		}
		cx, cy := e.CenterX(), e.CenterY()
		if cx < minX || cx > maxX || cy < minY || cy > maxY {
			continue
		}
		area := e.Area()
		if best == nil || area < bestArea {
			best = e
			bestArea = area
		}
	}
	if best == nil || best.Text == "" {
		return "", false
	}
	return best.Text, true
}

func applyContextual(doc *model.ParsedDocument, p *template.ContextualPattern) (string, bool) {
	lines := doc.Lines(lineTolerance)

	for li, line := range lines {
		for i, e := range line {
			if !strings.EqualFold(strings.TrimSpace(e.Text), p.AnchorText) {
				continue
			}
			switch p.Direction {
			case template.DirectionRight:
				if i+1 < len(line) {
					return line[i+1].Text, true
				}
			case template.DirectionSameLine:
				for j, other := range line {
					if j != i && other.Text != "" {
						return other.Text, true
					}
				}
			case template.DirectionBelow:
				if li+1 < len(lines) {
					if v, ok := nearestOnLine(lines[li+1], e); ok {
						return v, true
					}
				}
			}
		}
	}
	return "", false
}

func nearestOnLine(line []model.Element, anchor model.Element) (string, bool) {
	var best *model.Element
	bestDist := 0.0
	for i := range line {
		e := &line[i]
		d := e.X0 - anchor.X0
		if d < 0 {
			d = -d
		}
		if best == nil || d < bestDist {
			best = e
			bestDist = d
		}
	}
	if best == nil || best.Text == "" {
		return "", false
	}
	return best.Text, true
}

func applyRegex(docText string, p *template.RegexPattern) (string, bool) {
	re, err := regexp.Compile(p.Expr)
	if err != nil {
		return "", false
	}
	matches := re.FindAllString(docText, -1)
	if len(matches) == 0 || len(matches) > maxRegexMatches {
		return "", false
	}
	return matches[0], true
}

// lineTolerance is the Y-axis grouping tolerance used to rebuild lines
// for contextual matching. A fixed small constant is adequate since the
// parser's coordinate convention is opaque to the core (spec.md §9).
const lineTolerance = 2.0
