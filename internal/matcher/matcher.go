// Package matcher scores similarity between an incoming document and a
// stored template (spec.md §4.4). The weighted multi-factor shape
// mirrors the teacher's own confidence scorer
// (internal/extraction/scoring.go: a handful of sub-scores combined by
// fixed weights, capped to [0,1]).
package matcher

import (
	"regexp"
	"sort"
	"strings"

	"github.com/divyang-garg/docxtract/internal/model"
	"github.com/divyang-garg/docxtract/internal/template"
)

// Weights for the three sub-scores (spec.md §4.4).
const (
	weightStructural = 0.7
	weightTokens     = 0.2
	weightCharacters = 0.1

	// maxTokenSample bounds the per-side token multiset comparison.
	maxTokenSample = 200

	// charSampleBytes bounds the LCS comparison to the leading slice of
	// each normalised text.
	charSampleBytes = 2048
)

var tokenRE = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Match is the best-scoring template for a label, or a zero value when
// no template clears the application gate.
type Match struct {
	Template *template.Template
	Score    float64
}

// Best returns the highest-scoring template among candidates that
// clears S >= similarityThreshold and sample_count >= minSamples (both
// configuration-governed, spec.md §6 "template.similarity_threshold",
// "template.min_samples"). ok is false when no candidate clears the
// gate (spec.md §4.4 "returns None").
func Best(doc *model.ParsedDocument, candidates []*template.Template, similarityThreshold float64, minSamples int) (Match, bool) {
	docText := strings.ToLower(doc.Text())
	docTokens := tokenize(docText)
	docAnchors := anchorSet(docTokens)

	var best Match
	found := false

	for _, t := range candidates {
		score := Score(t, docText, docTokens, docAnchors)
		if score >= similarityThreshold && t.SampleCount >= minSamples {
			if !found || score > best.Score {
				best = Match{Template: t, Score: score}
				found = true
			}
		}
	}
	return best, found
}

// Score computes S = 0.7*S_structural + 0.2*S_tokens + 0.1*S_characters
// for a single template against a document's normalised text/tokens.
func Score(t *template.Template, docText string, docTokens []string, docAnchors map[string]struct{}) float64 {
	structural := jaccardSets(t.StructuralSignature.Set(), docAnchors)
	tokens := jaccardMultisetTop(topTokens(t.StructuralSignature.AnchorTokens, maxTokenSample), topTokens(docTokens, maxTokenSample))
	characters := lcsRatio(truncate(strings.ToLower(strings.Join(t.StructuralSignature.AnchorTokens, " ")), charSampleBytes), truncate(docText, charSampleBytes))

	score := weightStructural*structural + weightTokens*tokens + weightCharacters*characters
	if score > 1 {
		score = 1
	}
	return score
}

func tokenize(text string) []string {
	raw := tokenRE.FindAllString(text, -1)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		if isStopword(tok) {
			continue
		}
		out = append(out, tok)
	}
	return out
}

func anchorSet(tokens []string) map[string]struct{} {
	out := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		out[t] = struct{}{}
	}
	return out
}

func jaccardSets(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for k := range a {
		if _, ok := b[k]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// topTokens returns the top-N most frequent tokens as a multiset
// (represented as a frequency map) per spec.md §4.4 "capped to the top
// 200 most frequent on each side".
func topTokens(tokens []string, n int) map[string]int {
	freq := make(map[string]int)
	for _, t := range tokens {
		if isStopword(t) {
			continue
		}
		freq[t]++
	}
	if len(freq) <= n {
		return freq
	}

	type kv struct {
		k string
		v int
	}
	all := make([]kv, 0, len(freq))
	for k, v := range freq {
		all = append(all, kv{k, v})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].v != all[j].v {
			return all[i].v > all[j].v
		}
		return all[i].k < all[j].k
	})

	out := make(map[string]int, n)
	for _, e := range all[:n] {
		out[e.k] = e.v
	}
	return out
}

func jaccardMultisetTop(a, b map[string]int) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var intersection, union int
	seen := make(map[string]struct{}, len(a)+len(b))
	for k, av := range a {
		bv := b[k]
		if av < bv {
			intersection += av
		} else {
			intersection += bv
		}
		if av > bv {
			union += av
		} else {
			union += bv
		}
		seen[k] = struct{}{}
	}
	for k, bv := range b {
		if _, ok := seen[k]; ok {
			continue
		}
		union += bv
	}
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// lcsRatio returns the longest-common-subsequence length of a and b as
// a fraction of the longer string's length.
func lcsRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	n, m := len(ra), len(rb)

	prev := make([]int, m+1)
	curr := make([]int, m+1)
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if ra[i-1] == rb[j-1] {
				curr[j] = prev[j-1] + 1
			} else if prev[j] >= curr[j-1] {
				curr[j] = prev[j]
			} else {
				curr[j] = curr[j-1]
			}
		}
		prev, curr = curr, prev
	}

	longest := n
	if m > longest {
		longest = m
	}
	return float64(prev[m]) / float64(longest)
}
