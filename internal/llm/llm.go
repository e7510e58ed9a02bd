// Package llm is the external LLM contract (spec.md §6): two providers
// (Ollama, OpenAI) behind one interface, both producing a
// JSON-schema-constrained field extraction from a document's text and a
// caller-supplied schema.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/divyang-garg/docxtract/internal/model"
)

// Constraints narrows an LLM call with a language-region hint (spec.md
// §6, default Brazilian Portuguese). The reduced schema for hybrid calls
// is passed as the schema argument of Client.Extract, not here.
type Constraints struct {
	LanguageHint string
}

// DefaultLanguageHint matches spec.md §6's stated default.
const DefaultLanguageHint = "pt-BR"

// Client is the narrow contract the pipeline orchestrator calls
// against (spec.md §6 "llm_extract(elements, schema, constraints) ->
// mapping"). A malformed response is a retryable error (ErrMalformed).
type Client interface {
	Extract(ctx context.Context, doc *model.ParsedDocument, schema model.Schema, constraints Constraints) (map[string]*string, error)
}

// ErrMalformed marks a provider response that failed to parse as the
// requested JSON object (spec.md §6: "a malformed response is a
// retryable error").
var ErrMalformed = fmt.Errorf("llm: malformed response")

// buildPrompt renders the shared instruction the orchestrator sends to
// either provider: the document's text, the field schema, and a strict
// JSON-only output instruction.
func buildPrompt(doc *model.ParsedDocument, schema model.Schema, constraints Constraints) string {
	hint := constraints.LanguageHint
	if hint == "" {
		hint = DefaultLanguageHint
	}

	var fields strings.Builder
	for _, f := range schema {
		fmt.Fprintf(&fields, "- %q: %s\n", f.Name, f.Description)
	}

	return fmt.Sprintf(`You extract structured fields from a document. Language/region: %s.

Document text:
%s

Extract exactly these fields and return ONLY a JSON object with these keys
(use null for any field you cannot find):
%s`, hint, doc.Text(), fields.String())
}

// parseResponse decodes a provider's raw text as a JSON object keyed by
// schema field names, tolerating a response wrapped in markdown code
// fences (a common provider quirk).
func parseResponse(raw string, schema model.Schema) (map[string]*string, error) {
	raw = stripCodeFence(raw)

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	out := make(map[string]*string, len(schema))
	for _, f := range schema {
		v, ok := parsed[f.Name]
		if !ok || v == nil {
			out[f.Name] = nil
			continue
		}
		s := fmt.Sprintf("%v", v)
		out[f.Name] = &s
	}
	return out, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
