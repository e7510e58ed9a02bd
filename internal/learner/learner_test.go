package learner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/divyang-garg/docxtract/internal/model"
	"github.com/divyang-garg/docxtract/internal/template"
)

func strPtr(s string) *string { return &s }

func TestLearn_FirstSampleSeedsConfidenceAtOne(t *testing.T) {
	doc := &model.ParsedDocument{Elements: []model.Element{
		{Text: "Nome:", Page: 0, X0: 0, Y0: 0, X1: 10, Y1: 5},
		{Text: "João Silva", Page: 0, X0: 11, Y0: 0, X1: 30, Y1: 5},
	}}
	llmResult := &model.ExtractionResult{
		Success: true,
		Data:    map[string]*string{"nome": strPtr("João Silva")},
	}

	tmpl := Learn("oab", doc, llmResult, nil)

	require.Equal(t, 1, tmpl.SampleCount)
	require.Equal(t, 1.0, tmpl.FieldConfidence["nome"])
	require.NotNil(t, tmpl.FieldPatterns["nome"].Positional)
}

func TestLearn_SecondSampleIncrementsSampleCount(t *testing.T) {
	doc := &model.ParsedDocument{Elements: []model.Element{
		{Text: "CPF: 111.444.777-35", Page: 0},
	}}
	llmResult := &model.ExtractionResult{
		Success: true,
		Data:    map[string]*string{"cpf": strPtr("111.444.777-35")},
	}

	first := Learn("oab", doc, llmResult, nil)
	second := Learn("oab", doc, llmResult, first)

	require.Equal(t, 2, second.SampleCount)
	require.Same(t, first, second, "same structural signature must update, not fork")
}

func TestLearn_MajorSignatureChangeCreatesSibling(t *testing.T) {
	docA := &model.ParsedDocument{Elements: []model.Element{
		{Text: "ordem dos advogados seccional numero nome inscricao", Page: 0},
	}}
	llmResult := &model.ExtractionResult{
		Success: true,
		Data:    map[string]*string{"nome": strPtr("João Silva")},
	}
	first := Learn("oab", docA, llmResult, nil)
	first.StructuralSignature.AnchorTokens = []string{"ordem", "advogados", "seccional", "numero", "inscricao"}

	docB := &model.ParsedDocument{Elements: []model.Element{
		{Text: "completely different unrelated vocabulary entirely distinct content here", Page: 0},
	}}
	second := Learn("oab", docB, llmResult, first)

	require.NotSame(t, first, second, "structural signature delta above threshold must fork a sibling")
	require.Equal(t, 1, second.SampleCount)
}

func TestLearn_InducesRegexFromValueShape(t *testing.T) {
	doc := &model.ParsedDocument{Elements: []model.Element{
		{Text: "valor unico sem correspondencia 123.456.789-00 resto do texto", Page: 0},
	}}
	llmResult := &model.ExtractionResult{
		Success: true,
		Data:    map[string]*string{"cpf": strPtr("123.456.789-00")},
	}

	tmpl := Learn("oab", doc, llmResult, nil)

	require.NotNil(t, tmpl.FieldPatterns["cpf"].Regex)
	require.Equal(t, `\d{3}\.\d{3}\.\d{3}-\d{2}`, tmpl.FieldPatterns["cpf"].Regex.Expr)
}

func TestInduceRegex_CompressesRunsByCharClass(t *testing.T) {
	p := induceRegex("AB12-34")
	require.NotNil(t, p)
	require.Equal(t, `\p{L}{2}\d{2}-\d{2}`, p.Expr)
}
