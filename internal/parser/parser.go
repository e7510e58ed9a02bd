// Package parser is the external PDF-to-ParsedDocument contract
// (spec.md §4.1, §6): read raw PDF bytes, recover each page's text runs
// with their bounding boxes, and group them into model.Element values.
// It keeps the teacher's pdfParser (internal/extraction/document_parser.go),
// which used github.com/ledongthuc/pdf only for GetPlainText, but switches
// to the library's Content() API so callers get per-run bounding boxes
// instead of one flattened string, since positional pattern matching
// (internal/fieldextract) requires them.
package parser

import (
	"bytes"
	"context"
	"fmt"

	pdf "github.com/ledongthuc/pdf"

	"github.com/divyang-garg/docxtract/internal/model"
)

// Parser is the narrow contract the pipeline orchestrator depends on.
// Parse must honor ctx cancellation/deadline (spec.md §5: "parser <= 30s
// ... a timeout is a retryable failure ... must not swallow it
// silently").
type Parser interface {
	Parse(ctx context.Context, pdfBytes []byte) (*model.ParsedDocument, error)
}

// PDFParser implements Parser via github.com/ledongthuc/pdf.
type PDFParser struct{}

// New builds a PDFParser.
func New() *PDFParser { return &PDFParser{} }

// Parse reads pdfBytes and returns one model.Element per text run on
// each page, with a bounding box derived from the run's origin, width
// and font size (spec.md §3: "parser's own coordinate convention").
// ledongthuc/pdf has no context-aware API, so ctx is checked once per
// page, which is where this parser spends its time on multi-page
// documents.
func (p *PDFParser) Parse(ctx context.Context, pdfBytes []byte) (*model.ParsedDocument, error) {
	reader, err := pdf.NewReader(bytes.NewReader(pdfBytes), int64(len(pdfBytes)))
	if err != nil {
		return nil, fmt.Errorf("parser: open pdf: %w", err)
	}

	numPages := reader.NumPage()
	doc := &model.ParsedDocument{NumPages: numPages}

	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("parser: %w", err)
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content := page.Content()
		doc.Elements = append(doc.Elements, textRunsToElements(i-1, content.Text)...)
	}

	return doc, nil
}

// textRunsToElements converts one page's raw text runs into Elements,
// isolated from the pdf library's types so it can be unit tested
// without a real PDF file.
func textRunsToElements(page int, runs []pdf.Text) []model.Element {
	elements := make([]model.Element, 0, len(runs))
	for _, r := range runs {
		if r.S == "" {
			continue
		}
		elements = append(elements, model.Element{
			Text: r.S,
			Page: page,
			X0:   r.X,
			Y0:   r.Y,
			X1:   r.X + r.W,
			Y1:   r.Y + r.FontSize,
			Kind: model.KindParagraph,
		})
	}
	return elements
}
