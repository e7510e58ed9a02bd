// Package pipeline is the decision engine sequencing cache lookup,
// template matching, hybrid/full LLM extraction and learning (spec.md
// §4.7). It grounds its call-chain shape on the teacher's
// KnowledgeExtractor.Extract (internal/extraction/extractor.go): a
// single Extract entry point delegating to named helper stages, a
// cache check before any expensive work, and a logged-but-swallowed
// fallback path instead of failing the whole request.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/divyang-garg/docxtract/internal/cache"
	"github.com/divyang-garg/docxtract/internal/config"
	"github.com/divyang-garg/docxtract/internal/docerrors"
	"github.com/divyang-garg/docxtract/internal/fieldextract"
	"github.com/divyang-garg/docxtract/internal/fingerprint"
	"github.com/divyang-garg/docxtract/internal/learner"
	"github.com/divyang-garg/docxtract/internal/llm"
	"github.com/divyang-garg/docxtract/internal/logging"
	"github.com/divyang-garg/docxtract/internal/matcher"
	"github.com/divyang-garg/docxtract/internal/metrics"
	"github.com/divyang-garg/docxtract/internal/model"
	"github.com/divyang-garg/docxtract/internal/parser"
	"github.com/divyang-garg/docxtract/internal/template"
)

// TemplateStore is the subset of *template.Store the pipeline needs,
// narrowed so tests can supply an in-memory fake.
type TemplateStore interface {
	List(ctx context.Context, label string) ([]*template.Template, error)
	Upsert(ctx context.Context, label string, tmpl *template.Template) error
}

// Pipeline wires every component named in spec.md §4.7 behind one
// Extract method, with an inflight-singleflight map guaranteeing
// at-most-one LLM-reaching execution per fingerprint under concurrency
// (spec.md §4.7's closing guarantee, §8 property 4, §9 "classic
// singleflight").
type Pipeline struct {
	cache     *cache.Cache
	templates TemplateStore
	parser    parser.Parser
	llmClient llm.Client
	log       logging.Logger
	met       *metrics.Registry

	matchThreshold      float64
	minSamples          int
	confidenceThreshold float64
	parserTimeout       time.Duration

	inflight *singleflightGroup
}

// defaultParserTimeout bounds parser.Parse when cfg is nil or leaves
// Parser.TimeoutS unset (spec.md §5 "parser <= 30 s").
const defaultParserTimeout = 30 * time.Second

// New builds a Pipeline. cfg supplies the configuration-governed
// matcher/template gates and parser timeout (spec.md §6
// "template.similarity_threshold", "template.min_samples",
// "template.confidence_threshold", parser.timeout_s); a nil cfg or a
// zero-valued field falls back to the package defaults. met/log may be
// nil.
func New(c *cache.Cache, templates TemplateStore, p parser.Parser, llmClient llm.Client, cfg *config.Config, met *metrics.Registry, log logging.Logger) *Pipeline {
	if log == nil {
		log = logging.Nop()
	}
	if met == nil {
		met = metrics.Noop()
	}

	matchThreshold := template.DefaultSimilarityThreshold
	minSamples := template.DefaultMinSamples
	confidenceThreshold := template.DefaultConfidenceThreshold
	parserTimeout := defaultParserTimeout
	if cfg != nil {
		if cfg.Template.SimilarityThreshold > 0 {
			matchThreshold = cfg.Template.SimilarityThreshold
		}
		if cfg.Template.MinSamples > 0 {
			minSamples = cfg.Template.MinSamples
		}
		if cfg.Template.ConfidenceThreshold > 0 {
			confidenceThreshold = cfg.Template.ConfidenceThreshold
		}
		if cfg.Parser.TimeoutS > 0 {
			parserTimeout = cfg.Parser.Timeout()
		}
	}

	return &Pipeline{
		cache:               c,
		templates:           templates,
		parser:              p,
		llmClient:           llmClient,
		log:                 log,
		met:                 met,
		matchThreshold:      matchThreshold,
		minSamples:          minSamples,
		confidenceThreshold: confidenceThreshold,
		parserTimeout:       parserTimeout,
		inflight:            newSingleflightGroup(),
	}
}

// Extract runs the full decision engine for one request (spec.md §4.7).
func (p *Pipeline) Extract(ctx context.Context, req model.ExtractionRequest) *model.ExtractionResult {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return errorResult(err, "", start)
	}

	key := fingerprint.Compute(req.PDFBytes, req.Label, req.Schema)

	if result, method, ok := p.cache.Get(key); ok {
		result = cloneResult(result)
		result.Metadata.Method = method
		result.Metadata.TimeSeconds = time.Since(start).Seconds()
		return result
	}

	result, coalesced := p.inflight.do(key, func() *model.ExtractionResult {
		return p.resolve(ctx, req, key, start)
	})

	if coalesced {
		result = cloneResult(result)
		result.Metadata.Method = model.MethodCoalesced
	}
	result.Metadata.TimeSeconds = time.Since(start).Seconds()

	p.met.ExtractionTotal.WithLabelValues(req.Label, string(result.Metadata.Method)).Inc()
	p.met.ExtractionSecs.WithLabelValues(req.Label, string(result.Metadata.Method)).Observe(result.Metadata.TimeSeconds)

	return result
}

// resolve executes steps 2-7 of spec.md §4.7 for a fingerprint with no
// prior cache entry; only one caller per key ever reaches this via the
// singleflight group.
func (p *Pipeline) resolve(ctx context.Context, req model.ExtractionRequest, key fingerprint.Key, start time.Time) *model.ExtractionResult {
	parseCtx, cancel := context.WithTimeout(ctx, p.parserTimeout)
	defer cancel()

	doc, err := p.parser.Parse(parseCtx, req.PDFBytes)
	if err != nil {
		return errorResult(docerrors.Wrap(docerrors.KindParse, "pipeline.Extract", "parse failed", err), "", start)
	}

	tmpl, similarity := p.bestTemplate(ctx, req.Label, doc)

	var result *model.ExtractionResult
	if tmpl != nil {
		result = p.extractWithTemplate(ctx, req, doc, tmpl, similarity)
	} else {
		result = p.fullLLM(ctx, req, doc)
	}

	p.cache.Put(key, result)
	return result
}

// bestTemplate queries the template store and runs the matcher
// (spec.md §4.7 step 3).
func (p *Pipeline) bestTemplate(ctx context.Context, label string, doc *model.ParsedDocument) (*template.Template, float64) {
	candidates, err := p.templates.List(ctx, label)
	if err != nil || len(candidates) == 0 {
		return nil, 0
	}
	match, ok := matcher.Best(doc, candidates, p.matchThreshold, p.minSamples)
	if !ok {
		return nil, 0
	}
	return match.Template, match.Score
}

// extractWithTemplate runs the field extractor and splits fields into
// template-confident vs. missing, issuing a reduced-schema LLM call for
// the latter when needed (spec.md §4.7 step 4).
func (p *Pipeline) extractWithTemplate(ctx context.Context, req model.ExtractionRequest, doc *model.ParsedDocument, tmpl *template.Template, similarity float64) *model.ExtractionResult {
	extracted := fieldextract.Extract(doc, tmpl, req.Schema)

	missing := map[string]bool{}
	templateFieldCount := 0
	for _, f := range req.Schema {
		filled := extracted.FieldsFilled[f.Name]
		confident := tmpl.FieldConfidence[f.Name] >= p.confidenceThreshold
		if filled && confident {
			templateFieldCount++
			continue
		}
		missing[f.Name] = true
	}

	if len(missing) == 0 {
		return &model.ExtractionResult{
			Success: true,
			Data:    extracted.Data,
			Metadata: model.Metadata{
				Method:         model.MethodTemplate,
				Similarity:     similarity,
				TemplateFields: templateFieldCount,
			},
		}
	}

	reduced := req.Schema.Subset(missing)
	llmData, err := p.callLLM(ctx, doc, reduced)
	if err != nil {
		p.log.Warn("hybrid LLM call failed, returning template-only partial result", "label", req.Label, "error", err.Error())
		if templateFieldCount == 0 {
			return p.fullLLM(ctx, req, doc)
		}
		return &model.ExtractionResult{
			Success: true,
			Data:    extracted.Data,
			Metadata: model.Metadata{
				Method:         model.MethodTemplate,
				Similarity:     similarity,
				TemplateFields: templateFieldCount,
				Warning:        "hybrid LLM call failed: " + err.Error(),
				LastAttempted:  model.MethodHybrid,
			},
		}
	}

	for name, v := range llmData {
		extracted.Data[name] = v
	}

	p.learnAndStore(req.Label, doc, &model.ExtractionResult{Success: true, Data: llmData}, tmpl)

	return &model.ExtractionResult{
		Success: true,
		Data:    extracted.Data,
		Metadata: model.Metadata{
			Method:         model.MethodHybrid,
			Similarity:     similarity,
			TemplateFields: templateFieldCount,
			LLMFields:      len(missing),
		},
	}
}

// fullLLM calls the LLM with the complete schema, learns from a
// successful result, and returns method=llm (spec.md §4.7 steps 5-6).
func (p *Pipeline) fullLLM(ctx context.Context, req model.ExtractionRequest, doc *model.ParsedDocument) *model.ExtractionResult {
	data, err := p.callLLM(ctx, doc, req.Schema)
	if err != nil {
		return errorResult(docerrors.Wrap(docerrors.KindLLM, "pipeline.fullLLM", "llm call failed", err), model.MethodLLM, time.Now())
	}

	existing, _ := p.bestTemplateForLearning(ctx, req.Label, doc)
	p.learnAndStore(req.Label, doc, &model.ExtractionResult{Success: true, Data: data}, existing)

	return &model.ExtractionResult{
		Success: true,
		Data:    data,
		Metadata: model.Metadata{
			Method:    model.MethodLLM,
			LLMFields: len(req.Schema),
		},
	}
}

// bestTemplateForLearning picks the template the learner should update
// (the best-scoring match for the label regardless of the application
// gate, so near-misses still refine rather than always forking).
func (p *Pipeline) bestTemplateForLearning(ctx context.Context, label string, doc *model.ParsedDocument) (*template.Template, bool) {
	candidates, err := p.templates.List(ctx, label)
	if err != nil || len(candidates) == 0 {
		return nil, false
	}
	match, ok := matcher.Best(doc, candidates, 0, 0)
	if !ok {
		return nil, false
	}
	return match.Template, true
}

// learnAndStore invokes the pattern learner and persists the result,
// serialised per label by template.Store's own per-label write mutex
// (spec.md §4.7 step 6, §5 "learning writes... totally ordered").
func (p *Pipeline) learnAndStore(label string, doc *model.ParsedDocument, llmResult *model.ExtractionResult, existing *template.Template) {
	updated := learner.Learn(label, doc, llmResult, existing)
	if err := p.templates.Upsert(context.Background(), label, updated); err != nil {
		p.log.Warn("template upsert failed", "label", label, "error", err.Error())
	}
}

// callLLM wraps the configured client with the narrow signature this
// package needs (spec.md §6 llm_extract), defaulting constraints'
// language hint.
func (p *Pipeline) callLLM(ctx context.Context, doc *model.ParsedDocument, schema model.Schema) (map[string]*string, error) {
	data, err := p.llmClient.Extract(ctx, doc, schema, llm.Constraints{})
	if err != nil {
		p.met.LLMCallsTotal.WithLabelValues("configured", "error").Inc()
		return nil, err
	}
	p.met.LLMCallsTotal.WithLabelValues("configured", "success").Inc()
	return data, nil
}

// structValidator checks ExtractionRequest's struct tags (non-empty
// label, at least four PDF bytes, at least one schema field with a
// non-empty name) instead of a hand-rolled if chain.
var structValidator = validator.New()

// validateRequest layers the checks struct tags cannot express (PDF
// magic bytes, schema field-name uniqueness) on top of structValidator.
func validateRequest(req model.ExtractionRequest) error {
	if err := structValidator.Struct(req); err != nil {
		return docerrors.Wrap(docerrors.KindValidation, "pipeline.Extract", "request failed validation", err)
	}
	if string(req.PDFBytes[:4]) != "%PDF" {
		return docerrors.New(docerrors.KindValidation, "pipeline.Extract", "pdf_bytes does not look like a PDF")
	}
	seen := make(map[string]bool, len(req.Schema))
	for _, f := range req.Schema {
		if seen[f.Name] {
			return docerrors.New(docerrors.KindValidation, "pipeline.Extract", fmt.Sprintf("duplicate schema field %q", f.Name))
		}
		seen[f.Name] = true
	}
	return nil
}

func errorResult(err error, lastAttempted model.Method, start time.Time) *model.ExtractionResult {
	return &model.ExtractionResult{
		Success: false,
		Data:    map[string]*string{},
		Error:   err.Error(),
		Metadata: model.Metadata{
			Method:        model.MethodError,
			LastAttempted: lastAttempted,
			TimeSeconds:   time.Since(start).Seconds(),
		},
	}
}

func cloneResult(r *model.ExtractionResult) *model.ExtractionResult {
	clone := *r
	clone.Data = make(map[string]*string, len(r.Data))
	for k, v := range r.Data {
		clone.Data[k] = v
	}
	return &clone
}
