package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/divyang-garg/docxtract/internal/cache"
	"github.com/divyang-garg/docxtract/internal/llm"
	"github.com/divyang-garg/docxtract/internal/model"
	"github.com/divyang-garg/docxtract/internal/template"
)

func samplePDF() []byte { return []byte("%PDF-1.4\nfake pdf content for testing") }

func sampleSchema() model.Schema {
	return model.Schema{
		{Name: "nome", Description: "full name"},
		{Name: "inscricao", Description: "registration number"},
	}
}

type fakeParser struct {
	doc *model.ParsedDocument
	err error
}

func (f *fakeParser) Parse(ctx context.Context, pdfBytes []byte) (*model.ParsedDocument, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.doc != nil {
		return f.doc, nil
	}
	return &model.ParsedDocument{Elements: []model.Element{{Text: "João Silva"}}}, nil
}

type fakeLLM struct {
	calls int64
	data  map[string]*string
	err   error
}

func (f *fakeLLM) Extract(ctx context.Context, doc *model.ParsedDocument, schema model.Schema, constraints llm.Constraints) (map[string]*string, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]*string, len(schema))
	for _, fld := range schema {
		if v, ok := f.data[fld.Name]; ok {
			out[fld.Name] = v
		} else {
			s := "value-" + fld.Name
			out[fld.Name] = &s
		}
	}
	return out, nil
}

type fakeTemplateStore struct {
	mu        sync.Mutex
	byLabel   map[string][]*template.Template
	upsertErr error
}

func newFakeTemplateStore() *fakeTemplateStore {
	return &fakeTemplateStore{byLabel: map[string][]*template.Template{}}
}

func (s *fakeTemplateStore) List(ctx context.Context, label string) ([]*template.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*template.Template(nil), s.byLabel[label]...), nil
}

func (s *fakeTemplateStore) Upsert(ctx context.Context, label string, tmpl *template.Template) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.byLabel[label] {
		if existing == tmpl {
			s.byLabel[label][i] = tmpl
			return nil
		}
	}
	s.byLabel[label] = append(s.byLabel[label], tmpl)
	return nil
}

func newTestCache(t *testing.T) *cache.Cache {
	l2, err := cache.OpenL2(t.TempDir(), 1024, nil)
	require.NoError(t, err)
	t.Cleanup(func() { l2.Close() })
	return cache.New(100, l2, nil, nil)
}

func TestExtract_RejectsNonPDFBytes(t *testing.T) {
	p := New(newTestCache(t), newFakeTemplateStore(), &fakeParser{}, &fakeLLM{}, nil, nil, nil)
	result := p.Extract(context.Background(), model.ExtractionRequest{PDFBytes: []byte("not a pdf"), Label: "oab", Schema: sampleSchema()})

	require.False(t, result.Success)
	require.Equal(t, model.MethodError, result.Metadata.Method)
}

func TestExtract_RejectsEmptySchema(t *testing.T) {
	p := New(newTestCache(t), newFakeTemplateStore(), &fakeParser{}, &fakeLLM{}, nil, nil, nil)
	result := p.Extract(context.Background(), model.ExtractionRequest{PDFBytes: samplePDF(), Label: "oab", Schema: nil})

	require.False(t, result.Success)
}

func TestExtract_ColdRequestUsesLLMThenWarmsToCache(t *testing.T) {
	fl := &fakeLLM{}
	p := New(newTestCache(t), newFakeTemplateStore(), &fakeParser{}, fl, nil, nil, nil)
	req := model.ExtractionRequest{PDFBytes: samplePDF(), Label: "oab", Schema: sampleSchema()}

	first := p.Extract(context.Background(), req)
	require.True(t, first.Success)
	require.Equal(t, model.MethodLLM, first.Metadata.Method)
	require.Equal(t, int64(1), atomic.LoadInt64(&fl.calls))

	second := p.Extract(context.Background(), req)
	require.True(t, second.Success)
	require.Equal(t, model.MethodCacheL1, second.Metadata.Method)
	require.Equal(t, first.Data, second.Data)
	require.Equal(t, int64(1), atomic.LoadInt64(&fl.calls), "cache hit must not call the LLM again")
}

func TestExtract_ConcurrentIdenticalRequestsCallLLMOnce(t *testing.T) {
	fl := &fakeLLM{}
	p := New(newTestCache(t), newFakeTemplateStore(), &fakeParser{}, fl, nil, nil, nil)
	req := model.ExtractionRequest{PDFBytes: samplePDF(), Label: "oab", Schema: sampleSchema()}

	const n = 10
	results := make([]*model.ExtractionResult, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = p.Extract(context.Background(), req)
		}(i)
	}
	wg.Wait()

	require.Equal(t, int64(1), atomic.LoadInt64(&fl.calls), "singleflight must coalesce concurrent identical requests")
	for _, r := range results {
		require.True(t, r.Success)
		require.Equal(t, results[0].Data, r.Data)
	}
}

func TestExtract_ParseFailureReturnsErrorMethod(t *testing.T) {
	p := New(newTestCache(t), newFakeTemplateStore(), &fakeParser{err: assertErr("boom")}, &fakeLLM{}, nil, nil, nil)
	result := p.Extract(context.Background(), model.ExtractionRequest{PDFBytes: samplePDF(), Label: "oab", Schema: sampleSchema()})

	require.False(t, result.Success)
	require.Equal(t, model.MethodError, result.Metadata.Method)
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
