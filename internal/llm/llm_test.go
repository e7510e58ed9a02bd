package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/divyang-garg/docxtract/internal/model"
)

func testSchema() model.Schema {
	return model.Schema{
		{Name: "nome", Description: "full name"},
		{Name: "cpf", Description: "CPF document number"},
	}
}

func TestBuildPrompt_DefaultsLanguageHintAndListsFields(t *testing.T) {
	doc := &model.ParsedDocument{Elements: []model.Element{{Text: "hello"}}}
	prompt := buildPrompt(doc, testSchema(), Constraints{})

	require.Contains(t, prompt, DefaultLanguageHint)
	require.Contains(t, prompt, `"nome"`)
	require.Contains(t, prompt, `"cpf"`)
	require.Contains(t, prompt, "hello")
}

func TestBuildPrompt_HonoursExplicitLanguageHint(t *testing.T) {
	doc := &model.ParsedDocument{}
	prompt := buildPrompt(doc, testSchema(), Constraints{LanguageHint: "en-US"})
	require.Contains(t, prompt, "en-US")
}

func TestParseResponse_ParsesPlainJSON(t *testing.T) {
	out, err := parseResponse(`{"nome": "João", "cpf": null}`, testSchema())
	require.NoError(t, err)
	require.NotNil(t, out["nome"])
	require.Equal(t, "João", *out["nome"])
	require.Nil(t, out["cpf"])
}

func TestParseResponse_StripsMarkdownCodeFence(t *testing.T) {
	raw := "```json\n{\"nome\": \"Maria\", \"cpf\": \"123\"}\n```"
	out, err := parseResponse(raw, testSchema())
	require.NoError(t, err)
	require.Equal(t, "Maria", *out["nome"])
	require.Equal(t, "123", *out["cpf"])
}

func TestParseResponse_MalformedJSONIsErrMalformed(t *testing.T) {
	_, err := parseResponse("not json at all", testSchema())
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrMalformed))
}

func TestParseResponse_MissingKeyTreatedAsNull(t *testing.T) {
	out, err := parseResponse(`{"nome": "Maria"}`, testSchema())
	require.NoError(t, err)
	require.Nil(t, out["cpf"])
}

type fakeClient struct {
	calls   int
	failN   int
	failErr error
}

func (f *fakeClient) Extract(ctx context.Context, doc *model.ParsedDocument, schema model.Schema, constraints Constraints) (map[string]*string, error) {
	f.calls++
	if f.calls <= f.failN {
		return nil, f.failErr
	}
	s := "ok"
	return map[string]*string{"nome": &s}, nil
}

func TestRetryingClient_SucceedsWithoutRetryWhenFirstCallOK(t *testing.T) {
	fc := &fakeClient{}
	rc := NewRetryingClient(fc, nil)
	out, err := rc.Extract(context.Background(), &model.ParsedDocument{}, testSchema(), Constraints{})
	require.NoError(t, err)
	require.Equal(t, "ok", *out["nome"])
	require.Equal(t, 1, fc.calls)
}

func TestRetryingClient_RetriesOnceAfterFailure(t *testing.T) {
	fc := &fakeClient{failN: 1, failErr: errors.New("transient")}
	rc := NewRetryingClient(fc, nil)
	rc.backoff = time.Millisecond

	out, err := rc.Extract(context.Background(), &model.ParsedDocument{}, testSchema(), Constraints{})
	require.NoError(t, err)
	require.Equal(t, "ok", *out["nome"])
	require.Equal(t, 2, fc.calls)
}

func TestRetryingClient_FailsAfterSingleRetryExhausted(t *testing.T) {
	fc := &fakeClient{failN: 2, failErr: errors.New("still failing")}
	rc := NewRetryingClient(fc, nil)
	rc.backoff = time.Millisecond

	_, err := rc.Extract(context.Background(), &model.ParsedDocument{}, testSchema(), Constraints{})
	require.Error(t, err)
	require.Equal(t, 2, fc.calls, "only one retry, not unbounded")
}

func TestCircuitBreaker_OpensAfterThresholdFailures(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	failing := func() error { return errors.New("boom") }

	require.Error(t, cb.Call(failing))
	require.Error(t, cb.Call(failing))
	require.True(t, cb.IsOpen())

	err := cb.Call(func() error { return nil })
	require.ErrorIs(t, err, ErrOpen{})
}

func TestCircuitBreaker_ResetsAfterTimeout(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Millisecond)
	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	require.True(t, cb.IsOpen())

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, cb.Call(func() error { return nil }))
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker(2, time.Minute)
	require.Error(t, cb.Call(func() error { return errors.New("boom") }))
	require.NoError(t, cb.Call(func() error { return nil }))
	require.False(t, cb.IsOpen())
}
