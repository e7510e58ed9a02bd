package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/divyang-garg/docxtract/internal/model"
)

// OllamaClient implements Client against a local Ollama server's
// /api/generate endpoint, adapted from the teacher's OllamaClient
// (internal/extraction/llm_client.go): same request shape (model,
// prompt, stream=false, temperature/num_predict options), same
// response decoding, generalised to build its prompt from buildPrompt
// and parse the result with parseResponse instead of returning raw text.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaClient builds an Ollama-backed Client. baseURL and model
// default to the teacher's own OLLAMA_HOST/OLLAMA_MODEL values
// (http://localhost:11434, llama3.2) when empty.
func NewOllamaClient(baseURL, modelName string, timeout time.Duration) *OllamaClient {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if modelName == "" {
		modelName = "llama3.2"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &OllamaClient{
		baseURL:    baseURL,
		model:      modelName,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Extract implements Client.
func (c *OllamaClient) Extract(ctx context.Context, doc *model.ParsedDocument, schema model.Schema, constraints Constraints) (map[string]*string, error) {
	prompt := buildPrompt(doc, schema, constraints)

	reqBody := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.2,
			"num_predict": 4096,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal ollama request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build ollama request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("llm: ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("llm: ollama returned status %d", resp.StatusCode)
	}

	var result ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("llm: decode ollama response: %w", err)
	}

	return parseResponse(result.Response, schema)
}
