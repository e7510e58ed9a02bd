package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/divyang-garg/docxtract/internal/model"
)

// OpenAIClient implements Client against the OpenAI chat completions
// API, adapted from ChiaYuChang-weathercock's internal/llm/openai
// provider (same openai.NewClient(option...) construction and
// Chat.Completions.New call), narrowed to this package's single
// Extract method instead of that provider's generic Generate/Embed
// surface.
type OpenAIClient struct {
	cli   openai.Client
	model string
}

// NewOpenAIClient builds an OpenAI-backed Client.
func NewOpenAIClient(apiKey, modelName string, timeout time.Duration) *OpenAIClient {
	if modelName == "" {
		modelName = openai.ChatModelGPT4oMini
	}
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &OpenAIClient{
		cli:   openai.NewClient(opts...),
		model: modelName,
	}
}

// Extract implements Client.
func (c *OpenAIClient) Extract(ctx context.Context, doc *model.ParsedDocument, schema model.Schema, constraints Constraints) (map[string]*string, error) {
	prompt := buildPrompt(doc, schema, constraints)

	resp, err := c.cli.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("llm: openai request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices returned", ErrMalformed)
	}

	return parseResponse(resp.Choices[0].Message.Content, schema)
}
