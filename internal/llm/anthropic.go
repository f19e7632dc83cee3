package llm

import (
	"context"
	"encoding/json"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 8192

// AnthropicClient calls the Messages API and expects a JSON answer.
type AnthropicClient struct {
	client anthropic.Client
	model  string
}

func NewAnthropicClient(apiKey, baseURL, model string) *AnthropicClient {
	opts := []aoption.RequestOption{aoption.WithAPIKey(strings.TrimSpace(apiKey))}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, aoption.WithBaseURL(strings.TrimSpace(baseURL)))
	}
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...), model: model}
}

func (c *AnthropicClient) Name() string { return "Anthropic:" + c.model }
func (c *AnthropicClient) Close() error { return nil }

func (c *AnthropicClient) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	full, err := buildPrompt(prompt, input)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		System:    []anthropic.TextBlockParam{{Text: "Respond with a single JSON object only."}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(full))},
	})
	if err != nil {
		return nil, err
	}
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return extractJSON(b.String())
}
