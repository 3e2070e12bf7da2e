package headless

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	oaioption "github.com/openai/openai-go/v3/option"
)

// AnthropicProvider drives a headless actor via the Claude API; ccccd uses
// it for runtime "anthropic" when the actor's runner is headless rather
// than pty.
type AnthropicProvider struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicProvider builds a provider from an API key; model defaults to
// Claude Sonnet when empty.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	if model == "" {
		model = string(anthropic.ModelClaudeSonnet4_5)
	}
	return &AnthropicProvider{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// Respond implements Provider.
func (p *AnthropicProvider) Respond(ctx context.Context, systemPrompt, input string) (string, error) {
	msg, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: 4096,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(input)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("headless: anthropic request: %w", err)
	}
	var out string
	for _, block := range msg.Content {
		if v, ok := block.AsAny().(anthropic.TextBlock); ok {
			out += v.Text
		}
	}
	return out, nil
}

// OpenAIProvider drives a headless actor via an OpenAI-compatible chat
// completions API; ccccd uses it for runtime "openai".
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// NewOpenAIProvider builds a provider from an API key; model defaults to
// gpt-4.1 when empty.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	if model == "" {
		model = openai.ChatModelGPT4_1
	}
	return &OpenAIProvider{
		client: openai.NewClient(oaioption.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Respond implements Provider.
func (p *OpenAIProvider) Respond(ctx context.Context, systemPrompt, input string) (string, error) {
	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: p.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(input),
		},
	})
	if err != nil {
		return "", fmt.Errorf("headless: openai request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("headless: openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
