package anthropic

import (
	"context"
	"fmt"
	"strings"

	"zero-entropy-be/pkg/llm"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const defaultMaxTokens = 1024

// Provider calls the Messages API. System messages are lifted into the
// request's system field since the API has no system role.
type Provider struct {
	client      anthropic.Client
	model       string
	temperature float64
}

var _ llm.LLMProvider = (*Provider)(nil)

func NewProvider(apiKey, baseURL, model string, temperature float64) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Provider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		temperature: temperature,
	}
}

func (p *Provider) Chat(ctx context.Context, history []llm.Message, opts ...llm.Option) (string, error) {
	options := llm.Apply(llm.Options{Temperature: p.temperature, Model: p.model, MaxTokens: defaultMaxTokens}, opts...)
	if options.MaxTokens <= 0 {
		options.MaxTokens = defaultMaxTokens
	}

	system, rest := llm.SplitSystem(history)

	messages := make([]anthropic.MessageParam, 0, len(rest))
	for _, m := range rest {
		if m.Role == "assistant" || m.Role == "model" {
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(options.Model),
		MaxTokens:   int64(options.MaxTokens),
		Messages:    messages,
		Temperature: anthropic.Float(options.Temperature),
	}
	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic chat failed: %w", err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		b.WriteString(block.Text)
	}
	if strings.TrimSpace(b.String()) == "" {
		return "", llm.ErrEmptyResponse
	}
	return b.String(), nil
}

func (p *Provider) Generate(ctx context.Context, prompt string, opts ...llm.Option) (string, error) {
	return p.Chat(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}
