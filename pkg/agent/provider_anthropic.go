package agent

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements LLMProvider for Anthropic Claude
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(apiKey string, opts ...option.RequestOption) *AnthropicProvider {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
	}
}

// Provider returns the provider name
func (p *AnthropicProvider) Provider() string {
	return "anthropic"
}

// Call makes an API call to Anthropic Claude
func (p *AnthropicProvider) Call(ctx context.Context, request LLMRequest) (*LLMResponse, error) {
	messages := make([]anthropic.MessageParam, 0, len(request.Messages))
	for _, msg := range request.Messages {
		switch msg.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			return nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if request.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: request.SystemPrompt},
		}
	}

	if request.Temperature > 0 {
		params.Temperature = anthropic.Float(request.Temperature)
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	content := ""
	for _, block := range response.Content {
		if b, ok := block.AsAny().(anthropic.TextBlock); ok {
			content += b.Text
		}
	}

	return &LLMResponse{
		Content: content,
		Usage: &TokenUsage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}
