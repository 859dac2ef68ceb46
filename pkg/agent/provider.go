package agent

import (
	"context"
	"fmt"
)

// LLMProvider is an interface for LLM API providers
type LLMProvider interface {
	// Call makes an LLM API call
	Call(ctx context.Context, request LLMRequest) (*LLMResponse, error)

	// Provider returns the provider name
	Provider() string
}

// ChatMessage is one turn of the conversation sent to a provider
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// LLMRequest contains the request parameters for LLM call
type LLMRequest struct {
	Model        string
	Messages     []ChatMessage
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
}

// LLMResponse contains the response from LLM
type LLMResponse struct {
	Content string
	Usage   *TokenUsage
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewProvider creates a new LLM provider by name
func NewProvider(name, apiKey string) (LLMProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required for provider %s", name)
	}

	switch name {
	case "anthropic":
		return NewAnthropicProvider(apiKey), nil
	case "openai":
		return NewOpenAIProvider(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", name)
	}
}
