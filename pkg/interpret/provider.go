package interpret

import (
	"context"
	"fmt"
)

// Provider is an LLM backend that completes an interpretation prompt.
// The returned text is expected to be a JSON candidate but is never
// trusted; the interpreter validates it before anything else sees it.
type Provider interface {
	// Complete sends the prompt and conversation to the model and
	// returns the raw completion text.
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	// Name returns the provider name.
	Name() string
}

// Message is one conversation turn supplied to the provider.
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// CompletionRequest contains the parameters for one provider call.
type CompletionRequest struct {
	SystemPrompt string
	Messages     []Message
	Model        string
	MaxTokens    int
	Temperature  float64
}

// ProviderConfig selects and configures an LLM backend.
type ProviderConfig struct {
	Provider string // anthropic, openai, ollama
	APIKey   string
	BaseURL  string // ollama only
	Model    string
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicProvider(cfg.APIKey), nil
	case "openai":
		return NewOpenAIProvider(cfg.APIKey), nil
	case "ollama":
		return NewOllamaProvider(cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
