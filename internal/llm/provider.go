package llm

import (
	"context"
	"fmt"
)

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider generates completions from a configured model backend.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

type Config struct {
	Provider    string
	Model       string
	Region      string
	APIKey      string
	Temperature float32
	MaxTokens   int
}

// New builds the provider selected in config. Bedrock is the default
// backend; OpenAI is kept for environments without AWS credentials.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "bedrock", "":
		return NewBedrockProvider(cfg.Region, cfg.Model, cfg.Temperature, cfg.MaxTokens)
	case "openai":
		return NewOpenAIProvider(cfg.APIKey, cfg.Model, cfg.Temperature, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
