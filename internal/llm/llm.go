// Package llm adapts hosted language-model and embedding APIs to the
// completion and embedding contracts used by the answer pipeline.
package llm

import (
	"context"
	"fmt"
)

// Provider names accepted by New.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config selects and configures the completion backend.
type Config struct {
	Provider string

	// OpenAI-compatible endpoint (OpenRouter by default).
	APIKey  string
	BaseURL string
	Model   string

	// Gemini endpoint.
	GeminiAPIKey  string
	GeminiModel   string
	GeminiBaseURL string
}

// Completer produces a single completion for a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// New returns the completer for cfg.Provider.
func New(ctx context.Context, cfg Config) (Completer, error) {
	switch cfg.Provider {
	case "", ProviderOpenAI:
		return NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	case ProviderGemini:
		return NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiBaseURL)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
