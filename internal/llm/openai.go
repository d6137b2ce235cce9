package llm

import (
	"context"
	"errors"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

// Defaults for the OpenAI-compatible endpoint.
const (
	DefaultBaseURL        = "https://openrouter.ai/api/v1"
	DefaultModel          = "openai/gpt-oss-20b:free"
	DefaultEmbeddingModel = "sentence-transformers/all-MiniLM-L6-v2"
)

// zeroTemperature forces a deterministic sampling temperature. A literal 0 is
// dropped from the request body by omitempty.
const zeroTemperature = math.SmallestNonzeroFloat32

// OpenAIClient talks to any OpenAI-compatible chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a client. Empty baseURL and model fall back to defaults.
func NewOpenAIClient(apiKey, baseURL, model string) *OpenAIClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}
}

// Complete sends prompt as a single user message at temperature 0.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: zeroTemperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Embedder turns text into vectors through an OpenAI-compatible embeddings API.
type Embedder struct {
	client *openai.Client
	model  string
}

// NewEmbedder creates an embedder. An empty model falls back to
// DefaultEmbeddingModel. OpenRouter does not serve embeddings, so baseURL has
// no default and must point at an endpoint that hosts the model.
func NewEmbedder(apiKey, baseURL, model string) (*Embedder, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("embedding base URL must be set")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return &Embedder{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Embed returns the embedding for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("embedding response is empty")
	}
	return resp.Data[0].Embedding, nil
}
