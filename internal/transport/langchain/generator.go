// Package langchain adapts langchaingo chat models to the expansion generator contract.
package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kailas-cloud/designdex/internal/domain"
)

// Config holds connection settings for an OpenAI-compatible endpoint
// (vLLM, Ollama, LM Studio and friends).
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// Generator produces raw text through a langchaingo model.
type Generator struct {
	model       llms.Model
	temperature float64
	maxTokens   int
}

// New creates a Generator backed by the langchaingo OpenAI-compatible client.
func New(cfg Config) (*Generator, error) {
	token := cfg.APIKey
	if token == "" {
		// local servers ignore the token but the client requires one
		token = "none"
	}
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create langchain client: %w", err)
	}
	return NewWithModel(client, cfg.Temperature, cfg.MaxTokens), nil
}

// NewWithModel wraps an existing langchaingo model.
func NewWithModel(model llms.Model, temperature float64, maxTokens int) *Generator {
	return &Generator{model: model, temperature: temperature, maxTokens: maxTokens}
}

// Generate sends prompt as a single human message and returns the first choice.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}

	resp, err := g.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("langchain generate: %w: %w", domain.ErrLLMProviderError, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", fmt.Errorf("langchain generate: no choices: %w", domain.ErrLLMProviderError)
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}
