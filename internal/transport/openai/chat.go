package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kailas-cloud/designdex/internal/domain"
)

// ChatConfig holds chat completion settings for the expansion provider.
type ChatConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
}

// ChatGenerator produces raw text from a single-turn prompt.
type ChatGenerator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
}

// NewChatGenerator creates a chat completion client for an OpenAI-compatible API.
func NewChatGenerator(cfg *ChatConfig) *ChatGenerator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &ChatGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
	}
}

// Generate returns the first choice's content. The output is untrusted text.
func (g *ChatGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", parseAPIError("chat", err, domain.ErrLLMProviderError)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat response has no choices: %w", domain.ErrLLMProviderError)
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
