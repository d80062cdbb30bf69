// internal/ai/openai.go
package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/sashabaranov/go-openai"
)

var ErrEmptyCompletion = errors.New("completion returned no choices")

type AIService struct {
	client    *openai.Client
	maxTokens int
}

func NewAIService(apiKey string, maxTokens int) *AIService {
	return NewAIServiceWithConfig(openai.DefaultConfig(apiKey), maxTokens)
}

// NewAIServiceWithConfig allows pointing the client at a different base URL.
func NewAIServiceWithConfig(cfg openai.ClientConfig, maxTokens int) *AIService {
	if maxTokens <= 0 {
		maxTokens = 500
	}
	return &AIService{
		client:    openai.NewClientWithConfig(cfg),
		maxTokens: maxTokens,
	}
}

// Complete sends prompt as a single user message to model and returns the
// trimmed text of the first choice.
func (ai *AIService) Complete(ctx context.Context, prompt, model string, temperature float32) (string, error) {
	resp, err := ai.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   ai.maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
