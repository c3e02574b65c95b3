package invoke

import (
	"context"
	"fmt"
	"log/slog"

	openai "github.com/sashabaranov/go-openai"

	"concord/internal/domain"
	"concord/internal/domain/models"
)

// openaiInvoker speaks the OpenAI chat completions dialect. Rows with a
// base_url point the same client at any compatible gateway (DeepSeek,
// Mistral, OpenRouter).
type openaiInvoker struct {
	logger *slog.Logger
}

func newOpenAIInvoker(logger *slog.Logger) *openaiInvoker {
	return &openaiInvoker{logger: logger}
}

func (i *openaiInvoker) Invoke(ctx context.Context, provider *models.Provider, prompt string) (string, error) {
	apiKey, err := resolveAPIKey(provider)
	if err != nil {
		return "", err
	}

	cfg := openai.DefaultConfig(apiKey)
	if provider.BaseURL != "" {
		cfg.BaseURL = provider.BaseURL
	}
	client := openai.NewClientWithConfig(cfg)

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: provider.ModelID,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion for %s: %w: %v", provider.Name, domain.ErrProviderFailure, err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chat completion for %s returned no text: %w", provider.Name, domain.ErrProviderFailure)
	}

	i.logger.Debug("chat completion response",
		"provider", provider.Name,
		"model", provider.ModelID,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return resp.Choices[0].Message.Content, nil
}
