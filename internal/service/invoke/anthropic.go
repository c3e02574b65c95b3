package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"concord/internal/domain"
	"concord/internal/domain/models"
)

const anthropicMaxTokens = 4096

// anthropicInvoker speaks the native Anthropic Messages API. A client is
// built per call because each registry row may reference a different
// credential.
type anthropicInvoker struct {
	logger *slog.Logger
}

func newAnthropicInvoker(logger *slog.Logger) *anthropicInvoker {
	return &anthropicInvoker{logger: logger}
}

func (i *anthropicInvoker) Invoke(ctx context.Context, provider *models.Provider, prompt string) (string, error) {
	apiKey, err := resolveAPIKey(provider)
	if err != nil {
		return "", err
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	message, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(provider.ModelID),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic call for %s: %w: %v", provider.Name, domain.ErrProviderFailure, err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	text := sb.String()
	if text == "" {
		return "", fmt.Errorf("anthropic call for %s returned no text: %w", provider.Name, domain.ErrProviderFailure)
	}

	i.logger.Debug("anthropic response",
		"provider", provider.Name,
		"model", provider.ModelID,
		"input_tokens", message.Usage.InputTokens,
		"output_tokens", message.Usage.OutputTokens,
	)

	return text, nil
}
