package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"concord/internal/domain"
	"concord/internal/domain/models"
)

// Invoker executes one model call against a provider registry row.
type Invoker interface {
	// Invoke sends the prompt to the provider's model and returns the text
	// response. Credential or transport failures return an error; the
	// caller decides the session-level policy.
	Invoke(ctx context.Context, provider *models.Provider, prompt string) (string, error)
}

// Registry routes each provider row to the SDK that speaks its dialect.
// Anthropic rows use the native SDK; everything else goes through the
// OpenAI-compatible client with the row's base URL.
type Registry struct {
	anthropic Invoker
	openai    Invoker
	logger    *slog.Logger
}

// NewRegistry creates an invoker registry with both SDK clients
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		anthropic: newAnthropicInvoker(logger),
		openai:    newOpenAIInvoker(logger),
		logger:    logger,
	}
}

// Invoke dispatches to the provider's dialect
func (r *Registry) Invoke(ctx context.Context, provider *models.Provider, prompt string) (string, error) {
	if isAnthropic(provider) {
		return r.anthropic.Invoke(ctx, provider, prompt)
	}
	return r.openai.Invoke(ctx, provider, prompt)
}

// isAnthropic detects the native-SDK dialect from the registry row
func isAnthropic(p *models.Provider) bool {
	name := strings.ToLower(p.Name)
	model := strings.ToLower(p.ModelID)
	return strings.Contains(name, "anthropic") || strings.HasPrefix(model, "claude")
}

// resolveAPIKey reads the provider's credential from the environment via its
// env_key reference. Keys never live in the registry rows themselves.
func resolveAPIKey(p *models.Provider) (string, error) {
	if p.EnvKey == "" {
		return "", fmt.Errorf("provider %s has no env_key: %w", p.Name, domain.ErrConfiguration)
	}
	key := os.Getenv(p.EnvKey)
	if key == "" {
		return "", fmt.Errorf("credential %s for provider %s is not set: %w", p.EnvKey, p.Name, domain.ErrConfiguration)
	}
	return key, nil
}
