package debate

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"concord/internal/domain/models"
	"concord/internal/domain/repositories"
)

// Step result statuses.
const (
	StepStatusOK     = "ok"
	StepStatusFailed = "failed"
)

// StepResult is the outcome of one executed step. Provider errors land here
// as a failed status; ExecuteStep itself never propagates them.
type StepResult struct {
	Status     string
	Phase      models.Phase
	Role       string
	AgentName  string
	ProviderID *string
	Content    string
	Err        error
}

// Invoker executes one model call for a provider row.
type Invoker interface {
	Invoke(ctx context.Context, provider *models.Provider, prompt string) (string, error)
}

// ExecContext carries the accumulated session state a step's prompt builds on.
type ExecContext struct {
	Topic      string
	Transcript []StepResult
}

// Executor runs planned steps against the provider registry.
type Executor struct {
	providers repositories.ProviderRepository
	invoker   Invoker
	logger    *slog.Logger
}

// NewExecutor creates a step executor
func NewExecutor(providers repositories.ProviderRepository, invoker Invoker, logger *slog.Logger) *Executor {
	return &Executor{
		providers: providers,
		invoker:   invoker,
		logger:    logger,
	}
}

// ExecuteStep selects a provider for the step and invokes it. Selection
// takes the first enabled candidate from the step's preference list, falling
// back to registry priority order.
func (e *Executor) ExecuteStep(ctx context.Context, step Step, execCtx *ExecContext) StepResult {
	phase, role := ClassifyPhase(step.Role)

	provider, err := e.selectProvider(ctx, step)
	if err != nil {
		e.logger.Warn("step has no usable provider", "role", step.Role, "task_type", step.TaskType, "error", err)
		return StepResult{Status: StepStatusFailed, Phase: phase, Role: role, Err: err}
	}

	prompt := buildPrompt(step, execCtx)

	content, err := e.invoker.Invoke(ctx, provider, prompt)
	if err != nil {
		e.logger.Warn("step invocation failed",
			"provider", provider.Name,
			"role", step.Role,
			"error", err,
		)
		return StepResult{
			Status:    StepStatusFailed,
			Phase:     phase,
			Role:      role,
			AgentName: provider.Name,
			Err:       err,
		}
	}

	providerID := provider.ID
	return StepResult{
		Status:     StepStatusOK,
		Phase:      phase,
		Role:       role,
		AgentName:  provider.Name,
		ProviderID: &providerID,
		Content:    content,
	}
}

func (e *Executor) selectProvider(ctx context.Context, step Step) (*models.Provider, error) {
	candidates, err := e.providers.ListEnabled(ctx, step.TaskType)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no enabled %s providers", step.TaskType)
	}

	for _, preferred := range step.ProviderPreference {
		for i := range candidates {
			if candidates[i].Name == preferred {
				return &candidates[i], nil
			}
		}
	}

	// Preference exhausted: registry priority order decides
	return &candidates[0], nil
}

// buildPrompt assembles the step prompt from the topic, the instructions and
// the transcript of prior successful steps.
func buildPrompt(step Step, execCtx *ExecContext) string {
	var sb strings.Builder

	sb.WriteString("Topic: ")
	sb.WriteString(execCtx.Topic)
	sb.WriteString("\n\n")

	if len(execCtx.Transcript) > 0 {
		sb.WriteString("Discussion so far:\n")
		for _, prior := range execCtx.Transcript {
			if prior.Status != StepStatusOK {
				continue
			}
			fmt.Fprintf(&sb, "[%s, %s phase]\n%s\n\n", prior.AgentName, prior.Phase, prior.Content)
		}
	}

	sb.WriteString(step.Instructions)
	return sb.String()
}
