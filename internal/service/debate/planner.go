package debate

import (
	"fmt"
	"strings"

	"concord/internal/domain/models"
)

// Step is one unit of planned work. Plans are computed fresh for every
// session and never persisted; only executed turns reach storage.
type Step struct {
	// Role labels what the step contributes. Phase classification keys off
	// role keywords, so planners pick labels from a known vocabulary.
	Role string

	// TaskType selects the provider pool and the step's price.
	TaskType models.TaskType

	// ProviderPreference lists provider names in selection order. Empty
	// means registry priority order.
	ProviderPreference []string

	// Instructions is the prompt skeleton for the step.
	Instructions string
}

// PlanOptions bounds the plan shape.
type PlanOptions struct {
	Rounds          int // review rounds, minimum 1
	MaxParticipants int // text providers debating, minimum 1
}

// PlanDebate builds the ordered step list for a session. Pure and
// deterministic: the same topic, mode and registry snapshot always produce
// the same plan.
//
// Shape: one opening step per participant, then per round one cross-review
// step per participant, for media modes one generation step, and always a
// closing consensus step assigned to the leader.
func PlanDebate(topic string, mode models.TaskType, providers []models.Provider, opts PlanOptions) []Step {
	if opts.Rounds < 1 {
		opts.Rounds = 1
	}
	if opts.MaxParticipants < 1 {
		opts.MaxParticipants = 1
	}

	participants := providers
	if len(participants) > opts.MaxParticipants {
		participants = participants[:opts.MaxParticipants]
	}

	var steps []Step

	for _, p := range participants {
		steps = append(steps, Step{
			Role:               "debater",
			TaskType:           models.TaskText,
			ProviderPreference: []string{p.Name},
			Instructions:       fmt.Sprintf("Present your independent position on the topic: %s", topic),
		})
	}

	for round := 0; round < opts.Rounds; round++ {
		for _, p := range participants {
			steps = append(steps, Step{
				Role:               "cross-review",
				TaskType:           models.TaskText,
				ProviderPreference: []string{p.Name},
				Instructions:       "Critique the other participants' positions. Point out weaknesses and concede strong arguments.",
			})
		}
	}

	if mode.IsMedia() || mode == models.TaskLatex {
		steps = append(steps, Step{
			Role:         "generator",
			TaskType:     mode,
			Instructions: fmt.Sprintf("Produce the %s artifact for the topic: %s", mode, topic),
		})
	}

	steps = append(steps, Step{
		Role:               "consensus",
		TaskType:           models.TaskText,
		ProviderPreference: []string{leaderName(participants)},
		Instructions:       "Synthesize the discussion into a single agreed answer. State the consensus plainly.",
	})

	return steps
}

// leaderName picks who writes the consensus: the first participant whose
// name mentions openai, otherwise the highest-priority one.
func leaderName(participants []models.Provider) string {
	for _, p := range participants {
		if strings.Contains(strings.ToLower(p.Name), "openai") {
			return p.Name
		}
	}
	if len(participants) > 0 {
		return participants[0].Name
	}
	return ""
}

// TaskTypes projects a plan onto its task-type mixture for pricing.
func TaskTypes(steps []Step) []models.TaskType {
	types := make([]models.TaskType, len(steps))
	for i, s := range steps {
		types[i] = s.TaskType
	}
	return types
}

// ClassifyPhase maps a step role onto the persisted phase and turn role.
// Consensus keywords win over review keywords.
func ClassifyPhase(role string) (models.Phase, string) {
	r := strings.ToLower(role)
	switch {
	case strings.Contains(r, "consensus") || strings.Contains(r, "agreement"):
		return models.PhaseConsensus, models.TurnRoleAgreement
	case strings.Contains(r, "rebuttal") || strings.Contains(r, "review") ||
		strings.Contains(r, "critique") || strings.Contains(r, "cross"):
		return models.PhaseReview, models.TurnRoleAssistant
	default:
		return models.PhaseIndependent, models.TurnRoleAssistant
	}
}
