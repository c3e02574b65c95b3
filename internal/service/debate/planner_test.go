package debate

import (
	"testing"

	"concord/internal/domain/models"
)

func textProviders(names ...string) []models.Provider {
	providers := make([]models.Provider, len(names))
	for i, name := range names {
		providers[i] = models.Provider{
			ID:       name + "-id",
			Name:     name,
			Kind:     models.TaskText,
			Priority: (i + 1) * 10,
			Enabled:  true,
		}
	}
	return providers
}

func TestPlanDebateShape(t *testing.T) {
	providers := textProviders("openai", "anthropic", "deepseek")

	steps := PlanDebate("is P equal to NP", models.TaskText, providers, PlanOptions{
		Rounds:          1,
		MaxParticipants: 3,
	})

	// 3 openings + 3 reviews + 1 consensus
	if len(steps) != 7 {
		t.Fatalf("len(steps) = %d, want 7", len(steps))
	}

	for i := 0; i < 3; i++ {
		phase, _ := ClassifyPhase(steps[i].Role)
		if phase != models.PhaseIndependent {
			t.Errorf("step %d phase = %s, want independent", i, phase)
		}
	}
	for i := 3; i < 6; i++ {
		phase, _ := ClassifyPhase(steps[i].Role)
		if phase != models.PhaseReview {
			t.Errorf("step %d phase = %s, want review", i, phase)
		}
	}

	last := steps[len(steps)-1]
	phase, role := ClassifyPhase(last.Role)
	if phase != models.PhaseConsensus || role != models.TurnRoleAgreement {
		t.Errorf("final step phase/role = %s/%s, want consensus/agreement", phase, role)
	}
	if len(last.ProviderPreference) != 1 || last.ProviderPreference[0] != "openai" {
		t.Errorf("consensus preference = %v, want [openai]", last.ProviderPreference)
	}
}

func TestPlanDebateMediaMode(t *testing.T) {
	providers := textProviders("anthropic", "deepseek")

	steps := PlanDebate("explain fourier transforms", models.TaskVideo, providers, PlanOptions{
		Rounds:          1,
		MaxParticipants: 3,
	})

	var videoSteps int
	for _, s := range steps {
		if s.TaskType == models.TaskVideo {
			videoSteps++
		}
	}
	if videoSteps != 1 {
		t.Errorf("video steps = %d, want 1", videoSteps)
	}

	// No openai participant: highest priority leads
	last := steps[len(steps)-1]
	if last.ProviderPreference[0] != "anthropic" {
		t.Errorf("leader = %s, want anthropic", last.ProviderPreference[0])
	}
}

func TestPlanDebateCapsParticipants(t *testing.T) {
	providers := textProviders("a", "b", "c", "d", "e")

	steps := PlanDebate("topic", models.TaskText, providers, PlanOptions{
		Rounds:          1,
		MaxParticipants: 3,
	})

	// 3 openings + 3 reviews + 1 consensus
	if len(steps) != 7 {
		t.Errorf("len(steps) = %d, want 7", len(steps))
	}
}

func TestPlanDebateDeterministic(t *testing.T) {
	providers := textProviders("openai", "anthropic")
	opts := PlanOptions{Rounds: 2, MaxParticipants: 3}

	a := PlanDebate("same topic", models.TaskText, providers, opts)
	b := PlanDebate("same topic", models.TaskText, providers, opts)

	if len(a) != len(b) {
		t.Fatalf("plan lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Role != b[i].Role || a[i].Instructions != b[i].Instructions {
			t.Errorf("step %d differs between identical plans", i)
		}
	}
}

func TestClassifyPhase(t *testing.T) {
	tests := []struct {
		role      string
		wantPhase models.Phase
		wantRole  string
	}{
		{"consensus", models.PhaseConsensus, models.TurnRoleAgreement},
		{"final agreement", models.PhaseConsensus, models.TurnRoleAgreement},
		{"cross-review", models.PhaseReview, models.TurnRoleAssistant},
		{"rebuttal", models.PhaseReview, models.TurnRoleAssistant},
		{"critique", models.PhaseReview, models.TurnRoleAssistant},
		{"peer review", models.PhaseReview, models.TurnRoleAssistant},
		{"debater", models.PhaseIndependent, models.TurnRoleAssistant},
		{"generator", models.PhaseIndependent, models.TurnRoleAssistant},
		{"", models.PhaseIndependent, models.TurnRoleAssistant},
		// Consensus keywords win over review keywords
		{"consensus review", models.PhaseConsensus, models.TurnRoleAgreement},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			phase, role := ClassifyPhase(tt.role)
			if phase != tt.wantPhase || role != tt.wantRole {
				t.Errorf("ClassifyPhase(%q) = %s/%s, want %s/%s",
					tt.role, phase, role, tt.wantPhase, tt.wantRole)
			}
		})
	}
}
