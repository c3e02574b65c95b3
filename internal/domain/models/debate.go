package models

import (
	"fmt"
	"time"
)

// Debate statuses. Transitions are monotonic: active -> completed|failed.
const (
	DebateStatusActive    = "active"
	DebateStatusCompleted = "completed"
	DebateStatusFailed    = "failed"
)

// Turn roles as persisted on debate_turns.
const (
	TurnRoleUser      = "user"
	TurnRoleAssistant = "assistant"
	TurnRoleAgreement = "agreement"
)

// Phase classifies what a turn contributed to the session.
type Phase string

const (
	PhaseIndependent Phase = "independent"
	PhaseReview      Phase = "review"
	PhaseConsensus   Phase = "consensus"
)

// TaskType is the closed set of work kinds a step can carry. Provider
// selection and pricing switch on this tag, never on raw category strings.
type TaskType string

const (
	TaskText  TaskType = "text"
	TaskLatex TaskType = "latex"
	TaskImage TaskType = "image"
	TaskVideo TaskType = "video"
	TaskAudio TaskType = "audio"
	TaskFile  TaskType = "file"
)

// ParseTaskType validates a raw kind string against the closed set.
func ParseTaskType(s string) (TaskType, error) {
	switch TaskType(s) {
	case TaskText, TaskLatex, TaskImage, TaskVideo, TaskAudio, TaskFile:
		return TaskType(s), nil
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// IsMedia reports whether the task produces a binary artifact rather than text.
func (t TaskType) IsMedia() bool {
	return t == TaskImage || t == TaskVideo || t == TaskAudio || t == TaskFile
}

// Debate is one user-initiated consensus session.
type Debate struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Topic     string    `json:"topic" db:"topic"`
	Status    string    `json:"status" db:"status"`
	Mode      TaskType  `json:"mode" db:"mode"`
	TotalCost int       `json:"total_cost" db:"total_cost"`
	Summary   *string   `json:"summary,omitempty" db:"summary"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Turn is the persisted result of one successfully executed step.
// Append-only: never mutated after creation.
type Turn struct {
	ID         string         `json:"id" db:"id"`
	DebateID   string         `json:"debate_id" db:"debate_id"`
	UserID     string         `json:"user_id" db:"user_id"`
	Role       string         `json:"role" db:"role"`
	AgentName  string         `json:"agent_name" db:"agent_name"`
	ProviderID *string        `json:"provider_id,omitempty" db:"provider_id"`
	Content    string         `json:"content" db:"content"`
	Phase      Phase          `json:"phase" db:"phase"`
	Meta       map[string]any `json:"meta,omitempty" db:"meta"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
}
