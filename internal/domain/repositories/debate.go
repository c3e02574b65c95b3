package repositories

import (
	"context"

	"concord/internal/domain/models"
)

// DebateRepository persists debate sessions.
type DebateRepository interface {
	// CreateDebate inserts a new session and fills in generated fields.
	CreateDebate(ctx context.Context, debate *models.Debate) error

	// GetDebate retrieves a session scoped to its owner.
	GetDebate(ctx context.Context, debateID, userID string) (*models.Debate, error)

	// ListDebates retrieves the user's sessions, newest first.
	ListDebates(ctx context.Context, userID string) ([]models.Debate, error)

	// UpdateStatus moves a session to completed or failed. Status is
	// monotonic: rows already terminal are left untouched.
	UpdateStatus(ctx context.Context, debateID, status string) error

	// Finalize marks a session completed and records its summary and cost.
	Finalize(ctx context.Context, debateID, summary string, totalCost int) error
}

// TurnRepository persists debate turns. Turns are append-only.
type TurnRepository interface {
	// CreateTurn appends one turn. Insert order is step order within a session.
	CreateTurn(ctx context.Context, turn *models.Turn) error

	// ListTurns retrieves all turns for a session in insertion order.
	ListTurns(ctx context.Context, debateID, userID string) ([]models.Turn, error)
}
