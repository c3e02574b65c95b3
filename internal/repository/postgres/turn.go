package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"concord/internal/domain/models"
	"concord/internal/domain/repositories"
)

// PostgresTurnRepository implements the TurnRepository interface using PostgreSQL
type PostgresTurnRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewTurnRepository creates a new PostgresTurnRepository
func NewTurnRepository(config *RepositoryConfig) repositories.TurnRepository {
	return &PostgresTurnRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateTurn appends one turn. Turns are append-only and inserted in step order.
func (r *PostgresTurnRepository) CreateTurn(ctx context.Context, turn *models.Turn) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (debate_id, user_id, role, agent_name, provider_id, content, phase, meta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, r.tables.DebateTurns)

	meta := turn.Meta
	if meta == nil {
		meta = map[string]any{}
	}

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		turn.DebateID,
		turn.UserID,
		turn.Role,
		turn.AgentName,
		turn.ProviderID,
		turn.Content,
		string(turn.Phase),
		meta,
		turn.CreatedAt,
	).Scan(&turn.ID, &turn.CreatedAt)

	if err != nil {
		return fmt.Errorf("create turn: %w", err)
	}

	return nil
}

// ListTurns retrieves all turns for a debate in insertion order
func (r *PostgresTurnRepository) ListTurns(ctx context.Context, debateID, userID string) ([]models.Turn, error) {
	query := fmt.Sprintf(`
		SELECT id, debate_id, user_id, role, agent_name, provider_id, content, phase, meta, created_at
		FROM %s
		WHERE debate_id = $1 AND user_id = $2
		ORDER BY created_at ASC, id ASC
	`, r.tables.DebateTurns)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, debateID, userID)
	if err != nil {
		return nil, fmt.Errorf("list turns: %w", err)
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var turn models.Turn
		var phase string
		err := rows.Scan(
			&turn.ID,
			&turn.DebateID,
			&turn.UserID,
			&turn.Role,
			&turn.AgentName,
			&turn.ProviderID,
			&turn.Content,
			&phase,
			&turn.Meta,
			&turn.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		turn.Phase = models.Phase(phase)
		turns = append(turns, turn)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turns: %w", err)
	}

	if turns == nil {
		turns = []models.Turn{}
	}

	return turns, nil
}
