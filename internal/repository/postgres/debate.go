package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"concord/internal/domain"
	"concord/internal/domain/models"
	"concord/internal/domain/repositories"
)

// PostgresDebateRepository implements the DebateRepository interface using PostgreSQL
type PostgresDebateRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewDebateRepository creates a new PostgresDebateRepository
func NewDebateRepository(config *RepositoryConfig) repositories.DebateRepository {
	return &PostgresDebateRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateDebate inserts a new debate session
func (r *PostgresDebateRepository) CreateDebate(ctx context.Context, debate *models.Debate) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, topic, status, mode, total_cost, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, r.tables.Debates)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		debate.UserID,
		debate.Topic,
		debate.Status,
		string(debate.Mode),
		debate.TotalCost,
		debate.CreatedAt,
		debate.UpdatedAt,
	).Scan(&debate.ID, &debate.CreatedAt, &debate.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create debate: %w", err)
	}

	return nil
}

// GetDebate retrieves a debate by ID scoped to its owner
func (r *PostgresDebateRepository) GetDebate(ctx context.Context, debateID, userID string) (*models.Debate, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, topic, status, mode, total_cost, summary, created_at, updated_at
		FROM %s
		WHERE id = $1 AND user_id = $2
	`, r.tables.Debates)

	var debate models.Debate
	var mode string
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, debateID, userID).Scan(
		&debate.ID,
		&debate.UserID,
		&debate.Topic,
		&debate.Status,
		&mode,
		&debate.TotalCost,
		&debate.Summary,
		&debate.CreatedAt,
		&debate.UpdatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("debate %s: %w", debateID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get debate: %w", err)
	}

	debate.Mode = models.TaskType(mode)
	return &debate, nil
}

// ListDebates retrieves all debates for a user, newest first
func (r *PostgresDebateRepository) ListDebates(ctx context.Context, userID string) ([]models.Debate, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, topic, status, mode, total_cost, summary, created_at, updated_at
		FROM %s
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, r.tables.Debates)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list debates: %w", err)
	}
	defer rows.Close()

	var debates []models.Debate
	for rows.Next() {
		var debate models.Debate
		var mode string
		err := rows.Scan(
			&debate.ID,
			&debate.UserID,
			&debate.Topic,
			&debate.Status,
			&mode,
			&debate.TotalCost,
			&debate.Summary,
			&debate.CreatedAt,
			&debate.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan debate: %w", err)
		}
		debate.Mode = models.TaskType(mode)
		debates = append(debates, debate)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate debates: %w", err)
	}

	if debates == nil {
		debates = []models.Debate{}
	}

	return debates, nil
}

// UpdateStatus moves a debate to a terminal status. Rows that already reached
// a terminal status are left untouched (status is monotonic).
func (r *PostgresDebateRepository) UpdateStatus(ctx context.Context, debateID, status string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, r.tables.Debates)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, status, time.Now(), debateID, models.DebateStatusActive)
	if err != nil {
		return fmt.Errorf("update debate status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("debate %s not active: %w", debateID, domain.ErrNotFound)
	}

	return nil
}

// Finalize marks a debate completed and records its summary and total cost
func (r *PostgresDebateRepository) Finalize(ctx context.Context, debateID, summary string, totalCost int) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1, summary = $2, total_cost = $3, updated_at = $4
		WHERE id = $5 AND status = $6
	`, r.tables.Debates)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		models.DebateStatusCompleted,
		summary,
		totalCost,
		time.Now(),
		debateID,
		models.DebateStatusActive,
	)
	if err != nil {
		return fmt.Errorf("finalize debate: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("debate %s not active: %w", debateID, domain.ErrNotFound)
	}

	return nil
}
