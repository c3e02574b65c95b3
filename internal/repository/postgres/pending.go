package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"concord/internal/domain"
	"concord/internal/domain/models"
	"concord/internal/domain/repositories"
)

// PostgresPendingRequestRepository implements the PendingRequestRepository
// interface using PostgreSQL
type PostgresPendingRequestRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewPendingRequestRepository creates a new PostgresPendingRequestRepository
func NewPendingRequestRepository(config *RepositoryConfig) repositories.PendingRequestRepository {
	return &PostgresPendingRequestRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreatePending inserts a deferred request
func (r *PostgresPendingRequestRepository) CreatePending(ctx context.Context, pending *models.PendingRequest) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, kind, payload, tokens_required, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, r.tables.PendingRequests)

	payload := pending.Payload
	if payload == nil {
		payload = map[string]any{}
	}

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		pending.UserID,
		pending.Kind,
		payload,
		pending.TokensRequired,
		pending.ExpiresAt,
		pending.CreatedAt,
	).Scan(&pending.ID, &pending.CreatedAt)

	if err != nil {
		return fmt.Errorf("create pending request: %w", err)
	}

	return nil
}

// GetLatestPending returns the most recently created request for the user.
// Expiry is the caller's concern: the resumer deletes expired rows after
// inspecting them.
func (r *PostgresPendingRequestRepository) GetLatestPending(ctx context.Context, userID string) (*models.PendingRequest, error) {
	query := fmt.Sprintf(`
		SELECT id, user_id, kind, payload, tokens_required, expires_at, created_at
		FROM %s
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, r.tables.PendingRequests)

	var pending models.PendingRequest
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, userID).Scan(
		&pending.ID,
		&pending.UserID,
		&pending.Kind,
		&pending.Payload,
		&pending.TokensRequired,
		&pending.ExpiresAt,
		&pending.CreatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("pending request for %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get pending request: %w", err)
	}

	return &pending, nil
}

// DeletePending removes a request once it has been resumed or expired
func (r *PostgresPendingRequestRepository) DeletePending(ctx context.Context, pendingID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, r.tables.PendingRequests)

	executor := GetExecutor(ctx, r.pool)
	if _, err := executor.Exec(ctx, query, pendingID); err != nil {
		return fmt.Errorf("delete pending request: %w", err)
	}

	return nil
}
