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

// PostgresLedgerRepository implements the LedgerRepository interface using
// PostgreSQL. All balance mutation happens through single conditional
// statements so that concurrent callers cannot interleave a read-then-write.
type PostgresLedgerRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewLedgerRepository creates a new PostgresLedgerRepository
func NewLedgerRepository(config *RepositoryConfig) repositories.LedgerRepository {
	return &PostgresLedgerRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// GetProfile reads the user's balance and trial flag
func (r *PostgresLedgerRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := fmt.Sprintf(`
		SELECT id, email, token_balance, free_trial_used, created_at
		FROM %s
		WHERE id = $1
	`, r.tables.Profiles)

	var profile models.Profile
	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query, userID).Scan(
		&profile.ID,
		&profile.Email,
		&profile.TokenBalance,
		&profile.FreeTrialUsed,
		&profile.CreatedAt,
	)

	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}

	return &profile, nil
}

// ReserveBalance decrements token_balance only when it covers the amount.
// The guard lives in the WHERE clause, so a losing concurrent caller sees
// zero rows affected instead of a negative balance.
func (r *PostgresLedgerRepository) ReserveBalance(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("reserve amount must be positive, got %d: %w", amount, domain.ErrValidation)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET token_balance = token_balance - $1
		WHERE id = $2 AND token_balance >= $1
	`, r.tables.Profiles)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("reserve balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		profile, err := r.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		return &domain.InsufficientTokensError{
			Required:  amount,
			Available: profile.TokenBalance,
		}
	}

	return nil
}

// AddBalance unconditionally increments token_balance
func (r *PostgresLedgerRepository) AddBalance(ctx context.Context, userID string, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive, got %d: %w", amount, domain.ErrValidation)
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET token_balance = token_balance + $1
		WHERE id = $2
	`, r.tables.Profiles)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, amount, userID)
	if err != nil {
		return fmt.Errorf("add balance: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("profile %s: %w", userID, domain.ErrNotFound)
	}

	return nil
}

// MarkFreeTrialUsed flips free_trial_used exactly once per user
func (r *PostgresLedgerRepository) MarkFreeTrialUsed(ctx context.Context, userID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET free_trial_used = TRUE
		WHERE id = $1 AND free_trial_used = FALSE
	`, r.tables.Profiles)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("mark free trial used: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("free trial for %s: %w", userID, domain.ErrConflict)
	}

	return nil
}

// ClearFreeTrialUsed releases a claimed trial whose session failed
func (r *PostgresLedgerRepository) ClearFreeTrialUsed(ctx context.Context, userID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET free_trial_used = FALSE
		WHERE id = $1 AND free_trial_used = TRUE
	`, r.tables.Profiles)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("clear free trial used: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("free trial for %s: %w", userID, domain.ErrConflict)
	}

	return nil
}

// AppendEntry records an immutable ledger entry
func (r *PostgresLedgerRepository) AppendEntry(ctx context.Context, entry *models.LedgerEntry) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, amount, description, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, r.tables.TokenLedger)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		entry.UserID,
		entry.Amount,
		entry.Description,
		entry.CreatedAt,
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return fmt.Errorf("append ledger entry: %w", err)
	}

	return nil
}

// ListEntries returns the user's ledger entries, newest first
func (r *PostgresLedgerRepository) ListEntries(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, amount, description, created_at
		FROM %s
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, r.tables.TokenLedger)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.Amount,
			&entry.Description,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger entries: %w", err)
	}

	if entries == nil {
		entries = []models.LedgerEntry{}
	}

	return entries, nil
}
