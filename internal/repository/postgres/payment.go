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

// PostgresPaymentEventRepository implements the PaymentEventRepository
// interface using PostgreSQL. The UNIQUE (provider, event_id) index does the
// de-duplication; there is deliberately no existence check before insert.
type PostgresPaymentEventRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewPaymentEventRepository creates a new PostgresPaymentEventRepository
func NewPaymentEventRepository(config *RepositoryConfig) repositories.PaymentEventRepository {
	return &PostgresPaymentEventRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// CreateEvent inserts an event with status "received". A replayed delivery
// hits the unique constraint and surfaces as domain.ErrDuplicateEvent.
func (r *PostgresPaymentEventRepository) CreateEvent(ctx context.Context, event *models.PaymentEvent) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (provider, event_id, user_id, amount_cents, tokens_added, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, r.tables.PaymentEvents)

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		event.Provider,
		event.EventID,
		event.UserID,
		event.AmountCents,
		event.TokensAdded,
		models.PaymentEventReceived,
		event.CreatedAt,
	).Scan(&event.ID, &event.CreatedAt)

	if err != nil {
		if IsPgDuplicateError(err) {
			return fmt.Errorf("event %s/%s: %w", event.Provider, event.EventID, domain.ErrDuplicateEvent)
		}
		return fmt.Errorf("create payment event: %w", err)
	}

	event.Status = models.PaymentEventReceived
	return nil
}

// MarkProcessed moves an event from received to processed
func (r *PostgresPaymentEventRepository) MarkProcessed(ctx context.Context, provider, eventID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1
		WHERE provider = $2 AND event_id = $3 AND status = $4
	`, r.tables.PaymentEvents)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query,
		models.PaymentEventProcessed,
		provider,
		eventID,
		models.PaymentEventReceived,
	)
	if err != nil {
		return fmt.Errorf("mark payment event processed: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("event %s/%s not in received state: %w", provider, eventID, domain.ErrNotFound)
	}

	return nil
}
