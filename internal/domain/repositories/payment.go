package repositories

import (
	"context"

	"concord/internal/domain/models"
)

// PaymentEventRepository persists inbound gateway notifications. The UNIQUE
// (provider, event_id) constraint carries the idempotency guarantee.
type PaymentEventRepository interface {
	// CreateEvent inserts a new event with status "received". A duplicate
	// (provider, event_id) pair returns domain.ErrDuplicateEvent.
	CreateEvent(ctx context.Context, event *models.PaymentEvent) error

	// MarkProcessed moves an event from received to processed.
	MarkProcessed(ctx context.Context, provider, eventID string) error
}
