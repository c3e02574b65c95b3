package repositories

import (
	"context"

	"concord/internal/domain/models"
)

// PendingRequestRepository persists deferred actions blocked on tokens.
type PendingRequestRepository interface {
	// CreatePending inserts a deferred request.
	CreatePending(ctx context.Context, pending *models.PendingRequest) error

	// GetLatestPending returns the most recently created request for the
	// user, expired or not, or domain.ErrNotFound.
	GetLatestPending(ctx context.Context, userID string) (*models.PendingRequest, error)

	// DeletePending removes a request (resumed or expired).
	DeletePending(ctx context.Context, pendingID string) error
}
