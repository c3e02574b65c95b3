package repositories

import (
	"context"

	"concord/internal/domain/models"
)

// ProviderRepository reads provider definitions. The registry is read-only to
// the orchestrator; rows are owned by an external admin surface.
type ProviderRepository interface {
	// ListEnabled returns enabled providers of the given kind ordered by
	// priority ascending (lower number first).
	ListEnabled(ctx context.Context, kind models.TaskType) ([]models.Provider, error)

	// GetEnabledByName returns the enabled provider with the given name.
	GetEnabledByName(ctx context.Context, name string) (*models.Provider, error)
}
