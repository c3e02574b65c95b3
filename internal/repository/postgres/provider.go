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

// PostgresProviderRepository implements the ProviderRepository interface using
// PostgreSQL. The registry is read-only to the orchestrator.
type PostgresProviderRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewProviderRepository creates a new PostgresProviderRepository
func NewProviderRepository(config *RepositoryConfig) repositories.ProviderRepository {
	return &PostgresProviderRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

// ListEnabled returns enabled providers of the given kind ordered by priority
func (r *PostgresProviderRepository) ListEnabled(ctx context.Context, kind models.TaskType) ([]models.Provider, error) {
	query := fmt.Sprintf(`
		SELECT id, name, kind, model_id, base_url, env_key, priority, enabled, created_at
		FROM %s
		WHERE enabled = TRUE AND kind = $1
		ORDER BY priority ASC, name ASC
	`, r.tables.Providers)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, string(kind))
	if err != nil {
		return nil, fmt.Errorf("list providers: %w", err)
	}
	defer rows.Close()

	var providers []models.Provider
	for rows.Next() {
		provider, err := scanProvider(rows.Scan)
		if err != nil {
			return nil, err
		}
		if provider == nil {
			// Unknown kind: skip rather than string-match downstream
			continue
		}
		providers = append(providers, *provider)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate providers: %w", err)
	}

	if providers == nil {
		providers = []models.Provider{}
	}

	return providers, nil
}

// GetEnabledByName returns the enabled provider with the given name
func (r *PostgresProviderRepository) GetEnabledByName(ctx context.Context, name string) (*models.Provider, error) {
	query := fmt.Sprintf(`
		SELECT id, name, kind, model_id, base_url, env_key, priority, enabled, created_at
		FROM %s
		WHERE enabled = TRUE AND name = $1
	`, r.tables.Providers)

	executor := GetExecutor(ctx, r.pool)
	provider, err := scanProvider(executor.QueryRow(ctx, query, name).Scan)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("provider %s: %w", name, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get provider: %w", err)
	}
	if provider == nil {
		return nil, fmt.Errorf("provider %s has unknown kind: %w", name, domain.ErrConfiguration)
	}

	return provider, nil
}

// scanProvider scans one provider row. Returns (nil, nil) for rows whose kind
// is outside the closed TaskType set.
func scanProvider(scan func(dest ...any) error) (*models.Provider, error) {
	var provider models.Provider
	var kind string
	err := scan(
		&provider.ID,
		&provider.Name,
		&kind,
		&provider.ModelID,
		&provider.BaseURL,
		&provider.EnvKey,
		&provider.Priority,
		&provider.Enabled,
		&provider.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	taskType, err := models.ParseTaskType(kind)
	if err != nil {
		return nil, nil
	}
	provider.Kind = taskType

	return &provider, nil
}
