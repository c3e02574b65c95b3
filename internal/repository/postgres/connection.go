package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"concord/internal/domain/repositories"
)

// RepositoryConfig holds configuration for repository implementations
type RepositoryConfig struct {
	Pool   *pgxpool.Pool
	Tables *TableNames
	Logger *slog.Logger
}

// TableNames holds dynamically prefixed table names
type TableNames struct {
	Profiles        string
	Debates         string
	DebateTurns     string
	Providers       string
	TokenLedger     string
	PaymentEvents   string
	PendingRequests string
	VideoJobs       string
	JobRuns         string
}

// NewTableNames creates table names with the given prefix
func NewTableNames(prefix string) *TableNames {
	return &TableNames{
		Profiles:        prefix + "profiles",
		Debates:         prefix + "debates",
		DebateTurns:     prefix + "debate_turns",
		Providers:       prefix + "ai_providers",
		TokenLedger:     prefix + "token_ledger",
		PaymentEvents:   prefix + "payment_events",
		PendingRequests: prefix + "pending_requests",
		VideoJobs:       prefix + "video_jobs",
		JobRuns:         prefix + "job_runs",
	}
}

// CreateConnectionPool creates a new pgx connection pool with automatic
// PgBouncer compatibility.
//
// pgx defaults to prepared statements (QueryExecModeCacheStatement), which
// Supabase's transaction pooler (port 6543) does not support. When that port
// is detected and the user did not override the mode in the connection
// string, switch to QueryExecModeCacheDescribe: it keeps the extended
// protocol (needed for JSONB encoding of map[string]interface{}) while
// avoiding named prepared statements.
func CreateConnectionPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	if config.ConnConfig.Port == 6543 && config.ConnConfig.DefaultQueryExecMode == pgx.QueryExecModeCacheStatement {
		config.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe
		slog.Debug("auto-configured cache_describe mode for PgBouncer compatibility", "port", 6543)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return pool, nil
}

// GetExecutor returns the appropriate query executor for the context.
// If a transaction is present in the context, it returns the transaction;
// otherwise the provided pool. This lets repositories automatically
// participate in transactions when they exist.
func GetExecutor(ctx context.Context, pool *pgxpool.Pool) repositories.DBTX {
	if tx := repositories.GetTx(ctx); tx != nil {
		return tx
	}
	return pool
}
