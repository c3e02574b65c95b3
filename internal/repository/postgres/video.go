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

// PostgresVideoJobRepository implements the VideoJobRepository interface
// using PostgreSQL
type PostgresVideoJobRepository struct {
	pool   *pgxpool.Pool
	tables *TableNames
	logger *slog.Logger
}

// NewVideoJobRepository creates a new PostgresVideoJobRepository
func NewVideoJobRepository(config *RepositoryConfig) repositories.VideoJobRepository {
	return &PostgresVideoJobRepository{
		pool:   config.Pool,
		tables: config.Tables,
		logger: config.Logger,
	}
}

const videoJobColumns = `id, user_id, debate_id, status, tokens_reserved, refunded, input_refs, output_path, error, created_at, updated_at`

// CreateJob inserts a new compose job
func (r *PostgresVideoJobRepository) CreateJob(ctx context.Context, job *models.VideoJob) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, debate_id, status, tokens_reserved, refunded, input_refs, output_path, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, r.tables.VideoJobs)

	inputRefs := job.InputRefs
	if inputRefs == nil {
		inputRefs = []string{}
	}

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		job.UserID,
		job.DebateID,
		job.Status,
		job.TokensReserved,
		job.Refunded,
		inputRefs,
		job.OutputPath,
		job.CreatedAt,
		job.UpdatedAt,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create video job: %w", err)
	}

	return nil
}

// GetJob retrieves a job scoped to its owner
func (r *PostgresVideoJobRepository) GetJob(ctx context.Context, jobID, userID string) (*models.VideoJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE id = $1 AND user_id = $2
	`, videoJobColumns, r.tables.VideoJobs)

	executor := GetExecutor(ctx, r.pool)
	job, err := scanVideoJob(executor.QueryRow(ctx, query, jobID, userID).Scan)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("video job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get video job: %w", err)
	}

	return job, nil
}

// GetJobByID retrieves a job without an owner scope, for worker callbacks
func (r *PostgresVideoJobRepository) GetJobByID(ctx context.Context, jobID string) (*models.VideoJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s WHERE id = $1
	`, videoJobColumns, r.tables.VideoJobs)

	executor := GetExecutor(ctx, r.pool)
	job, err := scanVideoJob(executor.QueryRow(ctx, query, jobID).Scan)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("video job %s: %w", jobID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get video job: %w", err)
	}

	return job, nil
}

// GetActiveJobForDebate returns the pending or composing job for a debate.
// At most one job per debate is ever active.
func (r *PostgresVideoJobRepository) GetActiveJobForDebate(ctx context.Context, debateID string) (*models.VideoJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE debate_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT 1
	`, videoJobColumns, r.tables.VideoJobs)

	executor := GetExecutor(ctx, r.pool)
	job, err := scanVideoJob(executor.QueryRow(ctx, query, debateID, models.VideoJobPending, models.VideoJobComposing).Scan)
	if err != nil {
		if IsPgNoRowsError(err) {
			return nil, fmt.Errorf("active job for debate %s: %w", debateID, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get active video job: %w", err)
	}

	return job, nil
}

// UpdateJobStatus sets the job status along with the output path or error
// message for terminal transitions. COALESCE keeps fields the caller did
// not supply.
func (r *PostgresVideoJobRepository) UpdateJobStatus(ctx context.Context, jobID, status string, outputPath, errMsg *string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1,
		    output_path = COALESCE($2, output_path),
		    error = COALESCE($3, error),
		    updated_at = $4
		WHERE id = $5
	`, r.tables.VideoJobs)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, status, outputPath, errMsg, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("update video job status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("video job %s: %w", jobID, domain.ErrNotFound)
	}

	return nil
}

// MarkRefunded flips refunded exactly once. The conditional update is the
// whole at-most-once refund guard: a second caller sees zero rows affected.
func (r *PostgresVideoJobRepository) MarkRefunded(ctx context.Context, jobID string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET refunded = TRUE, updated_at = $1
		WHERE id = $2 AND refunded = FALSE
	`, r.tables.VideoJobs)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("mark video job refunded: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("video job %s already refunded: %w", jobID, domain.ErrConflict)
	}

	return nil
}

// CreateRun inserts an execution attempt in the starting state
func (r *PostgresVideoJobRepository) CreateRun(ctx context.Context, run *models.JobRun) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (video_job_id, run_type, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, r.tables.JobRuns)

	metadata := run.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	executor := GetExecutor(ctx, r.pool)
	err := executor.QueryRow(ctx, query,
		run.VideoJobID,
		run.RunType,
		run.Status,
		metadata,
		run.CreatedAt,
	).Scan(&run.ID, &run.CreatedAt)

	if err != nil {
		return fmt.Errorf("create job run: %w", err)
	}

	return nil
}

// ListStartingRuns returns runs awaiting dispatch, oldest first
func (r *PostgresVideoJobRepository) ListStartingRuns(ctx context.Context, limit int) ([]models.JobRun, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT id, video_job_id, run_type, status, worker_ref, error, metadata, created_at, started_at, finished_at
		FROM %s
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, r.tables.JobRuns)

	executor := GetExecutor(ctx, r.pool)
	rows, err := executor.Query(ctx, query, models.JobRunStarting, limit)
	if err != nil {
		return nil, fmt.Errorf("list starting runs: %w", err)
	}
	defer rows.Close()

	var runs []models.JobRun
	for rows.Next() {
		var run models.JobRun
		err := rows.Scan(
			&run.ID,
			&run.VideoJobID,
			&run.RunType,
			&run.Status,
			&run.WorkerRef,
			&run.Error,
			&run.Metadata,
			&run.CreatedAt,
			&run.StartedAt,
			&run.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job runs: %w", err)
	}

	if runs == nil {
		runs = []models.JobRun{}
	}

	return runs, nil
}

// UpdateRunStatus moves a run through starting -> running -> done|failed.
// Timestamps follow the status: running stamps started_at, terminal states
// stamp finished_at.
func (r *PostgresVideoJobRepository) UpdateRunStatus(ctx context.Context, runID, status string, workerRef, errMsg *string) error {
	now := time.Now()
	var startedAt, finishedAt *time.Time
	switch status {
	case models.JobRunRunning:
		startedAt = &now
	case models.JobRunDone, models.JobRunFailed:
		finishedAt = &now
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1,
		    worker_ref = COALESCE($2, worker_ref),
		    error = COALESCE($3, error),
		    started_at = COALESCE($4, started_at),
		    finished_at = COALESCE($5, finished_at)
		WHERE id = $6
	`, r.tables.JobRuns)

	executor := GetExecutor(ctx, r.pool)
	result, err := executor.Exec(ctx, query, status, workerRef, errMsg, startedAt, finishedAt, runID)
	if err != nil {
		return fmt.Errorf("update job run status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("job run %s: %w", runID, domain.ErrNotFound)
	}

	return nil
}

// FinishOpenRuns closes every starting or running run of a job once the job
// reached a terminal state
func (r *PostgresVideoJobRepository) FinishOpenRuns(ctx context.Context, jobID, status string, errMsg *string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET status = $1,
		    error = COALESCE($2, error),
		    finished_at = $3
		WHERE video_job_id = $4 AND status IN ($5, $6)
	`, r.tables.JobRuns)

	executor := GetExecutor(ctx, r.pool)
	_, err := executor.Exec(ctx, query, status, errMsg, time.Now(), jobID, models.JobRunStarting, models.JobRunRunning)
	if err != nil {
		return fmt.Errorf("finish open runs: %w", err)
	}

	return nil
}

func scanVideoJob(scan func(dest ...any) error) (*models.VideoJob, error) {
	var job models.VideoJob
	err := scan(
		&job.ID,
		&job.UserID,
		&job.DebateID,
		&job.Status,
		&job.TokensReserved,
		&job.Refunded,
		&job.InputRefs,
		&job.OutputPath,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
