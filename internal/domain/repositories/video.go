package repositories

import (
	"context"

	"concord/internal/domain/models"
)

// VideoJobRepository persists compose jobs and their execution runs.
type VideoJobRepository interface {
	// CreateJob inserts a new job.
	CreateJob(ctx context.Context, job *models.VideoJob) error

	// GetJob retrieves a job scoped to its owner.
	GetJob(ctx context.Context, jobID, userID string) (*models.VideoJob, error)

	// GetJobByID retrieves a job without an owner scope (worker callbacks).
	GetJobByID(ctx context.Context, jobID string) (*models.VideoJob, error)

	// GetActiveJobForDebate returns the pending or composing job for a
	// debate, or domain.ErrNotFound.
	GetActiveJobForDebate(ctx context.Context, debateID string) (*models.VideoJob, error)

	// UpdateJobStatus sets the job status and, for terminal states, the
	// output path or error message.
	UpdateJobStatus(ctx context.Context, jobID, status string, outputPath, errMsg *string) error

	// MarkRefunded flips refunded false -> true. Returns domain.ErrConflict
	// when the job was already refunded, so the refund runs at most once.
	MarkRefunded(ctx context.Context, jobID string) error

	// CreateRun inserts an execution attempt record.
	CreateRun(ctx context.Context, run *models.JobRun) error

	// ListStartingRuns returns runs awaiting dispatch, oldest first.
	ListStartingRuns(ctx context.Context, limit int) ([]models.JobRun, error)

	// UpdateRunStatus moves a run through starting -> running -> done|failed.
	UpdateRunStatus(ctx context.Context, runID, status string, workerRef, errMsg *string) error

	// FinishOpenRuns closes every non-terminal run of a job when a worker
	// callback settles it.
	FinishOpenRuns(ctx context.Context, jobID, status string, errMsg *string) error
}
