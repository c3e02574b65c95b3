package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"concord/internal/domain"
	"concord/internal/domain/models"
	"concord/internal/domain/repositories"
	"concord/internal/service/ledger"
	"concord/internal/service/notify"
)

// Manager owns the compose job state machine: pending -> composing ->
// done|failed, forward-only. The refunded flag's conditional flip is the
// at-most-once refund guard; only the winner of that update touches the
// ledger.
type Manager struct {
	jobs     repositories.VideoJobRepository
	ledger   *ledger.Service
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewManager creates a video job manager
func NewManager(
	jobs repositories.VideoJobRepository,
	ledgerSvc *ledger.Service,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Manager {
	return &Manager{
		jobs:     jobs,
		ledger:   ledgerSvc,
		notifier: notifier,
		logger:   logger,
	}
}

// StartRequest asks for one composition over a debate's media artifacts.
type StartRequest struct {
	UserID      string
	DebateID    string
	InputRefs   []string
	DurationSec int
}

func (r StartRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.DebateID, validation.Required),
		validation.Field(&r.InputRefs, validation.Required, validation.Length(1, 100)),
	)
}

// StartResult reports what StartCompose did.
type StartResult struct {
	Job            *models.VideoJob
	AlreadyRunning bool
	TokensReserved int
}

// StartCompose prices the composition, reserves, and enqueues the job.
// Single-flight per debate: an existing pending or composing job is returned
// as is instead of creating a second one, before any reservation is made.
func (m *Manager) StartCompose(ctx context.Context, req StartRequest) (*StartResult, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	if existing, err := m.jobs.GetActiveJobForDebate(ctx, req.DebateID); err == nil {
		m.logger.Info("compose already in flight", "debate_id", req.DebateID, "job_id", existing.ID)
		return &StartResult{Job: existing, AlreadyRunning: true}, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	tokens := m.ledger.ComposeTokens(req.DurationSec)
	if tokens > 0 {
		if err := m.ledger.Reserve(ctx, req.UserID, tokens); err != nil {
			return nil, err
		}
	}

	job, err := m.startJob(ctx, req.UserID, req.DebateID, req.InputRefs, tokens)
	if err != nil {
		if tokens > 0 {
			// The reservation goes back even when the request context died
			// between the reserve and the insert.
			m.ledger.Refund(context.WithoutCancel(ctx), req.UserID, tokens)
		}
		return nil, err
	}

	return &StartResult{Job: job, TokensReserved: tokens}, nil
}

// StartReserved enqueues a job whose tokens were already reserved by the
// caller (the pending-request resumer). The single-flight check still
// applies; a job already in flight sends the reservation back and surfaces
// domain.ErrConflict alongside the existing job, so the caller does not
// report a dispatch that never happened.
func (m *Manager) StartReserved(ctx context.Context, userID, debateID string, inputRefs []string, tokensReserved int) (*models.VideoJob, error) {
	if existing, err := m.jobs.GetActiveJobForDebate(ctx, debateID); err == nil {
		if tokensReserved > 0 {
			m.ledger.Refund(context.WithoutCancel(ctx), userID, tokensReserved)
		}
		return existing, fmt.Errorf("compose for debate %s already in flight: %w", debateID, domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	return m.startJob(ctx, userID, debateID, inputRefs, tokensReserved)
}

// startJob inserts the job row plus its dispatch run. The worker loop picks
// up the run; nothing is dispatched inline.
func (m *Manager) startJob(ctx context.Context, userID, debateID string, inputRefs []string, tokens int) (*models.VideoJob, error) {
	now := time.Now()
	job := &models.VideoJob{
		UserID:         userID,
		DebateID:       debateID,
		Status:         models.VideoJobPending,
		TokensReserved: tokens,
		InputRefs:      inputRefs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := m.jobs.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	run := &models.JobRun{
		VideoJobID: job.ID,
		RunType:    models.JobRunTypeCompose,
		Status:     models.JobRunStarting,
		CreatedAt:  now,
	}
	if err := m.jobs.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	m.logger.Info("compose job queued",
		"job_id", job.ID,
		"debate_id", debateID,
		"tokens_reserved", tokens,
	)
	return job, nil
}

// JobStatus is the caller polling surface.
func (m *Manager) JobStatus(ctx context.Context, userID, jobID string) (*models.VideoJob, error) {
	return m.jobs.GetJob(ctx, jobID, userID)
}

// CompleteJob is the worker callback for a finished composition. The job
// moves composing -> done and the reservation settles into a ledger charge.
func (m *Manager) CompleteJob(ctx context.Context, jobID, outputRef string) error {
	job, err := m.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Active() {
		return fmt.Errorf("job %s is already %s: %w", jobID, job.Status, domain.ErrConflict)
	}

	if err := m.jobs.UpdateJobStatus(ctx, jobID, models.VideoJobDone, &outputRef, nil); err != nil {
		return err
	}
	if err := m.jobs.FinishOpenRuns(ctx, jobID, models.JobRunDone, nil); err != nil {
		m.logger.Error("close job runs", "job_id", jobID, "error", err)
	}

	if job.TokensReserved > 0 {
		if err := m.ledger.Debit(ctx, job.UserID, job.TokensReserved, fmt.Sprintf("video compose %s", jobID)); err != nil {
			m.logger.Error("compose debit entry failed", "job_id", jobID, "error", err)
		}
	}

	m.notifyBestEffort(ctx, notify.Notification{
		UserID: job.UserID,
		Kind:   notify.KindVideoDone,
		Title:  "Video ready",
		Body:   "Your composed video is ready to watch.",
	})

	m.logger.Info("compose job done", "job_id", jobID, "output", outputRef)
	return nil
}

// FailJob is the worker callback for a failed composition. The reservation
// is refunded through the guard, so repeated failure callbacks refund once.
func (m *Manager) FailJob(ctx context.Context, jobID, reason string) error {
	job, err := m.jobs.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if !job.Active() {
		return fmt.Errorf("job %s is already %s: %w", jobID, job.Status, domain.ErrConflict)
	}

	if err := m.jobs.UpdateJobStatus(ctx, jobID, models.VideoJobFailed, nil, &reason); err != nil {
		return err
	}
	if err := m.jobs.FinishOpenRuns(ctx, jobID, models.JobRunFailed, &reason); err != nil {
		m.logger.Error("close job runs", "job_id", jobID, "error", err)
	}

	m.refundOnce(ctx, job)

	m.notifyBestEffort(ctx, notify.Notification{
		UserID: job.UserID,
		Kind:   notify.KindVideoFailed,
		Title:  "Video composition failed",
		Body:   "Composition failed and your reserved tokens were returned.",
	})

	m.logger.Warn("compose job failed", "job_id", jobID, "reason", reason)
	return nil
}

// refundOnce flips the refunded flag and, only on winning the flip, returns
// the reservation to the balance.
func (m *Manager) refundOnce(ctx context.Context, job *models.VideoJob) {
	if job.TokensReserved <= 0 {
		return
	}

	if err := m.jobs.MarkRefunded(ctx, job.ID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			m.logger.Info("refund already issued", "job_id", job.ID)
			return
		}
		m.logger.Error("refund guard update failed", "job_id", job.ID, "error", err)
		return
	}

	m.ledger.Refund(ctx, job.UserID, job.TokensReserved)
}

func (m *Manager) notifyBestEffort(ctx context.Context, n notify.Notification) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("notification send failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}
}
