package video

import (
	"context"
	"log/slog"
	"time"

	"concord/internal/domain/models"
	"concord/internal/domain/repositories"
)

const pollBatchSize = 10

// Dispatcher hands a queued job to the external compose worker.
type Dispatcher interface {
	Dispatch(ctx context.Context, job *models.VideoJob) (workerRef string, err error)
}

// Worker drains queued compose runs on a ticker. Handlers only ever insert
// runs in the starting state; this loop is the single place that talks to
// the compose worker, so a dispatch outage never blocks a request.
type Worker struct {
	jobs       repositories.VideoJobRepository
	manager    *Manager
	dispatcher Dispatcher
	period     time.Duration
	logger     *slog.Logger
}

// NewWorker creates the dispatch loop
func NewWorker(
	jobs repositories.VideoJobRepository,
	manager *Manager,
	dispatcher Dispatcher,
	period time.Duration,
	logger *slog.Logger,
) *Worker {
	if period <= 0 {
		period = 15 * time.Second
	}
	return &Worker{
		jobs:       jobs,
		manager:    manager,
		dispatcher: dispatcher,
		period:     period,
		logger:     logger,
	}
}

// Run polls until the context is cancelled. Intended as a goroutine from main.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	w.logger.Info("compose worker loop started", "period", w.period)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("compose worker loop stopped")
			return
		case <-ticker.C:
			if err := w.Poll(ctx); err != nil {
				w.logger.Error("compose poll failed", "error", err)
			}
		}
	}
}

// Poll dispatches one batch of starting runs. Each run is handled
// independently; one bad job does not stall the batch.
func (w *Worker) Poll(ctx context.Context) error {
	runs, err := w.jobs.ListStartingRuns(ctx, pollBatchSize)
	if err != nil {
		return err
	}

	for i := range runs {
		w.dispatchRun(ctx, &runs[i])
	}
	return nil
}

func (w *Worker) dispatchRun(ctx context.Context, run *models.JobRun) {
	job, err := w.jobs.GetJobByID(ctx, run.VideoJobID)
	if err != nil {
		w.logger.Error("run references missing job", "run_id", run.ID, "job_id", run.VideoJobID, "error", err)
		msg := "job row missing"
		if err := w.jobs.UpdateRunStatus(ctx, run.ID, models.JobRunFailed, nil, &msg); err != nil {
			w.logger.Error("mark run failed", "run_id", run.ID, "error", err)
		}
		return
	}

	if err := w.jobs.UpdateRunStatus(ctx, run.ID, models.JobRunRunning, nil, nil); err != nil {
		w.logger.Error("mark run running", "run_id", run.ID, "error", err)
		return
	}

	workerRef, err := w.dispatcher.Dispatch(ctx, job)
	if err != nil {
		w.logger.Warn("dispatch failed", "run_id", run.ID, "job_id", job.ID, "error", err)
		msg := err.Error()
		if err := w.jobs.UpdateRunStatus(ctx, run.ID, models.JobRunFailed, nil, &msg); err != nil {
			w.logger.Error("mark run failed", "run_id", run.ID, "error", err)
		}
		if err := w.manager.FailJob(ctx, job.ID, "dispatch failed: "+msg); err != nil {
			w.logger.Error("fail job after dispatch error", "job_id", job.ID, "error", err)
		}
		return
	}

	if err := w.jobs.UpdateRunStatus(ctx, run.ID, models.JobRunRunning, &workerRef, nil); err != nil {
		w.logger.Error("record worker ref", "run_id", run.ID, "error", err)
	}
	if err := w.jobs.UpdateJobStatus(ctx, job.ID, models.VideoJobComposing, nil, nil); err != nil {
		w.logger.Error("mark job composing", "job_id", job.ID, "error", err)
	}

	w.logger.Info("compose dispatched", "job_id", job.ID, "run_id", run.ID, "worker_ref", workerRef)
}
