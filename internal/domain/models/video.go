package models

import "time"

// Video job statuses. Forward-only: pending -> composing -> done|failed.
// The refunded flag is the only field that changes after a terminal status,
// and it is set at most once.
const (
	VideoJobPending   = "pending"
	VideoJobComposing = "composing"
	VideoJobDone      = "done"
	VideoJobFailed    = "failed"
)

// Job run statuses for execution tracking.
const (
	JobRunStarting = "starting"
	JobRunRunning  = "running"
	JobRunFailed   = "failed"
	JobRunDone     = "done"
)

// JobRunTypeCompose is the only run type the worker currently dispatches.
const JobRunTypeCompose = "compose"

// VideoJob coordinates a long-running external compose worker.
type VideoJob struct {
	ID             string    `json:"id" db:"id"`
	UserID         string    `json:"user_id" db:"user_id"`
	DebateID       string    `json:"debate_id" db:"debate_id"`
	Status         string    `json:"status" db:"status"`
	TokensReserved int       `json:"tokens_reserved" db:"tokens_reserved"`
	Refunded       bool      `json:"refunded" db:"refunded"`
	InputRefs      []string  `json:"input_refs" db:"input_refs"`
	OutputPath     string    `json:"output_path" db:"output_path"`
	Error          *string   `json:"error,omitempty" db:"error"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Active reports whether the job still occupies its debate's compose slot.
func (j *VideoJob) Active() bool {
	return j.Status == VideoJobPending || j.Status == VideoJobComposing
}

// JobRun is one execution attempt of a video job.
type JobRun struct {
	ID         string         `json:"id" db:"id"`
	VideoJobID string         `json:"video_job_id" db:"video_job_id"`
	RunType    string         `json:"run_type" db:"run_type"`
	Status     string         `json:"status" db:"status"`
	WorkerRef  *string        `json:"worker_ref,omitempty" db:"worker_ref"`
	Error      *string        `json:"error,omitempty" db:"error"`
	Metadata   map[string]any `json:"metadata,omitempty" db:"metadata"`
	CreatedAt  time.Time      `json:"created_at" db:"created_at"`
	StartedAt  *time.Time     `json:"started_at,omitempty" db:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty" db:"finished_at"`
}
