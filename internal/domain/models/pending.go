package models

import "time"

// Pending request kinds the resumer knows how to restart.
const (
	PendingKindVideoCompose = "video_compose"
)

// PendingRequest is a deferred action blocked on insufficient tokens,
// resumable after a top-up. Rows are deleted once resumed or expired; the
// latest non-expired row per user wins, older ones are abandoned.
type PendingRequest struct {
	ID             string         `json:"id" db:"id"`
	UserID         string         `json:"user_id" db:"user_id"`
	Kind           string         `json:"kind" db:"kind"`
	Payload        map[string]any `json:"payload" db:"payload"`
	TokensRequired int            `json:"tokens_required" db:"tokens_required"`
	ExpiresAt      time.Time      `json:"expires_at" db:"expires_at"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
}

// Expired reports whether the request is past its deadline at the given time.
func (p *PendingRequest) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}
