package models

import "time"

// Payment event statuses.
const (
	PaymentEventReceived  = "received"
	PaymentEventProcessed = "processed"
)

// PaymentEvent records one inbound gateway notification. The UNIQUE
// (provider, event_id) constraint is the sole de-duplication guard: the
// ingestor inserts first and treats a duplicate-key failure as "already
// handled".
type PaymentEvent struct {
	ID          string    `json:"id" db:"id"`
	Provider    string    `json:"provider" db:"provider"`
	EventID     string    `json:"event_id" db:"event_id"`
	UserID      string    `json:"user_id" db:"user_id"`
	AmountCents *int      `json:"amount_cents,omitempty" db:"amount_cents"`
	TokensAdded int       `json:"tokens_added" db:"tokens_added"`
	Status      string    `json:"status" db:"status"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
