package models

import "time"

// Profile holds the caller identity's token balance and trial state.
// The balance is mutated only through the ledger's atomic primitives.
type Profile struct {
	ID            string    `json:"id" db:"id"`
	Email         *string   `json:"email,omitempty" db:"email"`
	TokenBalance  int       `json:"token_balance" db:"token_balance"`
	FreeTrialUsed bool      `json:"free_trial_used" db:"free_trial_used"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// LedgerEntry is an immutable audit record of a finalized balance change.
// Negative amounts are charges, positive amounts are credits.
type LedgerEntry struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Amount      int       `json:"amount" db:"amount"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
