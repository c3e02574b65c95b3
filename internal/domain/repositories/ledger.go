package repositories

import (
	"context"

	"concord/internal/domain/models"
)

// LedgerRepository owns all balance mutation. Every method that changes
// token_balance is a single atomic statement; callers never read-then-write.
type LedgerRepository interface {
	// GetProfile reads the user's balance and trial flag.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)

	// ReserveBalance conditionally decrements the balance. Returns
	// domain.ErrInsufficientTokens (without mutating) when the balance
	// does not cover the amount.
	ReserveBalance(ctx context.Context, userID string, amount int) error

	// AddBalance unconditionally increments the balance (refunds, credits).
	AddBalance(ctx context.Context, userID string, amount int) error

	// MarkFreeTrialUsed flips free_trial_used false -> true. Returns
	// domain.ErrConflict when the flag was already set.
	MarkFreeTrialUsed(ctx context.Context, userID string) error

	// ClearFreeTrialUsed flips free_trial_used true -> false, releasing a
	// claim whose session failed. Returns domain.ErrConflict when the flag
	// was already clear.
	ClearFreeTrialUsed(ctx context.Context, userID string) error

	// AppendEntry records an immutable ledger entry.
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error

	// ListEntries returns the user's ledger entries, newest first.
	ListEntries(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error)
}
