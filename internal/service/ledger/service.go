package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"concord/internal/config"
	"concord/internal/domain"
	"concord/internal/domain/models"
	"concord/internal/domain/repositories"
)

// Service owns every token balance mutation. Reservations decrement up front,
// refunds restore, and only finalized charges and credits produce ledger
// entries. The balance itself is never read to make a decision; the
// conditional updates in the repository carry the race safety.
type Service struct {
	repo      repositories.LedgerRepository
	costs     *config.CostTable
	freeTrial bool
	logger    *slog.Logger
}

// NewService creates a new ledger service
func NewService(repo repositories.LedgerRepository, costs *config.CostTable, freeTrial bool, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		costs:     costs,
		freeTrial: freeTrial,
		logger:    logger,
	}
}

// Reserve holds amount tokens ahead of work. Returns
// domain.InsufficientTokensError when the balance does not cover it.
func (s *Service) Reserve(ctx context.Context, userID string, amount int) error {
	if err := s.repo.ReserveBalance(ctx, userID, amount); err != nil {
		return err
	}

	s.logger.Debug("tokens reserved", "user_id", userID, "amount", amount)
	return nil
}

// Refund returns a reservation after a failure. A refund that cannot be
// applied is logged, not surfaced: the caller is already on a failure path
// and the audit trail is the log line.
func (s *Service) Refund(ctx context.Context, userID string, amount int) {
	if amount <= 0 {
		return
	}

	if err := s.repo.AddBalance(ctx, userID, amount); err != nil {
		s.logger.Error("refund failed", "user_id", userID, "amount", amount, "error", err)
		return
	}

	s.logger.Info("tokens refunded", "user_id", userID, "amount", amount)
}

// Debit records a finalized charge as a negative ledger entry. The balance
// was already decremented by the reservation; this writes the audit row only.
func (s *Service) Debit(ctx context.Context, userID string, amount int, description string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive, got %d: %w", amount, domain.ErrValidation)
	}

	entry := &models.LedgerEntry{
		UserID:      userID,
		Amount:      -amount,
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.AppendEntry(ctx, entry); err != nil {
		return err
	}

	s.logger.Info("charge finalized", "user_id", userID, "amount", amount, "description", description)
	return nil
}

// Credit adds purchased tokens and records a positive ledger entry.
func (s *Service) Credit(ctx context.Context, userID string, amount int, description string) error {
	if err := s.repo.AddBalance(ctx, userID, amount); err != nil {
		return err
	}

	entry := &models.LedgerEntry{
		UserID:      userID,
		Amount:      amount,
		Description: description,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.AppendEntry(ctx, entry); err != nil {
		return err
	}

	s.logger.Info("tokens credited", "user_id", userID, "amount", amount, "description", description)
	return nil
}

// ClaimFreeTrial tries to claim the user's one free all-text session. The
// claim is the conditional flag flip itself, so two concurrent first sessions
// cannot both ride the carve-out. Returns false when the plan has non-text
// steps or the trial is already claimed.
func (s *Service) ClaimFreeTrial(ctx context.Context, userID string, taskTypes []models.TaskType) (bool, error) {
	if !s.freeTrial {
		return false, nil
	}
	for _, t := range taskTypes {
		if t != models.TaskText {
			return false, nil
		}
	}

	if err := s.repo.MarkFreeTrialUsed(ctx, userID); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return false, nil
		}
		return false, err
	}

	s.logger.Info("free trial claimed", "user_id", userID)
	return true, nil
}

// ReleaseFreeTrial hands a claimed trial back after the session failed, so
// the failure does not consume the user's only carve-out. Like Refund, a
// release that cannot be applied is logged, not surfaced.
func (s *Service) ReleaseFreeTrial(ctx context.Context, userID string) {
	if err := s.repo.ClearFreeTrialUsed(ctx, userID); err != nil {
		s.logger.Error("trial release failed", "user_id", userID, "error", err)
		return
	}

	s.logger.Info("free trial released", "user_id", userID)
}

// Balance returns the user's profile with balance and trial flag.
func (s *Service) Balance(ctx context.Context, userID string) (*models.Profile, error) {
	return s.repo.GetProfile(ctx, userID)
}

// Entries returns the user's ledger entries, newest first.
func (s *Service) Entries(ctx context.Context, userID string, limit int) ([]models.LedgerEntry, error) {
	return s.repo.ListEntries(ctx, userID, limit)
}
