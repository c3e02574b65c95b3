package ledger

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"concord/internal/config"
	"concord/internal/domain"
	"concord/internal/domain/models"
)

// fakeLedgerRepo guards every mutation with a mutex so concurrent service
// calls exercise the same conditional semantics the SQL statements carry.
type fakeLedgerRepo struct {
	mu        sync.Mutex
	balance   int
	trialUsed bool
	entries   []models.LedgerEntry
}

func (f *fakeLedgerRepo) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &models.Profile{ID: userID, TokenBalance: f.balance, FreeTrialUsed: f.trialUsed}, nil
}

func (f *fakeLedgerRepo) ReserveBalance(_ context.Context, _ string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.balance < amount {
		return &domain.InsufficientTokensError{Required: amount, Available: f.balance}
	}
	f.balance -= amount
	return nil
}

func (f *fakeLedgerRepo) AddBalance(_ context.Context, _ string, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balance += amount
	return nil
}

func (f *fakeLedgerRepo) MarkFreeTrialUsed(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.trialUsed {
		return domain.ErrConflict
	}
	f.trialUsed = true
	return nil
}

func (f *fakeLedgerRepo) ClearFreeTrialUsed(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.trialUsed {
		return domain.ErrConflict
	}
	f.trialUsed = false
	return nil
}

func (f *fakeLedgerRepo) AppendEntry(_ context.Context, entry *models.LedgerEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeLedgerRepo) ListEntries(_ context.Context, _ string, _ int) ([]models.LedgerEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entries, nil
}

func newTestService(repo *fakeLedgerRepo, freeTrial bool) *Service {
	return NewService(repo, config.DefaultCostTable(), freeTrial, slog.Default())
}

// Concurrent reserves summing past the balance must not all succeed. The
// service leans entirely on the repository's conditional decrement; a
// read-then-write around it would let losers through here.
func TestReserveConcurrentNeverOversells(t *testing.T) {
	repo := &fakeLedgerRepo{balance: 10}
	svc := newTestService(repo, false)

	const (
		workers = 8
		amount  = 3
	)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := svc.Reserve(context.Background(), "user-1", amount); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if got := successes * amount; got > 10 {
		t.Errorf("reserved %d tokens from a balance of 10", got)
	}
	if repo.balance < 0 {
		t.Errorf("balance went negative: %d", repo.balance)
	}
	if repo.balance != 10-successes*amount {
		t.Errorf("balance = %d, want %d after %d reserves", repo.balance, 10-successes*amount, successes)
	}
}

func TestClaimFreeTrialSingleUse(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc := newTestService(repo, true)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	claims := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := svc.ClaimFreeTrial(context.Background(), "user-1", []models.TaskType{models.TaskText})
			if err != nil {
				t.Errorf("ClaimFreeTrial: %v", err)
				return
			}
			if ok {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Errorf("claims = %d, want exactly 1", claims)
	}
}

func TestClaimFreeTrialRejectsMediaPlans(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc := newTestService(repo, true)

	ok, err := svc.ClaimFreeTrial(context.Background(), "user-1", []models.TaskType{models.TaskText, models.TaskVideo})
	if err != nil || ok {
		t.Fatalf("ClaimFreeTrial = %v/%v, want false/nil", ok, err)
	}
	if repo.trialUsed {
		t.Error("flag flipped for a media plan")
	}
}

func TestReleaseFreeTrialRestoresClaim(t *testing.T) {
	repo := &fakeLedgerRepo{}
	svc := newTestService(repo, true)

	ok, err := svc.ClaimFreeTrial(context.Background(), "user-1", []models.TaskType{models.TaskText})
	if err != nil || !ok {
		t.Fatalf("ClaimFreeTrial = %v/%v, want true/nil", ok, err)
	}

	svc.ReleaseFreeTrial(context.Background(), "user-1")
	if repo.trialUsed {
		t.Error("release left the flag set")
	}

	ok, err = svc.ClaimFreeTrial(context.Background(), "user-1", []models.TaskType{models.TaskText})
	if err != nil || !ok {
		t.Fatalf("claim after release = %v/%v, want true/nil", ok, err)
	}
}
