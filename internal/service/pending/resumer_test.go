package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"concord/internal/config"
	"concord/internal/domain"
	"concord/internal/domain/models"
	"concord/internal/service/ledger"
)

type fakePendingRepo struct {
	rows   []*models.PendingRequest
	nextID int
}

func (f *fakePendingRepo) CreatePending(_ context.Context, pending *models.PendingRequest) error {
	f.nextID++
	pending.ID = fmt.Sprintf("pending-%d", f.nextID)
	stored := *pending
	f.rows = append(f.rows, &stored)
	return nil
}

func (f *fakePendingRepo) GetLatestPending(_ context.Context, userID string) (*models.PendingRequest, error) {
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].UserID == userID {
			out := *f.rows[i]
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakePendingRepo) DeletePending(_ context.Context, pendingID string) error {
	for i, row := range f.rows {
		if row.ID == pendingID {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type fakeBalanceRepo struct {
	balance int
	refunds int
}

func (f *fakeBalanceRepo) GetProfile(_ context.Context, userID string) (*models.Profile, error) {
	return &models.Profile{ID: userID, TokenBalance: f.balance}, nil
}

func (f *fakeBalanceRepo) ReserveBalance(_ context.Context, _ string, amount int) error {
	if f.balance < amount {
		return &domain.InsufficientTokensError{Required: amount, Available: f.balance}
	}
	f.balance -= amount
	return nil
}

// AddBalance honors context cancellation the way pgx does.
func (f *fakeBalanceRepo) AddBalance(ctx context.Context, _ string, amount int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.balance += amount
	f.refunds++
	return nil
}

func (f *fakeBalanceRepo) MarkFreeTrialUsed(_ context.Context, _ string) error {
	return domain.ErrConflict
}

func (f *fakeBalanceRepo) ClearFreeTrialUsed(_ context.Context, _ string) error {
	return domain.ErrConflict
}

func (f *fakeBalanceRepo) AppendEntry(_ context.Context, _ *models.LedgerEntry) error {
	return nil
}

func (f *fakeBalanceRepo) ListEntries(_ context.Context, _ string, _ int) ([]models.LedgerEntry, error) {
	return nil, nil
}

type fakeStarter struct {
	started []string // debate ids
	err     error
	onStart func()
}

func (f *fakeStarter) StartReserved(_ context.Context, _, debateID string, _ []string, _ int) (*models.VideoJob, error) {
	if f.onStart != nil {
		f.onStart()
	}
	if f.err != nil {
		return nil, f.err
	}
	f.started = append(f.started, debateID)
	return &models.VideoJob{ID: "job-1", DebateID: debateID}, nil
}

func newTestResumer(balance int, starter ComposeStarter, now time.Time) (*Resumer, *fakePendingRepo, *fakeBalanceRepo) {
	logger := slog.Default()
	pendings := &fakePendingRepo{}
	balances := &fakeBalanceRepo{balance: balance}
	ledgerSvc := ledger.NewService(balances, config.DefaultCostTable(), false, logger)

	r := NewResumer(pendings, ledgerSvc, starter, logger)
	r.now = func() time.Time { return now }
	return r, pendings, balances
}

func deferCompose(t *testing.T, r *Resumer, tokens int, ttl time.Duration) *models.PendingRequest {
	t.Helper()
	payload := ComposePayload("debate-1", []string{"media/a.png"})
	pending, err := r.Defer(context.Background(), "user-1", models.PendingKindVideoCompose, payload, tokens, ttl)
	if err != nil {
		t.Fatalf("Defer: %v", err)
	}
	return pending
}

func TestResumeNoPending(t *testing.T) {
	r, _, _ := newTestResumer(100, &fakeStarter{}, time.Now())

	resumed, err := r.Resume(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed {
		t.Error("resumed without a pending row")
	}
}

func TestResumeStartsDeferredCompose(t *testing.T) {
	now := time.Now()
	starter := &fakeStarter{}
	r, pendings, balances := newTestResumer(100, starter, now)

	deferCompose(t, r, 25, time.Hour)

	resumed, err := r.Resume(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !resumed {
		t.Fatal("deferred compose not resumed")
	}

	if balances.balance != 75 {
		t.Errorf("balance = %d, want 75", balances.balance)
	}
	if len(starter.started) != 1 || starter.started[0] != "debate-1" {
		t.Errorf("started = %v, want [debate-1]", starter.started)
	}
	if len(pendings.rows) != 0 {
		t.Errorf("pending row survived a successful resume: %d rows", len(pendings.rows))
	}
}

func TestResumeKeepsRowWhenStillShort(t *testing.T) {
	starter := &fakeStarter{}
	r, pendings, balances := newTestResumer(10, starter, time.Now())

	deferCompose(t, r, 25, time.Hour)

	resumed, err := r.Resume(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("a short balance is not an error: %v", err)
	}
	if resumed {
		t.Error("resumed despite short balance")
	}

	if balances.balance != 10 {
		t.Errorf("balance mutated: %d", balances.balance)
	}
	if len(starter.started) != 0 {
		t.Errorf("compose started despite short balance: %v", starter.started)
	}
	// Row stays for the next top-up
	if len(pendings.rows) != 1 {
		t.Errorf("pending rows = %d, want 1", len(pendings.rows))
	}
}

func TestResumeDeletesExpiredRow(t *testing.T) {
	now := time.Now()
	r, pendings, _ := newTestResumer(100, &fakeStarter{}, now)

	deferCompose(t, r, 25, time.Minute)
	r.now = func() time.Time { return now.Add(2 * time.Minute) }

	resumed, err := r.Resume(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed {
		t.Error("expired row resumed")
	}
	if len(pendings.rows) != 0 {
		t.Errorf("expired row not deleted: %d rows", len(pendings.rows))
	}
}

func TestResumeRefundsWhenStartFails(t *testing.T) {
	starter := &fakeStarter{err: errors.New("queue unavailable")}
	r, pendings, balances := newTestResumer(100, starter, time.Now())

	deferCompose(t, r, 25, time.Hour)

	if _, err := r.Resume(context.Background(), "user-1"); err == nil {
		t.Fatal("start failure swallowed")
	}

	if balances.balance != 100 {
		t.Errorf("reservation not returned: balance = %d, want 100", balances.balance)
	}
	if balances.refunds != 1 {
		t.Errorf("refunds = %d, want 1", balances.refunds)
	}
	if len(pendings.rows) != 1 {
		t.Errorf("row deleted on a retryable failure: %d rows", len(pendings.rows))
	}
}

func TestResumeRefundsWhenStartDiesWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The queue call times out and takes the request context with it
	starter := &fakeStarter{err: errors.New("queue timeout"), onStart: cancel}
	r, pendings, balances := newTestResumer(100, starter, time.Now())

	deferCompose(t, r, 25, time.Hour)

	if _, err := r.Resume(ctx, "user-1"); err == nil {
		t.Fatal("start failure swallowed")
	}

	if balances.balance != 100 {
		t.Errorf("reservation not returned: balance = %d, want 100", balances.balance)
	}
	if len(pendings.rows) != 1 {
		t.Errorf("row deleted on a retryable failure: %d rows", len(pendings.rows))
	}
}

func TestResumeDropsRowWhenComposeInFlight(t *testing.T) {
	starter := &fakeStarter{err: fmt.Errorf("already in flight: %w", domain.ErrConflict)}
	r, pendings, _ := newTestResumer(100, starter, time.Now())

	deferCompose(t, r, 25, time.Hour)

	resumed, err := r.Resume(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed {
		t.Error("reported a resume that never dispatched")
	}

	// The starter sent the reservation back itself; the satisfied row goes away
	if len(pendings.rows) != 0 {
		t.Errorf("satisfied row kept: %d rows", len(pendings.rows))
	}
	if len(starter.started) != 0 {
		t.Errorf("started = %v, want none", starter.started)
	}
}

func TestResumeDropsInvalidPayload(t *testing.T) {
	r, pendings, balances := newTestResumer(100, &fakeStarter{}, time.Now())

	pending := &models.PendingRequest{
		UserID:         "user-1",
		Kind:           models.PendingKindVideoCompose,
		Payload:        map[string]any{"debate_id": ""},
		TokensRequired: 25,
		ExpiresAt:      time.Now().Add(time.Hour),
	}
	if err := pendings.CreatePending(context.Background(), pending); err != nil {
		t.Fatal(err)
	}

	resumed, err := r.Resume(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed {
		t.Error("invalid payload resumed")
	}
	if len(pendings.rows) != 0 {
		t.Errorf("undecodable row kept: %d rows", len(pendings.rows))
	}
	if balances.balance != 100 {
		t.Errorf("balance mutated: %d", balances.balance)
	}
}

func TestResumeLeavesUnknownKindAlone(t *testing.T) {
	r, pendings, _ := newTestResumer(100, &fakeStarter{}, time.Now())

	pending := &models.PendingRequest{
		UserID:    "user-1",
		Kind:      "debate_run",
		Payload:   map[string]any{},
		ExpiresAt: time.Now().Add(time.Hour),
	}
	if err := pendings.CreatePending(context.Background(), pending); err != nil {
		t.Fatal(err)
	}

	resumed, err := r.Resume(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed {
		t.Error("unknown kind resumed")
	}
	if len(pendings.rows) != 1 {
		t.Errorf("unknown kind row touched: %d rows", len(pendings.rows))
	}
}

func TestResumeLatestRowWins(t *testing.T) {
	starter := &fakeStarter{}
	r, _, _ := newTestResumer(100, starter, time.Now())

	older := ComposePayload("debate-old", []string{"media/old.png"})
	if _, err := r.Defer(context.Background(), "user-1", models.PendingKindVideoCompose, older, 10, time.Hour); err != nil {
		t.Fatal(err)
	}
	newer := ComposePayload("debate-new", []string{"media/new.png"})
	if _, err := r.Defer(context.Background(), "user-1", models.PendingKindVideoCompose, newer, 10, time.Hour); err != nil {
		t.Fatal(err)
	}

	if _, err := r.Resume(context.Background(), "user-1"); err != nil {
		t.Fatal(err)
	}
	if len(starter.started) != 1 || starter.started[0] != "debate-new" {
		t.Errorf("started = %v, want [debate-new]", starter.started)
	}
}

func TestComposePayloadRoundTrip(t *testing.T) {
	payload := ComposePayload("debate-9", []string{"a", "b", "c"})

	debateID, refs, err := decodeComposePayload(payload)
	if err != nil {
		t.Fatalf("decodeComposePayload: %v", err)
	}
	if debateID != "debate-9" {
		t.Errorf("debate_id = %s", debateID)
	}
	if len(refs) != 3 || refs[0] != "a" || refs[2] != "c" {
		t.Errorf("refs = %v", refs)
	}
}
