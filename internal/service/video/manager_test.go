package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"concord/internal/config"
	"concord/internal/domain"
	"concord/internal/domain/models"
	"concord/internal/service/ledger"
)

type fakeJobRepo struct {
	jobs       map[string]*models.VideoJob
	runs       map[string]*models.JobRun
	nextID     int
	failCreate func() error // when set, CreateJob calls it instead of storing
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{
		jobs: make(map[string]*models.VideoJob),
		runs: make(map[string]*models.JobRun),
	}
}

func (f *fakeJobRepo) CreateJob(_ context.Context, job *models.VideoJob) error {
	if f.failCreate != nil {
		return f.failCreate()
	}
	f.nextID++
	job.ID = fmt.Sprintf("job-%d", f.nextID)
	stored := *job
	f.jobs[job.ID] = &stored
	return nil
}

func (f *fakeJobRepo) GetJob(_ context.Context, jobID, userID string) (*models.VideoJob, error) {
	j, ok := f.jobs[jobID]
	if !ok || j.UserID != userID {
		return nil, domain.ErrNotFound
	}
	out := *j
	return &out, nil
}

func (f *fakeJobRepo) GetJobByID(_ context.Context, jobID string) (*models.VideoJob, error) {
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := *j
	return &out, nil
}

func (f *fakeJobRepo) GetActiveJobForDebate(_ context.Context, debateID string) (*models.VideoJob, error) {
	for _, j := range f.jobs {
		if j.DebateID == debateID && j.Active() {
			out := *j
			return &out, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) UpdateJobStatus(_ context.Context, jobID, status string, outputPath, errMsg *string) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	j.Status = status
	if outputPath != nil {
		j.OutputPath = *outputPath
	}
	if errMsg != nil {
		j.Error = errMsg
	}
	return nil
}

func (f *fakeJobRepo) MarkRefunded(_ context.Context, jobID string) error {
	j, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if j.Refunded {
		return domain.ErrConflict
	}
	j.Refunded = true
	return nil
}

func (f *fakeJobRepo) CreateRun(_ context.Context, run *models.JobRun) error {
	f.nextID++
	run.ID = fmt.Sprintf("run-%d", f.nextID)
	stored := *run
	f.runs[run.ID] = &stored
	return nil
}

func (f *fakeJobRepo) ListStartingRuns(_ context.Context, _ int) ([]models.JobRun, error) {
	var out []models.JobRun
	for _, r := range f.runs {
		if r.Status == models.JobRunStarting {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeJobRepo) UpdateRunStatus(_ context.Context, runID, status string, workerRef, errMsg *string) error {
	r, ok := f.runs[runID]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	if workerRef != nil {
		r.WorkerRef = workerRef
	}
	if errMsg != nil {
		r.Error = errMsg
	}
	return nil
}

func (f *fakeJobRepo) FinishOpenRuns(_ context.Context, jobID, status string, errMsg *string) error {
	for _, r := range f.runs {
		if r.VideoJobID == jobID && (r.Status == models.JobRunStarting || r.Status == models.JobRunRunning) {
			r.Status = status
			if errMsg != nil {
				r.Error = errMsg
			}
		}
	}
	return nil
}

type fakeBalanceRepo struct {
	balance int
	entries []models.LedgerEntry
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

func (f *fakeBalanceRepo) AppendEntry(_ context.Context, entry *models.LedgerEntry) error {
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeBalanceRepo) ListEntries(_ context.Context, _ string, _ int) ([]models.LedgerEntry, error) {
	return f.entries, nil
}

// Default compose rate for tests: $1 per video -> 4 tokens at 3 tokens/USD
// over the 0.75 cost ratio.
const testComposeTokens = 4

func newTestManager(balance int) (*Manager, *fakeJobRepo, *fakeBalanceRepo) {
	logger := slog.Default()
	jobs := newFakeJobRepo()
	balances := &fakeBalanceRepo{balance: balance}

	costs := config.DefaultCostTable()
	costs.Compose = config.ComposeRate{CostPerUnit: 1, Unit: config.UnitPerVideo}
	ledgerSvc := ledger.NewService(balances, costs, false, logger)

	return NewManager(jobs, ledgerSvc, nil, logger), jobs, balances
}

func startRequest() StartRequest {
	return StartRequest{
		UserID:      "user-1",
		DebateID:    "debate-1",
		InputRefs:   []string{"media/a.png", "media/b.mp3"},
		DurationSec: 30,
	}
}

func TestStartComposeReservesAndQueues(t *testing.T) {
	manager, jobs, balances := newTestManager(10)

	result, err := manager.StartCompose(context.Background(), startRequest())
	if err != nil {
		t.Fatalf("StartCompose: %v", err)
	}

	if result.AlreadyRunning {
		t.Error("fresh compose flagged already running")
	}
	if result.TokensReserved != testComposeTokens {
		t.Errorf("tokens reserved = %d, want %d", result.TokensReserved, testComposeTokens)
	}
	if balances.balance != 10-testComposeTokens {
		t.Errorf("balance = %d, want %d", balances.balance, 10-testComposeTokens)
	}

	if result.Job.Status != models.VideoJobPending {
		t.Errorf("job status = %s, want pending", result.Job.Status)
	}

	// One dispatch run awaiting the worker
	runs, _ := jobs.ListStartingRuns(context.Background(), 10)
	if len(runs) != 1 || runs[0].VideoJobID != result.Job.ID {
		t.Errorf("starting runs = %+v, want one for %s", runs, result.Job.ID)
	}
}

func TestStartComposeSingleFlight(t *testing.T) {
	manager, _, balances := newTestManager(20)

	first, err := manager.StartCompose(context.Background(), startRequest())
	if err != nil {
		t.Fatalf("first StartCompose: %v", err)
	}

	second, err := manager.StartCompose(context.Background(), startRequest())
	if err != nil {
		t.Fatalf("second StartCompose: %v", err)
	}
	if !second.AlreadyRunning {
		t.Error("second compose not flagged already running")
	}
	if second.Job.ID != first.Job.ID {
		t.Errorf("second compose returned job %s, want %s", second.Job.ID, first.Job.ID)
	}

	// The duplicate never reserved: only the first hold stands
	if balances.balance != 20-testComposeTokens {
		t.Errorf("balance = %d, want %d", balances.balance, 20-testComposeTokens)
	}
}

func TestStartComposeInsufficientTokens(t *testing.T) {
	manager, jobs, _ := newTestManager(1)

	_, err := manager.StartCompose(context.Background(), startRequest())

	var insufficientErr *domain.InsufficientTokensError
	if !errors.As(err, &insufficientErr) {
		t.Fatalf("err = %v, want InsufficientTokensError", err)
	}
	if len(jobs.jobs) != 0 {
		t.Errorf("job created despite failed reservation: %d", len(jobs.jobs))
	}
}

func TestStartComposeZeroRateIsFree(t *testing.T) {
	logger := slog.Default()
	jobs := newFakeJobRepo()
	balances := &fakeBalanceRepo{balance: 0}
	costs := config.DefaultCostTable()
	costs.Compose = config.ComposeRate{}
	manager := NewManager(jobs, ledger.NewService(balances, costs, false, logger), nil, logger)

	result, err := manager.StartCompose(context.Background(), startRequest())
	if err != nil {
		t.Fatalf("free compose rejected: %v", err)
	}
	if result.TokensReserved != 0 {
		t.Errorf("tokens reserved = %d, want 0", result.TokensReserved)
	}
}

func TestStartReservedRefundsWhenInFlight(t *testing.T) {
	manager, _, balances := newTestManager(20)

	first, err := manager.StartCompose(context.Background(), startRequest())
	if err != nil {
		t.Fatal(err)
	}
	balanceBefore := balances.balance

	// Resumer reserved separately, then lost the race: the reservation goes
	// back and the conflict tells the caller nothing was dispatched
	job, err := manager.StartReserved(context.Background(), "user-1", "debate-1", []string{"media/a.png"}, 4)
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("StartReserved err = %v, want ErrConflict", err)
	}
	if job == nil || job.ID != first.Job.ID {
		t.Errorf("returned job = %+v, want existing %s", job, first.Job.ID)
	}
	if balances.balance != balanceBefore+4 {
		t.Errorf("orphaned reservation not returned: balance = %d, want %d", balances.balance, balanceBefore+4)
	}
}

func TestStartComposeRefundsWhenInsertDiesWithContext(t *testing.T) {
	manager, jobs, balances := newTestManager(10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The insert times out and takes the request context with it
	jobs.failCreate = func() error {
		cancel()
		return context.DeadlineExceeded
	}

	if _, err := manager.StartCompose(ctx, startRequest()); err == nil {
		t.Fatal("insert failure swallowed")
	}

	if balances.balance != 10 {
		t.Errorf("balance = %d, want 10 after refund", balances.balance)
	}
	if balances.refunds != 1 {
		t.Errorf("refunds = %d, want 1", balances.refunds)
	}
}

func TestCompleteJobSettles(t *testing.T) {
	manager, jobs, balances := newTestManager(10)

	result, err := manager.StartCompose(context.Background(), startRequest())
	if err != nil {
		t.Fatal(err)
	}

	if err := manager.CompleteJob(context.Background(), result.Job.ID, "videos/out.mp4"); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}

	job := jobs.jobs[result.Job.ID]
	if job.Status != models.VideoJobDone || job.OutputPath != "videos/out.mp4" {
		t.Errorf("job = %s/%s, want done/videos/out.mp4", job.Status, job.OutputPath)
	}

	// Reservation settles into a charge, balance untouched beyond the hold
	if balances.balance != 10-testComposeTokens {
		t.Errorf("balance = %d, want %d", balances.balance, 10-testComposeTokens)
	}
	if len(balances.entries) != 1 || balances.entries[0].Amount != -testComposeTokens {
		t.Errorf("entries = %+v, want one debit of %d", balances.entries, testComposeTokens)
	}

	// Dispatch run closed
	runs, _ := jobs.ListStartingRuns(context.Background(), 10)
	if len(runs) != 0 {
		t.Errorf("open runs after settle = %d, want 0", len(runs))
	}
}

func TestFailJobRefundsExactlyOnce(t *testing.T) {
	manager, jobs, balances := newTestManager(10)

	result, err := manager.StartCompose(context.Background(), startRequest())
	if err != nil {
		t.Fatal(err)
	}

	if err := manager.FailJob(context.Background(), result.Job.ID, "encoder crashed"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}

	if balances.balance != 10 {
		t.Errorf("balance = %d, want 10 after refund", balances.balance)
	}
	if balances.refunds != 1 {
		t.Errorf("refunds = %d, want 1", balances.refunds)
	}
	if !jobs.jobs[result.Job.ID].Refunded {
		t.Error("refunded flag not set")
	}

	// Retried callback: settled job conflicts, balance stays put
	err = manager.FailJob(context.Background(), result.Job.ID, "encoder crashed")
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("second FailJob err = %v, want ErrConflict", err)
	}
	if balances.balance != 10 || balances.refunds != 1 {
		t.Errorf("double refund: balance=%d refunds=%d", balances.balance, balances.refunds)
	}
}

func TestFailJobRefundGuardLosesFlip(t *testing.T) {
	manager, jobs, balances := newTestManager(10)

	result, err := manager.StartCompose(context.Background(), startRequest())
	if err != nil {
		t.Fatal(err)
	}

	// Another path already won the refunded flip
	jobs.jobs[result.Job.ID].Refunded = true
	balanceBefore := balances.balance

	if err := manager.FailJob(context.Background(), result.Job.ID, "late failure"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	if balances.balance != balanceBefore {
		t.Errorf("lost flip still refunded: balance = %d, want %d", balances.balance, balanceBefore)
	}
}

func TestCompleteJobConflictsWhenSettled(t *testing.T) {
	manager, _, _ := newTestManager(10)

	result, err := manager.StartCompose(context.Background(), startRequest())
	if err != nil {
		t.Fatal(err)
	}
	if err := manager.CompleteJob(context.Background(), result.Job.ID, "videos/out.mp4"); err != nil {
		t.Fatal(err)
	}

	if err := manager.CompleteJob(context.Background(), result.Job.ID, "videos/other.mp4"); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("err = %v, want ErrConflict", err)
	}
}

func TestStartComposeValidation(t *testing.T) {
	manager, _, _ := newTestManager(10)

	tests := []struct {
		name string
		req  StartRequest
	}{
		{"missing user", StartRequest{DebateID: "d", InputRefs: []string{"a"}}},
		{"missing debate", StartRequest{UserID: "u", InputRefs: []string{"a"}}},
		{"no inputs", StartRequest{UserID: "u", DebateID: "d"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := manager.StartCompose(context.Background(), tt.req); !errors.Is(err, domain.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}
}
