package debate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"concord/internal/domain"
	"concord/internal/domain/models"
	"concord/internal/domain/repositories"
	"concord/internal/service/ledger"
	"concord/internal/service/notify"
)

// Options tunes session orchestration.
type Options struct {
	Rounds              int
	MaxParticipants     int
	LowBalanceThreshold int
}

// Service orchestrates debate sessions end to end: plan, price, reserve,
// execute, settle. One ordering contract for every entry point; nothing
// executes before the reservation (or trial carve-out) holds.
type Service struct {
	debates  repositories.DebateRepository
	turns    repositories.TurnRepository
	provider repositories.ProviderRepository
	ledger   *ledger.Service
	executor *Executor
	notifier notify.Notifier
	opts     Options
	logger   *slog.Logger
}

// NewService creates a new debate orchestration service
func NewService(
	debates repositories.DebateRepository,
	turns repositories.TurnRepository,
	provider repositories.ProviderRepository,
	ledgerSvc *ledger.Service,
	executor *Executor,
	notifier notify.Notifier,
	opts Options,
	logger *slog.Logger,
) *Service {
	return &Service{
		debates:  debates,
		turns:    turns,
		provider: provider,
		ledger:   ledgerSvc,
		executor: executor,
		notifier: notifier,
		opts:     opts,
		logger:   logger,
	}
}

// RunRequest starts a new session.
type RunRequest struct {
	UserID string
	Topic  string
	Mode   models.TaskType
}

func (r RunRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.Topic, validation.Required, validation.Length(1, 2000)),
		validation.Field(&r.Mode, validation.Required),
	)
}

// Run executes one complete session: create the debate, plan against the
// current registry, price the realized plan, reserve (or claim the free
// trial), execute the steps in order, then settle.
//
// Failure policy: the first failed step aborts the session, the full
// reservation is refunded exactly once and ErrProviderFailure is returned.
func (s *Service) Run(ctx context.Context, req RunRequest) (*models.Debate, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	if _, err := models.ParseTaskType(string(req.Mode)); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	participants, err := s.provider.ListEnabled(ctx, models.TaskText)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("no enabled text providers: %w", domain.ErrConfiguration)
	}

	now := time.Now()
	debate := &models.Debate{
		UserID:    req.UserID,
		Topic:     req.Topic,
		Status:    models.DebateStatusActive,
		Mode:      req.Mode,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.debates.CreateDebate(ctx, debate); err != nil {
		return nil, err
	}

	steps := PlanDebate(req.Topic, req.Mode, participants, PlanOptions{
		Rounds:          s.opts.Rounds,
		MaxParticipants: s.opts.MaxParticipants,
	})
	cost := s.ledger.PricePlan(TaskTypes(steps))

	trial, err := s.ledger.ClaimFreeTrial(ctx, req.UserID, TaskTypes(steps))
	if err != nil {
		s.failDebate(context.WithoutCancel(ctx), debate, req.UserID)
		return nil, err
	}

	if !trial {
		// Nothing executes before the reservation holds
		if err := s.ledger.Reserve(ctx, req.UserID, cost); err != nil {
			s.failDebate(context.WithoutCancel(ctx), debate, req.UserID)
			return nil, err
		}
		s.warnLowBalance(ctx, req.UserID)
	}

	summary, execErr := s.executeSteps(ctx, debate, steps, req.Topic)

	// The session watchdog may have cancelled ctx mid-step. Settlement and
	// compensation still have to land, so everything past execution runs
	// detached from the request context.
	ctx = context.WithoutCancel(ctx)

	if execErr != nil {
		s.compensate(ctx, req.UserID, trial, cost)
		s.failDebate(ctx, debate, req.UserID)
		s.notifyBestEffort(ctx, notify.Notification{
			UserID: req.UserID,
			Kind:   notify.KindDebateFailed,
			Title:  "Debate failed",
			Body:   "A provider error ended your session. Reserved tokens were returned.",
		})
		return nil, execErr
	}

	// Status first, charge second: a finalize that cannot land must not
	// leave a ledger entry behind.
	settledCost := cost
	if trial {
		settledCost = 0
	}
	if err := s.debates.Finalize(ctx, debate.ID, summary, settledCost); err != nil {
		s.compensate(ctx, req.UserID, trial, cost)
		s.failDebate(ctx, debate, req.UserID)
		return nil, err
	}
	debate.Status = models.DebateStatusCompleted
	debate.Summary = &summary
	debate.TotalCost = settledCost

	if !trial {
		if err := s.ledger.Debit(ctx, req.UserID, cost, fmt.Sprintf("debate %s", debate.ID)); err != nil {
			s.logger.Error("debit entry failed", "debate_id", debate.ID, "error", err)
		}
	}

	s.notifyBestEffort(ctx, notify.Notification{
		UserID: req.UserID,
		Kind:   notify.KindDebateCompleted,
		Title:  "Debate completed",
		Body:   fmt.Sprintf("Your session on %q reached a consensus.", req.Topic),
	})

	s.logger.Info("debate completed",
		"debate_id", debate.ID,
		"user_id", req.UserID,
		"steps", len(steps),
		"cost", settledCost,
		"trial", trial,
	)

	return debate, nil
}

// MessageRequest continues a completed session with a follow-up question.
type MessageRequest struct {
	UserID   string
	DebateID string
	Message  string
}

func (r MessageRequest) validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required),
		validation.Field(&r.DebateID, validation.Required),
		validation.Field(&r.Message, validation.Required, validation.Length(1, 2000)),
	)
}

// AddMessage runs a follow-up round on an existing session under the same
// plan, price, reserve, execute contract. Follow-ups never ride the free
// trial. The user's message and the resulting turns are appended to the
// transcript; the summary of the original session is left as is.
func (s *Service) AddMessage(ctx context.Context, req MessageRequest) ([]models.Turn, error) {
	if err := req.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	debate, err := s.debates.GetDebate(ctx, req.DebateID, req.UserID)
	if err != nil {
		return nil, err
	}
	if debate.Status != models.DebateStatusCompleted {
		return nil, fmt.Errorf("debate %s is %s, follow-ups need a completed session: %w",
			debate.ID, debate.Status, domain.ErrConflict)
	}

	participants, err := s.provider.ListEnabled(ctx, models.TaskText)
	if err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("no enabled text providers: %w", domain.ErrConfiguration)
	}
	if len(participants) > s.opts.MaxParticipants && s.opts.MaxParticipants > 0 {
		participants = participants[:s.opts.MaxParticipants]
	}

	steps := []Step{
		{
			Role:               "cross-review",
			TaskType:           models.TaskText,
			ProviderPreference: nil,
			Instructions:       fmt.Sprintf("Address this follow-up from the user: %s", req.Message),
		},
		{
			Role:               "consensus",
			TaskType:           models.TaskText,
			ProviderPreference: []string{leaderName(participants)},
			Instructions:       "Give the group's agreed answer to the follow-up.",
		},
	}
	cost := s.ledger.PricePlan(TaskTypes(steps))

	if err := s.ledger.Reserve(ctx, req.UserID, cost); err != nil {
		return nil, err
	}

	// Refunds and the final charge must land even if the caller's context
	// dies mid-execution.
	settleCtx := context.WithoutCancel(ctx)

	userTurn := models.Turn{
		DebateID:  debate.ID,
		UserID:    req.UserID,
		Role:      models.TurnRoleUser,
		AgentName: "user",
		Content:   req.Message,
		Phase:     models.PhaseIndependent,
		CreatedAt: time.Now(),
	}
	if err := s.turns.CreateTurn(ctx, &userTurn); err != nil {
		s.ledger.Refund(settleCtx, req.UserID, cost)
		return nil, err
	}

	prior, err := s.turns.ListTurns(ctx, debate.ID, req.UserID)
	if err != nil {
		s.ledger.Refund(settleCtx, req.UserID, cost)
		return nil, err
	}
	execCtx := &ExecContext{Topic: debate.Topic, Transcript: transcriptFromTurns(prior)}

	created := []models.Turn{userTurn}
	for _, step := range steps {
		result := s.executor.ExecuteStep(ctx, step, execCtx)
		if result.Status != StepStatusOK {
			s.ledger.Refund(settleCtx, req.UserID, cost)
			return nil, fmt.Errorf("follow-up step failed: %w", domain.ErrProviderFailure)
		}

		turn := turnFromResult(debate.ID, req.UserID, result)
		if err := s.turns.CreateTurn(settleCtx, &turn); err != nil {
			s.ledger.Refund(settleCtx, req.UserID, cost)
			return nil, err
		}
		created = append(created, turn)
		execCtx.Transcript = append(execCtx.Transcript, result)
	}

	if err := s.ledger.Debit(settleCtx, req.UserID, cost, fmt.Sprintf("debate %s follow-up", debate.ID)); err != nil {
		s.logger.Error("debit entry failed", "debate_id", debate.ID, "error", err)
	}

	return created, nil
}

// GetDebate returns one owned session.
func (s *Service) GetDebate(ctx context.Context, debateID, userID string) (*models.Debate, error) {
	return s.debates.GetDebate(ctx, debateID, userID)
}

// ListDebates returns the user's sessions, newest first.
func (s *Service) ListDebates(ctx context.Context, userID string) ([]models.Debate, error) {
	return s.debates.ListDebates(ctx, userID)
}

// ListTurns returns a session's transcript.
func (s *Service) ListTurns(ctx context.Context, debateID, userID string) ([]models.Turn, error) {
	if _, err := s.debates.GetDebate(ctx, debateID, userID); err != nil {
		return nil, err
	}
	return s.turns.ListTurns(ctx, debateID, userID)
}

// executeSteps runs the plan strictly in order, persisting one turn per
// success. The first failure aborts; partial transcripts survive for
// inspection, the session just ends failed.
func (s *Service) executeSteps(ctx context.Context, debate *models.Debate, steps []Step, topic string) (string, error) {
	execCtx := &ExecContext{Topic: topic}
	var summary string

	for i, step := range steps {
		result := s.executor.ExecuteStep(ctx, step, execCtx)
		if result.Status != StepStatusOK {
			return "", fmt.Errorf("step %d (%s) failed: %w", i, step.Role, domain.ErrProviderFailure)
		}

		turn := turnFromResult(debate.ID, debate.UserID, result)
		if err := s.turns.CreateTurn(ctx, &turn); err != nil {
			return "", err
		}

		if result.Phase == models.PhaseConsensus {
			summary = result.Content
		}
		execCtx.Transcript = append(execCtx.Transcript, result)
	}

	return summary, nil
}

// compensate hands back whatever was claimed for a session that will not
// complete: the reservation, or the trial carve-out.
func (s *Service) compensate(ctx context.Context, userID string, trial bool, cost int) {
	if trial {
		s.ledger.ReleaseFreeTrial(ctx, userID)
		return
	}
	s.ledger.Refund(ctx, userID, cost)
}

func (s *Service) failDebate(ctx context.Context, debate *models.Debate, userID string) {
	if err := s.debates.UpdateStatus(ctx, debate.ID, models.DebateStatusFailed); err != nil {
		s.logger.Error("mark debate failed", "debate_id", debate.ID, "user_id", userID, "error", err)
	}
	debate.Status = models.DebateStatusFailed
}

// warnLowBalance nudges the user when a reservation leaves them near empty.
// Purely advisory, read-after-write is fine here.
func (s *Service) warnLowBalance(ctx context.Context, userID string) {
	if s.opts.LowBalanceThreshold <= 0 {
		return
	}
	profile, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return
	}
	if profile.TokenBalance <= s.opts.LowBalanceThreshold {
		s.notifyBestEffort(ctx, notify.Notification{
			UserID: userID,
			Kind:   notify.KindLowBalance,
			Title:  "Token balance low",
			Body:   fmt.Sprintf("Only %d tokens left.", profile.TokenBalance),
		})
	}
}

func (s *Service) notifyBestEffort(ctx context.Context, n notify.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification send failed", "user_id", n.UserID, "kind", n.Kind, "error", err)
	}
}

func turnFromResult(debateID, userID string, result StepResult) models.Turn {
	return models.Turn{
		DebateID:   debateID,
		UserID:     userID,
		Role:       result.Role,
		AgentName:  result.AgentName,
		ProviderID: result.ProviderID,
		Content:    result.Content,
		Phase:      result.Phase,
		CreatedAt:  time.Now(),
	}
}

func transcriptFromTurns(turns []models.Turn) []StepResult {
	results := make([]StepResult, 0, len(turns))
	for _, t := range turns {
		results = append(results, StepResult{
			Status:    StepStatusOK,
			Phase:     t.Phase,
			Role:      t.Role,
			AgentName: t.AgentName,
			Content:   t.Content,
		})
	}
	return results
}
