package pending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"concord/internal/domain"
	"concord/internal/domain/models"
	"concord/internal/domain/repositories"
	"concord/internal/service/ledger"
)

// ComposeStarter enqueues a compose job whose tokens are already reserved.
type ComposeStarter interface {
	StartReserved(ctx context.Context, userID, debateID string, inputRefs []string, tokensReserved int) (*models.VideoJob, error)
}

// Resumer restarts deferred requests once a top-up lands. A user has at most
// one resumable intent: the latest row wins, older rows are abandoned.
type Resumer struct {
	pendings repositories.PendingRequestRepository
	ledger   *ledger.Service
	video    ComposeStarter
	logger   *slog.Logger
	now      func() time.Time
}

// NewResumer creates a pending request resumer
func NewResumer(
	pendings repositories.PendingRequestRepository,
	ledgerSvc *ledger.Service,
	video ComposeStarter,
	logger *slog.Logger,
) *Resumer {
	return &Resumer{
		pendings: pendings,
		ledger:   ledgerSvc,
		video:    video,
		logger:   logger,
		now:      time.Now,
	}
}

// Defer records a request that could not reserve its tokens, to be retried
// after the next top-up.
func (r *Resumer) Defer(ctx context.Context, userID, kind string, payload map[string]any, tokensRequired int, ttl time.Duration) (*models.PendingRequest, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}

	now := r.now()
	pending := &models.PendingRequest{
		UserID:         userID,
		Kind:           kind,
		Payload:        payload,
		TokensRequired: tokensRequired,
		ExpiresAt:      now.Add(ttl),
		CreatedAt:      now,
	}
	if err := r.pendings.CreatePending(ctx, pending); err != nil {
		return nil, err
	}

	r.logger.Info("request deferred",
		"pending_id", pending.ID,
		"user_id", userID,
		"kind", kind,
		"tokens_required", tokensRequired,
	)
	return pending, nil
}

// Resume inspects the user's latest pending request and restarts it when the
// balance now covers it. Reports whether anything was resumed.
//
// Expired rows are deleted without action. A reservation that still fails
// leaves the row intact for the next top-up. Unknown kinds are left alone.
func (r *Resumer) Resume(ctx context.Context, userID string) (bool, error) {
	pending, err := r.pendings.GetLatestPending(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if pending.Expired(r.now()) {
		r.logger.Info("pending request expired", "pending_id", pending.ID, "user_id", userID)
		if err := r.pendings.DeletePending(ctx, pending.ID); err != nil {
			return false, err
		}
		return false, nil
	}

	switch pending.Kind {
	case models.PendingKindVideoCompose:
		return r.resumeCompose(ctx, pending)
	default:
		r.logger.Warn("pending request of unknown kind left alone",
			"pending_id", pending.ID, "kind", pending.Kind)
		return false, nil
	}
}

func (r *Resumer) resumeCompose(ctx context.Context, pending *models.PendingRequest) (bool, error) {
	debateID, inputRefs, err := decodeComposePayload(pending.Payload)
	if err != nil {
		// A payload that cannot be decoded will never resume; drop it.
		r.logger.Error("pending compose payload invalid, dropping",
			"pending_id", pending.ID, "error", err)
		if delErr := r.pendings.DeletePending(ctx, pending.ID); delErr != nil {
			return false, delErr
		}
		return false, nil
	}

	if pending.TokensRequired > 0 {
		if err := r.ledger.Reserve(ctx, pending.UserID, pending.TokensRequired); err != nil {
			if errors.Is(err, domain.ErrInsufficientTokens) {
				r.logger.Info("balance still short, pending request kept",
					"pending_id", pending.ID, "tokens_required", pending.TokensRequired)
				return false, nil
			}
			return false, err
		}
	}

	if _, err := r.video.StartReserved(ctx, pending.UserID, debateID, inputRefs, pending.TokensRequired); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// A job is already in flight and the starter sent the
			// reservation back. The deferred intent is served; the row
			// goes away, but nothing was dispatched here.
			r.logger.Info("compose already in flight, pending request dropped",
				"pending_id", pending.ID, "debate_id", debateID)
			if delErr := r.pendings.DeletePending(ctx, pending.ID); delErr != nil {
				return false, delErr
			}
			return false, nil
		}
		r.ledger.Refund(context.WithoutCancel(ctx), pending.UserID, pending.TokensRequired)
		return false, err
	}

	if err := r.pendings.DeletePending(ctx, pending.ID); err != nil {
		return false, err
	}

	r.logger.Info("pending compose resumed",
		"pending_id", pending.ID,
		"user_id", pending.UserID,
		"debate_id", debateID,
	)
	return true, nil
}

// ComposePayload builds the payload stored with a deferred compose request.
func ComposePayload(debateID string, inputRefs []string) map[string]any {
	refs := make([]any, len(inputRefs))
	for i, ref := range inputRefs {
		refs[i] = ref
	}
	return map[string]any{
		"debate_id":  debateID,
		"input_refs": refs,
	}
}

func decodeComposePayload(payload map[string]any) (string, []string, error) {
	debateID, ok := payload["debate_id"].(string)
	if !ok || debateID == "" {
		return "", nil, fmt.Errorf("payload missing debate_id")
	}

	rawRefs, ok := payload["input_refs"].([]any)
	if !ok || len(rawRefs) == 0 {
		return "", nil, fmt.Errorf("payload missing input_refs")
	}

	refs := make([]string, 0, len(rawRefs))
	for _, raw := range rawRefs {
		ref, ok := raw.(string)
		if !ok || ref == "" {
			return "", nil, fmt.Errorf("payload has non-string input ref")
		}
		refs = append(refs, ref)
	}
	return debateID, refs, nil
}
