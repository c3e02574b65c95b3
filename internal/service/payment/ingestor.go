package payment

import (
	"context"
	"errors"
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

// Notification is a gateway event normalized to the common shape. Both
// webhook parsers produce this before anything touches storage.
type Notification struct {
	Provider    string
	EventID     string
	UserID      string
	Tokens      int
	AmountCents *int
}

func (n Notification) validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Provider, validation.Required),
		validation.Field(&n.EventID, validation.Required),
		validation.Field(&n.UserID, validation.Required),
		validation.Field(&n.Tokens, validation.Required, validation.Min(1)),
	)
}

// Result reports what ingestion did with the event.
type Result struct {
	Duplicate   bool
	TokensAdded int
}

// Resumer restarts deferred work after a top-up.
type Resumer interface {
	Resume(ctx context.Context, userID string) (bool, error)
}

// Ingestor applies verified gateway events exactly once. The insert into
// payment_events goes first and its unique constraint is the only duplicate
// check; a replay is absorbed as success without crediting twice. Insert,
// credit and the processed flip commit in one transaction.
type Ingestor struct {
	events   repositories.PaymentEventRepository
	ledger   *ledger.Service
	tx       repositories.TransactionManager
	resumer  Resumer
	notifier notify.Notifier
	logger   *slog.Logger
}

// NewIngestor creates a payment event ingestor
func NewIngestor(
	events repositories.PaymentEventRepository,
	ledgerSvc *ledger.Service,
	tx repositories.TransactionManager,
	resumer Resumer,
	notifier notify.Notifier,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		events:   events,
		ledger:   ledgerSvc,
		tx:       tx,
		resumer:  resumer,
		notifier: notifier,
		logger:   logger,
	}
}

// Ingest records and applies one normalized event.
//
//  1. In one transaction: insert the event (status received), credit the
//     ledger, mark the event processed. Duplicate key means a replay:
//     return Duplicate without touching the balance.
//  2. Best-effort follow-ups: receipt notification, pending-request resume.
//     Neither failure fails the webhook.
func (i *Ingestor) Ingest(ctx context.Context, n Notification) (*Result, error) {
	if err := n.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	err := i.tx.ExecTx(ctx, func(txCtx context.Context) error {
		event := &models.PaymentEvent{
			Provider:    n.Provider,
			EventID:     n.EventID,
			UserID:      n.UserID,
			AmountCents: n.AmountCents,
			TokensAdded: n.Tokens,
			CreatedAt:   time.Now(),
		}
		if err := i.events.CreateEvent(txCtx, event); err != nil {
			return err
		}

		description := fmt.Sprintf("purchase via %s (%s)", n.Provider, n.EventID)
		if err := i.ledger.Credit(txCtx, n.UserID, n.Tokens, description); err != nil {
			return err
		}

		return i.events.MarkProcessed(txCtx, n.Provider, n.EventID)
	})
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			i.logger.Info("duplicate payment event absorbed",
				"provider", n.Provider, "event_id", n.EventID)
			return &Result{Duplicate: true}, nil
		}
		return nil, err
	}

	if i.notifier != nil {
		receipt := notify.Notification{
			UserID: n.UserID,
			Kind:   notify.KindPaymentReceived,
			Title:  "Tokens added",
			Body:   fmt.Sprintf("%d tokens were added to your balance.", n.Tokens),
		}
		if err := i.notifier.Notify(ctx, receipt); err != nil {
			i.logger.Warn("receipt notification failed", "user_id", n.UserID, "error", err)
		}
	}

	if i.resumer != nil {
		if resumed, err := i.resumer.Resume(ctx, n.UserID); err != nil {
			i.logger.Warn("pending resume failed", "user_id", n.UserID, "error", err)
		} else if resumed {
			i.logger.Info("pending request resumed after top-up", "user_id", n.UserID)
		}
	}

	i.logger.Info("payment event processed",
		"provider", n.Provider,
		"event_id", n.EventID,
		"user_id", n.UserID,
		"tokens", n.Tokens,
	)

	return &Result{TokensAdded: n.Tokens}, nil
}
