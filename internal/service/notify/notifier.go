package notify

import (
	"context"
	"log/slog"
)

// Notification kinds emitted by the services.
const (
	KindDebateCompleted = "debate_completed"
	KindDebateFailed    = "debate_failed"
	KindLowBalance      = "low_balance"
	KindPaymentReceived = "payment_received"
	KindVideoDone       = "video_done"
	KindVideoFailed     = "video_failed"
)

// Notification is a user-facing message. Delivery is best-effort everywhere:
// callers log a failed send and move on, it never fails the triggering request.
type Notification struct {
	UserID string
	Kind   string
	Title  string
	Body   string
}

// Notifier delivers notifications to users.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier emits notifications as structured log records. It stands in for
// a real delivery channel and is the default wiring.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a notifier backed by the given logger
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify records the notification
func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	n.logger.Info("notification",
		"user_id", notification.UserID,
		"kind", notification.Kind,
		"title", notification.Title,
		"body", notification.Body,
	)
	return nil
}
