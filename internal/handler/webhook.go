package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"concord/internal/domain"
	"concord/internal/httputil"
	"concord/internal/service/payment"
	"concord/internal/service/pending"
	"concord/internal/service/video"
)

// maxWebhookBody bounds gateway payload size.
const maxWebhookBody = 1 << 20

// WebhookHandler serves the payment gateway callbacks and the internal
// composer endpoints. Nothing here rides the JWT middleware: gateways sign
// their payloads and the composer presents a shared secret.
type WebhookHandler struct {
	nowpayments *payment.NowPaymentsVerifier
	stripe      *payment.StripeVerifier
	ingestor    *payment.Ingestor
	manager     *video.Manager
	resumer     *pending.Resumer
	composerKey string
	logger      *slog.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(
	nowpayments *payment.NowPaymentsVerifier,
	stripe *payment.StripeVerifier,
	ingestor *payment.Ingestor,
	manager *video.Manager,
	resumer *pending.Resumer,
	composerKey string,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		nowpayments: nowpayments,
		stripe:      stripe,
		ingestor:    ingestor,
		manager:     manager,
		resumer:     resumer,
		composerKey: composerKey,
		logger:      logger,
	}
}

// NowPayments ingests an IPN callback.
// POST /api/webhooks/nowpayments
func (h *WebhookHandler) NowPayments(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := h.nowpayments.Verify(body, r.Header.Get("x-nowpayments-sig")); err != nil {
		h.logger.Warn("nowpayments signature rejected", "error", err)
		handleError(w, err)
		return
	}

	n, actionable, err := payment.ParseNowPayments(body)
	if err != nil {
		handleError(w, err)
		return
	}
	if !actionable {
		// Intermediate statuses are acknowledged without action
		httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"ignored": true})
		return
	}

	h.ingest(w, r, n)
}

// Stripe ingests a checkout webhook.
// POST /api/webhooks/stripe
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	if err := h.stripe.Verify(body, r.Header.Get("Stripe-Signature")); err != nil {
		h.logger.Warn("stripe signature rejected", "error", err)
		handleError(w, err)
		return
	}

	n, actionable, err := payment.ParseStripeEvent(body)
	if err != nil {
		handleError(w, err)
		return
	}
	if !actionable {
		httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"ignored": true})
		return
	}

	h.ingest(w, r, n)
}

func (h *WebhookHandler) ingest(w http.ResponseWriter, r *http.Request, n payment.Notification) {
	result, err := h.ingestor.Ingest(r.Context(), n)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"duplicate":    result.Duplicate,
		"tokens_added": result.TokensAdded,
	})
}

type completeJobRequest struct {
	OutputRef string `json:"output_ref"`
}

// CompleteJob is the composer's success callback.
// POST /api/internal/jobs/{id}/complete
func (h *WebhookHandler) CompleteJob(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeComposer(w, r) {
		return
	}

	var req completeJobRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.OutputRef == "" {
		httputil.RespondError(w, http.StatusBadRequest, "output_ref is required")
		return
	}

	jobID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.manager.CompleteJob(r.Context(), jobID, req.OutputRef); err != nil {
		// A repeated callback for a settled job is acknowledged, not retried
		if errors.Is(err, domain.ErrConflict) {
			httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"already_settled": true})
			return
		}
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"status": "done"})
}

type failJobRequest struct {
	Reason string `json:"reason"`
}

// FailJob is the composer's failure callback.
// POST /api/internal/jobs/{id}/fail
func (h *WebhookHandler) FailJob(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeComposer(w, r) {
		return
	}

	var req failJobRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "composition failed"
	}

	jobID, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.manager.FailJob(r.Context(), jobID, req.Reason); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"already_settled": true})
			return
		}
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"status": "failed"})
}

type processPendingRequest struct {
	UserID string `json:"user_id"`
}

// ProcessPending is the ops re-drive for a user's deferred request.
// POST /api/internal/process-pending
func (h *WebhookHandler) ProcessPending(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeComposer(w, r) {
		return
	}

	var req processPendingRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.UserID == "" {
		httputil.RespondError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	resumed, err := h.resumer.Resume(r.Context(), req.UserID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"resumed": resumed})
}

func (h *WebhookHandler) authorizeComposer(w http.ResponseWriter, r *http.Request) bool {
	if h.composerKey == "" || r.Header.Get("X-Composer-Secret") != h.composerKey {
		httputil.RespondError(w, http.StatusUnauthorized, "invalid composer secret")
		return false
	}
	return true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxWebhookBody)
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
