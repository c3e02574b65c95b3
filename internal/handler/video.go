package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"concord/internal/domain"
	"concord/internal/domain/models"
	"concord/internal/httputil"
	"concord/internal/service/pending"
	"concord/internal/service/video"
)

// deferTTL bounds how long a deferred compose request stays resumable.
const deferTTL = time.Hour

// VideoHandler serves the compose endpoints.
type VideoHandler struct {
	manager *video.Manager
	resumer *pending.Resumer
	logger  *slog.Logger
}

// NewVideoHandler creates a new video handler
func NewVideoHandler(manager *video.Manager, resumer *pending.Resumer, logger *slog.Logger) *VideoHandler {
	return &VideoHandler{
		manager: manager,
		resumer: resumer,
		logger:  logger,
	}
}

type composeRequest struct {
	DebateID    string   `json:"debate_id"`
	InputRefs   []string `json:"input_refs"`
	DurationSec int      `json:"duration_sec"`
}

// StartCompose reserves tokens and queues a compose job. When the balance is
// short, the request is deferred instead and the 402 carries the pending id
// so the client can prompt a top-up.
// POST /api/videos/compose
func (h *VideoHandler) StartCompose(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req composeRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.manager.StartCompose(r.Context(), video.StartRequest{
		UserID:      userID,
		DebateID:    req.DebateID,
		InputRefs:   req.InputRefs,
		DurationSec: req.DurationSec,
	})
	if err != nil {
		var insufficientErr *domain.InsufficientTokensError
		if errors.As(err, &insufficientErr) {
			h.deferCompose(w, r, userID, req, insufficientErr)
			return
		}
		handleError(w, err)
		return
	}

	status := http.StatusAccepted
	if result.AlreadyRunning {
		status = http.StatusOK
	}
	httputil.RespondJSON(w, status, map[string]interface{}{
		"job":             result.Job,
		"already_running": result.AlreadyRunning,
		"tokens_reserved": result.TokensReserved,
	})
}

// deferCompose records the request for after the next top-up, then answers
// 402 either way.
func (h *VideoHandler) deferCompose(w http.ResponseWriter, r *http.Request, userID string, req composeRequest, insufficientErr *domain.InsufficientTokensError) {
	deferred, err := h.resumer.Defer(r.Context(), userID,
		models.PendingKindVideoCompose,
		pending.ComposePayload(req.DebateID, req.InputRefs),
		insufficientErr.Required,
		deferTTL,
	)
	if err != nil {
		h.logger.Error("defer compose request failed", "user_id", userID, "error", err)
		respondInsufficientTokens(w, insufficientErr, nil)
		return
	}

	respondInsufficientTokens(w, insufficientErr, map[string]interface{}{
		"pending_id": deferred.ID,
	})
}

// JobStatus is the caller polling surface.
// GET /api/videos/jobs/{id}
func (h *VideoHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	jobID, ok := pathID(w, r)
	if !ok {
		return
	}

	job, err := h.manager.JobStatus(r.Context(), userID, jobID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, job)
}
