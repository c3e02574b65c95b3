package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"concord/internal/domain/models"
	"concord/internal/httputil"
	"concord/internal/service/debate"
)

// DebateHandler serves the session endpoints.
type DebateHandler struct {
	service *debate.Service
	timeout time.Duration
	logger  *slog.Logger
}

// NewDebateHandler creates a new debate handler
func NewDebateHandler(service *debate.Service, timeout time.Duration, logger *slog.Logger) *DebateHandler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &DebateHandler{
		service: service,
		timeout: timeout,
		logger:  logger,
	}
}

type createDebateRequest struct {
	Topic string `json:"topic"`
	Mode  string `json:"mode"`
}

// CreateDebate runs a full session synchronously under the watchdog timeout.
// POST /api/debates
func (h *DebateHandler) CreateDebate(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	var req createDebateRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Mode == "" {
		req.Mode = string(models.TaskText)
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	result, err := h.service.Run(ctx, debate.RunRequest{
		UserID: userID,
		Topic:  req.Topic,
		Mode:   models.TaskType(req.Mode),
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, result)
}

// GetDebate returns one owned session.
// GET /api/debates/{id}
func (h *DebateHandler) GetDebate(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	debateID, ok := pathID(w, r)
	if !ok {
		return
	}

	result, err := h.service.GetDebate(r.Context(), debateID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

// ListDebates returns the caller's sessions, newest first.
// GET /api/debates
func (h *DebateHandler) ListDebates(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	results, err := h.service.ListDebates(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"debates": results})
}

// ListTurns returns a session's transcript.
// GET /api/debates/{id}/turns
func (h *DebateHandler) ListTurns(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	debateID, ok := pathID(w, r)
	if !ok {
		return
	}

	turns, err := h.service.ListTurns(r.Context(), debateID, userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"turns": turns})
}

type addMessageRequest struct {
	Message string `json:"message"`
}

// AddMessage runs a follow-up round on a completed session.
// POST /api/debates/{id}/messages
func (h *DebateHandler) AddMessage(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	debateID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req addMessageRequest
	if err := httputil.ParseJSON(w, r, &req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	turns, err := h.service.AddMessage(ctx, debate.MessageRequest{
		UserID:   userID,
		DebateID: debateID,
		Message:  req.Message,
	})
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, map[string]interface{}{"turns": turns})
}
