package handler

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"concord/internal/domain"
	"concord/internal/httputil"
)

// pathID validates the {id} path segment. Ids are UUIDs end to end, so a
// malformed one becomes a 400 without a repository round-trip.
func pathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := r.PathValue("id")
	if _, err := uuid.Parse(id); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "malformed id in path")
		return "", false
	}
	return id, true
}

// handleError converts domain errors to HTTP responses
func handleError(w http.ResponseWriter, err error) {
	var insufficientErr *domain.InsufficientTokensError
	var conflictErr *domain.ConflictError
	var httpErr domain.HTTPError

	switch {
	case errors.As(err, &insufficientErr):
		respondInsufficientTokens(w, insufficientErr, nil)
	case errors.Is(err, domain.ErrValidation):
		httputil.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		httputil.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		httputil.RespondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		httputil.RespondError(w, http.StatusForbidden, err.Error())
	case errors.As(err, &conflictErr):
		httputil.RespondError(w, http.StatusConflict, conflictErr.Error())
	case errors.Is(err, domain.ErrConflict):
		httputil.RespondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrProviderFailure):
		httputil.RespondError(w, http.StatusBadGateway, "a provider failed; reserved tokens were returned")
	case errors.Is(err, domain.ErrConfiguration):
		httputil.RespondError(w, http.StatusInternalServerError, "service misconfigured")
	case errors.As(err, &httpErr):
		httputil.RespondError(w, httpErr.StatusCode(), httpErr.Error())
	default:
		httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// respondInsufficientTokens writes the 402 with the shortfall breakdown.
// extras lets the video path attach the pending request id.
func respondInsufficientTokens(w http.ResponseWriter, err *domain.InsufficientTokensError, extras map[string]interface{}) {
	fields := map[string]interface{}{
		"required":  err.Required,
		"available": err.Available,
		"missing":   err.Missing(),
	}
	for k, v := range extras {
		fields[k] = v
	}
	httputil.RespondErrorWithExtras(w, http.StatusPaymentRequired, err.Error(), fields)
}

// HealthCheck reports service liveness
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
