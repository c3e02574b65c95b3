package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"concord/internal/httputil"
	"concord/internal/service/ledger"
)

// AccountHandler serves the balance and ledger endpoints.
type AccountHandler struct {
	ledger *ledger.Service
	logger *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(ledgerSvc *ledger.Service, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{
		ledger: ledgerSvc,
		logger: logger,
	}
}

// GetBalance returns the caller's token balance and trial flag.
// GET /api/account/balance
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	profile, err := h.ledger.Balance(r.Context(), userID)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"token_balance":   profile.TokenBalance,
		"free_trial_used": profile.FreeTrialUsed,
	})
}

// GetLedger returns the caller's ledger entries, newest first.
// GET /api/account/ledger?limit=n
func (h *AccountHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := h.ledger.Entries(r.Context(), userID, limit)
	if err != nil {
		handleError(w, err)
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}
