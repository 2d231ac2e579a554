package handlers

import (
	"net/http"
	"strconv"
)

// Balances returns the live unified ledger, or the stored snapshots with ?cached=true.
func (h *HTTPHandler) Balances(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}

	if cached, _ := strconv.ParseBool(q.Get("cached")); cached {
		snapshots, err := h.balanceService.CachedBalances(r.Context(), userID)
		if err != nil {
			h.fail(w, r, "Failed to read balance snapshots", err)
			return
		}
		writeOK(w, http.StatusOK, map[string]any{"snapshots": snapshots})
		return
	}

	balances, err := h.balanceService.UnifiedBalances(r.Context(), userID, q.Get("chain"))
	if err != nil {
		h.fail(w, r, "Failed to read unified balances", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"balances": balances})
}
