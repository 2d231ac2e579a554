package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/sand/custody-wallet/backend/internal/usecases"
)

type depositRequest struct {
	UserID string `json:"userId"`
	Chain  string `json:"chain"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
	Credit bool   `json:"credit"`
}

type withdrawRequest struct {
	UserID string `json:"userId"`
	Chain  string `json:"chain"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (h *HTTPHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}

	result, err := h.custodyService.DepositToCustody(r.Context(), usecases.DepositRequest{
		UserID: req.UserID,
		Chain:  req.Chain,
		Asset:  req.Asset,
		Amount: req.Amount,
		Credit: req.Credit,
	})
	if err != nil {
		h.fail(w, r, "[Deposit] Custody deposit failed", err)
		return
	}

	h.logger.InfoContext(r.Context(), "[Deposit] Custody deposit confirmed",
		"user_id", req.UserID,
		"chain", req.Chain,
		"asset", req.Asset,
		"tx_hash", result.DepositTxHash)

	writeOK(w, http.StatusOK, map[string]any{"deposit": result})
}

func (h *HTTPHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}

	txHash, err := h.custodyService.WithdrawFromCustody(r.Context(), usecases.WithdrawRequest(req))
	if err != nil {
		h.fail(w, r, "[Withdraw] Custody withdrawal failed", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"txHash": txHash})
}

func (h *HTTPHandler) CustodyBalance(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, chain, asset := q.Get("userId"), q.Get("chain"), q.Get("asset")
	if userID == "" || chain == "" || asset == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required parameters: userId, chain and asset"))
		return
	}

	balance, err := h.custodyService.UnifiedBalance(r.Context(), userID, chain, asset)
	if err != nil {
		h.fail(w, r, "Failed to read unified balance", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"asset": asset, "balance": balance})
}

func (h *HTTPHandler) CustodyOperations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}

	var limit uint64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}

	ops, err := h.custodyService.Operations(r.Context(), userID, limit)
	if err != nil {
		h.fail(w, r, "Failed to list custody operations", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"operations": ops})
}
