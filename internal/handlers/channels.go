package handlers

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sand/custody-wallet/backend/internal/usecases"
)

type fundChannelRequest struct {
	UserID string `json:"userId"`
	Chain  string `json:"chain"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

func (h *HTTPHandler) FundChannel(w http.ResponseWriter, r *http.Request) {
	var req fundChannelRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}

	result, err := h.channelService.FundChannel(r.Context(), usecases.FundChannelRequest(req))
	if err != nil {
		h.fail(w, r, "[Fund Channel] Credit failed", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"channelId": result.ChannelID, "credited": result.Credited})
}

func (h *HTTPHandler) ListChannels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID, chain := q.Get("userId"), q.Get("chain")
	if userID == "" || chain == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required parameters: userId and chain"))
		return
	}

	channels, err := h.channelService.ListChannels(r.Context(), userID, chain)
	if err != nil {
		h.fail(w, r, "Failed to list channels", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"channels": channels})
}

func (h *HTTPHandler) CloseChannel(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["id"]
	q := r.URL.Query()
	userID, chain := q.Get("userId"), q.Get("chain")
	if userID == "" || chain == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing required parameters: userId and chain"))
		return
	}

	if err := h.channelService.CloseChannel(r.Context(), userID, chain, channelID, q.Get("destination")); err != nil {
		h.fail(w, r, "Failed to close channel", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"channelId": channelID})
}
