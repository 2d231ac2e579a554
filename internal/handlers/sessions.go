package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sand/custody-wallet/backend/internal/entities"
	"github.com/sand/custody-wallet/backend/internal/usecases"
)

type authenticateRequest struct {
	UserID string `json:"userId"`
}

type createSessionRequest struct {
	UserID       string                `json:"userId"`
	Participants []string              `json:"participants"`
	Weights      []int                 `json:"weights,omitempty"`
	Quorum       *int                  `json:"quorum,omitempty"`
	Challenge    *int                  `json:"challenge,omitempty"`
	Protocol     string                `json:"protocol,omitempty"`
	Allocations  []entities.Allocation `json:"allocations"`
	SessionData  entities.Payload      `json:"sessionData,omitempty"`
}

type sessionStateRequest struct {
	UserID      string                `json:"userId"`
	Allocations []entities.Allocation `json:"allocations"`
	SessionData entities.Payload      `json:"sessionData,omitempty"`
}

func (h *HTTPHandler) Authenticate(w http.ResponseWriter, r *http.Request) {
	var req authenticateRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}

	auth, err := h.sessionService.Authenticate(r.Context(), req.UserID)
	if err != nil {
		h.fail(w, r, "[Authenticate] Network handshake failed", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"address":   auth.Address,
		"sessionId": auth.SessionID,
		"expiresAt": auth.ExpiresAt,
	})
}

func (h *HTTPHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}

	session, err := h.sessionService.CreateSession(r.Context(), usecases.CreateSessionInput(req))
	if err != nil {
		h.fail(w, r, "[Create Session] App session creation failed", err)
		return
	}
	writeOK(w, http.StatusCreated, map[string]any{"appSessionId": session.AppSessionID, "session": session})
}

func (h *HTTPHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}

	session, err := h.sessionService.GetSession(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, "Failed to read app session", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"session": session})
}

func (h *HTTPHandler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	req, ok := h.sessionState(w, r)
	if !ok {
		return
	}

	session, err := h.sessionService.UpdateSession(r.Context(), usecases.UpdateSessionInput{
		UserID:       req.UserID,
		AppSessionID: mux.Vars(r)["id"],
		Allocations:  req.Allocations,
		SessionData:  req.SessionData,
	})
	if err != nil {
		h.fail(w, r, "[Update Session] State submission failed", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"session": session})
}

func (h *HTTPHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	req, ok := h.sessionState(w, r)
	if !ok {
		return
	}

	session, err := h.sessionService.CloseSession(r.Context(), usecases.CloseSessionInput{
		UserID:       req.UserID,
		AppSessionID: mux.Vars(r)["id"],
		Allocations:  req.Allocations,
		SessionData:  req.SessionData,
	})
	if err != nil {
		h.fail(w, r, "[Close Session] App session close failed", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"session": session})
}

func (h *HTTPHandler) DiscoverSessions(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	sessions, err := h.sessionService.DiscoverSessions(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "Failed to discover app sessions", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *HTTPHandler) SessionBalances(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}

	balances, err := h.sessionService.SessionBalances(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, "Failed to read app session balances", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"balances": balances})
}

// sessionState reads the body of PATCH and DELETE. DELETE may carry only ?userId.
func (h *HTTPHandler) sessionState(w http.ResponseWriter, r *http.Request) (sessionStateRequest, bool) {
	var req sessionStateRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return req, false
		}
	}
	if req.UserID == "" {
		req.UserID = r.URL.Query().Get("userId")
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return req, false
	}
	return req, true
}
