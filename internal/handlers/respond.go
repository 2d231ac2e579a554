package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sand/custody-wallet/backend/internal/network"
	"github.com/sand/custody-wallet/backend/internal/usecases"
)

const maxBodyBytes = 1 << 20

var errMissingUserID = errors.New("missing required parameter: userId")

func decodeJSON(body io.ReadCloser, dst any) error {
	defer body.Close()
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeOK merges fields into an {"ok": true} envelope.
func writeOK(w http.ResponseWriter, status int, fields map[string]any) {
	body := map[string]any{"ok": true}
	for k, v := range fields {
		body[k] = v
	}
	writeJSON(w, status, body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"ok": false, "error": err.Error()})
}

func statusFor(err error) int {
	var chainErr *usecases.ChainError
	var rpcErr *network.RPCError

	switch {
	case errors.Is(err, usecases.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, usecases.ErrUnsupportedChain),
		errors.Is(err, usecases.ErrUnsupportedAsset),
		errors.Is(err, usecases.ErrInvalidAmount),
		errors.Is(err, usecases.ErrInvalidAddress),
		errors.Is(err, usecases.ErrNotParticipant),
		errors.Is(err, usecases.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, usecases.ErrConfig):
		return http.StatusInternalServerError
	case errors.As(err, &chainErr), errors.As(err, &rpcErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
