package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sand/custody-wallet/backend/internal/metrics"
)

type HTTPHandler struct {
	logger         *slog.Logger
	custodyService CustodyService
	channelService ChannelService
	sessionService SessionService
	balanceService BalanceService
	walletService  WalletService
}

func NewHTTPHandler(
	logger *slog.Logger,
	custodyService CustodyService,
	channelService ChannelService,
	sessionService SessionService,
	balanceService BalanceService,
	walletService WalletService,
) *HTTPHandler {
	return &HTTPHandler{
		logger:         logger,
		custodyService: custodyService,
		channelService: channelService,
		sessionService: sessionService,
		balanceService: balanceService,
		walletService:  walletService,
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Custody
	router.HandleFunc("/custody/deposit", h.Deposit).Methods("POST")
	router.HandleFunc("/custody/withdraw", h.Withdraw).Methods("POST")
	router.HandleFunc("/custody/balance", h.CustodyBalance).Methods("GET")
	router.HandleFunc("/custody/operations", h.CustodyOperations).Methods("GET")

	// Channels
	router.HandleFunc("/channel/fund", h.FundChannel).Methods("POST")
	router.HandleFunc("/channels", h.ListChannels).Methods("GET")
	router.HandleFunc("/channel/{id}", h.CloseChannel).Methods("DELETE")

	// App sessions
	router.HandleFunc("/app-session/authenticate", h.Authenticate).Methods("POST")
	router.HandleFunc("/app-session/discover/{userId}", h.DiscoverSessions).Methods("GET")
	router.HandleFunc("/app-session", h.CreateSession).Methods("POST")
	router.HandleFunc("/app-session/{id}", h.GetSession).Methods("GET")
	router.HandleFunc("/app-session/{id}", h.UpdateSession).Methods("PATCH")
	router.HandleFunc("/app-session/{id}", h.CloseSession).Methods("DELETE")
	router.HandleFunc("/app-session/{id}/balances", h.SessionBalances).Methods("GET")

	// Balances, wallets
	router.HandleFunc("/balances", h.Balances).Methods("GET")
	router.HandleFunc("/wallets/{userId}", h.Wallets).Methods("GET")

	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/health", h.Health).Methods("GET")
}

func (h *HTTPHandler) Health(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, map[string]any{"status": "healthy"})
}

func (h *HTTPHandler) Wallets(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]

	addresses, err := h.walletService.GetAllWalletAddresses(r.Context(), userID)
	if err != nil {
		h.fail(w, r, "Failed to resolve wallets", err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"userId": userID, "wallets": addresses})
}

// fail logs server side failures and writes the error envelope.
func (h *HTTPHandler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), msg, "path", r.URL.Path, "error", err)
	} else {
		h.logger.InfoContext(r.Context(), msg, "path", r.URL.Path, "status", status, "error", err)
	}
	writeError(w, status, err)
}
