package network

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/sand/custody-wallet/backend/config"
	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/entities"
	"github.com/sand/custody-wallet/backend/internal/metrics"
)

const (
	handshakeTimeout = 10 * time.Second
	// sessions closer than this to expiry are renewed on Authenticate
	renewMargin = 30 * time.Second
)

// Client talks to the settlement node over websocket JSON-RPC, one connection per user address.
type Client struct {
	logger  *slog.Logger
	cfg     config.Network
	wallets ports.WalletProvider

	mu    sync.Mutex
	conns map[string]*conn
	auth  map[string]*sync.Mutex
}

var _ ports.NetworkClient = (*Client)(nil)

func NewClient(logger *slog.Logger, cfg config.Network, wallets ports.WalletProvider) *Client {
	return &Client{
		logger:  logger,
		cfg:     cfg,
		wallets: wallets,
		conns:   make(map[string]*conn),
		auth:    make(map[string]*sync.Mutex),
	}
}

// Authenticate opens a session for address signed by the user's wallet key. A live session is
// reused, so repeated calls are cheap.
func (c *Client) Authenticate(ctx context.Context, userID, address string) (*entities.AuthSession, error) {
	key := strings.ToLower(address)

	lock := c.authLock(key)
	lock.Lock()
	defer lock.Unlock()

	if existing := c.session(key); existing != nil {
		return &entities.AuthSession{SessionID: existing.sessionID, ExpiresAt: existing.expiresAt}, nil
	}

	walletKeyHex, err := c.wallets.GetPrivateKey(ctx, userID, c.cfg.SessionChain)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallet key: %w", err)
	}
	walletKey, err := crypto.HexToECDSA(strings.TrimPrefix(walletKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key for user %s", userID)
	}
	if !strings.EqualFold(crypto.PubkeyToAddress(walletKey.PublicKey).Hex(), address) {
		return nil, fmt.Errorf("wallet key of user %s does not control %s", userID, address)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	cn, err := dial(ctx, c.logger, c.cfg.WSURL, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to network: %w", err)
	}

	if err = c.handshake(ctx, cn, address, walletKey); err != nil {
		cn.close()
		return nil, err
	}

	c.mu.Lock()
	if old, ok := c.conns[key]; ok {
		go old.close()
	}
	c.conns[key] = cn
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Authenticated with network",
		"user_id", userID,
		"address", address,
		"expires_at", cn.expiresAt)

	return &entities.AuthSession{
		SessionID:     cn.sessionID,
		ExpiresAt:     cn.expiresAt,
		AuthSignature: cn.authSignature,
	}, nil
}

func (c *Client) handshake(ctx context.Context, cn *conn, address string, walletKey *ecdsa.PrivateKey) error {
	sessionKey, err := crypto.GenerateKey()
	if err != nil {
		return fmt.Errorf("failed to generate session key: %w", err)
	}
	sessionAddress := crypto.PubkeyToAddress(sessionKey.PublicKey).Hex()
	expiresAt := time.Now().Add(time.Duration(c.cfg.SessionTTL) * time.Second).Truncate(time.Second)

	request := authRequestParams{
		Address:     address,
		SessionKey:  sessionAddress,
		Application: c.cfg.Application,
		Allowances:  []allowanceParam{},
		ExpiresAt:   expiresAt.Unix(),
		Scope:       c.cfg.Scope,
	}

	// auth_request is signed by the session key being registered
	res, err := c.timed(ctx, cn, "auth_request", request, sessionKey)
	if err != nil {
		return err
	}
	var challenge authChallengeResult
	if err = json.Unmarshal(res.Params, &challenge); err != nil || challenge.ChallengeMessage == "" {
		return fmt.Errorf("unexpected auth_request response %q", res.Method)
	}

	hash, err := policyHash(c.cfg, request, challenge.ChallengeMessage)
	if err != nil {
		return err
	}
	authSignature, err := signHash(hash, walletKey)
	if err != nil {
		return err
	}

	verify := &rpcPayload{
		ID:        cn.nextID.Add(1),
		Method:    "auth_verify",
		Timestamp: time.Now().UnixMilli(),
	}
	if verify.Params, err = json.Marshal(authVerifyParams{Challenge: challenge.ChallengeMessage}); err != nil {
		return fmt.Errorf("failed to encode auth_verify params: %w", err)
	}

	res, err = cn.send(ctx, verify, authSignature)
	if err != nil {
		return err
	}
	var verified authVerifyResult
	if err = json.Unmarshal(res.Params, &verified); err != nil || !verified.Success {
		return fmt.Errorf("network rejected authentication for %s", address)
	}

	cn.sessionKey = sessionKey
	cn.expiresAt = expiresAt
	cn.authSignature = authSignature
	cn.sessionID = verified.JWTToken
	if cn.sessionID == "" {
		cn.sessionID = sessionAddress
	}
	return nil
}

// policyHash is the EIP-712 digest of the session policy the wallet approves.
func policyHash(cfg config.Network, req authRequestParams, challenge string) ([]byte, error) {
	typed := apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
			},
			"Policy": {
				{Name: "challenge", Type: "string"},
				{Name: "scope", Type: "string"},
				{Name: "wallet", Type: "address"},
				{Name: "session_key", Type: "address"},
				{Name: "expires_at", Type: "uint64"},
				{Name: "allowances", Type: "Allowance[]"},
			},
			"Allowance": {
				{Name: "asset", Type: "string"},
				{Name: "amount", Type: "string"},
			},
		},
		PrimaryType: "Policy",
		Domain: apitypes.TypedDataDomain{
			Name: cfg.Application,
		},
		Message: apitypes.TypedDataMessage{
			"challenge":   challenge,
			"scope":       req.Scope,
			"wallet":      req.Address,
			"session_key": req.SessionKey,
			"expires_at":  strconv.FormatInt(req.ExpiresAt, 10),
			"allowances":  []interface{}{},
		},
	}

	hash, _, err := apitypes.TypedDataAndHash(typed)
	if err != nil {
		return nil, fmt.Errorf("failed to hash auth policy: %w", err)
	}
	return hash, nil
}

func (c *Client) CreateChannel(ctx context.Context, req entities.CreateChannelRequest) (*entities.Channel, error) {
	amount := "0"
	if req.InitialBalance != nil {
		amount = req.InitialBalance.String()
	}

	res, err := c.call(ctx, req.UserAddress, "create_channel", createChannelParams{
		ChainID: req.ChainID,
		Token:   req.TokenAddress,
		Amount:  amount,
	})
	if err != nil {
		return nil, channelConflict(err)
	}

	var created createChannelResult
	if err = json.Unmarshal(res.Params, &created); err != nil {
		return nil, fmt.Errorf("failed to decode create_channel result: %w", err)
	}

	channel := entities.Channel{
		ChannelID:   created.ChannelID,
		ChainID:     req.ChainID,
		Participant: req.UserAddress,
		Token:       req.TokenAddress,
		Balance:     amount,
		Status:      entities.ChannelStatusOpen,
	}
	if created.Channel != nil {
		channel = created.Channel.entity()
		if channel.ChannelID == "" {
			channel.ChannelID = created.ChannelID
		}
	}
	if channel.ChannelID == "" {
		return nil, fmt.Errorf("create_channel returned no channel id")
	}
	return &channel, nil
}

// ResizeChannel moves req.Amount from custody through the channel into the unified balance.
func (c *Client) ResizeChannel(ctx context.Context, req entities.ResizeChannelRequest) error {
	if req.Amount == nil {
		return fmt.Errorf("resize amount is required")
	}

	_, err := c.call(ctx, req.UserAddress, "resize_channel", resizeChannelParams{
		ChannelID:        req.ChannelID,
		ResizeAmount:     new(big.Int).Set(req.Amount),
		AllocateAmount:   new(big.Int).Neg(req.Amount),
		FundsDestination: req.UserAddress,
	})
	return err
}

func (c *Client) GetChannels(ctx context.Context, userAddress string) ([]entities.Channel, error) {
	res, err := c.call(ctx, userAddress, "get_channels", getChannelsParams{Participant: userAddress})
	if err != nil {
		return nil, err
	}

	wires, err := decodeList[channelWire](res.Params, "channels")
	if err != nil {
		return nil, fmt.Errorf("failed to decode get_channels result: %w", err)
	}

	channels := make([]entities.Channel, 0, len(wires))
	for _, w := range wires {
		channels = append(channels, w.entity())
	}
	return channels, nil
}

func (c *Client) CloseChannel(ctx context.Context, userAddress string, req entities.CloseChannelRequest) error {
	_, err := c.call(ctx, userAddress, "close_channel", closeChannelParams{
		ChannelID:        req.ChannelID,
		FundsDestination: req.FundsDestination,
	})
	return err
}

func (c *Client) CreateSession(ctx context.Context, userAddress string, req entities.CreateSessionRequest) (*entities.AppSession, error) {
	res, err := c.call(ctx, userAddress, "create_app_session", createSessionParams{
		Definition:  definitionToWire(req.Definition),
		Allocations: allocationsToWire(req.Allocations),
		SessionData: req.SessionData,
	})
	if err != nil {
		return nil, err
	}

	session, err := decodeSession(res.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to decode create_app_session result: %w", err)
	}
	// The node answers with id, version and status only.
	if len(session.Definition.Participants) == 0 {
		session.Definition = req.Definition
	}
	if len(session.Allocations) == 0 {
		session.Allocations = req.Allocations
	}
	if session.SessionData.Empty() {
		session.SessionData = req.SessionData
	}
	return session, nil
}

func (c *Client) UpdateSession(ctx context.Context, userAddress string, req entities.UpdateSessionRequest) (*entities.AppSession, error) {
	return c.sessionState(ctx, userAddress, "submit_app_state", req.AppSessionID, req.Allocations, req.SessionData)
}

func (c *Client) CloseSession(ctx context.Context, userAddress string, req entities.CloseSessionRequest) (*entities.AppSession, error) {
	return c.sessionState(ctx, userAddress, "close_app_session", req.AppSessionID, req.Allocations, req.SessionData)
}

func (c *Client) sessionState(
	ctx context.Context,
	userAddress, method, appSessionID string,
	allocations []entities.Allocation,
	data entities.Payload,
) (*entities.AppSession, error) {
	res, err := c.call(ctx, userAddress, method, sessionStateParams{
		AppSessionID: appSessionID,
		Allocations:  allocationsToWire(allocations),
		SessionData:  data,
	})
	if err != nil {
		return nil, err
	}

	session, err := decodeSession(res.Params)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	if session.AppSessionID == "" {
		session.AppSessionID = appSessionID
	}
	if len(session.Allocations) == 0 {
		session.Allocations = allocations
	}
	return session, nil
}

func (c *Client) QuerySession(ctx context.Context, userAddress, appSessionID string) (*entities.AppSession, error) {
	sessions, err := c.querySessions(ctx, userAddress, getSessionsParams{AppSessionID: appSessionID})
	if err != nil {
		return nil, err
	}

	for i := range sessions {
		if strings.EqualFold(sessions[i].AppSessionID, appSessionID) {
			return &sessions[i], nil
		}
	}
	return nil, fmt.Errorf("app session %s not found", appSessionID)
}

func (c *Client) QuerySessions(ctx context.Context, userAddress string) ([]entities.AppSession, error) {
	return c.querySessions(ctx, userAddress, getSessionsParams{Participant: userAddress})
}

func (c *Client) querySessions(ctx context.Context, userAddress string, params getSessionsParams) ([]entities.AppSession, error) {
	res, err := c.call(ctx, userAddress, "get_app_sessions", params)
	if err != nil {
		return nil, err
	}

	wires, err := decodeList[sessionWire](res.Params, "app_sessions")
	if err != nil {
		return nil, fmt.Errorf("failed to decode get_app_sessions result: %w", err)
	}

	sessions := make([]entities.AppSession, 0, len(wires))
	for _, w := range wires {
		sessions = append(sessions, w.entity())
	}
	return sessions, nil
}

func (c *Client) GetUnifiedBalance(ctx context.Context, userAddress, accountID string) ([]entities.BalanceEntry, error) {
	return c.ledgerBalances(ctx, userAddress, accountID)
}

func (c *Client) GetAppSessionBalances(ctx context.Context, userAddress, appSessionID string) ([]entities.BalanceEntry, error) {
	return c.ledgerBalances(ctx, userAddress, appSessionID)
}

func (c *Client) ledgerBalances(ctx context.Context, userAddress, accountID string) ([]entities.BalanceEntry, error) {
	res, err := c.call(ctx, userAddress, "get_ledger_balances", ledgerBalancesParams{AccountID: accountID})
	if err != nil {
		return nil, err
	}

	wires, err := decodeList[balanceWire](res.Params, "ledger_balances")
	if err != nil {
		return nil, fmt.Errorf("failed to decode get_ledger_balances result: %w", err)
	}
	return balancesFromWire(wires), nil
}

// Close ends every session.
func (c *Client) Close() {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]*conn)
	c.mu.Unlock()

	for _, cn := range conns {
		cn.close()
	}
}

func (c *Client) call(ctx context.Context, address, method string, params any) (*rpcPayload, error) {
	cn := c.session(strings.ToLower(address))
	if cn == nil {
		return nil, fmt.Errorf("%s for %s: %w", method, address, ErrNoSession)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	return c.timed(ctx, cn, method, params, nil)
}

func (c *Client) timed(ctx context.Context, cn *conn, method string, params any, key *ecdsa.PrivateKey) (*rpcPayload, error) {
	start := time.Now()
	res, err := cn.call(ctx, method, params, key)
	metrics.RecordNetworkRequest(method, time.Since(start), err == nil)
	if err != nil {
		c.logger.DebugContext(ctx, "Network call failed", "method", method, "address", cn.address, "error", err)
	}
	return res, err
}

// session returns a live connection for address, dropping a dead one.
func (c *Client) session(key string) *conn {
	c.mu.Lock()
	defer c.mu.Unlock()

	cn, ok := c.conns[key]
	if !ok {
		return nil
	}
	if !cn.alive(renewMargin) {
		delete(c.conns, key)
		go cn.close()
		return nil
	}
	return cn
}

func (c *Client) authLock(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()

	lock, ok := c.auth[key]
	if !ok {
		lock = &sync.Mutex{}
		c.auth[key] = lock
	}
	return lock
}

func (c *Client) timeout() time.Duration {
	if c.cfg.RequestTimeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.cfg.RequestTimeout) * time.Second
}

func decodeSession(raw json.RawMessage) (*entities.AppSession, error) {
	var w sessionWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	session := w.entity()
	return &session, nil
}
