package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/entities"
	"github.com/sand/custody-wallet/backend/internal/metrics"
)

// existingChannelPattern matches the conflict message the network returns when a channel for the
// same participant and token is already open. Keep in sync with the network's error text.
var existingChannelPattern = regexp.MustCompile(`(?i)already exists.*?\b(0x[0-9a-f]{64})\b`)

// CustodyCreditCoordinator moves funds already held by the custody contract into the unified
// balance through a single reused channel per user, chain and token.
type CustodyCreditCoordinator struct {
	logger   *slog.Logger
	registry *ChainRegistry
	network  ports.NetworkClient
	chain    ports.CustodyChain

	locks *keyedMutex
}

func NewCustodyCreditCoordinator(
	logger *slog.Logger,
	registry *ChainRegistry,
	network ports.NetworkClient,
	chain ports.CustodyChain,
) *CustodyCreditCoordinator {
	return &CustodyCreditCoordinator{
		logger:   logger,
		registry: registry,
		network:  network,
		chain:    chain,
		locks:    newKeyedMutex(),
	}
}

// ApproveToken lets the custody contract pull the deposit amount. It is not retried.
func (c *CustodyCreditCoordinator) ApproveToken(ctx context.Context, params entities.DepositParams) (string, error) {
	c.logger.DebugContext(ctx, "Approving custody spender", "params", params)
	return c.chain.ApproveToken(ctx, params)
}

// Deposit submits the custody deposit and returns once it is mined. Off-chain indexing of the
// deposit happens asynchronously on the network side.
func (c *CustodyCreditCoordinator) Deposit(ctx context.Context, params entities.DepositParams) (string, error) {
	c.logger.DebugContext(ctx, "Depositing into custody", "params", params)
	return c.chain.Deposit(ctx, params)
}

func (c *CustodyCreditCoordinator) Withdraw(ctx context.Context, params entities.WithdrawParams) (string, error) {
	c.logger.DebugContext(ctx, "Withdrawing from custody", "params", params)
	return c.chain.Withdraw(ctx, params)
}

// GetUnifiedBalance returns the ledger amount of asset for userAddress, "0" when the ledger has no
// entry for it. Any query failure is reported as ErrNotAuthenticated.
func (c *CustodyCreditCoordinator) GetUnifiedBalance(ctx context.Context, userAddress, asset string) (string, error) {
	entries, err := c.network.GetUnifiedBalance(ctx, userAddress, userAddress)
	if err != nil {
		c.logger.WarnContext(ctx, "Unified balance query failed", "user_address", userAddress, "asset", asset, "error", err)
		return "", notAuthenticated(err)
	}

	for _, entry := range entries {
		if strings.EqualFold(entry.Asset, asset) {
			return entry.Amount, nil
		}
	}

	return "0", nil
}

// CreditUnifiedBalanceFromCustody resizes the user's channel by params.Amount, creating the channel
// first if none is open. It never signs with or deposits from the user's wallet. A successful
// call must not be repeated blindly: every resize credits again.
func (c *CustodyCreditCoordinator) CreditUnifiedBalanceFromCustody(ctx context.Context, params entities.CreditParams) (*entities.CreditResult, error) {
	opID := uuid.New().String()

	chainID, err := c.registry.ChainID(params.Chain)
	if err != nil {
		return nil, err
	}
	if params.Amount == nil || params.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: credit amount must be greater than zero", ErrInvalidAmount)
	}

	unlock := c.locks.Lock(channelKey(params.UserAddress, chainID, params.TokenAddress))
	defer unlock()

	c.logger.InfoContext(ctx, "Crediting unified balance from custody",
		"op_id", opID,
		"user_id", params.UserID,
		"user_address", params.UserAddress,
		"chain_id", chainID,
		"token", params.TokenAddress,
		"amount", params.Amount.String())

	if _, err = c.network.Authenticate(ctx, params.UserID, params.UserAddress); err != nil {
		c.logger.ErrorContext(ctx, "Network authentication failed", "op_id", opID, "error", err)
		metrics.RecordCredit(metrics.CreditFailed)
		return nil, err
	}

	channelID, recovered, err := c.acquireChannel(ctx, opID, params, chainID)
	if err != nil {
		metrics.RecordCredit(metrics.CreditFailed)
		return nil, err
	}

	err = c.network.ResizeChannel(ctx, entities.ResizeChannelRequest{
		ChannelID:    channelID,
		ChainID:      chainID,
		Amount:       new(big.Int).Set(params.Amount),
		UserAddress:  params.UserAddress,
		TokenAddress: params.TokenAddress,
		Participants: []string{},
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "Channel resize failed", "op_id", opID, "channel_id", channelID, "error", err)
		metrics.RecordCredit(metrics.CreditFailed)
		return nil, err
	}

	outcome := metrics.CreditResized
	if recovered {
		outcome = metrics.CreditRecovered
	}
	metrics.RecordCredit(outcome)

	c.logger.InfoContext(ctx, "Unified balance credited",
		"op_id", opID,
		"channel_id", channelID,
		"chain_id", chainID,
		"amount", params.Amount.String())

	return &entities.CreditResult{ChannelID: channelID, Credited: true}, nil
}

// acquireChannel returns the first usable channel of the user, or creates one with a zero balance.
// The boolean is true when the id was recovered from a creation conflict.
func (c *CustodyCreditCoordinator) acquireChannel(ctx context.Context, opID string, params entities.CreditParams, chainID uint64) (string, bool, error) {
	channels, err := c.network.GetChannels(ctx, params.UserAddress)
	if err != nil {
		return "", false, err
	}

	for _, ch := range channels {
		if ch.Usable() && matchesChannel(ch, chainID, params.TokenAddress) {
			c.logger.DebugContext(ctx, "Reusing open channel", "op_id", opID, "channel_id", ch.ChannelID, "status", ch.Status)
			return ch.ChannelID, false, nil
		}
	}

	created, err := c.network.CreateChannel(ctx, entities.CreateChannelRequest{
		UserAddress:    params.UserAddress,
		ChainID:        chainID,
		TokenAddress:   params.TokenAddress,
		InitialBalance: big.NewInt(0),
	})
	if err != nil {
		if id, ok := existingChannelID(err); ok {
			c.logger.WarnContext(ctx, "Channel already exists, reusing it",
				"op_id", opID,
				"channel_id", id,
				"error", err)
			return id, true, nil
		}
		return "", false, err
	}

	c.logger.InfoContext(ctx, "Channel created", "op_id", opID, "channel_id", created.ChannelID, "chain_id", chainID)
	return created.ChannelID, false, nil
}

// CloseChannel settles a channel and sends its funds to destination.
func (c *CustodyCreditCoordinator) CloseChannel(ctx context.Context, userID, userAddress, chain, channelID, destination string) error {
	chainID, err := c.registry.ChainID(chain)
	if err != nil {
		return err
	}

	if _, err = c.network.Authenticate(ctx, userID, userAddress); err != nil {
		return err
	}

	if destination == "" {
		destination = userAddress
	}

	return c.network.CloseChannel(ctx, userAddress, entities.CloseChannelRequest{
		ChannelID:        channelID,
		ChainID:          chainID,
		FundsDestination: destination,
	})
}

// matchesChannel treats missing chain or token data on a channel as a match.
func matchesChannel(ch entities.Channel, chainID uint64, token string) bool {
	if ch.ChainID != 0 && ch.ChainID != chainID {
		return false
	}
	if ch.Token != "" && token != "" && !strings.EqualFold(ch.Token, token) {
		return false
	}
	return true
}

func existingChannelID(err error) (string, bool) {
	var conflict *ports.ChannelExistsError
	if errors.As(err, &conflict) && conflict.ChannelID != "" {
		return conflict.ChannelID, true
	}

	m := existingChannelPattern.FindStringSubmatch(err.Error())
	if m == nil {
		return "", false
	}
	return m[1], true
}
