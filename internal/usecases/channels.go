package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/entities"
)

type FundChannelRequest struct {
	UserID string
	Chain  string
	Asset  string
	Amount string // human units
}

type ChannelService struct {
	logger      *slog.Logger
	registry    *ChainRegistry
	wallets     ports.WalletProvider
	network     ports.NetworkClient
	coordinator *CustodyCreditCoordinator
}

func NewChannelService(
	logger *slog.Logger,
	registry *ChainRegistry,
	wallets ports.WalletProvider,
	network ports.NetworkClient,
	coordinator *CustodyCreditCoordinator,
) *ChannelService {
	return &ChannelService{
		logger:      logger,
		registry:    registry,
		wallets:     wallets,
		network:     network,
		coordinator: coordinator,
	}
}

// FundChannel credits amount already held in custody to the user's unified balance through their
// channel for the asset.
func (s *ChannelService) FundChannel(ctx context.Context, req FundChannelRequest) (*entities.CreditResult, error) {
	if _, err := s.registry.ChainID(req.Chain); err != nil {
		return nil, err
	}
	asset, err := s.registry.Asset(req.Chain, req.Asset)
	if err != nil {
		return nil, err
	}
	amount, err := ParseUnits(req.Amount, asset.Decimals)
	if err != nil {
		return nil, err
	}

	address, err := s.wallets.GetWalletAddress(ctx, req.UserID, req.Chain)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallet address: %w", err)
	}

	s.logger.InfoContext(ctx, "Funding channel",
		"user_id", req.UserID,
		"chain", req.Chain,
		"asset", asset.Symbol,
		"amount", amount.String())

	return s.coordinator.CreditUnifiedBalanceFromCustody(ctx, entities.CreditParams{
		UserID:       req.UserID,
		UserAddress:  address,
		Chain:        req.Chain,
		TokenAddress: asset.Address.Hex(),
		Amount:       amount,
	})
}

// ListChannels returns the user's channels on chain as reported by the network.
func (s *ChannelService) ListChannels(ctx context.Context, userID, chain string) ([]entities.Channel, error) {
	chainID, err := s.registry.ChainID(chain)
	if err != nil {
		return nil, err
	}

	address, err := s.wallets.GetWalletAddress(ctx, userID, chain)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallet address: %w", err)
	}

	if _, err = s.network.Authenticate(ctx, userID, address); err != nil {
		return nil, err
	}

	channels, err := s.network.GetChannels(ctx, address)
	if err != nil {
		return nil, err
	}

	result := make([]entities.Channel, 0, len(channels))
	for _, ch := range channels {
		if ch.ChainID == 0 || ch.ChainID == chainID {
			result = append(result, ch)
		}
	}
	return result, nil
}

// CloseChannel settles channelID and sends its funds to destination, the user's wallet when empty.
func (s *ChannelService) CloseChannel(ctx context.Context, userID, chain, channelID, destination string) error {
	if _, err := s.registry.ChainID(chain); err != nil {
		return err
	}

	address, err := s.wallets.GetWalletAddress(ctx, userID, chain)
	if err != nil {
		return fmt.Errorf("failed to resolve wallet address: %w", err)
	}

	if err = s.coordinator.CloseChannel(ctx, userID, address, chain, channelID, destination); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "Channel closed", "user_id", userID, "chain", chain, "channel_id", channelID)
	return nil
}
