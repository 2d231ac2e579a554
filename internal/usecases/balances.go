package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/entities"
)

// BalanceService reads unified balances from the network and keeps display snapshots of them.
type BalanceService struct {
	logger    *slog.Logger
	registry  *ChainRegistry
	wallets   ports.WalletProvider
	network   ports.NetworkClient
	snapshots ports.BalanceSnapshotsRepository
}

func NewBalanceService(
	logger *slog.Logger,
	registry *ChainRegistry,
	wallets ports.WalletProvider,
	network ports.NetworkClient,
	snapshots ports.BalanceSnapshotsRepository,
) *BalanceService {
	return &BalanceService{
		logger:    logger,
		registry:  registry,
		wallets:   wallets,
		network:   network,
		snapshots: snapshots,
	}
}

// UnifiedBalances returns every ledger entry of the user. The network answer is authoritative;
// a failed snapshot write is only logged.
func (s *BalanceService) UnifiedBalances(ctx context.Context, userID, chain string) ([]entities.BalanceEntry, error) {
	if _, err := s.registry.ChainID(chain); err != nil {
		return nil, err
	}

	address, err := s.wallets.GetWalletAddress(ctx, userID, chain)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallet address: %w", err)
	}

	if _, err = s.network.Authenticate(ctx, userID, address); err != nil {
		return nil, err
	}

	entries, err := s.network.GetUnifiedBalance(ctx, address, address)
	if err != nil {
		return nil, notAuthenticated(err)
	}

	snapshots := make([]entities.BalanceSnapshot, 0, len(entries))
	for _, e := range entries {
		snapshots = append(snapshots, entities.BalanceSnapshot{
			UserID:    userID,
			AccountID: address,
			Asset:     e.Asset,
			Amount:    e.Amount,
		})
	}
	if err = s.snapshots.UpsertSnapshots(ctx, snapshots); err != nil {
		s.logger.WarnContext(ctx, "Failed to store balance snapshots", "user_id", userID, "error", err)
	}

	return entries, nil
}

// CachedBalances returns the last stored snapshots without contacting the network.
func (s *BalanceService) CachedBalances(ctx context.Context, userID string) ([]entities.BalanceSnapshot, error) {
	return s.snapshots.FindSnapshotsByUser(ctx, userID)
}

func (s *BalanceService) RemoveOldSnapshots(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.snapshots.RemoveOldSnapshots(ctx, olderThan)
}
