package handlers

import (
	"context"

	"github.com/sand/custody-wallet/backend/internal/entities"
	"github.com/sand/custody-wallet/backend/internal/usecases"
)

var (
	_ CustodyService = (*usecases.CustodyService)(nil)
	_ ChannelService = (*usecases.ChannelService)(nil)
	_ SessionService = (*usecases.SessionService)(nil)
	_ BalanceService = (*usecases.BalanceService)(nil)
)

type CustodyService interface {
	DepositToCustody(ctx context.Context, req usecases.DepositRequest) (*usecases.DepositResult, error)
	WithdrawFromCustody(ctx context.Context, req usecases.WithdrawRequest) (string, error)
	UnifiedBalance(ctx context.Context, userID, chain, asset string) (string, error)
	Operations(ctx context.Context, userID string, limit uint64) ([]entities.CustodyOperation, error)
}

type ChannelService interface {
	FundChannel(ctx context.Context, req usecases.FundChannelRequest) (*entities.CreditResult, error)
	ListChannels(ctx context.Context, userID, chain string) ([]entities.Channel, error)
	CloseChannel(ctx context.Context, userID, chain, channelID, destination string) error
}

type SessionService interface {
	Authenticate(ctx context.Context, userID string) (*usecases.AuthResult, error)
	CreateSession(ctx context.Context, in usecases.CreateSessionInput) (*entities.AppSession, error)
	GetSession(ctx context.Context, userID, appSessionID string) (*entities.AppSession, error)
	UpdateSession(ctx context.Context, in usecases.UpdateSessionInput) (*entities.AppSession, error)
	CloseSession(ctx context.Context, in usecases.CloseSessionInput) (*entities.AppSession, error)
	DiscoverSessions(ctx context.Context, userID string) ([]entities.AppSession, error)
	SessionBalances(ctx context.Context, userID, appSessionID string) ([]entities.BalanceEntry, error)
}

type BalanceService interface {
	UnifiedBalances(ctx context.Context, userID, chain string) ([]entities.BalanceEntry, error)
	CachedBalances(ctx context.Context, userID string) ([]entities.BalanceSnapshot, error)
}

type WalletService interface {
	GetAllWalletAddresses(ctx context.Context, userID string) (map[string]string, error)
}
