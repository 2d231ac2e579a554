package ports

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/sand/custody-wallet/backend/internal/entities"
)

// WalletProvider resolves custodial keys. Wallets are provisioned on first access.
type WalletProvider interface {
	GetWalletAddress(ctx context.Context, userID, chain string) (string, error)
	GetPrivateKey(ctx context.Context, userID, chain string) (string, error)
	GetAllWalletAddresses(ctx context.Context, userID string) (map[string]string, error)
}

// NetworkClient is the settlement network as seen by the service. Every call other than
// Authenticate requires a prior successful Authenticate for the address involved.
type NetworkClient interface {
	Authenticate(ctx context.Context, userID, address string) (*entities.AuthSession, error)

	CreateChannel(ctx context.Context, req entities.CreateChannelRequest) (*entities.Channel, error)
	ResizeChannel(ctx context.Context, req entities.ResizeChannelRequest) error
	GetChannels(ctx context.Context, userAddress string) ([]entities.Channel, error)
	CloseChannel(ctx context.Context, userAddress string, req entities.CloseChannelRequest) error

	CreateSession(ctx context.Context, userAddress string, req entities.CreateSessionRequest) (*entities.AppSession, error)
	UpdateSession(ctx context.Context, userAddress string, req entities.UpdateSessionRequest) (*entities.AppSession, error)
	CloseSession(ctx context.Context, userAddress string, req entities.CloseSessionRequest) (*entities.AppSession, error)
	QuerySession(ctx context.Context, userAddress, appSessionID string) (*entities.AppSession, error)
	QuerySessions(ctx context.Context, userAddress string) ([]entities.AppSession, error)

	GetUnifiedBalance(ctx context.Context, userAddress, accountID string) ([]entities.BalanceEntry, error)
	GetAppSessionBalances(ctx context.Context, userAddress, appSessionID string) ([]entities.BalanceEntry, error)
}

// ChainBackend is the subset of ethclient.Client used to submit and confirm custody transactions.
type ChainBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// ChainDialer returns a backend connected to the given chain.
type ChainDialer interface {
	Backend(ctx context.Context, chainID uint64) (ChainBackend, error)
}

// CustodyChain performs the on-chain side of the custody flow.
type CustodyChain interface {
	ApproveToken(ctx context.Context, params entities.DepositParams) (string, error)
	Deposit(ctx context.Context, params entities.DepositParams) (string, error)
	Withdraw(ctx context.Context, params entities.WithdrawParams) (string, error)
}

type WalletsRepository interface {
	FindWalletByUser(ctx context.Context, userID string) (*entities.Wallet, error)
	InsertWallet(ctx context.Context, userID string) (*entities.Wallet, error)
}

type CustodyOperationsRepository interface {
	InsertOperation(ctx context.Context, op *entities.CustodyOperation) error
	FindOperationsByUser(ctx context.Context, userID string, limit uint64) ([]entities.CustodyOperation, error)
}

type BalanceSnapshotsRepository interface {
	UpsertSnapshots(ctx context.Context, snapshots []entities.BalanceSnapshot) error
	FindSnapshotsByUser(ctx context.Context, userID string) ([]entities.BalanceSnapshot, error)
	RemoveOldSnapshots(ctx context.Context, olderThan time.Duration) (int64, error)
}
