package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/entities"
)

const defaultOperationsLimit = 50

type DepositRequest struct {
	UserID string
	Chain  string
	Asset  string
	Amount string // human units
	Credit bool   // move the deposit into the unified balance afterwards
}

type DepositResult struct {
	ApproveTxHash string                 `json:"approveTxHash,omitempty"`
	DepositTxHash string                 `json:"depositTxHash"`
	Amount        string                 `json:"amount"`
	Credit        *entities.CreditResult `json:"credit,omitempty"`
}

type WithdrawRequest struct {
	UserID string
	Chain  string
	Asset  string
	Amount string
}

// CustodyService runs the on-chain custody flows for custodial users and keeps a journal of
// every step.
type CustodyService struct {
	logger      *slog.Logger
	registry    *ChainRegistry
	wallets     ports.WalletProvider
	network     ports.NetworkClient
	coordinator *CustodyCreditCoordinator
	operations  ports.CustodyOperationsRepository
}

func NewCustodyService(
	logger *slog.Logger,
	registry *ChainRegistry,
	wallets ports.WalletProvider,
	network ports.NetworkClient,
	coordinator *CustodyCreditCoordinator,
	operations ports.CustodyOperationsRepository,
) *CustodyService {
	return &CustodyService{
		logger:      logger,
		registry:    registry,
		wallets:     wallets,
		network:     network,
		coordinator: coordinator,
		operations:  operations,
	}
}

// DepositToCustody approves (ERC-20 only) and deposits amount into the chain's custody contract
// for the user's own wallet. With req.Credit the deposit is then credited to the unified balance.
func (s *CustodyService) DepositToCustody(ctx context.Context, req DepositRequest) (*DepositResult, error) {
	opID := uuid.New().String()

	chainID, asset, amount, err := s.resolveTransfer(req.Chain, req.Asset, req.Amount)
	if err != nil {
		return nil, err
	}

	address, privateKey, err := s.signer(ctx, req.UserID, req.Chain)
	if err != nil {
		return nil, err
	}

	params := entities.DepositParams{
		UserPrivateKey: privateKey,
		UserAddress:    address,
		TokenAddress:   asset.Address.Hex(),
		Amount:         amount,
		ChainID:        chainID,
	}

	s.logger.InfoContext(ctx, "Depositing to custody",
		"op_id", opID,
		"user_id", req.UserID,
		"chain", req.Chain,
		"asset", asset.Symbol,
		"amount", amount.String())

	result := &DepositResult{Amount: amount.String()}
	journal := s.journal(opID, req.UserID, chainID, params.TokenAddress, amount.String())

	if !asset.Native() {
		result.ApproveTxHash, err = s.coordinator.ApproveToken(ctx, params)
		journal(ctx, entities.OperationApprove, result.ApproveTxHash, "", err)
		if err != nil {
			return nil, err
		}
	}

	result.DepositTxHash, err = s.coordinator.Deposit(ctx, params)
	journal(ctx, entities.OperationDeposit, result.DepositTxHash, "", err)
	if err != nil {
		return nil, err
	}

	if !req.Credit {
		return result, nil
	}

	result.Credit, err = s.coordinator.CreditUnifiedBalanceFromCustody(ctx, entities.CreditParams{
		UserID:       req.UserID,
		UserAddress:  address,
		Chain:        req.Chain,
		TokenAddress: params.TokenAddress,
		Amount:       amount,
	})
	channelID := ""
	if result.Credit != nil {
		channelID = result.Credit.ChannelID
	}
	journal(ctx, entities.OperationCredit, "", channelID, err)
	if err != nil {
		// The deposit is mined; funds stay in custody until the credit is retried.
		return nil, fmt.Errorf("deposit %s confirmed but credit failed: %w", result.DepositTxHash, err)
	}

	return result, nil
}

// WithdrawFromCustody sends amount from custody back to the user's wallet.
func (s *CustodyService) WithdrawFromCustody(ctx context.Context, req WithdrawRequest) (string, error) {
	opID := uuid.New().String()

	chainID, asset, amount, err := s.resolveTransfer(req.Chain, req.Asset, req.Amount)
	if err != nil {
		return "", err
	}

	address, privateKey, err := s.signer(ctx, req.UserID, req.Chain)
	if err != nil {
		return "", err
	}

	s.logger.InfoContext(ctx, "Withdrawing from custody",
		"op_id", opID,
		"user_id", req.UserID,
		"chain", req.Chain,
		"asset", asset.Symbol,
		"amount", amount.String())

	txHash, err := s.coordinator.Withdraw(ctx, entities.WithdrawParams{
		UserPrivateKey: privateKey,
		UserAddress:    address,
		TokenAddress:   asset.Address.Hex(),
		Amount:         amount,
		ChainID:        chainID,
	})
	s.journal(opID, req.UserID, chainID, asset.Address.Hex(), amount.String())(ctx, entities.OperationWithdraw, txHash, "", err)
	if err != nil {
		return "", err
	}

	return txHash, nil
}

// UnifiedBalance returns the user's ledger amount of asset, "0" when the ledger has none.
func (s *CustodyService) UnifiedBalance(ctx context.Context, userID, chain, asset string) (string, error) {
	if _, err := s.registry.Asset(chain, asset); err != nil {
		return "", err
	}

	address, err := s.wallets.GetWalletAddress(ctx, userID, chain)
	if err != nil {
		return "", fmt.Errorf("failed to resolve wallet address: %w", err)
	}

	if _, err = s.network.Authenticate(ctx, userID, address); err != nil {
		return "", err
	}

	return s.coordinator.GetUnifiedBalance(ctx, address, normalize(asset))
}

// Operations returns the most recent journal entries of a user.
func (s *CustodyService) Operations(ctx context.Context, userID string, limit uint64) ([]entities.CustodyOperation, error) {
	if limit == 0 {
		limit = defaultOperationsLimit
	}
	return s.operations.FindOperationsByUser(ctx, userID, limit)
}

func (s *CustodyService) resolveTransfer(chain, symbol, human string) (uint64, AssetConfig, *big.Int, error) {
	chainID, err := s.registry.ChainID(chain)
	if err != nil {
		return 0, AssetConfig{}, nil, err
	}
	asset, err := s.registry.Asset(chain, symbol)
	if err != nil {
		return 0, AssetConfig{}, nil, err
	}
	amount, err := ParseUnits(human, asset.Decimals)
	if err != nil {
		return 0, AssetConfig{}, nil, err
	}
	return chainID, asset, amount, nil
}

func (s *CustodyService) signer(ctx context.Context, userID, chain string) (string, string, error) {
	address, err := s.wallets.GetWalletAddress(ctx, userID, chain)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve wallet address: %w", err)
	}
	privateKey, err := s.wallets.GetPrivateKey(ctx, userID, chain)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve signing key: %w", err)
	}
	return address, privateKey, nil
}

// journal returns a recorder for the steps of one operation. Journal write failures are logged
// and never fail the operation itself.
func (s *CustodyService) journal(opID, userID string, chainID uint64, token, amount string) func(context.Context, entities.OperationKind, string, string, error) {
	return func(ctx context.Context, kind entities.OperationKind, txHash, channelID string, stepErr error) {
		op := &entities.CustodyOperation{
			OpID:      opID,
			UserID:    userID,
			ChainID:   int64(chainID),
			Kind:      kind,
			Token:     token,
			Amount:    amount,
			TxHash:    txHash,
			ChannelID: channelID,
			Status:    entities.OperationStatusConfirmed,
		}
		if stepErr != nil {
			op.Status = entities.OperationStatusFailed
			op.Error = stepErr.Error()
		}

		if err := s.operations.InsertOperation(ctx, op); err != nil {
			s.logger.WarnContext(ctx, "Failed to journal custody operation",
				"op_id", opID,
				"kind", kind,
				"error", err)
		}
	}
}
