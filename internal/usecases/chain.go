package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/entities"
	"github.com/sand/custody-wallet/backend/internal/metrics"
)

const erc20ABI = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

// The withdraw signature is provisional until the official custody ABI is published.
const custodyABI = `[
  {"type":"function","name":"deposit","stateMutability":"payable",
   "inputs":[{"name":"account","type":"address"},{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[]},
  {"type":"function","name":"withdraw","stateMutability":"nonpayable",
   "inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"},{"name":"recipient","type":"address"}],
   "outputs":[]}
]`

var (
	parsedERC20ABI   = mustParseABI(erc20ABI)
	parsedCustodyABI = mustParseABI(custodyABI)
)

func mustParseABI(definition string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI definition: %v", err))
	}
	return parsed
}

// packDeposit encodes deposit(account, token, amount). The argument order decides which
// account custody credits.
func packDeposit(account, token common.Address, amount *big.Int) ([]byte, error) {
	return parsedCustodyABI.Pack("deposit", account, token, amount)
}

func packWithdraw(token common.Address, amount *big.Int, recipient common.Address) ([]byte, error) {
	return parsedCustodyABI.Pack("withdraw", token, amount, recipient)
}

func packApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return parsedERC20ABI.Pack("approve", spender, amount)
}

// OnChainService signs and submits custody transactions and waits until they are mined.
type OnChainService struct {
	logger   *slog.Logger
	registry *ChainRegistry
	dialer   ports.ChainDialer
}

var _ ports.CustodyChain = (*OnChainService)(nil)

func NewOnChainService(logger *slog.Logger, registry *ChainRegistry, dialer ports.ChainDialer) *OnChainService {
	return &OnChainService{
		logger:   logger,
		registry: registry,
		dialer:   dialer,
	}
}

// ApproveToken approves the chain's custody contract to spend Amount of TokenAddress.
func (s *OnChainService) ApproveToken(ctx context.Context, params entities.DepositParams) (string, error) {
	spender, err := s.registry.CustodyAddress(params.ChainID)
	if err != nil {
		return "", err
	}
	if err = validateTransfer(params.TokenAddress, params.Amount); err != nil {
		return "", err
	}

	data, err := packApprove(spender, params.Amount)
	if err != nil {
		return "", &ChainError{Op: "approve", Err: err}
	}

	token := common.HexToAddress(params.TokenAddress)
	return s.submit(ctx, "approve", params.ChainID, params.UserPrivateKey, token, big.NewInt(0), data)
}

// Deposit credits UserAddress in custody. Native asset deposits carry the amount as value.
func (s *OnChainService) Deposit(ctx context.Context, params entities.DepositParams) (string, error) {
	custody, err := s.registry.CustodyAddress(params.ChainID)
	if err != nil {
		return "", err
	}
	if err = validateTransfer(params.TokenAddress, params.Amount); err != nil {
		return "", err
	}
	if !common.IsHexAddress(params.UserAddress) {
		return "", fmt.Errorf("%w: account %q", ErrInvalidAddress, params.UserAddress)
	}

	account := common.HexToAddress(params.UserAddress)
	token := common.HexToAddress(params.TokenAddress)

	data, err := packDeposit(account, token, params.Amount)
	if err != nil {
		return "", &ChainError{Op: "deposit", Err: err}
	}

	value := big.NewInt(0)
	if token == (common.Address{}) {
		value = new(big.Int).Set(params.Amount)
	}

	return s.submit(ctx, "deposit", params.ChainID, params.UserPrivateKey, custody, value, data)
}

// Withdraw moves Amount of TokenAddress from custody back to UserAddress.
func (s *OnChainService) Withdraw(ctx context.Context, params entities.WithdrawParams) (string, error) {
	custody, err := s.registry.CustodyAddress(params.ChainID)
	if err != nil {
		return "", err
	}
	if err = validateTransfer(params.TokenAddress, params.Amount); err != nil {
		return "", err
	}
	if !common.IsHexAddress(params.UserAddress) {
		return "", fmt.Errorf("%w: recipient %q", ErrInvalidAddress, params.UserAddress)
	}

	data, err := packWithdraw(common.HexToAddress(params.TokenAddress), params.Amount, common.HexToAddress(params.UserAddress))
	if err != nil {
		return "", &ChainError{Op: "withdraw", Err: err}
	}

	return s.submit(ctx, "withdraw", params.ChainID, params.UserPrivateKey, custody, big.NewInt(0), data)
}

func (s *OnChainService) submit(
	ctx context.Context,
	op string,
	chainID uint64,
	privateKeyHex string,
	to common.Address,
	value *big.Int,
	data []byte,
) (string, error) {
	txHash, err := s.signAndWait(ctx, op, chainID, privateKeyHex, to, value, data)
	metrics.RecordChainTx(op, chainID, err == nil)
	if err != nil {
		s.logger.ErrorContext(ctx, "Custody transaction failed", "op", op, "chain_id", chainID, "error", err)
	}
	return txHash, err
}

func (s *OnChainService) signAndWait(
	ctx context.Context,
	op string,
	chainID uint64,
	privateKeyHex string,
	to common.Address,
	value *big.Int,
	data []byte,
) (string, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return "", &ChainError{Op: op, Err: errors.New("invalid signing key")}
	}
	from := crypto.PubkeyToAddress(privateKey.PublicKey)

	backend, err := s.dialer.Backend(ctx, chainID)
	if err != nil {
		return "", &ChainError{Op: op, Err: err}
	}

	networkID, err := backend.ChainID(ctx)
	if err != nil {
		return "", &ChainError{Op: op, Err: fmt.Errorf("failed to get chain ID: %w", err)}
	}
	if networkID.Uint64() != chainID {
		return "", &ChainError{Op: op, Err: fmt.Errorf("rpc serves chain %s, expected %d", networkID, chainID)}
	}

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", &ChainError{Op: op, Err: fmt.Errorf("failed to get nonce: %w", err)}
	}

	gasPrice, err := backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", &ChainError{Op: op, Err: fmt.Errorf("failed to get gas price: %w", err)}
	}

	gasLimit, err := backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return "", &ChainError{Op: op, Err: fmt.Errorf("failed to estimate gas: %w", err)}
	}
	gasLimit = gasLimit * (100 + ports.GasLimitBufferPercent) / 100

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(networkID), privateKey)
	if err != nil {
		return "", &ChainError{Op: op, Err: fmt.Errorf("failed to sign transaction: %w", err)}
	}

	if err = backend.SendTransaction(ctx, signedTx); err != nil {
		return "", &ChainError{Op: op, Err: fmt.Errorf("failed to send transaction: %w", err)}
	}

	txHash := signedTx.Hash().Hex()
	s.logger.InfoContext(ctx, "Custody transaction sent",
		"op", op,
		"chain_id", chainID,
		"from", from.Hex(),
		"to", to.Hex(),
		"tx_hash", txHash,
		"gas_limit", gasLimit)

	receipt, err := bind.WaitMined(ctx, backend, signedTx)
	if err != nil {
		return "", &ChainError{Op: op, TxHash: txHash, Err: fmt.Errorf("failed to wait for receipt: %w", err)}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", &ChainError{Op: op, TxHash: txHash, Err: errors.New("transaction reverted")}
	}

	s.logger.InfoContext(ctx, "Custody transaction confirmed",
		"op", op,
		"chain_id", chainID,
		"tx_hash", txHash,
		"block_number", receipt.BlockNumber,
		"gas_used", receipt.GasUsed)

	return txHash, nil
}

func validateTransfer(tokenAddress string, amount *big.Int) error {
	if !common.IsHexAddress(tokenAddress) {
		return fmt.Errorf("%w: token %q", ErrInvalidAddress, tokenAddress)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be greater than zero", ErrInvalidAmount)
	}
	return nil
}

// EthDialer keeps one ethclient connection per configured chain.
type EthDialer struct {
	logger   *slog.Logger
	registry *ChainRegistry

	mu      sync.Mutex
	clients map[uint64]*ethclient.Client
}

var _ ports.ChainDialer = (*EthDialer)(nil)

func NewEthDialer(logger *slog.Logger, registry *ChainRegistry) *EthDialer {
	return &EthDialer{
		logger:   logger,
		registry: registry,
		clients:  make(map[uint64]*ethclient.Client),
	}
}

func (d *EthDialer) Backend(ctx context.Context, chainID uint64) (ports.ChainBackend, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if client, ok := d.clients[chainID]; ok {
		return client, nil
	}

	chain, err := d.registry.Chain(chainID)
	if err != nil {
		return nil, err
	}
	if chain.RPCURL == "" {
		return nil, fmt.Errorf("%w: no rpc_url configured for chain %s", ErrConfig, chain.Name)
	}

	client, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s rpc: %w", chain.Name, err)
	}

	d.logger.InfoContext(ctx, "Connected to chain rpc", "chain", chain.Name, "chain_id", chainID)
	d.clients[chainID] = client
	return client, nil
}

// Close drops every cached connection.
func (d *EthDialer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, client := range d.clients {
		client.Close()
		delete(d.clients, id)
	}
}
