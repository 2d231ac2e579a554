package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/usecases"
)

// ChainSolana is served next to the configured EVM chains. It only carries an address.
const ChainSolana = "solana"

const (
	purpose     = 44
	coinEther   = 60
	coinSolana  = 501
	hardened    = bip32.FirstHardenedChild
	minEntropy  = 128
	maxEntropy  = 256
	entropyStep = 32
)

// HDProvider derives every user wallet from one mnemonic. Each user owns a persistent index;
// all EVM chains share the address at m/44'/60'/0'/0/{index}.
type HDProvider struct {
	logger   *slog.Logger
	master   *bip32.Key
	wallets  ports.WalletsRepository
	registry *usecases.ChainRegistry

	mu      sync.Mutex
	indexes map[string]uint32
}

var _ ports.WalletProvider = (*HDProvider)(nil)

func NewHDProvider(logger *slog.Logger, mnemonic string, wallets ports.WalletsRepository, registry *usecases.ChainRegistry) (*HDProvider, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: wallet seed is not a valid bip39 mnemonic", usecases.ErrConfig)
	}

	master, err := bip32.NewMasterKey(bip39.NewSeed(mnemonic, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create master key: %w", err)
	}

	return &HDProvider{
		logger:   logger,
		master:   master,
		wallets:  wallets,
		registry: registry,
		indexes:  make(map[string]uint32),
	}, nil
}

func (p *HDProvider) GetWalletAddress(ctx context.Context, userID, chain string) (string, error) {
	index, err := p.walletIndex(ctx, userID)
	if err != nil {
		return "", err
	}

	if strings.EqualFold(chain, ChainSolana) {
		return p.solanaAddress(index)
	}
	if _, err = p.registry.ChainID(chain); err != nil {
		return "", err
	}

	key, err := p.evmKey(index)
	if err != nil {
		return "", err
	}
	return evmAddress(key)
}

// GetPrivateKey returns the hex encoded EVM signing key. Keys are derived per call and never kept.
func (p *HDProvider) GetPrivateKey(ctx context.Context, userID, chain string) (string, error) {
	if _, err := p.registry.ChainID(chain); err != nil {
		return "", err
	}

	index, err := p.walletIndex(ctx, userID)
	if err != nil {
		return "", err
	}

	key, err := p.evmKey(index)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(keyBytes(key)), nil
}

func (p *HDProvider) GetAllWalletAddresses(ctx context.Context, userID string) (map[string]string, error) {
	chains := p.registry.Chains()
	addresses := make(map[string]string, len(chains)+1)

	for _, chain := range append(chains, ChainSolana) {
		address, err := p.GetWalletAddress(ctx, userID, chain)
		if err != nil {
			return nil, fmt.Errorf("failed to derive %s address: %w", chain, err)
		}
		addresses[chain] = address
	}
	return addresses, nil
}

// walletIndex returns the user's derivation index, provisioning a wallet on first access.
func (p *HDProvider) walletIndex(ctx context.Context, userID string) (uint32, error) {
	if strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("user id is required")
	}

	p.mu.Lock()
	index, ok := p.indexes[userID]
	p.mu.Unlock()
	if ok {
		return index, nil
	}

	w, err := p.wallets.FindWalletByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if w == nil {
		if w, err = p.wallets.InsertWallet(ctx, userID); err != nil {
			return 0, err
		}
		p.logger.InfoContext(ctx, "Provisioned wallet", "user_id", userID, "index", w.WalletIndex)
	}

	p.mu.Lock()
	p.indexes[userID] = w.WalletIndex
	p.mu.Unlock()

	return w.WalletIndex, nil
}

func (p *HDProvider) evmKey(index uint32) (*bip32.Key, error) {
	return derive(p.master, purpose+hardened, coinEther+hardened, hardened, 0, index)
}

func (p *HDProvider) solanaAddress(index uint32) (string, error) {
	child, err := derive(p.master, purpose+hardened, coinSolana+hardened, index+hardened)
	if err != nil {
		return "", err
	}

	key := solana.PrivateKey(ed25519.NewKeyFromSeed(keyBytes(child)))
	return key.PublicKey().String(), nil
}

func derive(key *bip32.Key, path ...uint32) (*bip32.Key, error) {
	var err error
	for _, i := range path {
		key, err = key.NewChildKey(i)
		if err != nil {
			return nil, fmt.Errorf("failed to derive child key %d: %w", i, err)
		}
	}
	return key, nil
}

// keyBytes left pads the child key to 32 bytes. go-bip32 drops leading zero bytes.
func keyBytes(key *bip32.Key) []byte {
	return common.LeftPadBytes(key.Key, 32)
}

func evmAddress(key *bip32.Key) (string, error) {
	privateKey, err := crypto.ToECDSA(keyBytes(key))
	if err != nil {
		return "", fmt.Errorf("failed to convert child key: %w", err)
	}
	return crypto.PubkeyToAddress(privateKey.PublicKey).Hex(), nil
}

// GenerateSeedPhrase returns a new mnemonic for 128 to 256 bits of entropy in steps of 32.
func GenerateSeedPhrase(bits int) (string, error) {
	if bits < minEntropy || bits > maxEntropy || bits%entropyStep != 0 {
		return "", fmt.Errorf("invalid entropy bits %d, must be between %d and %d in steps of %d",
			bits, minEntropy, maxEntropy, entropyStep)
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}

	return bip39.NewMnemonic(entropy)
}
