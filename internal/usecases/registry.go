package usecases

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/maps"

	"github.com/sand/custody-wallet/backend/config"
)

// ChainConfig is the registry view of one configured chain.
type ChainConfig struct {
	Name           string
	ChainID        uint64
	RPCURL         string
	CustodyAddress string
	Assets         map[string]AssetConfig
}

type AssetConfig struct {
	Symbol   string
	Address  common.Address
	Decimals int32
}

// Native reports whether the asset is the chain's native coin.
func (a AssetConfig) Native() bool {
	return a.Address == (common.Address{})
}

// ChainRegistry resolves chain names and asset symbols loaded from configuration.
type ChainRegistry struct {
	byName map[string]*ChainConfig
	byID   map[uint64]*ChainConfig
}

func NewChainRegistry(chains []config.Chain) (*ChainRegistry, error) {
	r := &ChainRegistry{
		byName: make(map[string]*ChainConfig, len(chains)),
		byID:   make(map[uint64]*ChainConfig, len(chains)),
	}

	for _, c := range chains {
		name := normalize(c.Name)
		if name == "" || c.ChainID == 0 {
			return nil, fmt.Errorf("%w: chain entry needs a name and chain_id", ErrConfig)
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("%w: chain %q configured twice", ErrConfig, c.Name)
		}
		if _, dup := r.byID[c.ChainID]; dup {
			return nil, fmt.Errorf("%w: chain id %d configured twice", ErrConfig, c.ChainID)
		}

		cc := &ChainConfig{
			Name:           name,
			ChainID:        c.ChainID,
			RPCURL:         c.RPCURL,
			CustodyAddress: c.CustodyAddress,
			Assets:         make(map[string]AssetConfig, len(c.Assets)),
		}
		for _, a := range c.Assets {
			if !common.IsHexAddress(a.Address) {
				return nil, fmt.Errorf("%w: asset %s on %s has invalid address %q", ErrConfig, a.Symbol, c.Name, a.Address)
			}
			cc.Assets[normalize(a.Symbol)] = AssetConfig{
				Symbol:   normalize(a.Symbol),
				Address:  common.HexToAddress(a.Address),
				Decimals: a.Decimals,
			}
		}

		r.byName[name] = cc
		r.byID[c.ChainID] = cc
	}

	return r, nil
}

// ChainID resolves a chain name such as "polygon".
func (r *ChainRegistry) ChainID(name string) (uint64, error) {
	c, ok := r.byName[normalize(name)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedChain, name)
	}
	return c.ChainID, nil
}

func (r *ChainRegistry) Chain(chainID uint64) (*ChainConfig, error) {
	c, ok := r.byID[chainID]
	if !ok {
		return nil, fmt.Errorf("%w: chain id %d", ErrUnsupportedChain, chainID)
	}
	return c, nil
}

func (r *ChainRegistry) ChainByName(name string) (*ChainConfig, error) {
	c, ok := r.byName[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, name)
	}
	return c, nil
}

func (r *ChainRegistry) Asset(chain, symbol string) (AssetConfig, error) {
	c, err := r.ChainByName(chain)
	if err != nil {
		return AssetConfig{}, err
	}
	a, ok := c.Assets[normalize(symbol)]
	if !ok {
		return AssetConfig{}, fmt.Errorf("%w: %s on %s", ErrUnsupportedAsset, symbol, chain)
	}
	return a, nil
}

func (r *ChainRegistry) TokenAddress(chain, symbol string) (common.Address, error) {
	a, err := r.Asset(chain, symbol)
	if err != nil {
		return common.Address{}, err
	}
	return a.Address, nil
}

// CustodyAddress returns the custody contract of a chain or ErrConfig when none is configured.
func (r *ChainRegistry) CustodyAddress(chainID uint64) (common.Address, error) {
	c, err := r.Chain(chainID)
	if err != nil {
		return common.Address{}, err
	}
	if !common.IsHexAddress(c.CustodyAddress) || common.HexToAddress(c.CustodyAddress) == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: no custody contract address configured for chain %s (%d), set chains.custody_address",
			ErrConfig, c.Name, c.ChainID)
	}
	return common.HexToAddress(c.CustodyAddress), nil
}

// Chains lists configured chain names in lexical order.
func (r *ChainRegistry) Chains() []string {
	names := maps.Keys(r.byName)
	sort.Strings(names)
	return names
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
