package entities

import (
	"log/slog"
	"math/big"
	"time"
)

// DepositParams is request scoped and never persisted. UserAddress is the account credited in
// custody and may differ from the address of UserPrivateKey.
type DepositParams struct {
	UserPrivateKey string
	UserAddress    string
	TokenAddress   string
	Amount         *big.Int
	ChainID        uint64
}

// LogValue keeps the private key out of log records.
func (p DepositParams) LogValue() slog.Value {
	amount := ""
	if p.Amount != nil {
		amount = p.Amount.String()
	}
	return slog.GroupValue(
		slog.String("user_address", p.UserAddress),
		slog.String("token_address", p.TokenAddress),
		slog.String("amount", amount),
		slog.Uint64("chain_id", p.ChainID),
	)
}

// WithdrawParams sends Amount of TokenAddress from custody to UserAddress.
type WithdrawParams DepositParams

func (p WithdrawParams) LogValue() slog.Value {
	return DepositParams(p).LogValue()
}

// AuthSession is the result of a settlement network handshake.
type AuthSession struct {
	SessionID     string    `json:"sessionId"`
	ExpiresAt     time.Time `json:"expiresAt"`
	AuthSignature string    `json:"-"`
}
