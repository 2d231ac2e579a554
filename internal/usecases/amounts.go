package usecases

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/shopspring/decimal"
)

// maxUint256Digits is the number of decimal digits of 2^256-1.
const maxUint256Digits = 78

// ParseUnits converts a positive human-unit decimal string into smallest units.
func ParseUnits(human string, decimals int32) (*big.Int, error) {
	amount, err := parseUnits(human, decimals)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return nil, fmt.Errorf("%w: %q must be greater than zero", ErrInvalidAmount, human)
	}
	return amount, nil
}

// parseUnits converts a non-negative human-unit decimal string into a uint256 of smallest units.
// Size checks run on the exponent before anything is scaled, so "1e50000000" fails fast.
func parseUnits(human string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(human))
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not a decimal number", ErrInvalidAmount, human)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q must not be negative", ErrInvalidAmount, human)
	}
	if d.IsZero() {
		return new(big.Int), nil
	}

	digits := int64(len(d.Coefficient().String()))
	exp := int64(d.Exponent()) + int64(decimals)
	if digits+exp > maxUint256Digits {
		return nil, fmt.Errorf("%w: %q does not fit in uint256", ErrInvalidAmount, human)
	}
	// Below one smallest unit once scaled.
	if -exp >= digits {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, human, decimals)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, human, decimals)
	}

	amount := scaled.BigInt()
	if amount.Cmp(abi.MaxUint256) > 0 {
		return nil, fmt.Errorf("%w: %q does not fit in uint256", ErrInvalidAmount, human)
	}
	return amount, nil
}

// FormatUnits renders smallest units as a human-unit decimal string.
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}
