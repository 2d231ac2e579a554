package usecases

import (
	"errors"
	"fmt"
)

var (
	ErrConfig           = errors.New("configuration error")
	ErrChain            = errors.New("chain error")
	ErrUnsupportedChain = errors.New("unsupported chain")
	ErrUnsupportedAsset = errors.New("unsupported asset")
	ErrNotAuthenticated = errors.New("not authenticated with the network, call authenticate first")
	ErrNotParticipant   = errors.New("caller is not a participant of the app session")
	ErrInvalidState     = errors.New("app session is not open")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrInvalidAddress   = errors.New("invalid address")
)

// ChainError wraps an RPC, signing or receipt failure of one on-chain step.
type ChainError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *ChainError) Error() string {
	if e.TxHash != "" {
		return fmt.Sprintf("%s failed (tx %s): %v", e.Op, e.TxHash, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ChainError) Unwrap() []error {
	return []error{ErrChain, e.Err}
}

// notAuthenticated collapses every ledger query failure into ErrNotAuthenticated while keeping
// the original cause reachable through errors.Is/As.
func notAuthenticated(cause error) error {
	return fmt.Errorf("%w: %w", ErrNotAuthenticated, cause)
}
