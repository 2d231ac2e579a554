package entities

import "time"

type OperationKind string

const (
	OperationApprove  OperationKind = "approve"
	OperationDeposit  OperationKind = "deposit"
	OperationWithdraw OperationKind = "withdraw"
	OperationCredit   OperationKind = "credit"
)

type OperationStatus string

const (
	OperationStatusConfirmed OperationStatus = "confirmed"
	OperationStatusFailed    OperationStatus = "failed"
)

// CustodyOperation journals one step of a custody flow.
type CustodyOperation struct {
	ID        int64           `db:"id"         json:"id"`
	OpID      string          `db:"op_id"      json:"op_id"`
	UserID    string          `db:"user_id"    json:"user_id"`
	ChainID   int64           `db:"chain_id"   json:"chain_id"`
	Kind      OperationKind   `db:"kind"       json:"kind"`
	Token     string          `db:"token"      json:"token"`
	Amount    string          `db:"amount"     json:"amount"`
	TxHash    string          `db:"tx_hash"    json:"tx_hash,omitempty"`
	ChannelID string          `db:"channel_id" json:"channel_id,omitempty"`
	Status    OperationStatus `db:"status"     json:"status"`
	Error     string          `db:"error"      json:"error,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
