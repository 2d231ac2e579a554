package entities

import "time"

// BalanceEntry is one asset line of a unified balance. The settlement network owns it and it is
// never persisted as truth. Locked and Available are empty when the node does not report them.
type BalanceEntry struct {
	Asset     string `json:"asset"`
	Amount    string `json:"amount"`
	Locked    string `json:"locked,omitempty"`
	Available string `json:"available,omitempty"`
}

// BalanceSnapshot is a cached copy of a ledger entry, kept for display only.
type BalanceSnapshot struct {
	ID         int64     `db:"id"          json:"id"`
	UserID     string    `db:"user_id"     json:"user_id"`
	AccountID  string    `db:"account_id"  json:"account_id"`
	Asset      string    `db:"asset"       json:"asset"`
	Amount     string    `db:"amount"      json:"amount"`
	CapturedAt time.Time `db:"captured_at" json:"captured_at"`
}
