package entities

import (
	"time"
)

// Wallet binds a user to the HD derivation index of all of their chain addresses.
type Wallet struct {
	ID          int       `db:"id"`
	UserID      string    `db:"user_id"`
	WalletIndex uint32    `db:"wallet_index"`
	CreatedAt   time.Time `db:"created_at"`
}
