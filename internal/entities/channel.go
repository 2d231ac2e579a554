package entities

import "math/big"

// ChannelStatus is the lifecycle state reported by the settlement network.
type ChannelStatus string

const (
	ChannelStatusOpen       ChannelStatus = "open"
	ChannelStatusActive     ChannelStatus = "active"
	ChannelStatusResizing   ChannelStatus = "resizing"
	ChannelStatusChallenged ChannelStatus = "challenged"
	ChannelStatusClosed     ChannelStatus = "closed"
)

// Channel is a two-party construct between a user address and the network counterparty.
type Channel struct {
	ChannelID   string        `json:"channelId"`
	ChainID     uint64        `json:"chainId"`
	Participant string        `json:"participant,omitempty"`
	Token       string        `json:"token,omitempty"`
	Balance     string        `json:"balance"`
	Status      ChannelStatus `json:"status"`
}

// Usable reports whether the channel can be resized into the unified balance.
func (c Channel) Usable() bool {
	return c.Status == ChannelStatusOpen || c.Status == ChannelStatusActive
}

type CreateChannelRequest struct {
	UserAddress    string
	ChainID        uint64
	TokenAddress   string
	InitialBalance *big.Int
}

// ResizeChannelRequest moves Amount (smallest units, positive adds funds) between custody and the
// unified balance. An empty Participants list keeps the operation ledger-side only.
type ResizeChannelRequest struct {
	ChannelID    string
	ChainID      uint64
	Amount       *big.Int
	UserAddress  string
	TokenAddress string
	Participants []string
}

type CloseChannelRequest struct {
	ChannelID        string
	ChainID          uint64
	FundsDestination string
}

// CreditParams asks the coordinator to move custody funds into the unified balance.
type CreditParams struct {
	UserID       string
	UserAddress  string
	Chain        string
	TokenAddress string
	Amount       *big.Int
}

type CreditResult struct {
	ChannelID string `json:"channelId"`
	Credited  bool   `json:"credited"`
}
