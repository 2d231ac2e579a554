package entities

import (
	"bytes"
	"encoding/json"
)

// SessionStatus only ever moves from open to closed.
type SessionStatus string

const (
	SessionStatusOpen   SessionStatus = "open"
	SessionStatusClosed SessionStatus = "closed"
)

// Allocation is a ledger line item. Amount is in human units at the API and in smallest units
// on the network.
type Allocation struct {
	Participant string `json:"participant"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

type AppDefinition struct {
	Protocol     string   `json:"protocol"`
	Participants []string `json:"participants"`
	Weights      []int    `json:"weights"`
	Quorum       int      `json:"quorum"`
	Challenge    int      `json:"challenge"`
	Nonce        uint64   `json:"nonce"`
}

type AppSession struct {
	AppSessionID string        `json:"appSessionId"`
	Definition   AppDefinition `json:"definition"`
	Allocations  []Allocation  `json:"allocations"`
	Version      uint64        `json:"version"`
	Status       SessionStatus `json:"status"`
	SessionData  Payload       `json:"sessionData,omitempty"`
}

// Open reports whether allocations may still be updated.
func (s AppSession) Open() bool {
	return s.Status == SessionStatusOpen
}

type CreateSessionRequest struct {
	Definition  AppDefinition
	Allocations []Allocation
	SessionData Payload
}

type UpdateSessionRequest struct {
	AppSessionID string
	Allocations  []Allocation
	SessionData  Payload
}

type CloseSessionRequest struct {
	AppSessionID string
	Allocations  []Allocation
	SessionData  Payload
}

// Payload is application data attached to a session. It is stored and forwarded verbatim.
type Payload []byte

// Empty reports whether there is no payload or the payload is JSON null.
func (p Payload) Empty() bool {
	trimmed := bytes.TrimSpace(p)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func (p Payload) MarshalJSON() ([]byte, error) {
	if p.Empty() {
		return []byte("null"), nil
	}
	if !json.Valid(p) {
		// Non-JSON payloads travel as a JSON string.
		return json.Marshal(string(p))
	}
	return p, nil
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil && text != "" && !json.Valid([]byte(text)) {
		// Raw payload carried as a JSON string by MarshalJSON.
		*p = append((*p)[:0], text...)
		return nil
	}
	*p = append((*p)[:0], data...)
	return nil
}
