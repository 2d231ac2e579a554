package network

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/sand/custody-wallet/backend/internal/entities"
)

const methodError = "error"

// rpcPayload is the positional body of a frame: [id, method, params, timestamp].
type rpcPayload struct {
	ID        uint64
	Method    string
	Params    json.RawMessage
	Timestamp int64
}

func (p rpcPayload) MarshalJSON() ([]byte, error) {
	params := p.Params
	if len(params) == 0 {
		params = json.RawMessage("{}")
	}
	return json.Marshal([]any{p.ID, p.Method, params, p.Timestamp})
}

func (p *rpcPayload) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 4 {
		return fmt.Errorf("rpc payload has %d elements, expected 4", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.ID); err != nil {
		return fmt.Errorf("invalid rpc id: %w", err)
	}
	if err := json.Unmarshal(raw[1], &p.Method); err != nil {
		return fmt.Errorf("invalid rpc method: %w", err)
	}
	p.Params = raw[2]
	if err := json.Unmarshal(raw[3], &p.Timestamp); err != nil {
		return fmt.Errorf("invalid rpc timestamp: %w", err)
	}
	return nil
}

// rpcMessage is a request ("req") or response ("res") frame with its signatures.
type rpcMessage struct {
	Req *rpcPayload `json:"req,omitempty"`
	Res *rpcPayload `json:"res,omitempty"`
	Sig []string    `json:"sig"`
}

type rpcError struct {
	Error string `json:"error"`
}

// decodeError reads the message of an error response. Older nodes wrap it in a list.
func decodeError(params json.RawMessage) string {
	var single rpcError
	if err := json.Unmarshal(params, &single); err == nil && single.Error != "" {
		return single.Error
	}
	var list []rpcError
	if err := json.Unmarshal(params, &list); err == nil && len(list) > 0 {
		return list[0].Error
	}
	return string(params)
}

// decodeList accepts both {"<key>": [...]} and a bare list.
func decodeList[T any](raw json.RawMessage, key string) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapped); err != nil {
		return nil, err
	}
	inner, ok := wrapped[key]
	if !ok || bytes.Equal(bytes.TrimSpace(inner), []byte("null")) {
		return nil, nil
	}
	var items []T
	if err := json.Unmarshal(inner, &items); err != nil {
		return nil, err
	}
	return items, nil
}

type authRequestParams struct {
	Address     string           `json:"address"`
	SessionKey  string           `json:"session_key"`
	Application string           `json:"application"`
	Allowances  []allowanceParam `json:"allowances"`
	ExpiresAt   int64            `json:"expires_at"`
	Scope       string           `json:"scope"`
}

type allowanceParam struct {
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

type authChallengeResult struct {
	ChallengeMessage string `json:"challenge_message"`
}

type authVerifyParams struct {
	Challenge string `json:"challenge"`
}

type authVerifyResult struct {
	Address    string `json:"address"`
	SessionKey string `json:"session_key"`
	JWTToken   string `json:"jwt_token"`
	Success    bool   `json:"success"`
}

type channelWire struct {
	ChannelID   string      `json:"channel_id"`
	Participant string      `json:"participant"`
	Status      string      `json:"status"`
	Token       string      `json:"token"`
	Amount      json.Number `json:"amount"`
	ChainID     uint64      `json:"chain_id"`
}

func (w channelWire) entity() entities.Channel {
	return entities.Channel{
		ChannelID:   w.ChannelID,
		ChainID:     w.ChainID,
		Participant: w.Participant,
		Token:       w.Token,
		Balance:     numberOrZero(w.Amount),
		Status:      entities.ChannelStatus(w.Status),
	}
}

type getChannelsParams struct {
	Participant string `json:"participant"`
}

type createChannelParams struct {
	ChainID uint64 `json:"chain_id"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

type createChannelResult struct {
	ChannelID string       `json:"channel_id"`
	Channel   *channelWire `json:"channel,omitempty"`
}

type resizeChannelParams struct {
	ChannelID        string   `json:"channel_id"`
	ResizeAmount     *big.Int `json:"resize_amount"`
	AllocateAmount   *big.Int `json:"allocate_amount"`
	FundsDestination string   `json:"funds_destination"`
}

type closeChannelParams struct {
	ChannelID        string `json:"channel_id"`
	FundsDestination string `json:"funds_destination"`
}

type definitionWire struct {
	Protocol     string   `json:"protocol"`
	Participants []string `json:"participants"`
	Weights      []int    `json:"weights"`
	Quorum       int      `json:"quorum"`
	Challenge    int      `json:"challenge"`
	Nonce        uint64   `json:"nonce"`
}

type allocationWire struct {
	Participant string `json:"participant"`
	Asset       string `json:"asset"`
	Amount      string `json:"amount"`
}

type createSessionParams struct {
	Definition  definitionWire   `json:"definition"`
	Allocations []allocationWire `json:"allocations"`
	SessionData entities.Payload `json:"session_data,omitempty"`
}

type sessionStateParams struct {
	AppSessionID string           `json:"app_session_id"`
	Allocations  []allocationWire `json:"allocations"`
	SessionData  entities.Payload `json:"session_data,omitempty"`
}

type getSessionsParams struct {
	Participant  string `json:"participant,omitempty"`
	AppSessionID string `json:"app_session_id,omitempty"`
}

// sessionWire is the flat session shape returned by the node.
type sessionWire struct {
	AppSessionID string           `json:"app_session_id"`
	Status       string           `json:"status"`
	Protocol     string           `json:"protocol"`
	Participants []string         `json:"participants"`
	Weights      []int            `json:"weights"`
	Quorum       int              `json:"quorum"`
	Challenge    int              `json:"challenge"`
	Nonce        uint64           `json:"nonce"`
	Version      uint64           `json:"version"`
	Allocations  []allocationWire `json:"allocations"`
	SessionData  entities.Payload `json:"session_data"`
}

func (w sessionWire) entity() entities.AppSession {
	return entities.AppSession{
		AppSessionID: w.AppSessionID,
		Definition: entities.AppDefinition{
			Protocol:     w.Protocol,
			Participants: w.Participants,
			Weights:      w.Weights,
			Quorum:       w.Quorum,
			Challenge:    w.Challenge,
			Nonce:        w.Nonce,
		},
		Allocations: allocationsFromWire(w.Allocations),
		Version:     w.Version,
		Status:      entities.SessionStatus(w.Status),
		SessionData: w.SessionData,
	}
}

type ledgerBalancesParams struct {
	AccountID string `json:"account_id,omitempty"`
}

type balanceWire struct {
	Asset     string      `json:"asset"`
	Amount    json.Number `json:"amount"`
	Locked    json.Number `json:"locked"`
	Available json.Number `json:"available"`
}

func definitionToWire(d entities.AppDefinition) definitionWire {
	return definitionWire{
		Protocol:     d.Protocol,
		Participants: d.Participants,
		Weights:      d.Weights,
		Quorum:       d.Quorum,
		Challenge:    d.Challenge,
		Nonce:        d.Nonce,
	}
}

func allocationsToWire(allocations []entities.Allocation) []allocationWire {
	out := make([]allocationWire, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, allocationWire(a))
	}
	return out
}

func allocationsFromWire(allocations []allocationWire) []entities.Allocation {
	out := make([]entities.Allocation, 0, len(allocations))
	for _, a := range allocations {
		out = append(out, entities.Allocation(a))
	}
	return out
}

func balancesFromWire(balances []balanceWire) []entities.BalanceEntry {
	out := make([]entities.BalanceEntry, 0, len(balances))
	for _, b := range balances {
		out = append(out, entities.BalanceEntry{
			Asset:     b.Asset,
			Amount:    numberOrZero(b.Amount),
			Locked:    b.Locked.String(),
			Available: b.Available.String(),
		})
	}
	return out
}

func numberOrZero(n json.Number) string {
	if n == "" {
		return "0"
	}
	return n.String()
}
