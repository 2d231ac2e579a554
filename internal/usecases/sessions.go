package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"go.openly.dev/pointy"
	"golang.org/x/exp/slices"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/entities"
)

type CreateSessionInput struct {
	UserID       string
	Participants []string
	Weights      []int
	Quorum       *int
	Challenge    *int
	Protocol     string
	Allocations  []entities.Allocation
	SessionData  entities.Payload
}

type UpdateSessionInput struct {
	UserID       string
	AppSessionID string
	Allocations  []entities.Allocation
	SessionData  entities.Payload
}

type CloseSessionInput UpdateSessionInput

type AuthResult struct {
	Address   string    `json:"address"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionService drives multi-party app sessions on behalf of custodial users. The network is the
// source of truth; nothing here is persisted.
type SessionService struct {
	logger   *slog.Logger
	registry *ChainRegistry
	wallets  ports.WalletProvider
	network  ports.NetworkClient

	// chain whose wallet address signs into the network and whose assets price allocations
	chain string
}

func NewSessionService(
	logger *slog.Logger,
	registry *ChainRegistry,
	wallets ports.WalletProvider,
	network ports.NetworkClient,
	chain string,
) *SessionService {
	return &SessionService{
		logger:   logger,
		registry: registry,
		wallets:  wallets,
		network:  network,
		chain:    chain,
	}
}

func (s *SessionService) Authenticate(ctx context.Context, userID string) (*AuthResult, error) {
	address, err := s.wallets.GetWalletAddress(ctx, userID, s.chain)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve wallet address: %w", err)
	}

	session, err := s.network.Authenticate(ctx, userID, address)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		Address:   address,
		SessionID: session.SessionID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// CreateSession opens an app session with the user as first participant.
func (s *SessionService) CreateSession(ctx context.Context, in CreateSessionInput) (*entities.AppSession, error) {
	allocations, err := s.ledgerAllocations(in.Allocations)
	if err != nil {
		return nil, err
	}

	address, err := s.authenticate(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	definition := buildDefinition(address, in)

	s.logger.InfoContext(ctx, "Creating app session",
		"user_id", in.UserID,
		"address", address,
		"participants", len(definition.Participants),
		"quorum", definition.Quorum,
		"nonce", definition.Nonce)

	session, err := s.network.CreateSession(ctx, address, entities.CreateSessionRequest{
		Definition:  definition,
		Allocations: allocations,
		SessionData: in.SessionData,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "App session created", "user_id", in.UserID, "app_session_id", session.AppSessionID)
	return s.humanSession(session), nil
}

func (s *SessionService) GetSession(ctx context.Context, userID, appSessionID string) (*entities.AppSession, error) {
	_, session, err := s.participantSession(ctx, userID, appSessionID)
	if err != nil {
		return nil, err
	}
	return s.humanSession(session), nil
}

// UpdateSession replaces the allocations of an open session.
func (s *SessionService) UpdateSession(ctx context.Context, in UpdateSessionInput) (*entities.AppSession, error) {
	allocations, err := s.ledgerAllocations(in.Allocations)
	if err != nil {
		return nil, err
	}

	address, session, err := s.participantSession(ctx, in.UserID, in.AppSessionID)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, fmt.Errorf("%w: %s is %s, update requested by %s", ErrInvalidState, session.AppSessionID, session.Status, address)
	}

	updated, err := s.network.UpdateSession(ctx, address, entities.UpdateSessionRequest{
		AppSessionID: in.AppSessionID,
		Allocations:  allocations,
		SessionData:  in.SessionData,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "App session updated",
		"user_id", in.UserID,
		"app_session_id", in.AppSessionID,
		"version", updated.Version)
	return s.humanSession(updated), nil
}

// CloseSession finalises a session with its closing allocations. Closed sessions never reopen.
func (s *SessionService) CloseSession(ctx context.Context, in CloseSessionInput) (*entities.AppSession, error) {
	allocations, err := s.ledgerAllocations(in.Allocations)
	if err != nil {
		return nil, err
	}

	address, session, err := s.participantSession(ctx, in.UserID, in.AppSessionID)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, fmt.Errorf("%w: %s is already %s, close requested by %s", ErrInvalidState, session.AppSessionID, session.Status, address)
	}

	closed, err := s.network.CloseSession(ctx, address, entities.CloseSessionRequest{
		AppSessionID: in.AppSessionID,
		Allocations:  allocations,
		SessionData:  in.SessionData,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "App session closed", "user_id", in.UserID, "app_session_id", in.AppSessionID)
	return s.humanSession(closed), nil
}

// DiscoverSessions lists every session the user's address takes part in.
func (s *SessionService) DiscoverSessions(ctx context.Context, userID string) ([]entities.AppSession, error) {
	address, err := s.authenticate(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions, err := s.network.QuerySessions(ctx, address)
	if err != nil {
		return nil, err
	}

	result := make([]entities.AppSession, 0, len(sessions))
	for _, session := range sessions {
		if isParticipant(session.Definition.Participants, address) {
			result = append(result, *s.humanSession(&session))
		}
	}
	return result, nil
}

func (s *SessionService) SessionBalances(ctx context.Context, userID, appSessionID string) ([]entities.BalanceEntry, error) {
	address, _, err := s.participantSession(ctx, userID, appSessionID)
	if err != nil {
		return nil, err
	}
	return s.network.GetAppSessionBalances(ctx, address, appSessionID)
}

// authenticate resolves the user's address and signs it into the network.
func (s *SessionService) authenticate(ctx context.Context, userID string) (string, error) {
	address, err := s.wallets.GetWalletAddress(ctx, userID, s.chain)
	if err != nil {
		return "", fmt.Errorf("failed to resolve wallet address: %w", err)
	}

	if _, err = s.network.Authenticate(ctx, userID, address); err != nil {
		return "", err
	}
	return address, nil
}

func (s *SessionService) participantSession(ctx context.Context, userID, appSessionID string) (string, *entities.AppSession, error) {
	address, err := s.authenticate(ctx, userID)
	if err != nil {
		return "", nil, err
	}

	session, err := s.network.QuerySession(ctx, address, appSessionID)
	if err != nil {
		return "", nil, err
	}

	if !isParticipant(session.Definition.Participants, address) {
		return "", nil, fmt.Errorf("%w: %s is not a participant of %s", ErrNotParticipant, address, appSessionID)
	}
	return address, session, nil
}

func buildDefinition(creator string, in CreateSessionInput) entities.AppDefinition {
	participants := dedupParticipants(creator, in.Participants)

	weights := in.Weights
	if len(weights) == 0 {
		weights = make([]int, len(participants))
		for i := range weights {
			weights[i] = ports.SessionKeyWeight
		}
	}

	protocol := in.Protocol
	if protocol == "" {
		protocol = ports.DefaultSessionProtocol
	}

	return entities.AppDefinition{
		Protocol:     protocol,
		Participants: participants,
		Weights:      weights,
		Quorum:       pointy.IntValue(in.Quorum, ports.DefaultSessionQuorum),
		Challenge:    pointy.IntValue(in.Challenge, ports.DefaultSessionChallenge),
		Nonce:        uint64(time.Now().UnixMilli()),
	}
}

// dedupParticipants puts creator first, verbatim, and drops case-insensitive duplicates.
func dedupParticipants(creator string, requested []string) []string {
	participants := make([]string, 0, len(requested)+1)
	participants = append(participants, creator)

	for _, p := range requested {
		p = strings.TrimSpace(p)
		if p == "" || isParticipant(participants, p) {
			continue
		}
		participants = append(participants, p)
	}
	return participants
}

func isParticipant(participants []string, address string) bool {
	return slices.IndexFunc(participants, func(p string) bool {
		return strings.EqualFold(p, address)
	}) >= 0
}

// ledgerAllocations validates human-unit allocations and converts them into smallest units of
// the session chain's assets. Zero amounts are allowed.
func (s *SessionService) ledgerAllocations(allocations []entities.Allocation) ([]entities.Allocation, error) {
	out := make([]entities.Allocation, 0, len(allocations))
	for _, a := range allocations {
		if a.Asset == "" || a.Participant == "" {
			return nil, fmt.Errorf("%w: allocation needs a participant and an asset", ErrInvalidAmount)
		}

		asset, err := s.registry.Asset(s.chain, a.Asset)
		if err != nil {
			return nil, err
		}
		amount, err := parseUnits(a.Amount, asset.Decimals)
		if err != nil {
			return nil, fmt.Errorf("allocation for %s: %w", a.Participant, err)
		}

		out = append(out, entities.Allocation{Participant: a.Participant, Asset: a.Asset, Amount: amount.String()})
	}
	return out, nil
}

// humanSession returns a copy of session with ledger amounts rendered in human units. Amounts of
// unknown assets or in an unexpected format are left untouched.
func (s *SessionService) humanSession(session *entities.AppSession) *entities.AppSession {
	cp := *session
	cp.Allocations = make([]entities.Allocation, 0, len(session.Allocations))
	for _, a := range session.Allocations {
		asset, err := s.registry.Asset(s.chain, a.Asset)
		amount, ok := new(big.Int).SetString(strings.TrimSpace(a.Amount), 10)
		if err == nil && ok {
			a.Amount = FormatUnits(amount, asset.Decimals)
		}
		cp.Allocations = append(cp.Allocations, a)
	}
	return &cp
}
