package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.openly.dev/pointy"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/entities"
)

func newTestSessions(t *testing.T, address string) (*SessionService, *mockNetwork) {
	network := newMockNetwork()
	return NewSessionService(discardLogger(), newTestRegistry(t), mockWallets{address: address}, network, "polygon"), network
}

func TestDedupParticipantsKeepsCreatorFirst(t *testing.T) {
	require.Equal(t, []string{"0xAAA", "0xBBB"}, dedupParticipants("0xAAA", []string{"0xaaa", "0xBBB"}))
	require.Equal(t, []string{"0xAAA", "0xBBB"}, dedupParticipants("0xAAA", []string{" 0xBBB ", "", "0xbbb", "0xAaA"}))
	require.Equal(t, []string{"0xAAA"}, dedupParticipants("0xAAA", nil))
}

func TestBuildDefinitionDefaults(t *testing.T) {
	before := uint64(time.Now().UnixMilli())
	def := buildDefinition("0xAAA", CreateSessionInput{Participants: []string{"0xBBB"}})

	require.Equal(t, ports.DefaultSessionProtocol, def.Protocol)
	require.Equal(t, []int{50, 50}, def.Weights)
	require.Equal(t, 50, def.Quorum)
	require.Equal(t, 3600, def.Challenge)
	require.GreaterOrEqual(t, def.Nonce, before)
	require.LessOrEqual(t, ports.DefaultSessionQuorum, ports.SessionKeyWeight,
		"the service key alone must reach the default quorum")
}

func TestBuildDefinitionHonoursSuppliedValues(t *testing.T) {
	def := buildDefinition("0xAAA", CreateSessionInput{
		Participants: []string{"0xBBB"},
		Weights:      []int{70, 30},
		Quorum:       pointy.Int(100),
		Challenge:    pointy.Int(0),
		Protocol:     "custom/1",
	})

	require.Equal(t, []int{70, 30}, def.Weights)
	require.Equal(t, 100, def.Quorum)
	require.Equal(t, 0, def.Challenge, "an explicit zero is not replaced by the default")
	require.Equal(t, "custom/1", def.Protocol)
}

func TestCreateSession(t *testing.T) {
	service, network := newTestSessions(t, "0xAAA")

	session, err := service.CreateSession(context.Background(), CreateSessionInput{
		UserID:       "user-1",
		Participants: []string{"0xaaa", "0xBBB"},
		Allocations: []entities.Allocation{
			{Participant: "0xAAA", Asset: "usdc", Amount: "1.5"},
			{Participant: "0xBBB", Asset: "usdc", Amount: "0"},
		},
		SessionData: entities.Payload(`{"game":"chess"}`),
	})
	require.NoError(t, err)
	require.Equal(t, "0xsession", session.AppSessionID)

	require.Len(t, network.created, 1)
	require.Equal(t, []string{"0xAAA", "0xBBB"}, network.created[0].Definition.Participants)
	require.Equal(t, []entities.Allocation{
		{Participant: "0xAAA", Asset: "usdc", Amount: "1500000"},
		{Participant: "0xBBB", Asset: "usdc", Amount: "0"},
	}, network.created[0].Allocations, "the ledger receives smallest units")
	require.Equal(t, "1.5", session.Allocations[0].Amount, "callers see human units")
	require.JSONEq(t, `{"game":"chess"}`, string(network.created[0].SessionData))
	require.Equal(t, 1, network.count("Authenticate"))
}

func TestCreateSessionRejectsNegativeAllocation(t *testing.T) {
	service, network := newTestSessions(t, "0xAAA")

	_, err := service.CreateSession(context.Background(), CreateSessionInput{
		UserID:      "user-1",
		Allocations: []entities.Allocation{{Participant: "0xAAA", Asset: "usdc", Amount: "-1"}},
	})
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.Empty(t, network.calls)
}

func TestSessionAllocationsRejectBadAmounts(t *testing.T) {
	service, network := newTestSessions(t, "0xAAA")
	ctx := context.Background()

	tests := []struct {
		name       string
		allocation entities.Allocation
		want       error
	}{
		{"unknown asset", entities.Allocation{Participant: "0xAAA", Asset: "doge", Amount: "1"}, ErrUnsupportedAsset},
		{"too precise", entities.Allocation{Participant: "0xAAA", Asset: "usdc", Amount: "0.0000001"}, ErrInvalidAmount},
		{"too large", entities.Allocation{Participant: "0xAAA", Asset: "usdc", Amount: "1e50000000"}, ErrInvalidAmount},
		{"missing participant", entities.Allocation{Asset: "usdc", Amount: "1"}, ErrInvalidAmount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.CreateSession(ctx, CreateSessionInput{UserID: "user-1", Allocations: []entities.Allocation{tt.allocation}})
			require.ErrorIs(t, err, tt.want)
		})
	}
	require.Empty(t, network.calls)
}

func TestUpdateSessionConvertsAllocations(t *testing.T) {
	service, network := newTestSessions(t, "0xAAA")
	network.sessions["0xsession"] = &entities.AppSession{
		AppSessionID: "0xsession",
		Definition:   entities.AppDefinition{Participants: []string{"0xAAA", "0xBBB"}},
		Status:       entities.SessionStatusOpen,
	}

	updated, err := service.UpdateSession(context.Background(), UpdateSessionInput{
		UserID:       "user-1",
		AppSessionID: "0xsession",
		Allocations:  []entities.Allocation{{Participant: "0xBBB", Asset: "POL", Amount: "0.25"}},
	})
	require.NoError(t, err)
	require.Equal(t, "250000000000000000", network.sessions["0xsession"].Allocations[0].Amount)
	require.Equal(t, "0.25", updated.Allocations[0].Amount)
}

func TestSessionAccessRequiresParticipant(t *testing.T) {
	service, network := newTestSessions(t, "0xCCC")
	network.sessions["0xsession"] = &entities.AppSession{
		AppSessionID: "0xsession",
		Definition:   entities.AppDefinition{Participants: []string{"0xAAA", "0xBBB"}},
		Status:       entities.SessionStatusOpen,
	}
	ctx := context.Background()

	_, err := service.GetSession(ctx, "user-3", "0xsession")
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = service.UpdateSession(ctx, UpdateSessionInput{UserID: "user-3", AppSessionID: "0xsession"})
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = service.CloseSession(ctx, CloseSessionInput{UserID: "user-3", AppSessionID: "0xsession"})
	require.ErrorIs(t, err, ErrNotParticipant)

	_, err = service.SessionBalances(ctx, "user-3", "0xsession")
	require.ErrorIs(t, err, ErrNotParticipant)

	require.Zero(t, network.count("UpdateSession"))
	require.Zero(t, network.count("CloseSession"))
}

func TestClosedSessionIsTerminal(t *testing.T) {
	service, network := newTestSessions(t, "0xbbb")
	network.sessions["0xsession"] = &entities.AppSession{
		AppSessionID: "0xsession",
		Definition:   entities.AppDefinition{Participants: []string{"0xAAA", "0xBBB"}},
		Status:       entities.SessionStatusOpen,
		Version:      1,
	}
	ctx := context.Background()
	final := []entities.Allocation{{Participant: "0xAAA", Asset: "usdc", Amount: "2"}}

	updated, err := service.UpdateSession(ctx, UpdateSessionInput{UserID: "user-2", AppSessionID: "0xsession", Allocations: final})
	require.NoError(t, err)
	require.EqualValues(t, 2, updated.Version)

	closed, err := service.CloseSession(ctx, CloseSessionInput{UserID: "user-2", AppSessionID: "0xsession", Allocations: final})
	require.NoError(t, err)
	require.Equal(t, entities.SessionStatusClosed, closed.Status)

	_, err = service.UpdateSession(ctx, UpdateSessionInput{UserID: "user-2", AppSessionID: "0xsession"})
	require.ErrorIs(t, err, ErrInvalidState)

	_, err = service.CloseSession(ctx, CloseSessionInput{UserID: "user-2", AppSessionID: "0xsession"})
	require.ErrorIs(t, err, ErrInvalidState)
	require.Equal(t, 1, network.count("CloseSession"))
}

func TestDiscoverSessionsFiltersByParticipant(t *testing.T) {
	service, network := newTestSessions(t, "0xAAA")
	network.sessions["0x1"] = &entities.AppSession{AppSessionID: "0x1", Definition: entities.AppDefinition{Participants: []string{"0xaaa"}}}
	network.sessions["0x2"] = &entities.AppSession{AppSessionID: "0x2", Definition: entities.AppDefinition{Participants: []string{"0xBBB"}}}

	sessions, err := service.DiscoverSessions(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	require.Equal(t, "0x1", sessions[0].AppSessionID)
}

func TestAuthenticateReturnsSession(t *testing.T) {
	service, network := newTestSessions(t, "0xAAA")

	result, err := service.Authenticate(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, "0xAAA", result.Address)
	require.Equal(t, "session-0xAAA", result.SessionID)
	require.Equal(t, 1, network.count("Authenticate"))
}
