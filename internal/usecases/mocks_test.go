package usecases

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sand/custody-wallet/backend/config"
	"github.com/sand/custody-wallet/backend/internal/entities"
)

const (
	testUserAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testPrivateKey  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testCustody     = "0x490fb189DdE3a01B00be9BA5F41e3447FbC838b6"
	testUSDC        = "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359"
	testChainID     = 137
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRegistry(t *testing.T) *ChainRegistry {
	registry, err := NewChainRegistry([]config.Chain{
		{
			Name:           "polygon",
			ChainID:        testChainID,
			RPCURL:         "http://127.0.0.1:8545",
			CustodyAddress: testCustody,
			Assets: []config.Asset{
				{Symbol: "USDC", Address: testUSDC, Decimals: 6},
				{Symbol: "POL", Address: "0x0000000000000000000000000000000000000000", Decimals: 18},
			},
		},
		{Name: "base", ChainID: 8453},
	})
	require.NoError(t, err)
	return registry
}

// mockNetwork is an in-memory settlement network. Created channels show up in later GetChannels calls.
type mockNetwork struct {
	mu sync.Mutex

	authErr      error
	createErr    error
	resizeErr    error
	balances     []entities.BalanceEntry
	balancesErr  error
	sessions     map[string]*entities.AppSession
	channels     []entities.Channel
	nextChannel  int
	calls        []string
	resized      []entities.ResizeChannelRequest
	created      []entities.CreateSessionRequest
	authed       []string
	closedRemote []entities.CloseChannelRequest
}

func newMockNetwork() *mockNetwork {
	return &mockNetwork{sessions: make(map[string]*entities.AppSession)}
}

func (m *mockNetwork) record(call string) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

func (m *mockNetwork) count(call string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (m *mockNetwork) Authenticate(_ context.Context, _ string, address string) (*entities.AuthSession, error) {
	m.record("Authenticate")
	if m.authErr != nil {
		return nil, m.authErr
	}
	m.mu.Lock()
	m.authed = append(m.authed, address)
	m.mu.Unlock()
	return &entities.AuthSession{SessionID: "session-" + address, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *mockNetwork) CreateChannel(_ context.Context, req entities.CreateChannelRequest) (*entities.Channel, error) {
	m.record("CreateChannel")
	if m.createErr != nil {
		return nil, m.createErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextChannel++
	ch := entities.Channel{
		ChannelID:   "0xchannel" + big.NewInt(int64(m.nextChannel)).String(),
		ChainID:     req.ChainID,
		Participant: req.UserAddress,
		Token:       req.TokenAddress,
		Balance:     req.InitialBalance.String(),
		Status:      entities.ChannelStatusOpen,
	}
	m.channels = append(m.channels, ch)
	return &ch, nil
}

func (m *mockNetwork) ResizeChannel(_ context.Context, req entities.ResizeChannelRequest) error {
	m.record("ResizeChannel")
	if m.resizeErr != nil {
		return m.resizeErr
	}
	m.mu.Lock()
	m.resized = append(m.resized, req)
	m.mu.Unlock()
	return nil
}

func (m *mockNetwork) GetChannels(context.Context, string) ([]entities.Channel, error) {
	m.record("GetChannels")
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Channel(nil), m.channels...), nil
}

func (m *mockNetwork) CloseChannel(_ context.Context, _ string, req entities.CloseChannelRequest) error {
	m.record("CloseChannel")
	m.mu.Lock()
	m.closedRemote = append(m.closedRemote, req)
	m.mu.Unlock()
	return nil
}

func (m *mockNetwork) CreateSession(_ context.Context, _ string, req entities.CreateSessionRequest) (*entities.AppSession, error) {
	m.record("CreateSession")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, req)
	s := &entities.AppSession{
		AppSessionID: "0xsession",
		Definition:   req.Definition,
		Allocations:  req.Allocations,
		Version:      1,
		Status:       entities.SessionStatusOpen,
		SessionData:  req.SessionData,
	}
	m.sessions[s.AppSessionID] = s
	return s, nil
}

func (m *mockNetwork) UpdateSession(_ context.Context, _ string, req entities.UpdateSessionRequest) (*entities.AppSession, error) {
	m.record("UpdateSession")
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[req.AppSessionID]
	s.Allocations = req.Allocations
	s.Version++
	return s, nil
}

func (m *mockNetwork) CloseSession(_ context.Context, _ string, req entities.CloseSessionRequest) (*entities.AppSession, error) {
	m.record("CloseSession")
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.sessions[req.AppSessionID]
	s.Allocations = req.Allocations
	s.Status = entities.SessionStatusClosed
	return s, nil
}

func (m *mockNetwork) QuerySession(_ context.Context, _ string, id string) (*entities.AppSession, error) {
	m.record("QuerySession")
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	cp := *s
	return &cp, nil
}

func (m *mockNetwork) QuerySessions(context.Context, string) ([]entities.AppSession, error) {
	m.record("QuerySessions")
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entities.AppSession, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, *s)
	}
	return out, nil
}

func (m *mockNetwork) GetUnifiedBalance(context.Context, string, string) ([]entities.BalanceEntry, error) {
	m.record("GetUnifiedBalance")
	return m.balances, m.balancesErr
}

func (m *mockNetwork) GetAppSessionBalances(context.Context, string, string) ([]entities.BalanceEntry, error) {
	m.record("GetAppSessionBalances")
	return m.balances, m.balancesErr
}

// mockCustodyChain records on-chain calls; credits must never reach it.
type mockCustodyChain struct {
	mu         sync.Mutex
	approvals  []entities.DepositParams
	deposits   []entities.DepositParams
	withdraws  []entities.WithdrawParams
	depositErr error
}

func (m *mockCustodyChain) ApproveToken(_ context.Context, p entities.DepositParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvals = append(m.approvals, p)
	return "0xapprove", nil
}

func (m *mockCustodyChain) Deposit(_ context.Context, p entities.DepositParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deposits = append(m.deposits, p)
	if m.depositErr != nil {
		return "", m.depositErr
	}
	return "0xdeposit", nil
}

func (m *mockCustodyChain) Withdraw(_ context.Context, p entities.WithdrawParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.withdraws = append(m.withdraws, p)
	return "0xwithdraw", nil
}

func (m *mockCustodyChain) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.approvals) + len(m.deposits) + len(m.withdraws)
}

type mockWallets struct {
	address string
}

func (m mockWallets) GetWalletAddress(context.Context, string, string) (string, error) {
	return m.address, nil
}

func (m mockWallets) GetPrivateKey(context.Context, string, string) (string, error) {
	return testPrivateKey, nil
}

func (m mockWallets) GetAllWalletAddresses(context.Context, string) (map[string]string, error) {
	return map[string]string{"polygon": m.address}, nil
}

type mockOperations struct {
	mu  sync.Mutex
	ops []entities.CustodyOperation
	err error
}

func (m *mockOperations) InsertOperation(_ context.Context, op *entities.CustodyOperation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.ops = append(m.ops, *op)
	return nil
}

func (m *mockOperations) FindOperationsByUser(_ context.Context, _ string, limit uint64) ([]entities.CustodyOperation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if uint64(len(m.ops)) > limit {
		return m.ops[:limit], nil
	}
	return m.ops, nil
}

type mockSnapshots struct {
	stored    []entities.BalanceSnapshot
	upsertErr error
	removed   time.Duration
}

func (m *mockSnapshots) UpsertSnapshots(_ context.Context, snapshots []entities.BalanceSnapshot) error {
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.stored = append(m.stored, snapshots...)
	return nil
}

func (m *mockSnapshots) FindSnapshotsByUser(context.Context, string) ([]entities.BalanceSnapshot, error) {
	return m.stored, nil
}

func (m *mockSnapshots) RemoveOldSnapshots(_ context.Context, olderThan time.Duration) (int64, error) {
	m.removed = olderThan
	return int64(len(m.stored)), nil
}
