package usecases

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sand/custody-wallet/backend/internal/entities"
)

func TestUnifiedBalancesStoresSnapshots(t *testing.T) {
	network := newMockNetwork()
	network.balances = []entities.BalanceEntry{{Asset: "usdc", Amount: "12.5"}, {Asset: "eth", Amount: "0.1"}}
	snapshots := &mockSnapshots{}
	service := NewBalanceService(discardLogger(), newTestRegistry(t), mockWallets{address: testUserAddress}, network, snapshots)

	balances, err := service.UnifiedBalances(context.Background(), "user-1", "polygon")
	require.NoError(t, err)
	require.Equal(t, network.balances, balances)

	require.Len(t, snapshots.stored, 2)
	require.Equal(t, entities.BalanceSnapshot{
		UserID:    "user-1",
		AccountID: testUserAddress,
		Asset:     "usdc",
		Amount:    "12.5",
	}, snapshots.stored[0])
}

func TestUnifiedBalancesIgnoresSnapshotFailure(t *testing.T) {
	network := newMockNetwork()
	network.balances = []entities.BalanceEntry{{Asset: "usdc", Amount: "1"}}
	snapshots := &mockSnapshots{upsertErr: errors.New("db down")}
	service := NewBalanceService(discardLogger(), newTestRegistry(t), mockWallets{address: testUserAddress}, network, snapshots)

	balances, err := service.UnifiedBalances(context.Background(), "user-1", "polygon")
	require.NoError(t, err)
	require.Len(t, balances, 1)
}

func TestUnifiedBalancesQueryFailureIsNotAuthenticated(t *testing.T) {
	network := newMockNetwork()
	network.balancesErr = errors.New("timeout")
	service := NewBalanceService(discardLogger(), newTestRegistry(t), mockWallets{address: testUserAddress}, network, &mockSnapshots{})

	_, err := service.UnifiedBalances(context.Background(), "user-1", "polygon")
	require.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestRemoveOldSnapshots(t *testing.T) {
	snapshots := &mockSnapshots{stored: []entities.BalanceSnapshot{{}, {}}}
	service := NewBalanceService(discardLogger(), newTestRegistry(t), mockWallets{}, newMockNetwork(), snapshots)

	removed, err := service.RemoveOldSnapshots(context.Background(), 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 2, removed)
	require.Equal(t, 24*time.Hour, snapshots.removed)
}
