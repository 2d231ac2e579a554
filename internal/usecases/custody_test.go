package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sand/custody-wallet/backend/internal/core/ports"
	"github.com/sand/custody-wallet/backend/internal/entities"
)

const recoveredID = "0x9f8e7d6c5b4a39281706f5e4d3c2b1a09f8e7d6c5b4a39281706f5e4d3c2b1a0"

func newTestCoordinator(t *testing.T) (*CustodyCreditCoordinator, *mockNetwork, *mockCustodyChain) {
	network := newMockNetwork()
	chain := &mockCustodyChain{}
	return NewCustodyCreditCoordinator(discardLogger(), newTestRegistry(t), network, chain), network, chain
}

func creditParams(amount int64) entities.CreditParams {
	return entities.CreditParams{
		UserID:       "user-1",
		UserAddress:  testUserAddress,
		Chain:        "polygon",
		TokenAddress: testUSDC,
		Amount:       big.NewInt(amount),
	}
}

func TestCreditReusesOneChannel(t *testing.T) {
	coordinator, network, _ := newTestCoordinator(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		result, err := coordinator.CreditUnifiedBalanceFromCustody(ctx, creditParams(1_000_000))
		require.NoError(t, err)
		require.True(t, result.Credited)
		ids = append(ids, result.ChannelID)
	}

	require.Equal(t, 1, network.count("CreateChannel"))
	require.Equal(t, 3, network.count("ResizeChannel"))
	require.Equal(t, ids[0], ids[1])
	require.Equal(t, ids[0], ids[2])
}

func TestConcurrentCreditsCreateOneChannel(t *testing.T) {
	coordinator, network, _ := newTestCoordinator(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coordinator.CreditUnifiedBalanceFromCustody(ctx, creditParams(10))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, 1, network.count("CreateChannel"))
	require.Equal(t, 8, network.count("ResizeChannel"))
}

func TestCreditResizesByAmountWithoutParticipants(t *testing.T) {
	coordinator, network, chain := newTestCoordinator(t)

	_, err := coordinator.CreditUnifiedBalanceFromCustody(context.Background(), creditParams(2_500_000))
	require.NoError(t, err)

	require.Len(t, network.resized, 1)
	resize := network.resized[0]
	require.Equal(t, 0, resize.Amount.Cmp(big.NewInt(2_500_000)))
	require.Empty(t, resize.Participants)
	require.NotNil(t, resize.Participants)
	require.EqualValues(t, testChainID, resize.ChainID)

	require.Zero(t, chain.total(), "crediting must not touch the chain")
}

func TestCreditRecoversExistingChannel(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"message", errors.New("failed to create channel: channel already exists: " + recoveredID)},
		{"structured", &ports.ChannelExistsError{ChannelID: recoveredID}},
		{"wrapped", fmt.Errorf("create_channel: %w", &ports.ChannelExistsError{ChannelID: recoveredID})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coordinator, network, _ := newTestCoordinator(t)
			network.createErr = tt.err

			result, err := coordinator.CreditUnifiedBalanceFromCustody(context.Background(), creditParams(5))
			require.NoError(t, err)
			require.Equal(t, recoveredID, result.ChannelID)
			require.Len(t, network.resized, 1)
			require.Equal(t, recoveredID, network.resized[0].ChannelID)
		})
	}
}

func TestCreditPropagatesOtherCreationErrors(t *testing.T) {
	coordinator, network, _ := newTestCoordinator(t)
	boom := errors.New("insufficient funds")
	network.createErr = boom

	_, err := coordinator.CreditUnifiedBalanceFromCustody(context.Background(), creditParams(5))
	require.ErrorIs(t, err, boom)
	require.Equal(t, 0, network.count("ResizeChannel"))
}

func TestCreditSkipsUnusableAndForeignChannels(t *testing.T) {
	coordinator, network, _ := newTestCoordinator(t)
	network.channels = []entities.Channel{
		{ChannelID: "0xclosed", ChainID: testChainID, Token: testUSDC, Status: entities.ChannelStatusClosed},
		{ChannelID: "0xother-chain", ChainID: 8453, Token: testUSDC, Status: entities.ChannelStatusOpen},
		{ChannelID: "0xother-token", ChainID: testChainID, Token: "0x0000000000000000000000000000000000000001", Status: entities.ChannelStatusOpen},
		{ChannelID: "0xmatch", ChainID: testChainID, Token: strings.ToLower(testUSDC), Status: entities.ChannelStatusActive},
	}

	result, err := coordinator.CreditUnifiedBalanceFromCustody(context.Background(), creditParams(5))
	require.NoError(t, err)
	require.Equal(t, "0xmatch", result.ChannelID)
	require.Equal(t, 0, network.count("CreateChannel"))
}

func TestCreditValidatesBeforeNetwork(t *testing.T) {
	coordinator, network, _ := newTestCoordinator(t)
	ctx := context.Background()

	params := creditParams(5)
	params.Chain = "dogecoin"
	_, err := coordinator.CreditUnifiedBalanceFromCustody(ctx, params)
	require.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = coordinator.CreditUnifiedBalanceFromCustody(ctx, creditParams(0))
	require.ErrorIs(t, err, ErrInvalidAmount)

	require.Empty(t, network.calls)
}

func TestCreditReturnsAuthenticationErrorUnchanged(t *testing.T) {
	coordinator, network, _ := newTestCoordinator(t)
	authErr := errors.New("challenge rejected")
	network.authErr = authErr

	_, err := coordinator.CreditUnifiedBalanceFromCustody(context.Background(), creditParams(5))
	require.Equal(t, authErr, err)
	require.Equal(t, 0, network.count("GetChannels"))
}

func TestGetUnifiedBalance(t *testing.T) {
	coordinator, network, _ := newTestCoordinator(t)
	ctx := context.Background()
	network.balances = []entities.BalanceEntry{{Asset: "usdc", Amount: "12.5"}}

	amount, err := coordinator.GetUnifiedBalance(ctx, testUserAddress, "USDC")
	require.NoError(t, err)
	require.Equal(t, "12.5", amount)

	amount, err = coordinator.GetUnifiedBalance(ctx, testUserAddress, "eth")
	require.NoError(t, err)
	require.Equal(t, "0", amount)

	cause := errors.New("socket closed")
	network.balancesErr = cause
	_, err = coordinator.GetUnifiedBalance(ctx, testUserAddress, "usdc")
	require.ErrorIs(t, err, ErrNotAuthenticated)
	require.ErrorIs(t, err, cause)
}

func TestCloseChannelDefaultsDestination(t *testing.T) {
	coordinator, network, _ := newTestCoordinator(t)

	err := coordinator.CloseChannel(context.Background(), "user-1", testUserAddress, "polygon", "0xabc", "")
	require.NoError(t, err)
	require.Equal(t, []entities.CloseChannelRequest{{
		ChannelID:        "0xabc",
		ChainID:          testChainID,
		FundsDestination: testUserAddress,
	}}, network.closedRemote)
}

func TestExistingChannelID(t *testing.T) {
	id, ok := existingChannelID(errors.New("Channel ALREADY EXISTS with id " + strings.ToUpper(recoveredID[2:])))
	require.False(t, ok, "ids need the 0x prefix")
	require.Empty(t, id)

	id, ok = existingChannelID(errors.New("already exists: 0x1234"))
	require.False(t, ok, "short ids are not channel ids")
	require.Empty(t, id)

	id, ok = existingChannelID(errors.New("channel already exists: " + recoveredID + " (open)"))
	require.True(t, ok)
	require.Equal(t, recoveredID, id)
}
