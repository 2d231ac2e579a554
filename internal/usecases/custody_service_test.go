package usecases

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sand/custody-wallet/backend/internal/entities"
)

type custodyFixture struct {
	service    *CustodyService
	network    *mockNetwork
	chain      *mockCustodyChain
	operations *mockOperations
}

func newCustodyFixture(t *testing.T) *custodyFixture {
	registry := newTestRegistry(t)
	network := newMockNetwork()
	chain := &mockCustodyChain{}
	operations := &mockOperations{}
	wallets := mockWallets{address: testUserAddress}

	coordinator := NewCustodyCreditCoordinator(discardLogger(), registry, network, chain)
	return &custodyFixture{
		service:    NewCustodyService(discardLogger(), registry, wallets, network, coordinator, operations),
		network:    network,
		chain:      chain,
		operations: operations,
	}
}

func TestDepositToCustodyERC20(t *testing.T) {
	f := newCustodyFixture(t)

	result, err := f.service.DepositToCustody(context.Background(), DepositRequest{
		UserID: "user-1",
		Chain:  "polygon",
		Asset:  "usdc",
		Amount: "1.5",
	})
	require.NoError(t, err)
	require.Equal(t, "0xapprove", result.ApproveTxHash)
	require.Equal(t, "0xdeposit", result.DepositTxHash)
	require.Equal(t, "1500000", result.Amount)
	require.Nil(t, result.Credit)

	require.Len(t, f.chain.deposits, 1)
	require.Equal(t, testUserAddress, f.chain.deposits[0].UserAddress)
	require.Equal(t, "1500000", f.chain.deposits[0].Amount.String())
	require.Empty(t, f.network.calls, "a plain deposit stays on chain")

	require.Len(t, f.operations.ops, 2)
	require.Equal(t, entities.OperationApprove, f.operations.ops[0].Kind)
	require.Equal(t, entities.OperationDeposit, f.operations.ops[1].Kind)
	require.Equal(t, f.operations.ops[0].OpID, f.operations.ops[1].OpID)
	require.Equal(t, entities.OperationStatusConfirmed, f.operations.ops[1].Status)
}

func TestDepositToCustodyNativeSkipsApprove(t *testing.T) {
	f := newCustodyFixture(t)

	result, err := f.service.DepositToCustody(context.Background(), DepositRequest{
		UserID: "user-1",
		Chain:  "polygon",
		Asset:  "POL",
		Amount: "0.25",
	})
	require.NoError(t, err)
	require.Empty(t, result.ApproveTxHash)
	require.Empty(t, f.chain.approvals)
	require.Equal(t, "250000000000000000", result.Amount)
}

func TestDepositToCustodyWithCredit(t *testing.T) {
	f := newCustodyFixture(t)

	result, err := f.service.DepositToCustody(context.Background(), DepositRequest{
		UserID: "user-1",
		Chain:  "polygon",
		Asset:  "usdc",
		Amount: "2",
		Credit: true,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Credit)
	require.True(t, result.Credit.Credited)

	require.Len(t, f.network.resized, 1)
	require.Equal(t, "2000000", f.network.resized[0].Amount.String())

	last := f.operations.ops[len(f.operations.ops)-1]
	require.Equal(t, entities.OperationCredit, last.Kind)
	require.Equal(t, result.Credit.ChannelID, last.ChannelID)
}

func TestDepositCreditFailureKeepsDepositHash(t *testing.T) {
	f := newCustodyFixture(t)
	f.network.resizeErr = errors.New("resize rejected")

	_, err := f.service.DepositToCustody(context.Background(), DepositRequest{
		UserID: "user-1",
		Chain:  "polygon",
		Asset:  "usdc",
		Amount: "2",
		Credit: true,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "deposit 0xdeposit confirmed but credit failed")
	require.ErrorIs(t, err, f.network.resizeErr)

	last := f.operations.ops[len(f.operations.ops)-1]
	require.Equal(t, entities.OperationStatusFailed, last.Status)
	require.Equal(t, "resize rejected", last.Error)
}

func TestDepositFailureStopsFlow(t *testing.T) {
	f := newCustodyFixture(t)
	f.chain.depositErr = &ChainError{Op: "deposit", Err: errors.New("reverted")}

	_, err := f.service.DepositToCustody(context.Background(), DepositRequest{
		UserID: "user-1", Chain: "polygon", Asset: "usdc", Amount: "1", Credit: true,
	})
	require.ErrorIs(t, err, ErrChain)
	require.Empty(t, f.network.calls)
}

func TestJournalFailureDoesNotFailDeposit(t *testing.T) {
	f := newCustodyFixture(t)
	f.operations.err = errors.New("db down")

	_, err := f.service.DepositToCustody(context.Background(), DepositRequest{
		UserID: "user-1", Chain: "polygon", Asset: "usdc", Amount: "1",
	})
	require.NoError(t, err)
}

func TestDepositValidation(t *testing.T) {
	f := newCustodyFixture(t)
	ctx := context.Background()

	_, err := f.service.DepositToCustody(ctx, DepositRequest{UserID: "u", Chain: "dogecoin", Asset: "usdc", Amount: "1"})
	require.ErrorIs(t, err, ErrUnsupportedChain)

	_, err = f.service.DepositToCustody(ctx, DepositRequest{UserID: "u", Chain: "polygon", Asset: "doge", Amount: "1"})
	require.ErrorIs(t, err, ErrUnsupportedAsset)

	_, err = f.service.DepositToCustody(ctx, DepositRequest{UserID: "u", Chain: "polygon", Asset: "usdc", Amount: "0.0000001"})
	require.ErrorIs(t, err, ErrInvalidAmount)

	require.Zero(t, f.chain.total())
}

func TestWithdrawFromCustody(t *testing.T) {
	f := newCustodyFixture(t)

	txHash, err := f.service.WithdrawFromCustody(context.Background(), WithdrawRequest{
		UserID: "user-1", Chain: "polygon", Asset: "usdc", Amount: "3",
	})
	require.NoError(t, err)
	require.Equal(t, "0xwithdraw", txHash)
	require.Len(t, f.chain.withdraws, 1)
	require.Equal(t, testUserAddress, f.chain.withdraws[0].UserAddress)
	require.Equal(t, entities.OperationWithdraw, f.operations.ops[0].Kind)
}

func TestUnifiedBalanceAuthenticatesFirst(t *testing.T) {
	f := newCustodyFixture(t)
	f.network.balances = []entities.BalanceEntry{{Asset: "usdc", Amount: "4"}}

	amount, err := f.service.UnifiedBalance(context.Background(), "user-1", "polygon", "USDC")
	require.NoError(t, err)
	require.Equal(t, "4", amount)
	require.Equal(t, []string{"Authenticate", "GetUnifiedBalance"}, f.network.calls)
}

func TestOperationsDefaultLimit(t *testing.T) {
	f := newCustodyFixture(t)
	for i := 0; i < defaultOperationsLimit+5; i++ {
		f.operations.ops = append(f.operations.ops, entities.CustodyOperation{ID: int64(i)})
	}

	ops, err := f.service.Operations(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, ops, defaultOperationsLimit)
}
