package pool_test

import (
	"context"
	"io"
	"sync"
	"testing"

	"shieldpool/internal/pool"
	"shieldpool/internal/store/memory"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin     = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	relayer   = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	feeSink   = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	depositor = common.HexToAddress("0x00000000000000000000000000000000000000d4")
	alice     = common.HexToAddress("0x00000000000000000000000000000000000000a5")
	usdc      = pool.TokenAsset(common.HexToAddress("0x00000000000000000000000000000000000000c6"))

	c1    = common.HexToHash("0xc1")
	c2    = common.HexToHash("0xc2")
	n1    = common.HexToHash("0x4e01")
	n2    = common.HexToHash("0x4e02")
	root1 = common.HexToHash("0x7001")
)

type fixture struct {
	store *memory.Store
	svc   *pool.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	store := memory.New()
	f := &fixture{store: store, svc: pool.NewService(store, logger)}
	require.NoError(t, f.svc.Initialize(context.Background(), admin, pool.InitializeRequest{
		Relayer:      relayer,
		FeeRecipient: feeSink,
		FeeBps:       100,
	}))
	return f
}

func (f *fixture) fund(t *testing.T, asset pool.Asset, owner pool.Address, amount uint64) {
	t.Helper()
	require.NoError(t, f.svc.Credit(context.Background(), asset, owner, amount))
}

func (f *fixture) balance(t *testing.T, asset pool.Asset, owner pool.Address) uint64 {
	t.Helper()
	var got uint64
	require.NoError(t, f.store.View(context.Background(), func(tx pool.Tx) error {
		var err error
		got, err = tx.Custody().Balance(context.Background(), asset, owner)
		return err
	}))
	return got
}

func (f *fixture) state(t *testing.T) *pool.Snapshot {
	t.Helper()
	snap, err := f.svc.State(context.Background())
	require.NoError(t, err)
	return snap
}

func (f *fixture) events(t *testing.T) []pool.Event {
	t.Helper()
	evs, err := f.store.PendingEvents(context.Background(), 0)
	require.NoError(t, err)
	return evs
}

func deposit(commitment pool.Hash, amount, leaf uint64) pool.DepositRequest {
	return pool.DepositRequest{
		Asset:           pool.NativeAsset,
		Commitment:      commitment,
		EncryptedOutput: []byte{0xde, 0xad},
		Amount:          amount,
		LeafIndex:       leaf,
	}
}

func withdrawal(nullifier, root, change pool.Hash, amount, fee uint64) pool.WithdrawRequest {
	return pool.WithdrawRequest{
		Asset: pool.NativeAsset,
		Inputs: pool.WithdrawInputs{
			NullifierHash: nullifier,
			StateRoot:     root,
			NewCommitment: change,
		},
		Recipient: alice,
		Amount:    amount,
		Fee:       fee,
	}
}

func TestInitialize(t *testing.T) {
	f := newFixture(t)
	snap := f.state(t)

	assert.Equal(t, admin, snap.Config.Admin)
	assert.Equal(t, relayer, snap.Config.Relayer)
	assert.Equal(t, feeSink, snap.Config.FeeRecipient)
	assert.Equal(t, uint16(100), snap.Config.FeeBps)
	assert.False(t, snap.Config.Paused)
	assert.Equal(t, relayer, snap.Tree.Authority)
	assert.Equal(t, pool.TreeHeight, snap.Tree.Height)
	assert.Equal(t, uint64(1<<20), snap.Capacity)
	assert.Zero(t, snap.Tree.NextIndex)
	assert.Equal(t, pool.ZeroHash, snap.Tree.CurrentRoot)

	err := f.svc.Initialize(context.Background(), admin, pool.InitializeRequest{Relayer: relayer})
	assert.ErrorIs(t, err, pool.ErrAlreadyInitialized)

	evs := f.events(t)
	require.Len(t, evs, 1)
	assert.Equal(t, pool.EventPoolConfigUpdated, evs[0].Kind)
	assert.Equal(t, "initialize", evs[0].PoolConfigUpdated.Reason)
}

func TestInitializeRejectsFeeAboveCeiling(t *testing.T) {
	svc := pool.NewService(memory.New(), logrus.New())
	err := svc.Initialize(context.Background(), admin, pool.InitializeRequest{Relayer: relayer, FeeBps: 1001})
	assert.ErrorIs(t, err, pool.ErrInvalidFeeConfig)

	_, err = svc.State(context.Background())
	assert.ErrorIs(t, err, pool.ErrNotInitialized)

	require.NoError(t, svc.Initialize(context.Background(), admin, pool.InitializeRequest{Relayer: relayer, FeeBps: 1000}))
}

func TestOperationsBeforeInitialize(t *testing.T) {
	svc := pool.NewService(memory.New(), logrus.New())
	ctx := context.Background()

	_, err := svc.Deposit(ctx, depositor, deposit(c1, 1, 0))
	assert.ErrorIs(t, err, pool.ErrNotInitialized)
	_, err = svc.UpdateRoot(ctx, relayer, root1)
	assert.ErrorIs(t, err, pool.ErrNotInitialized)
}

func TestDepositWithdrawScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, pool.NativeAsset, depositor, 1_000_000)

	receipt, err := f.svc.Deposit(ctx, depositor, deposit(c1, 1_000_000, 0))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), receipt.Index)
	assert.Equal(t, uint64(1), f.state(t).Tree.NextIndex)

	rec, err := f.svc.CommitmentAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, c1, rec.Commitment)

	rootIndex, err := f.svc.UpdateRoot(ctx, relayer, root1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rootIndex)
	snap := f.state(t)
	assert.Equal(t, pool.ZeroHash, snap.Tree.RootHistory[0])
	assert.Equal(t, root1, snap.Tree.CurrentRoot)

	req := withdrawal(n1, root1, pool.ZeroHash, 900_000, 10_000)
	wr, err := f.svc.Withdraw(ctx, relayer, req)
	require.NoError(t, err)
	assert.Nil(t, wr.NewIndex)

	assert.Equal(t, uint64(90_000), f.balance(t, pool.NativeAsset, pool.VaultAddress))
	assert.Equal(t, uint64(900_000), f.balance(t, pool.NativeAsset, alice))
	assert.Equal(t, uint64(10_000), f.balance(t, pool.NativeAsset, feeSink))

	spent, err := f.svc.IsSpent(ctx, n1)
	require.NoError(t, err)
	assert.True(t, spent)

	_, err = f.svc.Withdraw(ctx, relayer, req)
	assert.ErrorIs(t, err, pool.ErrNullifierAlreadySpent)
	assert.Equal(t, uint64(90_000), f.balance(t, pool.NativeAsset, pool.VaultAddress))

	evs := f.events(t)
	kinds := make([]pool.EventKind, 0, len(evs))
	for _, ev := range evs {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []pool.EventKind{
		pool.EventPoolConfigUpdated,
		pool.EventCommitmentInserted,
		pool.EventRootUpdated,
		pool.EventWithdrawalProcessed,
	}, kinds)
	ins := evs[1].CommitmentInserted
	assert.Equal(t, uint64(0), ins.Index)
	assert.Equal(t, c1, ins.Commitment)
	assert.Equal(t, uint64(1_000_000), ins.Amount)
	assert.Equal(t, []byte{0xde, 0xad}, []byte(ins.EncryptedOutput))
	assert.True(t, ins.Asset.IsNative())
	assert.Equal(t, uint64(1), evs[2].RootUpdated.RootIndex)
	wp := evs[3].WithdrawalProcessed
	assert.Equal(t, n1, wp.NullifierHash)
	assert.Equal(t, alice, wp.Recipient)
	assert.Nil(t, wp.NewCommitment)
	assert.Nil(t, wp.NewIndex)
	for i := 1; i < len(evs); i++ {
		assert.Greater(t, evs[i].Seq, evs[i-1].Seq)
	}
}

func TestWithdrawInsufficientBalanceLeavesNullifierUnspent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, pool.NativeAsset, depositor, 1_000_000)
	_, err := f.svc.Deposit(ctx, depositor, deposit(c1, 1_000_000, 0))
	require.NoError(t, err)

	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, pool.ZeroHash, pool.ZeroHash, 900_000, 200_000))
	assert.ErrorIs(t, err, pool.ErrInsufficientBalance)

	spent, err := f.svc.IsSpent(ctx, n1)
	require.NoError(t, err)
	assert.False(t, spent)
	assert.Equal(t, uint64(1_000_000), f.balance(t, pool.NativeAsset, pool.VaultAddress))

	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, pool.ZeroHash, pool.ZeroHash, 900_000, 100_000))
	require.NoError(t, err)
	assert.Zero(t, f.balance(t, pool.NativeAsset, pool.VaultAddress))
}

func TestWithdrawFeeNotBoundByFeeBps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, pool.NativeAsset, depositor, 100)
	_, err := f.svc.Deposit(ctx, depositor, deposit(c1, 100, 0))
	require.NoError(t, err)

	// fee_bps is 100 (1%) but a 50% fee is accepted.
	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, pool.ZeroHash, pool.ZeroHash, 50, 50))
	require.NoError(t, err)
	assert.Equal(t, uint64(50), f.balance(t, pool.NativeAsset, feeSink))
}

func TestWithdrawOverflow(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Withdraw(context.Background(), relayer, withdrawal(n1, pool.ZeroHash, pool.ZeroHash, ^uint64(0), 1))
	assert.ErrorIs(t, err, pool.ErrOverflow)

	spent, err := f.svc.IsSpent(context.Background(), n1)
	require.NoError(t, err)
	assert.False(t, spent)
}

func TestWithdrawChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, pool.NativeAsset, depositor, 10)
	_, err := f.svc.Deposit(ctx, depositor, deposit(c1, 10, 0))
	require.NoError(t, err)

	_, err = f.svc.Withdraw(ctx, alice, withdrawal(n1, pool.ZeroHash, pool.ZeroHash, 1, 0))
	assert.ErrorIs(t, err, pool.ErrUnauthorizedRelayer)

	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, pool.ZeroHash, pool.ZeroHash, 0, 0))
	assert.ErrorIs(t, err, pool.ErrInvalidAmount)

	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, root1, pool.ZeroHash, 1, 0))
	assert.ErrorIs(t, err, pool.ErrInvalidStateRoot)

	spent, err := f.svc.IsSpent(ctx, n1)
	require.NoError(t, err)
	assert.False(t, spent)
}

func TestWithdrawChangeOutput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, usdc, depositor, 500)
	req := deposit(c1, 500, 0)
	req.Asset = usdc
	_, err := f.svc.Deposit(ctx, depositor, req)
	require.NoError(t, err)

	w := withdrawal(n1, pool.ZeroHash, c2, 200, 5)
	w.Asset = usdc
	receipt, err := f.svc.Withdraw(ctx, relayer, w)
	require.NoError(t, err)
	require.NotNil(t, receipt.NewIndex)
	assert.Equal(t, uint64(1), *receipt.NewIndex)
	assert.Equal(t, uint64(2), f.state(t).Tree.NextIndex)
	assert.Equal(t, uint64(295), f.balance(t, usdc, pool.VaultAddress))
	assert.Zero(t, f.balance(t, pool.NativeAsset, pool.VaultAddress))

	// change leaves are announced by event only
	_, err = f.svc.CommitmentAt(ctx, 1)
	assert.ErrorIs(t, err, pool.ErrNotFound)

	evs := f.events(t)
	require.Len(t, evs, 4)
	change := evs[2].CommitmentInserted
	require.NotNil(t, change)
	assert.Equal(t, uint64(1), change.Index)
	assert.Equal(t, c2, change.Commitment)
	assert.Zero(t, change.Amount)
	assert.Empty(t, change.EncryptedOutput)
	assert.Equal(t, usdc, change.Asset)
	wp := evs[3].WithdrawalProcessed
	require.NotNil(t, wp.NewCommitment)
	assert.Equal(t, c2, *wp.NewCommitment)
	assert.Equal(t, uint64(1), *wp.NewIndex)
	assert.Equal(t, usdc, wp.Asset)

	// the next deposit has to predict the index after the change leaf
	f.fund(t, pool.NativeAsset, depositor, 1)
	_, err = f.svc.Deposit(ctx, depositor, deposit(c1, 1, 1))
	assert.ErrorIs(t, err, pool.ErrLeafIndexMismatch)
	_, err = f.svc.Deposit(ctx, depositor, deposit(c1, 1, 2))
	require.NoError(t, err)
}

func TestDepositLeafIndexMismatchHasNoEffect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, pool.NativeAsset, depositor, 100)
	before := len(f.events(t))

	for _, leaf := range []uint64{1, 7} {
		_, err := f.svc.Deposit(ctx, depositor, deposit(c1, 100, leaf))
		assert.ErrorIs(t, err, pool.ErrLeafIndexMismatch)
	}

	assert.Equal(t, uint64(100), f.balance(t, pool.NativeAsset, depositor))
	assert.Zero(t, f.balance(t, pool.NativeAsset, pool.VaultAddress))
	assert.Zero(t, f.state(t).Tree.NextIndex)
	_, err := f.svc.CommitmentAt(ctx, 0)
	assert.ErrorIs(t, err, pool.ErrNotFound)
	assert.Len(t, f.events(t), before)
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Deposit(ctx, depositor, deposit(c1, 0, 0))
	assert.ErrorIs(t, err, pool.ErrInvalidAmount)

	_, err = f.svc.Deposit(ctx, depositor, deposit(pool.ZeroHash, 1, 0))
	assert.ErrorIs(t, err, pool.ErrInvalidCommitment)

	_, err = f.svc.Deposit(ctx, depositor, deposit(c1, 1, 0))
	assert.ErrorIs(t, err, pool.ErrInsufficientBalance)
	assert.Zero(t, f.state(t).Tree.NextIndex)
}

func TestTreeFullBoundary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	last := uint64(1<<20) - 1
	require.NoError(t, f.store.Update(ctx, func(tx pool.Tx) error {
		tree, err := tx.Tree(ctx)
		if err != nil {
			return err
		}
		tree.NextIndex = last
		return tx.PutTree(ctx, tree)
	}))
	f.fund(t, pool.NativeAsset, depositor, 10)

	receipt, err := f.svc.Deposit(ctx, depositor, deposit(c1, 5, last))
	require.NoError(t, err)
	assert.Equal(t, last, receipt.Index)
	snap := f.state(t)
	assert.Equal(t, uint64(1<<20), snap.Tree.NextIndex)
	assert.True(t, snap.Full)

	_, err = f.svc.Deposit(ctx, depositor, deposit(c2, 5, 1<<20))
	assert.ErrorIs(t, err, pool.ErrTreeFull)

	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, pool.ZeroHash, c2, 1, 0))
	assert.ErrorIs(t, err, pool.ErrTreeFull)
	spent, err := f.svc.IsSpent(ctx, n1)
	require.NoError(t, err)
	assert.False(t, spent, "a failed change allocation rolls back the spend")
	assert.Equal(t, uint64(5), f.balance(t, pool.NativeAsset, pool.VaultAddress))

	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, pool.ZeroHash, pool.ZeroHash, 1, 0))
	require.NoError(t, err)
}

func TestRootHistoryWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, pool.NativeAsset, depositor, 10)
	_, err := f.svc.Deposit(ctx, depositor, deposit(c1, 10, 0))
	require.NoError(t, err)

	roots := make([]pool.Hash, 0, pool.RootHistorySize+1)
	for i := 1; i <= pool.RootHistorySize+1; i++ {
		r := common.BytesToHash([]byte{0x77, byte(i)})
		roots = append(roots, r)
		_, err := f.svc.UpdateRoot(ctx, relayer, r)
		require.NoError(t, err)
	}
	for _, r := range roots {
		known, err := f.svc.IsKnownRoot(ctx, r)
		require.NoError(t, err)
		assert.True(t, known)
	}

	// one more rotation evicts the oldest
	_, err = f.svc.UpdateRoot(ctx, relayer, common.HexToHash("0x7777"))
	require.NoError(t, err)
	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, roots[0], pool.ZeroHash, 1, 0))
	assert.ErrorIs(t, err, pool.ErrInvalidStateRoot)
	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, roots[1], pool.ZeroHash, 1, 0))
	require.NoError(t, err)
}

func TestUpdateRootRequiresRelayer(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.UpdateRoot(context.Background(), admin, root1)
	assert.ErrorIs(t, err, pool.ErrUnauthorizedRelayer)
	assert.Equal(t, pool.ZeroHash, f.state(t).Tree.CurrentRoot)
}

func TestPauseGatesTransitions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, pool.NativeAsset, depositor, 10)

	assert.ErrorIs(t, f.svc.SetPaused(ctx, relayer, true), pool.ErrUnauthorizedAdmin)
	require.NoError(t, f.svc.SetPaused(ctx, admin, true))

	_, err := f.svc.Deposit(ctx, depositor, deposit(c1, 10, 0))
	assert.ErrorIs(t, err, pool.ErrProtocolPaused)
	_, err = f.svc.UpdateRoot(ctx, relayer, root1)
	assert.ErrorIs(t, err, pool.ErrProtocolPaused)
	_, err = f.svc.Withdraw(ctx, relayer, withdrawal(n1, pool.ZeroHash, pool.ZeroHash, 1, 0))
	assert.ErrorIs(t, err, pool.ErrProtocolPaused)

	require.NoError(t, f.svc.SetPaused(ctx, admin, false))
	_, err = f.svc.Deposit(ctx, depositor, deposit(c1, 10, 0))
	require.NoError(t, err)
}

func TestAdminRotatesRelayerAndFeeRecipient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	newRelayer := common.HexToAddress("0x00000000000000000000000000000000000000e7")
	newFeeSink := common.HexToAddress("0x00000000000000000000000000000000000000e8")

	assert.ErrorIs(t, f.svc.SetRelayer(ctx, relayer, newRelayer), pool.ErrUnauthorizedAdmin)
	require.NoError(t, f.svc.SetRelayer(ctx, admin, newRelayer))
	require.NoError(t, f.svc.SetFeeRecipient(ctx, admin, newFeeSink))

	snap := f.state(t)
	assert.Equal(t, newRelayer, snap.Config.Relayer)
	assert.Equal(t, newRelayer, snap.Tree.Authority)
	assert.Equal(t, newFeeSink, snap.Config.FeeRecipient)

	_, err := f.svc.UpdateRoot(ctx, relayer, root1)
	assert.ErrorIs(t, err, pool.ErrUnauthorizedRelayer)
	_, err = f.svc.UpdateRoot(ctx, newRelayer, root1)
	require.NoError(t, err)

	f.fund(t, pool.NativeAsset, depositor, 10)
	_, err = f.svc.Deposit(ctx, depositor, deposit(c1, 10, 0))
	require.NoError(t, err)
	_, err = f.svc.Withdraw(ctx, newRelayer, withdrawal(n2, root1, pool.ZeroHash, 8, 2))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), f.balance(t, pool.NativeAsset, newFeeSink))
}

func TestCommitmentsListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, pool.NativeAsset, depositor, 5)
	for i := uint64(0); i < 5; i++ {
		_, err := f.svc.Deposit(ctx, depositor, deposit(common.BytesToHash([]byte{0xcc, byte(i)}), 1, i))
		require.NoError(t, err)
	}

	recs, err := f.svc.Commitments(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(2), recs[0].Index)
	assert.Equal(t, uint64(3), recs[1].Index)

	balance, err := f.svc.CustodyBalance(ctx, pool.NativeAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), balance)
}

func TestConcurrentDepositsRaceOnLeafIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	const n = 16
	f.fund(t, pool.NativeAsset, depositor, n)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.Deposit(ctx, depositor, deposit(common.BytesToHash([]byte{0xdd, byte(i)}), 1, 0))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, pool.ErrLeafIndexMismatch)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, uint64(1), f.state(t).Tree.NextIndex)
	assert.Equal(t, uint64(n-1), f.balance(t, pool.NativeAsset, depositor))
}

func TestConcurrentWithdrawalsSpendNullifierOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fund(t, pool.NativeAsset, depositor, 100)
	_, err := f.svc.Deposit(ctx, depositor, deposit(c1, 100, 0))
	require.NoError(t, err)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(fee uint64) {
			defer wg.Done()
			_, err := f.svc.Withdraw(ctx, relayer, withdrawal(n1, pool.ZeroHash, pool.ZeroHash, 10, fee))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, pool.ErrNullifierAlreadySpent)
		}(uint64(i))
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, uint64(10), f.balance(t, pool.NativeAsset, alice))
}

func TestErrorTaxonomy(t *testing.T) {
	pe, ok := pool.AsError(pool.ErrTreeFull)
	require.True(t, ok)
	assert.Equal(t, pool.KindCapacity, pe.Kind)
	assert.Equal(t, "TREE_FULL", pool.ErrorCode(pool.ErrTreeFull))
	assert.Equal(t, "INTERNAL", pool.ErrorCode(assert.AnError))
}
