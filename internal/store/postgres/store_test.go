package postgres

import (
	"context"
	"io"
	"os"
	"sync"
	"testing"

	"shieldpool/internal/config"
	"shieldpool/internal/db"
	"shieldpool/internal/pool"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	relayer = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	feeSink = common.HexToAddress("0x00000000000000000000000000000000000000f3")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000a5")
)

// openTestStore connects to SHIELDPOOL_TEST_DSN and empties the pool tables.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("SHIELDPOOL_TEST_DSN")
	if dsn == "" {
		t.Skip("SHIELDPOOL_TEST_DSN not set")
	}
	gdb, err := db.Open(config.DatabaseConfig{DSN: dsn, MaxOpenConns: 8})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	require.NoError(t, gdb.Exec(`TRUNCATE pool_configs, commitment_trees, root_history_slots,
		commitment_records, nullifier_records, custody_balances, pool_events RESTART IDENTITY`).Error)
	return New(gdb)
}

func newService(t *testing.T, store *Store) *pool.Service {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	svc := pool.NewService(store, logger)
	require.NoError(t, svc.Initialize(context.Background(), admin, pool.InitializeRequest{
		Relayer:      relayer,
		FeeRecipient: feeSink,
		FeeBps:       100,
	}))
	return svc
}

func TestPostgresDepositWithdraw(t *testing.T) {
	store := openTestStore(t)
	svc := newService(t, store)
	ctx := context.Background()
	depositor := common.HexToAddress("0x00000000000000000000000000000000000000d4")
	c1 := common.HexToHash("0xc1")
	root1 := common.HexToHash("0x7001")
	n1 := common.HexToHash("0x4e01")

	require.NoError(t, svc.Credit(ctx, pool.NativeAsset, depositor, 1_000_000))
	receipt, err := svc.Deposit(ctx, depositor, pool.DepositRequest{
		Asset: pool.NativeAsset, Commitment: c1, EncryptedOutput: []byte{1}, Amount: 1_000_000, LeafIndex: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), receipt.Index)

	_, err = svc.Deposit(ctx, depositor, pool.DepositRequest{
		Asset: pool.NativeAsset, Commitment: c1, Amount: 1, LeafIndex: 0,
	})
	assert.ErrorIs(t, err, pool.ErrLeafIndexMismatch)

	rootIndex, err := svc.UpdateRoot(ctx, relayer, root1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rootIndex)

	req := pool.WithdrawRequest{
		Asset:     pool.NativeAsset,
		Inputs:    pool.WithdrawInputs{NullifierHash: n1, StateRoot: root1},
		Recipient: alice,
		Amount:    900_000,
		Fee:       200_000,
	}
	_, err = svc.Withdraw(ctx, relayer, req)
	assert.ErrorIs(t, err, pool.ErrInsufficientBalance)
	spent, err := svc.IsSpent(ctx, n1)
	require.NoError(t, err)
	assert.False(t, spent)

	req.Fee = 10_000
	_, err = svc.Withdraw(ctx, relayer, req)
	require.NoError(t, err)
	_, err = svc.Withdraw(ctx, relayer, req)
	assert.ErrorIs(t, err, pool.ErrNullifierAlreadySpent)

	vault, err := svc.CustodyBalance(ctx, pool.NativeAsset)
	require.NoError(t, err)
	assert.Equal(t, uint64(90_000), vault)

	snap, err := svc.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, root1, snap.Tree.CurrentRoot)
	assert.Equal(t, uint64(1), snap.Tree.HistoryCursor)

	events, err := store.PendingEvents(ctx, 0)
	require.NoError(t, err)
	require.Len(t, events, 4)
	assert.Equal(t, pool.EventWithdrawalProcessed, events[3].Kind)
	assert.Equal(t, uint64(900_000), events[3].WithdrawalProcessed.Amount)

	ids := []string{events[0].ID, events[1].ID}
	require.NoError(t, store.MarkPublished(ctx, ids))
	pending, err := store.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestPostgresInitializeOnce(t *testing.T) {
	store := openTestStore(t)
	svc := newService(t, store)
	err := svc.Initialize(context.Background(), admin, pool.InitializeRequest{Relayer: relayer})
	assert.ErrorIs(t, err, pool.ErrAlreadyInitialized)
}

func TestPostgresConcurrentNullifierSpend(t *testing.T) {
	store := openTestStore(t)
	svc := newService(t, store)
	ctx := context.Background()
	depositor := common.HexToAddress("0x00000000000000000000000000000000000000d4")
	require.NoError(t, svc.Credit(ctx, pool.NativeAsset, depositor, 100))
	_, err := svc.Deposit(ctx, depositor, pool.DepositRequest{
		Asset: pool.NativeAsset, Commitment: common.HexToHash("0xc1"), Amount: 100,
	})
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Withdraw(ctx, relayer, pool.WithdrawRequest{
				Asset:     pool.NativeAsset,
				Inputs:    pool.WithdrawInputs{NullifierHash: common.HexToHash("0x4e01")},
				Recipient: alice,
				Amount:    10,
			})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, pool.ErrNullifierAlreadySpent)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestChangedSlots(t *testing.T) {
	var prev, next [pool.RootHistorySize]pool.Hash
	next[3] = common.HexToHash("0x03")
	slots := changedSlots(&prev, &next)
	require.Len(t, slots, 1)
	assert.Equal(t, 3, slots[0].Slot)

	assert.Len(t, changedSlots(nil, &next), pool.RootHistorySize)
}

func TestTreeModelRoundTripKeepsFullCounterRange(t *testing.T) {
	tree := pool.NewTree(relayer, pool.TreeHeight)
	tree.HistoryCursor = ^uint64(0)
	tree.RootHistory[5] = common.HexToHash("0x05")

	slots := changedSlots(nil, &tree.RootHistory)
	back, err := treeFromModel(treeToModel(tree), slots)
	require.NoError(t, err)
	assert.Equal(t, tree, back)
}
