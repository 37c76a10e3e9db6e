// Package postgres is the durable pool.Store. Every writing transition runs
// in one database transaction behind a transaction-scoped advisory lock;
// primary keys on leaf index and nullifier hash back the uniqueness rules.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"shieldpool/internal/models"
	"shieldpool/internal/pool"
	"shieldpool/internal/repository"

	"gorm.io/gorm"
)

var errReadOnly = errors.New("postgres store: write in read-only transaction")

// Store keeps pool state in PostgreSQL. The *gorm.DB must be opened with
// TranslateError so duplicate keys surface as gorm.ErrDuplicatedKey.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// New returns a Store over db.
func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Update(ctx context.Context, fn func(tx pool.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		t := newTx(gtx, true)
		if err := t.state.Lock(ctx); err != nil {
			return fmt.Errorf("acquire pool lock: %w", err)
		}
		return fn(t)
	})
}

func (s *Store) View(ctx context.Context, fn func(tx pool.Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(newTx(gtx, false))
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

// PendingEvents returns up to limit unpublished events in commit order.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]pool.Event, error) {
	rows, err := repository.NewEventRepository(s.db).FindPending(ctx, limit)
	if err != nil {
		return nil, err
	}
	events := make([]pool.Event, 0, len(rows))
	for _, row := range rows {
		var ev pool.Event
		if err := json.Unmarshal([]byte(row.Payload), &ev); err != nil {
			return nil, fmt.Errorf("decode event %s: %w", row.EventID, err)
		}
		ev.Seq = row.Seq
		events = append(events, ev)
	}
	return events, nil
}

// MarkPublished stamps delivered events so they leave the pending set.
func (s *Store) MarkPublished(ctx context.Context, ids []string) error {
	return repository.NewEventRepository(s.db).MarkPublished(ctx, ids, s.now().UTC())
}

// CountPending returns the outbox backlog.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	return repository.NewEventRepository(s.db).CountPending(ctx)
}

type tx struct {
	writable bool

	state       repository.PoolStateRepository
	commitments repository.CommitmentRepository
	nullifiers  repository.NullifierRepository
	balances    repository.CustodyRepository
	events      repository.EventRepository

	// history is the root ring as last read or written in this transaction.
	history *[pool.RootHistorySize]pool.Hash
}

func newTx(db *gorm.DB, writable bool) *tx {
	return &tx{
		writable:    writable,
		state:       repository.NewPoolStateRepository(db),
		commitments: repository.NewCommitmentRepository(db),
		nullifiers:  repository.NewNullifierRepository(db),
		balances:    repository.NewCustodyRepository(db),
		events:      repository.NewEventRepository(db),
	}
}

func (t *tx) Create(ctx context.Context, cfg *pool.Config, tree *pool.Tree) error {
	if !t.writable {
		return errReadOnly
	}
	if err := t.state.CreateConfig(ctx, configToModel(cfg)); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return pool.ErrAlreadyInitialized
		}
		return err
	}
	if err := t.state.CreateTree(ctx, treeToModel(tree), changedSlots(nil, &tree.RootHistory)); err != nil {
		return err
	}
	history := tree.RootHistory
	t.history = &history
	return nil
}

func (t *tx) Config(ctx context.Context) (*pool.Config, error) {
	m, err := t.state.GetConfig(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pool.ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	return configFromModel(m), nil
}

func (t *tx) PutConfig(ctx context.Context, cfg *pool.Config) error {
	if !t.writable {
		return errReadOnly
	}
	err := t.state.SaveConfig(ctx, configToModel(cfg))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pool.ErrNotInitialized
	}
	return err
}

func (t *tx) Tree(ctx context.Context) (*pool.Tree, error) {
	m, err := t.state.GetTree(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pool.ErrNotInitialized
	}
	if err != nil {
		return nil, err
	}
	slots, err := t.state.GetRootHistory(ctx)
	if err != nil {
		return nil, err
	}
	tree, err := treeFromModel(m, slots)
	if err != nil {
		return nil, err
	}
	history := tree.RootHistory
	t.history = &history
	return tree, nil
}

func (t *tx) PutTree(ctx context.Context, tree *pool.Tree) error {
	if !t.writable {
		return errReadOnly
	}
	err := t.state.SaveTree(ctx, treeToModel(tree))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pool.ErrNotInitialized
	}
	if err != nil {
		return err
	}
	if err := t.state.SaveRootSlots(ctx, changedSlots(t.history, &tree.RootHistory)); err != nil {
		return err
	}
	history := tree.RootHistory
	t.history = &history
	return nil
}

func (t *tx) InsertCommitment(ctx context.Context, rec pool.CommitmentRecord) error {
	if !t.writable {
		return errReadOnly
	}
	err := t.commitments.Create(ctx, commitmentToModel(rec))
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return pool.ErrLeafIndexMismatch
	}
	return err
}

func (t *tx) Commitment(ctx context.Context, index uint64) (*pool.CommitmentRecord, error) {
	m, err := t.commitments.GetByLeafIndex(ctx, int64(index))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pool.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec := commitmentFromModel(m)
	return &rec, nil
}

func (t *tx) Commitments(ctx context.Context, from uint64, limit int) ([]pool.CommitmentRecord, error) {
	rows, err := t.commitments.ListFrom(ctx, int64(from), limit)
	if err != nil {
		return nil, err
	}
	recs := make([]pool.CommitmentRecord, 0, len(rows))
	for _, m := range rows {
		recs = append(recs, commitmentFromModel(m))
	}
	return recs, nil
}

func (t *tx) SpendNullifier(ctx context.Context, rec pool.NullifierRecord) error {
	if !t.writable {
		return errReadOnly
	}
	err := t.nullifiers.Create(ctx, &models.NullifierRecord{
		NullifierHash: rec.NullifierHash.Hex(),
		SpentAt:       rec.SpentAt,
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return pool.ErrNullifierAlreadySpent
	}
	return err
}

func (t *tx) NullifierSpent(ctx context.Context, nullifierHash pool.Hash) (bool, error) {
	return t.nullifiers.Exists(ctx, nullifierHash.Hex())
}

func (t *tx) Custody() pool.Custody {
	return custody{t}
}

func (t *tx) Emit(ctx context.Context, ev *pool.Event) error {
	if !t.writable {
		return errReadOnly
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	row := &models.PoolEvent{
		EventID:   ev.ID,
		Kind:      string(ev.Kind),
		Payload:   string(payload),
		CreatedAt: ev.CreatedAt,
	}
	if err := t.events.Create(ctx, row); err != nil {
		return err
	}
	ev.Seq = row.Seq
	return nil
}

type custody struct {
	t *tx
}

func (c custody) Balance(ctx context.Context, asset pool.Asset, owner pool.Address) (uint64, error) {
	raw, err := c.t.balances.GetBalance(ctx, asset.String(), owner.Hex())
	if err != nil {
		return 0, err
	}
	return parseBalance(raw)
}

func (c custody) set(ctx context.Context, asset pool.Asset, owner pool.Address, v uint64) error {
	return c.t.balances.SetBalance(ctx, asset.String(), owner.Hex(), formatBalance(v))
}

func (c custody) Transfer(ctx context.Context, asset pool.Asset, from, to pool.Address, amount uint64) error {
	if !c.t.writable {
		return errReadOnly
	}
	src, err := c.Balance(ctx, asset, from)
	if err != nil {
		return err
	}
	if src < amount {
		return pool.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	dst, err := c.Balance(ctx, asset, to)
	if err != nil {
		return err
	}
	if dst+amount < dst {
		return pool.ErrOverflow
	}
	if err := c.set(ctx, asset, from, src-amount); err != nil {
		return err
	}
	return c.set(ctx, asset, to, dst+amount)
}

func (c custody) Credit(ctx context.Context, asset pool.Asset, owner pool.Address, amount uint64) error {
	if !c.t.writable {
		return errReadOnly
	}
	cur, err := c.Balance(ctx, asset, owner)
	if err != nil {
		return err
	}
	if cur+amount < cur {
		return pool.ErrOverflow
	}
	return c.set(ctx, asset, owner, cur+amount)
}
