// Package memory is a single-process pool.Store. One mutex serializes all
// transitions; writes go to a per-transition overlay that is merged into
// the committed state only when the transition returns nil.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"shieldpool/internal/pool"
)

var errReadOnly = errors.New("memory store: write in read-only transaction")

type balanceKey struct {
	asset pool.Asset
	owner pool.Address
}

type state struct {
	config      *pool.Config
	tree        *pool.Tree
	commitments map[uint64]pool.CommitmentRecord
	nullifiers  map[pool.Hash]pool.NullifierRecord
	balances    map[balanceKey]uint64
	outbox      []pool.Event
	seq         uint64
}

// Store keeps pool state in memory.
type Store struct {
	mu    sync.Mutex
	state state
}

// New returns an empty, uninitialized store.
func New() *Store {
	return &Store{state: state{
		commitments: make(map[uint64]pool.CommitmentRecord),
		nullifiers:  make(map[pool.Hash]pool.NullifierRecord),
		balances:    make(map[balanceKey]uint64),
	}}
}

func (s *Store) Update(ctx context.Context, fn func(tx pool.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	t := newTx(&s.state, true)
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *Store) View(ctx context.Context, fn func(tx pool.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(newTx(&s.state, false))
}

// PendingEvents returns up to limit unpublished events in commit order.
func (s *Store) PendingEvents(_ context.Context, limit int) ([]pool.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []pool.Event
	for _, e := range s.state.outbox {
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished drops delivered events from the outbox.
func (s *Store) MarkPublished(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	done := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		done[id] = struct{}{}
	}
	kept := s.state.outbox[:0]
	for _, e := range s.state.outbox {
		if _, ok := done[e.ID]; ok {
			continue
		}
		kept = append(kept, e)
	}
	s.state.outbox = kept
	return nil
}

// CountPending returns the outbox backlog.
func (s *Store) CountPending(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.state.outbox)), nil
}

type tx struct {
	base     *state
	writable bool

	config      *pool.Config
	tree        *pool.Tree
	commitments map[uint64]pool.CommitmentRecord
	nullifiers  map[pool.Hash]pool.NullifierRecord
	balances    map[balanceKey]uint64
	events      []pool.Event
}

func newTx(base *state, writable bool) *tx {
	return &tx{
		base:        base,
		writable:    writable,
		commitments: make(map[uint64]pool.CommitmentRecord),
		nullifiers:  make(map[pool.Hash]pool.NullifierRecord),
		balances:    make(map[balanceKey]uint64),
	}
}

func (t *tx) commit() {
	if t.config != nil {
		t.base.config = t.config
	}
	if t.tree != nil {
		t.base.tree = t.tree
	}
	for k, v := range t.commitments {
		t.base.commitments[k] = v
	}
	for k, v := range t.nullifiers {
		t.base.nullifiers[k] = v
	}
	for k, v := range t.balances {
		t.base.balances[k] = v
	}
	for _, ev := range t.events {
		t.base.seq++
		ev.Seq = t.base.seq
		t.base.outbox = append(t.base.outbox, ev)
	}
}

func (t *tx) currentConfig() *pool.Config {
	if t.config != nil {
		return t.config
	}
	return t.base.config
}

func (t *tx) currentTree() *pool.Tree {
	if t.tree != nil {
		return t.tree
	}
	return t.base.tree
}

func (t *tx) Create(_ context.Context, cfg *pool.Config, tree *pool.Tree) error {
	if !t.writable {
		return errReadOnly
	}
	if t.currentConfig() != nil {
		return pool.ErrAlreadyInitialized
	}
	c := *cfg
	t.config = &c
	t.tree = tree.Clone()
	return nil
}

func (t *tx) Config(_ context.Context) (*pool.Config, error) {
	cfg := t.currentConfig()
	if cfg == nil {
		return nil, pool.ErrNotInitialized
	}
	c := *cfg
	return &c, nil
}

func (t *tx) PutConfig(_ context.Context, cfg *pool.Config) error {
	if !t.writable {
		return errReadOnly
	}
	if t.currentConfig() == nil {
		return pool.ErrNotInitialized
	}
	c := *cfg
	t.config = &c
	return nil
}

func (t *tx) Tree(_ context.Context) (*pool.Tree, error) {
	tree := t.currentTree()
	if tree == nil {
		return nil, pool.ErrNotInitialized
	}
	return tree.Clone(), nil
}

func (t *tx) PutTree(_ context.Context, tree *pool.Tree) error {
	if !t.writable {
		return errReadOnly
	}
	if t.currentTree() == nil {
		return pool.ErrNotInitialized
	}
	t.tree = tree.Clone()
	return nil
}

func (t *tx) lookupCommitment(index uint64) (pool.CommitmentRecord, bool) {
	if rec, ok := t.commitments[index]; ok {
		return rec, true
	}
	rec, ok := t.base.commitments[index]
	return rec, ok
}

func (t *tx) InsertCommitment(_ context.Context, rec pool.CommitmentRecord) error {
	if !t.writable {
		return errReadOnly
	}
	if _, ok := t.lookupCommitment(rec.Index); ok {
		return pool.ErrLeafIndexMismatch
	}
	t.commitments[rec.Index] = rec
	return nil
}

func (t *tx) Commitment(_ context.Context, index uint64) (*pool.CommitmentRecord, error) {
	rec, ok := t.lookupCommitment(index)
	if !ok {
		return nil, pool.ErrNotFound
	}
	return &rec, nil
}

func (t *tx) Commitments(_ context.Context, from uint64, limit int) ([]pool.CommitmentRecord, error) {
	seen := make(map[uint64]pool.CommitmentRecord)
	for k, v := range t.base.commitments {
		if k >= from {
			seen[k] = v
		}
	}
	for k, v := range t.commitments {
		if k >= from {
			seen[k] = v
		}
	}
	out := make([]pool.CommitmentRecord, 0, len(seen))
	for _, v := range seen {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *tx) SpendNullifier(_ context.Context, rec pool.NullifierRecord) error {
	if !t.writable {
		return errReadOnly
	}
	if spent, _ := t.NullifierSpent(context.Background(), rec.NullifierHash); spent {
		return pool.ErrNullifierAlreadySpent
	}
	t.nullifiers[rec.NullifierHash] = rec
	return nil
}

func (t *tx) NullifierSpent(_ context.Context, nullifierHash pool.Hash) (bool, error) {
	if _, ok := t.nullifiers[nullifierHash]; ok {
		return true, nil
	}
	_, ok := t.base.nullifiers[nullifierHash]
	return ok, nil
}

func (t *tx) Custody() pool.Custody {
	return custody{t}
}

func (t *tx) Emit(_ context.Context, ev *pool.Event) error {
	if !t.writable {
		return errReadOnly
	}
	t.events = append(t.events, *ev)
	return nil
}

type custody struct {
	t *tx
}

func (c custody) balance(asset pool.Asset, owner pool.Address) uint64 {
	k := balanceKey{asset: asset, owner: owner}
	if v, ok := c.t.balances[k]; ok {
		return v
	}
	return c.t.base.balances[k]
}

func (c custody) Balance(_ context.Context, asset pool.Asset, owner pool.Address) (uint64, error) {
	return c.balance(asset, owner), nil
}

func (c custody) Transfer(_ context.Context, asset pool.Asset, from, to pool.Address, amount uint64) error {
	if !c.t.writable {
		return errReadOnly
	}
	src := c.balance(asset, from)
	if src < amount {
		return pool.ErrInsufficientBalance
	}
	if from == to {
		return nil
	}
	dst := c.balance(asset, to)
	if dst+amount < dst {
		return pool.ErrOverflow
	}
	c.t.balances[balanceKey{asset, from}] = src - amount
	c.t.balances[balanceKey{asset, to}] = dst + amount
	return nil
}

func (c custody) Credit(_ context.Context, asset pool.Asset, owner pool.Address, amount uint64) error {
	if !c.t.writable {
		return errReadOnly
	}
	cur := c.balance(asset, owner)
	if cur+amount < cur {
		return pool.ErrOverflow
	}
	c.t.balances[balanceKey{asset, owner}] = cur + amount
	return nil
}
