package pool

import "context"

// MaxPageSize bounds Commitments listings.
const MaxPageSize = 1000

// Snapshot is the read model relayers use to sync with the pool.
type Snapshot struct {
	Config   Config `json:"config"`
	Tree     Tree   `json:"tree"`
	Capacity uint64 `json:"capacity"`
	Full     bool   `json:"full"`
}

// State returns the current config and tree.
func (s *Service) State(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	err := s.store.View(ctx, func(tx Tx) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		tree, err := loadTree(ctx, tx)
		if err != nil {
			return err
		}
		snap = Snapshot{Config: *cfg, Tree: *tree, Capacity: tree.Capacity(), Full: tree.IsFull()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// CommitmentAt returns the deposit record at index, ErrNotFound for change
// leaves and unallocated indexes.
func (s *Service) CommitmentAt(ctx context.Context, index uint64) (*CommitmentRecord, error) {
	var rec *CommitmentRecord
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		rec, err = tx.Commitment(ctx, index)
		return err
	})
	return rec, err
}

// Commitments lists deposit records with index >= from in index order.
func (s *Service) Commitments(ctx context.Context, from uint64, limit int) ([]CommitmentRecord, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	var recs []CommitmentRecord
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		recs, err = tx.Commitments(ctx, from, limit)
		return err
	})
	return recs, err
}

// IsSpent reports whether nullifierHash has been consumed.
func (s *Service) IsSpent(ctx context.Context, nullifierHash Hash) (bool, error) {
	var spent bool
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		spent, err = tx.NullifierSpent(ctx, nullifierHash)
		return err
	})
	return spent, err
}

// IsKnownRoot reports whether a withdrawal against root would pass the
// root check right now.
func (s *Service) IsKnownRoot(ctx context.Context, root Hash) (bool, error) {
	var known bool
	err := s.store.View(ctx, func(tx Tx) error {
		tree, err := loadTree(ctx, tx)
		if err != nil {
			return err
		}
		known = tree.IsKnownRoot(root)
		return nil
	})
	return known, err
}

// CustodyBalance returns the vault balance of asset.
func (s *Service) CustodyBalance(ctx context.Context, asset Asset) (uint64, error) {
	var balance uint64
	err := s.store.View(ctx, func(tx Tx) error {
		var err error
		balance, err = tx.Custody().Balance(ctx, asset, VaultAddress)
		return err
	})
	return balance, err
}

// Credit brings external value into owner's custody account. It stands in
// for the asset ledger's own funding path on devnets and in tests.
func (s *Service) Credit(ctx context.Context, asset Asset, owner Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	return s.store.Update(ctx, func(tx Tx) error {
		return tx.Custody().Credit(ctx, asset, owner, amount)
	})
}
