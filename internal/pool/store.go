package pool

import "context"

// Store runs transitions against the shared pool state. Update must commit
// every write made through the Tx when fn returns nil and discard all of
// them otherwise; concurrent Updates must behave as if run one at a time.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the state visible to a single transition.
type Tx interface {
	// Create installs the singleton config and tree. ErrAlreadyInitialized
	// when they exist.
	Create(ctx context.Context, cfg *Config, tree *Tree) error
	// Config returns a copy of the config, ErrNotInitialized before Create.
	Config(ctx context.Context) (*Config, error)
	PutConfig(ctx context.Context, cfg *Config) error
	// Tree returns a copy of the tree, ErrNotInitialized before Create.
	Tree(ctx context.Context) (*Tree, error)
	PutTree(ctx context.Context, tree *Tree) error

	// InsertCommitment creates the record addressed by rec.Index and fails
	// with ErrLeafIndexMismatch if that address is taken.
	InsertCommitment(ctx context.Context, rec CommitmentRecord) error
	Commitment(ctx context.Context, index uint64) (*CommitmentRecord, error)
	Commitments(ctx context.Context, from uint64, limit int) ([]CommitmentRecord, error)

	// SpendNullifier creates the record addressed by rec.NullifierHash and
	// fails with ErrNullifierAlreadySpent if it exists.
	SpendNullifier(ctx context.Context, rec NullifierRecord) error
	NullifierSpent(ctx context.Context, nullifierHash Hash) (bool, error)

	Custody() Custody

	// Emit appends an event to the outbox; it becomes visible to
	// subscribers only if the transition commits.
	Emit(ctx context.Context, ev *Event) error
}

// Custody is the asset ledger capability. Transfers made through a Tx are
// part of the enclosing transition.
type Custody interface {
	Balance(ctx context.Context, asset Asset, owner Address) (uint64, error)
	// Transfer fails with ErrInsufficientBalance when from cannot cover
	// amount and ErrOverflow when to would wrap.
	Transfer(ctx context.Context, asset Asset, from, to Address, amount uint64) error
	// Credit brings external value into the ledger.
	Credit(ctx context.Context, asset Asset, owner Address, amount uint64) error
}
