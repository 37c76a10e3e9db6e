package pool

import (
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EventKind names the relayer-facing event types.
type EventKind string

const (
	EventCommitmentInserted  EventKind = "CommitmentInserted"
	EventRootUpdated         EventKind = "RootUpdated"
	EventWithdrawalProcessed EventKind = "WithdrawalProcessed"
	EventPoolConfigUpdated   EventKind = "PoolConfigUpdated"
)

// Event is one committed state change. Exactly one payload field is set,
// matching Kind.
type Event struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"seq"`
	Kind      EventKind `json:"kind"`
	CreatedAt time.Time `json:"created_at"`

	CommitmentInserted  *CommitmentInserted  `json:"commitment_inserted,omitempty"`
	RootUpdated         *RootUpdated         `json:"root_updated,omitempty"`
	WithdrawalProcessed *WithdrawalProcessed `json:"withdrawal_processed,omitempty"`
	PoolConfigUpdated   *PoolConfigUpdated   `json:"pool_config_updated,omitempty"`
}

// CommitmentInserted is emitted for deposit leaves and change outputs.
// Change outputs carry Amount 0 and an empty payload.
type CommitmentInserted struct {
	Index           uint64        `json:"index"`
	Commitment      Hash          `json:"commitment"`
	EncryptedOutput hexutil.Bytes `json:"encrypted_output"`
	Amount          uint64        `json:"amount,string"`
	Asset           Asset         `json:"asset"`
}

type RootUpdated struct {
	NewRoot   Hash   `json:"new_root"`
	RootIndex uint64 `json:"root_index"`
}

type WithdrawalProcessed struct {
	NullifierHash Hash    `json:"nullifier_hash"`
	Recipient     Address `json:"recipient"`
	Amount        uint64  `json:"amount,string"`
	Fee           uint64  `json:"fee,string"`
	Asset         Asset   `json:"asset"`
	NewCommitment *Hash   `json:"new_commitment,omitempty"`
	NewIndex      *uint64 `json:"new_index,omitempty"`
}

// PoolConfigUpdated carries the config after initialize or an admin change.
type PoolConfigUpdated struct {
	Config Config `json:"config"`
	Reason string `json:"reason"`
}
