package models

import "time"

// ============ Pool singleton ============

// PoolConfigID is the primary key of the single pool config and tree rows.
const PoolConfigID = 1

// PoolConfig is the singleton governance row.
type PoolConfig struct {
	ID           uint   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Admin        string `json:"admin" gorm:"size:42;not null"`
	Relayer      string `json:"relayer" gorm:"size:42;not null"`
	FeeRecipient string `json:"fee_recipient" gorm:"size:42;not null"`
	FeeBps       uint16 `json:"fee_bps" gorm:"not null"`
	Paused       bool   `json:"paused" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (PoolConfig) TableName() string {
	return "pool_configs"
}

// CommitmentTree is the accumulator bookkeeping. The root history ring is
// kept in RootHistorySlot rows.
type CommitmentTree struct {
	ID            uint   `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Authority     string `json:"authority" gorm:"size:42;not null"`
	NextIndex     int64  `json:"next_index" gorm:"not null;default:0"`
	CurrentRoot   string `json:"current_root" gorm:"size:66;not null"`
	HistoryCursor int64  `json:"history_cursor" gorm:"not null;default:0"`
	Height        uint8  `json:"height" gorm:"not null"`

	UpdatedAt time.Time `json:"updated_at"`
}

func (CommitmentTree) TableName() string {
	return "commitment_trees"
}

// RootHistorySlot is one slot of the fixed-size root ring.
type RootHistorySlot struct {
	Slot int    `json:"slot" gorm:"primaryKey;autoIncrement:false"`
	Root string `json:"root" gorm:"size:66;not null"`
}

func (RootHistorySlot) TableName() string {
	return "root_history_slots"
}

// ============ Records ============

// CommitmentRecord is a deposit leaf. The primary key enforces one record
// per leaf index.
type CommitmentRecord struct {
	LeafIndex  int64     `json:"leaf_index" gorm:"primaryKey;autoIncrement:false"`
	Commitment string    `json:"commitment" gorm:"size:66;not null;index"`
	CreatedAt  time.Time `json:"created_at"`
}

func (CommitmentRecord) TableName() string {
	return "commitment_records"
}

// NullifierRecord marks a spent nullifier. Existence is the spent flag.
type NullifierRecord struct {
	NullifierHash string    `json:"nullifier_hash" gorm:"primaryKey;size:66"`
	SpentAt       time.Time `json:"spent_at"`
}

func (NullifierRecord) TableName() string {
	return "nullifier_records"
}

// CustodyBalance is one (asset, owner) account of the asset ledger.
// Balance is a decimal string of a uint64 (numeric(20,0)).
type CustodyBalance struct {
	Asset     string    `json:"asset" gorm:"primaryKey;size:42"`
	Owner     string    `json:"owner" gorm:"primaryKey;size:42"`
	Balance   string    `json:"balance" gorm:"type:numeric(20,0);not null;default:0"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (CustodyBalance) TableName() string {
	return "custody_balances"
}

// ============ Outbox ============

// PoolEvent is a committed event waiting for delivery. Seq orders events
// by commit.
type PoolEvent struct {
	Seq         uint64     `json:"seq" gorm:"primaryKey;autoIncrement"`
	EventID     string     `json:"event_id" gorm:"size:36;not null;uniqueIndex"`
	Kind        string     `json:"kind" gorm:"size:32;not null;index"`
	Payload     string     `json:"payload" gorm:"type:jsonb;not null"`
	CreatedAt   time.Time  `json:"created_at"`
	PublishedAt *time.Time `json:"published_at" gorm:"index"`
}

func (PoolEvent) TableName() string {
	return "pool_events"
}

// PoolModels lists every table the pool store migrates.
func PoolModels() []interface{} {
	return []interface{}{
		&PoolConfig{},
		&CommitmentTree{},
		&RootHistorySlot{},
		&CommitmentRecord{},
		&NullifierRecord{},
		&CustodyBalance{},
		&PoolEvent{},
	}
}
