// Package pool implements the shielded pool state machine: the commitment
// accumulator, the nullifier registry, the pool configuration and the
// deposit, withdraw and root update transitions that move between them.
//
// Proofs are verified off-chain by the relayer. The pool only keeps the
// state the public inputs of a proof are checked against, and every
// transition runs as one atomic unit inside a Store.
package pool

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// TreeHeight gives a leaf capacity of 2^20.
	TreeHeight uint8 = 20
	// RootHistorySize is the number of rotated roots a withdrawal may still reference.
	RootHistorySize = 32
	// MaxFeeBps is the fee ceiling accepted at initialize (10%).
	MaxFeeBps uint16 = 1000
)

// Hash is a fixed 32-byte value: commitments, nullifier hashes and roots.
type Hash = common.Hash

// Address identifies a key holder or custody account.
type Address = common.Address

// ZeroHash is the "no leaf" sentinel and the initial root.
var ZeroHash Hash

// VaultAddress is the pool's custody account. Funds leave it only through
// pool transitions.
var VaultAddress = common.BytesToAddress(crypto.Keccak256([]byte("pool_vault"))[12:])

// Asset selects the custody ledger a transition moves value on. The zero
// value is the native asset; anything else is a fungible token address.
type Asset struct {
	Token Address
}

// NativeAsset is the chain's native value.
var NativeAsset = Asset{}

// TokenAsset returns the asset for a token address.
func TokenAsset(token Address) Asset {
	return Asset{Token: token}
}

func (a Asset) IsNative() bool {
	return a.Token == (Address{})
}

func (a Asset) String() string {
	if a.IsNative() {
		return "native"
	}
	return a.Token.Hex()
}

// ParseAsset accepts "native", "" or a 0x token address.
func ParseAsset(s string) (Asset, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "native") {
		return NativeAsset, nil
	}
	if !common.IsHexAddress(s) {
		return Asset{}, fmt.Errorf("invalid asset %q", s)
	}
	return TokenAsset(common.HexToAddress(s)), nil
}

func (a Asset) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Asset) UnmarshalText(text []byte) error {
	parsed, err := ParseAsset(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Config is the pool's authorization record. It is created once at
// initialize and changed only through admin-checked operations.
type Config struct {
	Admin        Address `json:"admin"`
	Relayer      Address `json:"relayer"`
	FeeRecipient Address `json:"fee_recipient"`
	FeeBps       uint16  `json:"fee_bps"`
	Paused       bool    `json:"paused"`
}

// CommitmentRecord is the queryable record of a deposit leaf. Change
// outputs created by withdrawals get no record, only an event.
type CommitmentRecord struct {
	Index      uint64    `json:"index"`
	Commitment Hash      `json:"commitment"`
	CreatedAt  time.Time `json:"created_at"`
}

// NullifierRecord marks a nullifier hash as spent. It is never removed.
type NullifierRecord struct {
	NullifierHash Hash      `json:"nullifier_hash"`
	SpentAt       time.Time `json:"spent_at"`
}

// LeafKey is the little-endian encoding of a leaf index used to address
// commitment records.
func LeafKey(index uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], index)
	return b[:]
}
