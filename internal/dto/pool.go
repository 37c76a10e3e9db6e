package dto

import (
	"fmt"
	"strings"

	"shieldpool/internal/pool"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ==================== Pool DTOs ====================
// Amounts travel as decimal strings so JavaScript clients keep full
// uint64 precision.

// InitializeRequest POST /api/pool/initialize
type InitializeRequest struct {
	Relayer      string `json:"relayer" binding:"required"`
	FeeRecipient string `json:"fee_recipient" binding:"required"`
	FeeBps       uint16 `json:"fee_bps"`
}

// DepositRequest POST /api/pool/deposit
type DepositRequest struct {
	Asset           string `json:"asset" binding:"required"`
	Commitment      string `json:"commitment" binding:"required"`
	EncryptedOutput string `json:"encrypted_output"`
	Amount          uint64 `json:"amount,string"`
	LeafIndex       uint64 `json:"leaf_index"`
}

// WithdrawRequest POST /api/pool/withdraw
type WithdrawRequest struct {
	Asset         string `json:"asset" binding:"required"`
	NullifierHash string `json:"nullifier_hash" binding:"required"`
	StateRoot     string `json:"state_root" binding:"required"`
	NewCommitment string `json:"new_commitment"`
	Recipient     string `json:"recipient" binding:"required"`
	Amount        uint64 `json:"amount,string"`
	Fee           uint64 `json:"fee,string"`
}

// RootUpdateRequest POST /api/pool/root
type RootUpdateRequest struct {
	NewRoot string `json:"new_root" binding:"required"`
}

// SetRelayerRequest POST /api/admin/relayer
type SetRelayerRequest struct {
	Relayer string `json:"relayer" binding:"required"`
}

// SetFeeRecipientRequest POST /api/admin/fee-recipient
type SetFeeRecipientRequest struct {
	FeeRecipient string `json:"fee_recipient" binding:"required"`
}

// CreditRequest POST /api/admin/credit
type CreditRequest struct {
	Asset  string `json:"asset" binding:"required"`
	Owner  string `json:"owner" binding:"required"`
	Amount uint64 `json:"amount,string"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

// ParseHash parses a 0x-prefixed 32-byte hex value.
func ParseHash(field, s string) (pool.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return pool.Hash{}, fmt.Errorf("%s must be 0x-prefixed 32-byte hex", field)
	}
	return common.BytesToHash(b), nil
}

// ParseOptionalHash is ParseHash with "" meaning the zero hash.
func ParseOptionalHash(field, s string) (pool.Hash, error) {
	if strings.TrimSpace(s) == "" {
		return pool.ZeroHash, nil
	}
	return ParseHash(field, s)
}

// ParseAddress parses a 0x-prefixed 20-byte hex address.
func ParseAddress(field, s string) (pool.Address, error) {
	if !common.IsHexAddress(s) || !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return pool.Address{}, fmt.Errorf("%s must be a 0x-prefixed address", field)
	}
	return common.HexToAddress(s), nil
}

// ToInitialize converts the request.
func (r *InitializeRequest) ToInitialize() (pool.InitializeRequest, error) {
	relayer, err := ParseAddress("relayer", r.Relayer)
	if err != nil {
		return pool.InitializeRequest{}, err
	}
	feeRecipient, err := ParseAddress("fee_recipient", r.FeeRecipient)
	if err != nil {
		return pool.InitializeRequest{}, err
	}
	return pool.InitializeRequest{Relayer: relayer, FeeRecipient: feeRecipient, FeeBps: r.FeeBps}, nil
}

// ToDeposit converts the request.
func (r *DepositRequest) ToDeposit() (pool.DepositRequest, error) {
	asset, err := pool.ParseAsset(r.Asset)
	if err != nil {
		return pool.DepositRequest{}, err
	}
	commitment, err := ParseHash("commitment", r.Commitment)
	if err != nil {
		return pool.DepositRequest{}, err
	}
	var payload []byte
	if r.EncryptedOutput != "" {
		if payload, err = hexutil.Decode(r.EncryptedOutput); err != nil {
			return pool.DepositRequest{}, fmt.Errorf("encrypted_output must be 0x-prefixed hex")
		}
	}
	return pool.DepositRequest{
		Asset:           asset,
		Commitment:      commitment,
		EncryptedOutput: payload,
		Amount:          r.Amount,
		LeafIndex:       r.LeafIndex,
	}, nil
}

// ToWithdraw converts the request.
func (r *WithdrawRequest) ToWithdraw() (pool.WithdrawRequest, error) {
	asset, err := pool.ParseAsset(r.Asset)
	if err != nil {
		return pool.WithdrawRequest{}, err
	}
	nullifier, err := ParseHash("nullifier_hash", r.NullifierHash)
	if err != nil {
		return pool.WithdrawRequest{}, err
	}
	root, err := ParseHash("state_root", r.StateRoot)
	if err != nil {
		return pool.WithdrawRequest{}, err
	}
	change, err := ParseOptionalHash("new_commitment", r.NewCommitment)
	if err != nil {
		return pool.WithdrawRequest{}, err
	}
	recipient, err := ParseAddress("recipient", r.Recipient)
	if err != nil {
		return pool.WithdrawRequest{}, err
	}
	return pool.WithdrawRequest{
		Asset: asset,
		Inputs: pool.WithdrawInputs{
			NullifierHash: nullifier,
			StateRoot:     root,
			NewCommitment: change,
		},
		Recipient: recipient,
		Amount:    r.Amount,
		Fee:       r.Fee,
	}, nil
}
