package pool

import (
	"context"

	"shieldpool/internal/metrics"

	"github.com/sirupsen/logrus"
)

// WithdrawInputs are the public inputs of the withdrawal proof the relayer
// verified off-chain.
type WithdrawInputs struct {
	NullifierHash Hash
	StateRoot     Hash
	// NewCommitment is the change output; ZeroHash means none.
	NewCommitment Hash
}

// WithdrawRequest pays Amount to Recipient and Fee to the configured fee
// recipient. Fee is not checked against the configured fee_bps.
type WithdrawRequest struct {
	Asset     Asset
	Inputs    WithdrawInputs
	Recipient Address
	Amount    uint64
	Fee       uint64
}

// WithdrawReceipt reports the change leaf, if one was allocated.
type WithdrawReceipt struct {
	NewIndex *uint64 `json:"new_index,omitempty"`
}

// Withdraw consumes the nullifier against a known root and pays out of the
// vault. The nullifier is spent before any transfer; a later failure aborts
// the whole transition and leaves it unspent.
func (s *Service) Withdraw(ctx context.Context, relayer Address, req WithdrawRequest) (*WithdrawReceipt, error) {
	fields := logrus.Fields{
		"relayer":    relayer.Hex(),
		"asset":      req.Asset.String(),
		"nullifier":  req.Inputs.NullifierHash.Hex(),
		"state_root": req.Inputs.StateRoot.Hex(),
		"recipient":  req.Recipient.Hex(),
		"amount":     req.Amount,
		"fee":        req.Fee,
	}
	var (
		receipt WithdrawReceipt
		tree    *Tree
		vault   uint64
	)
	err := s.update(ctx, "withdraw", func(tx Tx) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireRelayer(cfg, relayer); err != nil {
			return err
		}
		if err := requireActive(cfg); err != nil {
			return err
		}
		if req.Amount == 0 {
			return ErrInvalidAmount
		}

		if tree, err = loadTree(ctx, tx); err != nil {
			return err
		}
		if !tree.IsKnownRoot(req.Inputs.StateRoot) {
			return ErrInvalidStateRoot
		}

		if err := tx.SpendNullifier(ctx, NullifierRecord{
			NullifierHash: req.Inputs.NullifierHash,
			SpentAt:       s.now().UTC(),
		}); err != nil {
			return storeError("spend nullifier", err)
		}

		total, err := checkedAdd(req.Amount, req.Fee)
		if err != nil {
			return err
		}
		custody := tx.Custody()
		if vault, err = custody.Balance(ctx, req.Asset, VaultAddress); err != nil {
			return storeError("read vault balance", err)
		}
		if vault < total {
			return ErrInsufficientBalance
		}
		if err := custody.Transfer(ctx, req.Asset, VaultAddress, req.Recipient, req.Amount); err != nil {
			return storeError("transfer amount", err)
		}
		if req.Fee > 0 {
			if err := custody.Transfer(ctx, req.Asset, VaultAddress, cfg.FeeRecipient, req.Fee); err != nil {
				return storeError("transfer fee", err)
			}
		}
		vault -= total

		processed := &WithdrawalProcessed{
			NullifierHash: req.Inputs.NullifierHash,
			Recipient:     req.Recipient,
			Amount:        req.Amount,
			Fee:           req.Fee,
			Asset:         req.Asset,
		}
		if req.Inputs.NewCommitment != ZeroHash {
			index, err := tree.AllocateLeaf(req.Inputs.NewCommitment)
			if err != nil {
				return err
			}
			if err := tx.PutTree(ctx, tree); err != nil {
				return storeError("save tree", err)
			}
			// Change leaves get no CommitmentRecord; relayers index them
			// from this event.
			if err := s.emit(ctx, tx, &Event{
				Kind: EventCommitmentInserted,
				CommitmentInserted: &CommitmentInserted{
					Index:           index,
					Commitment:      req.Inputs.NewCommitment,
					EncryptedOutput: []byte{},
					Amount:          0,
					Asset:           req.Asset,
				},
			}); err != nil {
				return err
			}
			newCommitment := req.Inputs.NewCommitment
			processed.NewCommitment = &newCommitment
			processed.NewIndex = &index
			receipt.NewIndex = &index
		}
		return s.emit(ctx, tx, &Event{
			Kind:                EventWithdrawalProcessed,
			WithdrawalProcessed: processed,
		})
	})
	if err != nil {
		s.reject("withdraw", err, fields)
		return nil, err
	}
	metrics.NullifiersSpent.Inc()
	metrics.TreeNextIndex.Set(float64(tree.NextIndex))
	metrics.CustodyBalance.WithLabelValues(req.Asset.String()).Set(float64(vault))
	entry := s.logger.WithFields(fields)
	if receipt.NewIndex != nil {
		entry = entry.WithField("new_index", *receipt.NewIndex)
	}
	entry.Info("withdrawal committed")
	return &receipt, nil
}
