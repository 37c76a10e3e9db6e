package pool

import (
	"context"

	"shieldpool/internal/metrics"

	"github.com/sirupsen/logrus"
)

// DepositRequest locks Amount of Asset behind Commitment. LeafIndex is the
// caller's prediction of the tree's next index.
type DepositRequest struct {
	Asset           Asset
	Commitment      Hash
	EncryptedOutput []byte
	Amount          uint64
	LeafIndex       uint64
}

// DepositReceipt reports the allocated leaf.
type DepositReceipt struct {
	Index uint64 `json:"index"`
}

// Deposit moves Amount from the depositor into the pool vault, records the
// commitment at LeafIndex and advances the tree. Any signer may deposit.
func (s *Service) Deposit(ctx context.Context, depositor Address, req DepositRequest) (*DepositReceipt, error) {
	fields := logrus.Fields{
		"depositor":  depositor.Hex(),
		"asset":      req.Asset.String(),
		"amount":     req.Amount,
		"leaf_index": req.LeafIndex,
	}
	var (
		receipt DepositReceipt
		tree    *Tree
		vault   uint64
	)
	err := s.update(ctx, "deposit", func(tx Tx) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireActive(cfg); err != nil {
			return err
		}
		if req.Amount == 0 {
			return ErrInvalidAmount
		}
		if req.Commitment == ZeroHash {
			return ErrInvalidCommitment
		}
		if tree, err = loadTree(ctx, tx); err != nil {
			return err
		}
		if tree.IsFull() {
			return ErrTreeFull
		}
		if req.LeafIndex != tree.NextIndex {
			return ErrLeafIndexMismatch
		}

		custody := tx.Custody()
		if err := custody.Transfer(ctx, req.Asset, depositor, VaultAddress, req.Amount); err != nil {
			return storeError("transfer deposit", err)
		}
		index, err := tree.AllocateLeaf(req.Commitment)
		if err != nil {
			return err
		}
		if err := tx.InsertCommitment(ctx, CommitmentRecord{
			Index:      index,
			Commitment: req.Commitment,
			CreatedAt:  s.now().UTC(),
		}); err != nil {
			return storeError("insert commitment", err)
		}
		if err := tx.PutTree(ctx, tree); err != nil {
			return storeError("save tree", err)
		}
		if vault, err = custody.Balance(ctx, req.Asset, VaultAddress); err != nil {
			return storeError("read vault balance", err)
		}
		receipt.Index = index
		return s.emit(ctx, tx, &Event{
			Kind: EventCommitmentInserted,
			CommitmentInserted: &CommitmentInserted{
				Index:           index,
				Commitment:      req.Commitment,
				EncryptedOutput: append([]byte(nil), req.EncryptedOutput...),
				Amount:          req.Amount,
				Asset:           req.Asset,
			},
		})
	})
	if err != nil {
		s.reject("deposit", err, fields)
		return nil, err
	}
	metrics.TreeNextIndex.Set(float64(tree.NextIndex))
	metrics.CustodyBalance.WithLabelValues(req.Asset.String()).Set(float64(vault))
	s.logger.WithFields(fields).WithField("index", receipt.Index).Info("deposit committed")
	return &receipt, nil
}
