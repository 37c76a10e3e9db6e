package pool

import (
	"context"

	"shieldpool/internal/metrics"

	"github.com/sirupsen/logrus"
)

// InitializeRequest bootstraps the pool. The caller becomes admin.
type InitializeRequest struct {
	Relayer      Address
	FeeRecipient Address
	FeeBps       uint16
}

// Initialize creates the pool config and an empty tree of height
// TreeHeight. It runs once; later calls fail with ErrAlreadyInitialized.
func (s *Service) Initialize(ctx context.Context, caller Address, req InitializeRequest) error {
	fields := logrus.Fields{
		"admin":         caller.Hex(),
		"relayer":       req.Relayer.Hex(),
		"fee_recipient": req.FeeRecipient.Hex(),
		"fee_bps":       req.FeeBps,
	}
	err := s.update(ctx, "initialize", func(tx Tx) error {
		if req.FeeBps > MaxFeeBps {
			return ErrInvalidFeeConfig
		}
		cfg := &Config{
			Admin:        caller,
			Relayer:      req.Relayer,
			FeeRecipient: req.FeeRecipient,
			FeeBps:       req.FeeBps,
		}
		if err := tx.Create(ctx, cfg, NewTree(req.Relayer, TreeHeight)); err != nil {
			return storeError("create pool", err)
		}
		return s.emit(ctx, tx, &Event{
			Kind:              EventPoolConfigUpdated,
			PoolConfigUpdated: &PoolConfigUpdated{Config: *cfg, Reason: "initialize"},
		})
	})
	if err != nil {
		s.reject("initialize", err, fields)
		return err
	}
	metrics.TreeNextIndex.Set(0)
	metrics.PoolPaused.Set(0)
	s.logger.WithFields(fields).WithField("tree_height", TreeHeight).Info("pool initialized")
	return nil
}
