package pool

import (
	"context"

	"shieldpool/internal/metrics"

	"github.com/sirupsen/logrus"
)

// Admin operations are not gated by the pause flag so that a paused pool
// can be resumed.

// SetPaused sets the pause flag.
func (s *Service) SetPaused(ctx context.Context, admin Address, paused bool) error {
	reason := "unpause"
	if paused {
		reason = "pause"
	}
	err := s.updateConfig(ctx, admin, reason, func(cfg *Config, _ *Tree) bool {
		cfg.Paused = paused
		return false
	})
	if err == nil {
		if paused {
			metrics.PoolPaused.Set(1)
		} else {
			metrics.PoolPaused.Set(0)
		}
	}
	return err
}

// SetRelayer hands relayer authority, and the tree authority, to relayer.
func (s *Service) SetRelayer(ctx context.Context, admin Address, relayer Address) error {
	return s.updateConfig(ctx, admin, "set_relayer", func(cfg *Config, tree *Tree) bool {
		cfg.Relayer = relayer
		tree.Authority = relayer
		return true
	})
}

// SetFeeRecipient changes where withdrawal fees are paid.
func (s *Service) SetFeeRecipient(ctx context.Context, admin Address, recipient Address) error {
	return s.updateConfig(ctx, admin, "set_fee_recipient", func(cfg *Config, _ *Tree) bool {
		cfg.FeeRecipient = recipient
		return false
	})
}

// updateConfig applies mutate under admin authorization. mutate reports
// whether it changed the tree as well.
func (s *Service) updateConfig(ctx context.Context, admin Address, reason string, mutate func(cfg *Config, tree *Tree) bool) error {
	fields := logrus.Fields{"admin": admin.Hex(), "reason": reason}
	var updated Config
	err := s.update(ctx, reason, func(tx Tx) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(cfg, admin); err != nil {
			return err
		}
		tree, err := loadTree(ctx, tx)
		if err != nil {
			return err
		}
		if mutate(cfg, tree) {
			if err := tx.PutTree(ctx, tree); err != nil {
				return storeError("save tree", err)
			}
		}
		if err := tx.PutConfig(ctx, cfg); err != nil {
			return storeError("save config", err)
		}
		updated = *cfg
		return s.emit(ctx, tx, &Event{
			Kind:              EventPoolConfigUpdated,
			PoolConfigUpdated: &PoolConfigUpdated{Config: *cfg, Reason: reason},
		})
	})
	if err != nil {
		s.reject(reason, err, fields)
		return err
	}
	s.logger.WithFields(fields).WithFields(logrus.Fields{
		"relayer":       updated.Relayer.Hex(),
		"fee_recipient": updated.FeeRecipient.Hex(),
		"paused":        updated.Paused,
	}).Info("pool config updated")
	return nil
}

// CreditAsAdmin is Credit restricted to the pool admin. It backs the devnet
// funding endpoint.
func (s *Service) CreditAsAdmin(ctx context.Context, admin Address, asset Asset, owner Address, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	fields := logrus.Fields{"admin": admin.Hex(), "asset": asset.String(), "owner": owner.Hex(), "amount": amount}
	err := s.update(ctx, "credit", func(tx Tx) error {
		cfg, err := loadConfig(ctx, tx)
		if err != nil {
			return err
		}
		if err := requireAdmin(cfg, admin); err != nil {
			return err
		}
		return tx.Custody().Credit(ctx, asset, owner, amount)
	})
	if err != nil {
		s.reject("credit", err, fields)
	}
	return err
}
