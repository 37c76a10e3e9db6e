package pool

import (
	"context"

	"shieldpool/internal/metrics"

	"github.com/sirupsen/logrus"
)

// UpdateRoot rotates the current root into history and installs newRoot.
// It returns the history cursor after the rotation.
func (s *Service) UpdateRoot(ctx context.Context, relayer Address, newRoot Hash) (uint64, error) {
	fields := logrus.Fields{
		"relayer":  relayer.Hex(),
		"new_root": newRoot.Hex(),
	}
	var rootIndex uint64
	err := s.update(ctx, "update_root", func(tx Tx) error {
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
		tree, err := loadTree(ctx, tx)
		if err != nil {
			return err
		}
		rootIndex = tree.UpdateRoot(newRoot)
		if err := tx.PutTree(ctx, tree); err != nil {
			return storeError("save tree", err)
		}
		return s.emit(ctx, tx, &Event{
			Kind:        EventRootUpdated,
			RootUpdated: &RootUpdated{NewRoot: newRoot, RootIndex: rootIndex},
		})
	})
	if err != nil {
		s.reject("update_root", err, fields)
		return 0, err
	}
	metrics.RootRotations.Inc()
	s.logger.WithFields(fields).WithField("root_index", rootIndex).Info("root updated")
	return rootIndex, nil
}
