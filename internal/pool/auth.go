package pool

import "context"

func loadConfig(ctx context.Context, tx Tx) (*Config, error) {
	cfg, err := tx.Config(ctx)
	if err != nil {
		return nil, storeError("load config", err)
	}
	return cfg, nil
}

func loadTree(ctx context.Context, tx Tx) (*Tree, error) {
	tree, err := tx.Tree(ctx)
	if err != nil {
		return nil, storeError("load tree", err)
	}
	return tree, nil
}

func requireActive(cfg *Config) error {
	if cfg.Paused {
		return ErrProtocolPaused
	}
	return nil
}

func requireRelayer(cfg *Config, caller Address) error {
	if caller != cfg.Relayer {
		return ErrUnauthorizedRelayer
	}
	return nil
}

func requireAdmin(cfg *Config, caller Address) error {
	if caller != cfg.Admin {
		return ErrUnauthorizedAdmin
	}
	return nil
}
