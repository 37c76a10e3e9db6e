package postgres

import (
	"fmt"
	"strconv"

	"shieldpool/internal/models"
	"shieldpool/internal/pool"

	"github.com/ethereum/go-ethereum/common"
)

func configToModel(cfg *pool.Config) *models.PoolConfig {
	return &models.PoolConfig{
		ID:           models.PoolConfigID,
		Admin:        cfg.Admin.Hex(),
		Relayer:      cfg.Relayer.Hex(),
		FeeRecipient: cfg.FeeRecipient.Hex(),
		FeeBps:       cfg.FeeBps,
		Paused:       cfg.Paused,
	}
}

func configFromModel(m *models.PoolConfig) *pool.Config {
	return &pool.Config{
		Admin:        common.HexToAddress(m.Admin),
		Relayer:      common.HexToAddress(m.Relayer),
		FeeRecipient: common.HexToAddress(m.FeeRecipient),
		FeeBps:       m.FeeBps,
		Paused:       m.Paused,
	}
}

// Counters are stored bit-for-bit in bigint columns so the full uint64
// range round-trips.
func treeToModel(t *pool.Tree) *models.CommitmentTree {
	return &models.CommitmentTree{
		ID:            models.PoolConfigID,
		Authority:     t.Authority.Hex(),
		NextIndex:     int64(t.NextIndex),
		CurrentRoot:   t.CurrentRoot.Hex(),
		HistoryCursor: int64(t.HistoryCursor),
		Height:        t.Height,
	}
}

func treeFromModel(m *models.CommitmentTree, slots []models.RootHistorySlot) (*pool.Tree, error) {
	t := &pool.Tree{
		Authority:     common.HexToAddress(m.Authority),
		NextIndex:     uint64(m.NextIndex),
		CurrentRoot:   common.HexToHash(m.CurrentRoot),
		HistoryCursor: uint64(m.HistoryCursor),
		Height:        m.Height,
	}
	for _, s := range slots {
		if s.Slot < 0 || s.Slot >= pool.RootHistorySize {
			return nil, fmt.Errorf("root history slot %d out of range", s.Slot)
		}
		t.RootHistory[s.Slot] = common.HexToHash(s.Root)
	}
	return t, nil
}

// changedSlots returns the ring slots of next that differ from prev.
func changedSlots(prev, next *[pool.RootHistorySize]pool.Hash) []models.RootHistorySlot {
	var slots []models.RootHistorySlot
	for i := range next {
		if prev == nil || prev[i] != next[i] {
			slots = append(slots, models.RootHistorySlot{Slot: i, Root: next[i].Hex()})
		}
	}
	return slots
}

func commitmentToModel(rec pool.CommitmentRecord) *models.CommitmentRecord {
	return &models.CommitmentRecord{
		LeafIndex:  int64(rec.Index),
		Commitment: rec.Commitment.Hex(),
		CreatedAt:  rec.CreatedAt,
	}
}

func commitmentFromModel(m *models.CommitmentRecord) pool.CommitmentRecord {
	return pool.CommitmentRecord{
		Index:      uint64(m.LeafIndex),
		Commitment: common.HexToHash(m.Commitment),
		CreatedAt:  m.CreatedAt,
	}
}

func parseBalance(s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stored balance %q: %w", s, err)
	}
	return v, nil
}

func formatBalance(v uint64) string {
	return strconv.FormatUint(v, 10)
}
