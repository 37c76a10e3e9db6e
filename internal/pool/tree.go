package pool

import "math"

// Tree is the on-pool view of the commitment accumulator. The full Merkle
// tree lives with the relayer; the pool keeps the leaf counter, the current
// root and a ring of the last RootHistorySize roots.
type Tree struct {
	Authority     Address               `json:"authority"`
	NextIndex     uint64                `json:"next_index"`
	CurrentRoot   Hash                  `json:"current_root"`
	RootHistory   [RootHistorySize]Hash `json:"root_history"`
	HistoryCursor uint64                `json:"history_cursor"`
	Height        uint8                 `json:"height"`
}

// NewTree returns an empty tree with a zero root and zeroed history.
func NewTree(authority Address, height uint8) *Tree {
	return &Tree{
		Authority: authority,
		Height:    height,
	}
}

// Capacity is the number of leaves the tree can hold.
func (t *Tree) Capacity() uint64 {
	if t.Height >= 64 {
		return math.MaxUint64
	}
	return uint64(1) << t.Height
}

func (t *Tree) IsFull() bool {
	return t.NextIndex >= t.Capacity()
}

// AllocateLeaf reserves the next leaf for commitment and returns its index.
func (t *Tree) AllocateLeaf(commitment Hash) (uint64, error) {
	if t.IsFull() {
		return 0, ErrTreeFull
	}
	if commitment == ZeroHash {
		return 0, ErrInvalidCommitment
	}
	index := t.NextIndex
	next, err := checkedAdd(index, 1)
	if err != nil {
		return 0, err
	}
	t.NextIndex = next
	return index, nil
}

// UpdateRoot pushes the current root into the history ring and installs
// newRoot. It returns the advanced cursor.
func (t *Tree) UpdateRoot(newRoot Hash) uint64 {
	t.RootHistory[t.HistoryCursor%RootHistorySize] = t.CurrentRoot
	t.HistoryCursor++ // wraps
	t.CurrentRoot = newRoot
	return t.HistoryCursor
}

// IsKnownRoot reports whether candidate is the current root or one of the
// roots still held in the history ring.
func (t *Tree) IsKnownRoot(candidate Hash) bool {
	if candidate == t.CurrentRoot {
		return true
	}
	for i := range t.RootHistory {
		if t.RootHistory[i] == candidate {
			return true
		}
	}
	return false
}

// Clone returns an independent copy.
func (t *Tree) Clone() *Tree {
	c := *t
	return &c
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}
