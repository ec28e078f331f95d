package patcher

import (
	"fmt"

	"github.com/defistate/defistate-vault-go/differ"
	"github.com/defistate/defistate-vault-go/engine"
)

// Patch creates a new State by applying diff to oldState.
//
// CONTRACT:
//  1. Immutability: oldState is never mutated. Pools the diff does not touch are
//     shared by value with oldState; touched pools are copied from the diff.
//  2. Integrity: diff must start where oldState ends (FromSequence == Sequence).
func Patch(oldState *engine.State, diff *differ.StateDiff) (*engine.State, error) {
	if oldState == nil || diff == nil {
		return nil, fmt.Errorf("patcher: nil state or diff")
	}

	// 1. Integrity Check
	if oldState.Sequence != diff.FromSequence {
		return nil, fmt.Errorf("patcher: mismatch fromSequence (state=%d, diff=%d)", oldState.Sequence, diff.FromSequence)
	}

	// 2. Start from a shallow copy of the old map.
	pools := make(map[engine.AssetID]engine.PoolState, len(oldState.Pools)+len(diff.Additions))
	for k, v := range oldState.Pools {
		pools[k] = v
	}

	// 3. Apply Diffs
	for _, p := range diff.Additions {
		if _, exists := pools[p.Asset]; exists {
			return nil, fmt.Errorf("patcher: pool %d added twice", p.Asset)
		}
		pools[p.Asset] = p.Clone()
	}
	for _, p := range diff.Updates {
		prev, exists := pools[p.Asset]
		if !exists {
			return nil, fmt.Errorf("patcher: update for unknown pool %d", p.Asset)
		}
		if prev.ShareAsset != p.ShareAsset {
			return nil, fmt.Errorf("patcher: share asset mismatch for pool %d (old=%d, diff=%d)", p.Asset, prev.ShareAsset, p.ShareAsset)
		}
		pools[p.Asset] = p.Clone()
	}

	return &engine.State{
		Sequence:  diff.ToSequence,
		Timestamp: diff.Timestamp,
		Pools:     pools,
	}, nil
}
