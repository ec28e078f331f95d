package engine

import (
	"sort"

	"github.com/holiman/uint256"
)

// AssetID identifies a fungible asset held in the ledger. Underlying assets and
// share assets live in the same id space.
type AssetID uint64

// PoolState is the derived economic state of one pool. It is never stored: the
// vault computes it from the ledger whenever it is asked for it.
type PoolState struct {
	Asset      AssetID `json:"asset"`
	ShareAsset AssetID `json:"shareAsset"`

	// Balance is the vault account's balance of Asset.
	Balance *uint256.Int `json:"balance"`
	// TotalShares is the outstanding supply of ShareAsset.
	TotalShares *uint256.Int `json:"totalShares"`
}

// HasShares reports whether the pool has an exchange rate, i.e. outstanding shares.
func (p PoolState) HasShares() bool {
	return p.TotalShares != nil && !p.TotalShares.IsZero()
}

// Equal compares two pool states by value.
func (p PoolState) Equal(o PoolState) bool {
	return p.Asset == o.Asset &&
		p.ShareAsset == o.ShareAsset &&
		equalAmount(p.Balance, o.Balance) &&
		equalAmount(p.TotalShares, o.TotalShares)
}

// Clone returns a copy of the pool that shares no memory with p.
func (p PoolState) Clone() PoolState {
	c := p
	if p.Balance != nil {
		c.Balance = p.Balance.Clone()
	}
	if p.TotalShares != nil {
		c.TotalShares = p.TotalShares.Clone()
	}
	return c
}

func equalAmount(a, b *uint256.Int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Eq(b)
}

// State is a snapshot of every registered pool, stamped with the sequence number
// of the last event applied before it was taken.
type State struct {
	Sequence  uint64                `json:"sequence"`
	Timestamp uint64                `json:"timestamp"`
	Pools     map[AssetID]PoolState `json:"pools"`
}

// Clone returns a deep copy of the state.
func (s *State) Clone() *State {
	pools := make(map[AssetID]PoolState, len(s.Pools))
	for id, p := range s.Pools {
		pools[id] = p.Clone()
	}
	return &State{
		Sequence:  s.Sequence,
		Timestamp: s.Timestamp,
		Pools:     pools,
	}
}

// SortedPools returns the pools ordered by asset id.
func (s *State) SortedPools() []PoolState {
	pools := make([]PoolState, 0, len(s.Pools))
	for _, p := range s.Pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].Asset < pools[j].Asset })
	return pools
}
