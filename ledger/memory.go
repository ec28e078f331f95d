package ledger

import (
	"fmt"
	"sync"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

type balanceKey struct {
	asset   engine.AssetID
	account common.Address
}

// MemoryStore is an in-memory, transactional Store. Committed balances are only
// ever replaced wholesale, so pointers handed to a staged transaction are never
// mutated in place.
type MemoryStore struct {
	// commitMu orders commits together with their after hooks.
	commitMu sync.Mutex
	mu       sync.RWMutex
	balances map[balanceKey]*uint256.Int
	supply   map[engine.AssetID]*uint256.Int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[balanceKey]*uint256.Int),
		supply:   make(map[engine.AssetID]*uint256.Int),
	}
}

// NewMemoryStoreWithAllocations creates a store and mints every allocation in a
// single transaction.
func NewMemoryStoreWithAllocations(allocs []Allocation) (*MemoryStore, error) {
	s := NewMemoryStore()
	err := s.Update(func(l Ledger) error {
		for i, a := range allocs {
			if a.Amount == nil {
				return fmt.Errorf("allocation %d: nil amount", i)
			}
			if err := l.Mint(a.Asset, a.Account, a.Amount); err != nil {
				return fmt.Errorf("allocation %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// View runs fn against the committed ledger under a read lock.
func (s *MemoryStore) View(fn func(r Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(&committedReader{s: s})
}

// Update runs fn against a staged transaction and commits it if fn succeeds.
func (s *MemoryStore) Update(fn func(l Ledger) error) error {
	return s.Commit(fn, nil)
}

// Commit runs fn like Update. When fn succeeds, after runs with the write lock
// released but before the next transaction may begin.
func (s *MemoryStore) Commit(fn func(l Ledger) error, after func()) error {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	if err := s.apply(fn); err != nil {
		return err
	}
	if after != nil {
		after()
	}
	return nil
}

func (s *MemoryStore) apply(fn func(l Ledger) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := newTx(s)
	if err := fn(t); err != nil {
		return err
	}
	t.commit()
	return nil
}

func (s *MemoryStore) balance(k balanceKey) *uint256.Int {
	if b, ok := s.balances[k]; ok {
		return b
	}
	return nil
}

func (s *MemoryStore) totalSupply(asset engine.AssetID) *uint256.Int {
	if v, ok := s.supply[asset]; ok {
		return v
	}
	return nil
}

type committedReader struct {
	s *MemoryStore
}

func (r *committedReader) Balance(asset engine.AssetID, account common.Address) *uint256.Int {
	return cloneOrZero(r.s.balance(balanceKey{asset, account}))
}

func (r *committedReader) TotalSupply(asset engine.AssetID) *uint256.Int {
	return cloneOrZero(r.s.totalSupply(asset))
}

// tx stages writes on top of the committed store.
type tx struct {
	base     *MemoryStore
	balances map[balanceKey]*uint256.Int
	supply   map[engine.AssetID]*uint256.Int
}

func newTx(base *MemoryStore) *tx {
	return &tx{
		base:     base,
		balances: make(map[balanceKey]*uint256.Int),
		supply:   make(map[engine.AssetID]*uint256.Int),
	}
}

func (t *tx) balance(k balanceKey) *uint256.Int {
	if b, ok := t.balances[k]; ok {
		return b
	}
	if b := t.base.balance(k); b != nil {
		return b
	}
	return new(uint256.Int)
}

func (t *tx) totalSupply(asset engine.AssetID) *uint256.Int {
	if v, ok := t.supply[asset]; ok {
		return v
	}
	if v := t.base.totalSupply(asset); v != nil {
		return v
	}
	return new(uint256.Int)
}

func (t *tx) Balance(asset engine.AssetID, account common.Address) *uint256.Int {
	return t.balance(balanceKey{asset, account}).Clone()
}

func (t *tx) TotalSupply(asset engine.AssetID) *uint256.Int {
	return t.totalSupply(asset).Clone()
}

func (t *tx) Transfer(asset engine.AssetID, from, to common.Address, amount *uint256.Int) error {
	fromKey := balanceKey{asset, from}
	fromBalance := t.balance(fromKey)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("transfer of asset %d from %s: %w", asset, from, engine.ErrInsufficientBalance)
	}
	if from == to {
		return nil
	}

	toKey := balanceKey{asset, to}
	credited, overflow := new(uint256.Int).AddOverflow(t.balance(toKey), amount)
	if overflow {
		return fmt.Errorf("transfer of asset %d to %s: %w", asset, to, engine.ErrOverflow)
	}

	t.balances[fromKey] = new(uint256.Int).Sub(fromBalance, amount)
	t.balances[toKey] = credited
	return nil
}

func (t *tx) Mint(asset engine.AssetID, to common.Address, amount *uint256.Int) error {
	supply, overflow := new(uint256.Int).AddOverflow(t.totalSupply(asset), amount)
	if overflow {
		return fmt.Errorf("mint of asset %d: %w", asset, engine.ErrOverflow)
	}
	// balance <= supply, so the balance credit cannot overflow once the supply did not.
	toKey := balanceKey{asset, to}
	t.balances[toKey] = new(uint256.Int).Add(t.balance(toKey), amount)
	t.supply[asset] = supply
	return nil
}

func (t *tx) Burn(asset engine.AssetID, from common.Address, amount *uint256.Int) error {
	fromKey := balanceKey{asset, from}
	fromBalance := t.balance(fromKey)
	if fromBalance.Lt(amount) {
		return fmt.Errorf("burn of asset %d from %s: %w", asset, from, engine.ErrInsufficientBalance)
	}
	t.balances[fromKey] = new(uint256.Int).Sub(fromBalance, amount)
	t.supply[asset] = new(uint256.Int).Sub(t.totalSupply(asset), amount)
	return nil
}

// commit moves every staged value into the base store. Must be called with the
// base write lock held.
func (t *tx) commit() {
	for k, v := range t.balances {
		if v.IsZero() {
			delete(t.base.balances, k)
			continue
		}
		t.base.balances[k] = v
	}
	for k, v := range t.supply {
		if v.IsZero() {
			delete(t.base.supply, k)
			continue
		}
		t.base.supply[k] = v
	}
}

func cloneOrZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v.Clone()
}
