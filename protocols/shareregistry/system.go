package shareregistry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/defistate/defistate-vault-go/engine"
)

// System provides a concurrency-safe layer over Registry.
// It uses a sync.RWMutex for writes and an atomic.Pointer for lock-free reads of the entry list.
type System struct {
	mu         sync.RWMutex
	registry   *Registry
	cachedView atomic.Pointer[[]Entry]
	onRegister func(Entry)
}

// NewSystem creates an empty, concurrency-safe registry.
func NewSystem() *System {
	s := &System{registry: NewRegistry()}
	s.updateCachedView()
	return s
}

// NewSystemFromEntries restores a system from persisted entries.
func NewSystemFromEntries(entries []Entry) (*System, error) {
	registry, err := NewRegistryFromEntries(entries)
	if err != nil {
		return nil, err
	}
	s := &System{registry: registry}
	s.updateCachedView()
	return s, nil
}

// OnRegister installs a hook called, outside the lock, after every newly added entry.
// It is meant to be set once during wiring.
func (s *System) OnRegister(fn func(Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRegister = fn
}

// updateCachedView MUST be called from within a write lock.
func (s *System) updateCachedView() {
	entries := s.registry.entries()
	s.cachedView.Store(&entries)
}

// Register maps asset to shareAsset. It reports whether a new entry was added.
func (s *System) Register(asset, shareAsset engine.AssetID) (bool, error) {
	s.mu.Lock()
	added, err := s.registry.register(asset, shareAsset)
	if err != nil {
		s.mu.Unlock()
		return false, fmt.Errorf("register %d -> %d: %w", asset, shareAsset, err)
	}
	if added {
		s.updateCachedView()
	}
	hook := s.onRegister
	s.mu.Unlock()

	if added && hook != nil {
		hook(Entry{Asset: asset, ShareAsset: shareAsset})
	}
	return added, nil
}

// ShareAssetOf returns the share asset of asset, or engine.ErrNotRegistered.
func (s *System) ShareAssetOf(asset engine.AssetID) (engine.AssetID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	share, ok := s.registry.shareAssetOf(asset)
	if !ok {
		return 0, fmt.Errorf("asset %d: %w", asset, engine.ErrNotRegistered)
	}
	return share, nil
}

// Len returns the number of registered assets.
func (s *System) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.registry.len()
}

// Entries returns a copy of every entry, sorted by asset id, without taking the lock.
func (s *System) Entries() []Entry {
	cached := s.cachedView.Load()
	if cached == nil {
		return []Entry{}
	}
	out := make([]Entry, len(*cached))
	copy(out, *cached)
	return out
}
