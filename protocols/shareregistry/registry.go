package shareregistry

import (
	"fmt"
	"sort"

	"github.com/defistate/defistate-vault-go/engine"
)

// Registry is a simple, non-thread-safe store of asset -> share asset mappings.
// Both directions are indexed so that a share asset can never back two pools.
type Registry struct {
	byAsset      map[engine.AssetID]engine.AssetID
	byShareAsset map[engine.AssetID]engine.AssetID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAsset:      make(map[engine.AssetID]engine.AssetID),
		byShareAsset: make(map[engine.AssetID]engine.AssetID),
	}
}

// NewRegistryFromEntries rebuilds a registry from a snapshot, applying the same
// validation as register.
func NewRegistryFromEntries(entries []Entry) (*Registry, error) {
	r := NewRegistry()
	for _, e := range entries {
		if _, err := r.register(e.Asset, e.ShareAsset); err != nil {
			return nil, fmt.Errorf("entry %d -> %d: %w", e.Asset, e.ShareAsset, err)
		}
	}
	return r, nil
}

// register records the mapping. It reports whether a new entry was added;
// re-registering the identical pair is a no-op.
func (r *Registry) register(asset, shareAsset engine.AssetID) (bool, error) {
	if asset == shareAsset {
		return false, engine.ErrShareAssetInUse
	}
	if existing, ok := r.byAsset[asset]; ok {
		if existing == shareAsset {
			return false, nil
		}
		return false, engine.ErrAlreadyRegistered
	}
	if _, ok := r.byShareAsset[shareAsset]; ok {
		return false, engine.ErrShareAssetInUse
	}
	// an underlying asset may not itself be somebody's share asset, and vice versa
	if _, ok := r.byAsset[shareAsset]; ok {
		return false, engine.ErrShareAssetInUse
	}
	if _, ok := r.byShareAsset[asset]; ok {
		return false, engine.ErrShareAssetInUse
	}

	r.byAsset[asset] = shareAsset
	r.byShareAsset[shareAsset] = asset
	return true, nil
}

func (r *Registry) shareAssetOf(asset engine.AssetID) (engine.AssetID, bool) {
	s, ok := r.byAsset[asset]
	return s, ok
}

func (r *Registry) len() int {
	return len(r.byAsset)
}

// entries returns all mappings sorted by underlying asset id.
func (r *Registry) entries() []Entry {
	out := make([]Entry, 0, len(r.byAsset))
	for asset, share := range r.byAsset {
		out = append(out, Entry{Asset: asset, ShareAsset: share})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}
