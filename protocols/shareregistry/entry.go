package shareregistry

import "github.com/defistate/defistate-vault-go/engine"

// Entry binds an underlying asset to the share asset minted against its pool.
type Entry struct {
	Asset      engine.AssetID `json:"asset"`
	ShareAsset engine.AssetID `json:"shareAsset"`
}
