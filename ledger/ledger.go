package ledger

import (
	"github.com/defistate/defistate-vault-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Reader is the read half of the asset ledger. Returned amounts are copies the
// caller may modify.
type Reader interface {
	Balance(asset engine.AssetID, account common.Address) *uint256.Int
	TotalSupply(asset engine.AssetID) *uint256.Int
}

// Ledger is the asset ledger collaborator the vault moves funds through.
//
// Transfer and Burn fail with engine.ErrInsufficientBalance when the debited
// account lacks funds. Mint and Transfer fail with engine.ErrOverflow when a
// credit would not fit in 256 bits.
type Ledger interface {
	Reader
	Transfer(asset engine.AssetID, from, to common.Address, amount *uint256.Int) error
	Mint(asset engine.AssetID, to common.Address, amount *uint256.Int) error
	Burn(asset engine.AssetID, from common.Address, amount *uint256.Int) error
}

// Store serializes ledger access.
//
// CONTRACT:
//  1. Update runs fn against a staged view of the ledger. The staged writes are
//     committed only if fn returns nil; any error (or panic) discards all of them.
//  2. Update calls are serialized: fn observes a consistent snapshot and no other
//     Update or View interleaves with it.
//  3. fn must not call back into the same Store.
//  4. Commit behaves like Update and then runs after, once fn's writes are
//     committed, before any later Update or Commit can start. after may View the
//     store but must not Update it.
type Store interface {
	View(fn func(r Reader) error) error
	Update(fn func(l Ledger) error) error
	Commit(fn func(l Ledger) error, after func()) error
}

// Allocation is an initial balance credited when a ledger is seeded.
type Allocation struct {
	Asset   engine.AssetID
	Account common.Address
	Amount  *uint256.Int
}
