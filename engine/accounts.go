package engine

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ModuleID is the fixed 8-byte identifier a sovereign account is derived from.
type ModuleID [8]byte

var (
	// VaultModuleID owns the pooled collateral.
	VaultModuleID = ModuleID{'p', 'y', '/', 'v', 'a', 'u', 'l', 't'}
	// LiquidatorModuleID is the only identity allowed to borrow from the vault.
	LiquidatorModuleID = ModuleID{'p', 'y', '/', 'l', 'i', 'q', 'd', 'r'}

	sovereignPrefix = []byte("modl")
)

// ParseModuleID converts a string of at most 8 bytes into a ModuleID, zero padded.
func ParseModuleID(s string) (ModuleID, error) {
	var id ModuleID
	if len(s) == 0 || len(s) > len(id) {
		return id, fmt.Errorf("module id %q must be 1-%d bytes", s, len(id))
	}
	copy(id[:], s)
	return id, nil
}

func (id ModuleID) String() string {
	n := len(id)
	for n > 0 && id[n-1] == 0 {
		n--
	}
	return string(id[:n])
}

// SovereignAccount derives the keyless account owned by a module:
// the last 20 bytes of keccak256("modl" || id).
func SovereignAccount(id ModuleID) common.Address {
	return common.BytesToAddress(crypto.Keccak256(sovereignPrefix, id[:]))
}

// SovereignAccounts names the two module identities of a deployment. The
// addresses are derived on every call and never cached.
type SovereignAccounts struct {
	VaultID      ModuleID
	LiquidatorID ModuleID
}

// DefaultSovereignAccounts returns the default deployment identities.
func DefaultSovereignAccounts() SovereignAccounts {
	return SovereignAccounts{
		VaultID:      VaultModuleID,
		LiquidatorID: LiquidatorModuleID,
	}
}

// Vault returns the account holding pooled collateral.
func (s SovereignAccounts) Vault() common.Address {
	return SovereignAccount(s.VaultID)
}

// Liquidator returns the account authorized to borrow from the vault.
func (s SovereignAccounts) Liquidator() common.Address {
	return SovereignAccount(s.LiquidatorID)
}

// IsSovereign reports whether account is one of the module accounts.
func (s SovereignAccounts) IsSovereign(account common.Address) bool {
	return account == s.Vault() || account == s.Liquidator()
}
