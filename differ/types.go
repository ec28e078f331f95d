package differ

import "github.com/defistate/defistate-vault-go/engine"

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// StateDiff summarizes the pool changes between two snapshots, FromSequence to
// ToSequence. Pools are never removed from the registry, so a diff only ever
// adds or updates.
type StateDiff struct {
	FromSequence uint64 `json:"fromSequence"`
	ToSequence   uint64 `json:"toSequence"`
	Timestamp    uint64 `json:"timestamp"`

	// Additions are pools registered since the old snapshot.
	Additions []engine.PoolState `json:"additions"`
	// Updates are pools whose balance or share supply changed.
	Updates []engine.PoolState `json:"updates"`
}

// IsEmpty reports whether the diff carries no pool changes.
func (d *StateDiff) IsEmpty() bool {
	return len(d.Additions) == 0 && len(d.Updates) == 0
}
