package events

import (
	"encoding/json"
	"fmt"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// Kind names an event type on the wire and in the journal.
type Kind string

const (
	KindRegistered Kind = "registered"
	KindDeposited  Kind = "deposited"
	KindWithdrawn  Kind = "withdrawn"
	KindBorrowed   Kind = "borrowed"
	KindLiquidated Kind = "liquidated"
)

// Event is implemented by every payload the engine emits.
type Event interface {
	Kind() Kind
}

// Registered is emitted when an asset gets its share asset.
type Registered struct {
	Asset      engine.AssetID `json:"asset"`
	ShareAsset engine.AssetID `json:"shareAsset"`
}

// Deposited is emitted after a deposit commits.
type Deposited struct {
	Account common.Address `json:"account"`
	Asset   engine.AssetID `json:"asset"`
	Amount  *uint256.Int   `json:"amount"`
	Minted  *uint256.Int   `json:"minted"`
}

// Withdrawn is emitted after a withdrawal commits.
type Withdrawn struct {
	Account     common.Address `json:"account"`
	Asset       engine.AssetID `json:"asset"`
	ShareAmount *uint256.Int   `json:"shareAmount"`
	Payout      *uint256.Int   `json:"payout"`
}

// Borrowed is emitted after a standalone borrow commits. Borrows made inside a
// liquidation are reported by Liquidated.
type Borrowed struct {
	Asset  engine.AssetID `json:"asset"`
	Amount *uint256.Int   `json:"amount"`
}

// Liquidated is emitted after a liquidation commits.
type Liquidated struct {
	ID           uuid.UUID      `json:"id"`
	TargetUser   common.Address `json:"targetUser"`
	PayAsset     engine.AssetID `json:"payAsset"`
	PayAmount    *uint256.Int   `json:"payAmount"`
	GetAsset     engine.AssetID `json:"getAsset"`
	GetAmount    *uint256.Int   `json:"getAmount"`
	BorrowAmount *uint256.Int   `json:"borrowAmount"`
}

func (Registered) Kind() Kind { return KindRegistered }
func (Deposited) Kind() Kind  { return KindDeposited }
func (Withdrawn) Kind() Kind  { return KindWithdrawn }
func (Borrowed) Kind() Kind   { return KindBorrowed }
func (Liquidated) Kind() Kind { return KindLiquidated }

// Record is an event stamped by the bus.
type Record struct {
	Seq       uint64 `json:"seq"`
	Timestamp int64  `json:"timestamp"` // unix nanoseconds
	Event     Event  `json:"-"`
}

// recordJSON is the wire form of a Record: the payload travels as raw bytes next
// to its kind so that it can be decoded into the concrete type.
type recordJSON struct {
	Seq       uint64          `json:"seq"`
	Timestamp int64           `json:"timestamp"`
	Kind      Kind            `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
}

func (r Record) MarshalJSON() ([]byte, error) {
	if r.Event == nil {
		return nil, fmt.Errorf("record %d has no event", r.Seq)
	}
	payload, err := json.Marshal(r.Event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recordJSON{
		Seq:       r.Seq,
		Timestamp: r.Timestamp,
		Kind:      r.Event.Kind(),
		Payload:   payload,
	})
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	ev, err := DecodeEvent(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}
	r.Seq = raw.Seq
	r.Timestamp = raw.Timestamp
	r.Event = ev
	return nil
}

// DecodeEvent decodes a payload of the given kind into its concrete type.
func DecodeEvent(kind Kind, payload []byte) (Event, error) {
	switch kind {
	case KindRegistered:
		var ev Registered
		err := json.Unmarshal(payload, &ev)
		return ev, err
	case KindDeposited:
		var ev Deposited
		err := json.Unmarshal(payload, &ev)
		return ev, err
	case KindWithdrawn:
		var ev Withdrawn
		err := json.Unmarshal(payload, &ev)
		return ev, err
	case KindBorrowed:
		var ev Borrowed
		err := json.Unmarshal(payload, &ev)
		return ev, err
	case KindLiquidated:
		var ev Liquidated
		err := json.Unmarshal(payload, &ev)
		return ev, err
	default:
		return nil, fmt.Errorf("unknown event kind %q", kind)
	}
}
