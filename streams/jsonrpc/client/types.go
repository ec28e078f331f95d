package client

import (
	"encoding/json"

	"github.com/defistate/defistate-vault-go/differ"
	"github.com/defistate/defistate-vault-go/engine"
)

const (
	EventTypeFull = "full"
	EventTypeDiff = "diff"
)

// SubscriptionEvent is the wrapper object received from the server.
type SubscriptionEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	SentAt  int64           `json:"sentAt"`
}

// StatePatcherFunc applies a diff to a previous state and returns the new state.
// It must not mutate prevState.
type StatePatcherFunc func(prevState *engine.State, diff *differ.StateDiff) (newState *engine.State, err error)
