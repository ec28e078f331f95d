package server

import (
	"errors"
	"sync"
	"time"

	"github.com/defistate/defistate-vault-go/differ"
	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/events"
)

const (
	EventTypeFull = "full"
	EventTypeDiff = "diff"
)

// SubscriptionEvent is the wrapper object pushed to stream subscribers.
type SubscriptionEvent struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	SentAt  int64  `json:"sentAt"`
}

// StateSource snapshots the pools being streamed.
type StateSource interface {
	State() (*engine.State, error)
}

// Differ computes the changes between two snapshots.
type Differ interface {
	Diff(old, new *engine.State) (*differ.StateDiff, error)
}

// BroadcasterConfig holds the dependencies of a Broadcaster.
type BroadcasterConfig struct {
	Source StateSource
	Differ Differ
	// StartSequence is the sequence of the last event already applied to Source.
	StartSequence uint64
	// BufferSize is the per-subscriber queue length.
	BufferSize uint
	Logger     Logger
}

func (c *BroadcasterConfig) validate() error {
	if c.Source == nil {
		return errors.New("config: Source is required")
	}
	if c.Differ == nil {
		return errors.New("config: Differ is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

type subscriber struct {
	ch chan *SubscriptionEvent
	// resync is set when an event was dropped; the next event is a full snapshot.
	resync bool
}

// Broadcaster turns the event stream into snapshot diffs and fans them out to
// subscribers. Each subscriber first receives a full snapshot, then diffs.
type Broadcaster struct {
	mu          sync.Mutex
	source      StateSource
	differ      Differ
	last        *engine.State
	subscribers map[uint64]*subscriber
	nextID      uint64
	bufferSize  uint
	logger      Logger
}

// NewBroadcaster takes the initial snapshot and returns a Broadcaster ready to
// be subscribed to the event bus with Handle.
func NewBroadcaster(cfg *BroadcasterConfig) (*Broadcaster, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	initial, err := cfg.Source.State()
	if err != nil {
		return nil, err
	}
	initial.Sequence = cfg.StartSequence
	return &Broadcaster{
		source:      cfg.Source,
		differ:      cfg.Differ,
		last:        initial,
		subscribers: make(map[uint64]*subscriber),
		bufferSize:  cfg.BufferSize,
		logger:      cfg.Logger,
	}, nil
}

// Handle implements events.Handler. Emitters call it from the ledger's commit
// hook, so the snapshot it takes holds exactly the transitions up to rec.
func (b *Broadcaster) Handle(rec events.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	next, err := b.source.State()
	if err != nil {
		b.logger.Error("failed to snapshot state", "seq", rec.Seq, "error", err)
		return
	}
	next.Sequence = rec.Seq

	diff, err := b.differ.Diff(b.last, next)
	if err != nil {
		b.logger.Error("failed to diff state", "seq", rec.Seq, "error", err)
		return
	}
	b.last = next

	now := time.Now().UnixNano()
	diffEvent := &SubscriptionEvent{Type: EventTypeDiff, Payload: diff, SentAt: now}
	for id, sub := range b.subscribers {
		ev := diffEvent
		if sub.resync {
			ev = &SubscriptionEvent{Type: EventTypeFull, Payload: next.Clone(), SentAt: now}
		}
		select {
		case sub.ch <- ev:
			sub.resync = false
		default:
			sub.resync = true
			b.logger.Warn("subscriber queue full, dropping event", "subscriber", id, "seq", rec.Seq)
		}
	}
}

// Subscribe registers a subscriber. Its channel starts with a full snapshot.
func (b *Broadcaster) Subscribe() (<-chan *SubscriptionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{ch: make(chan *SubscriptionEvent, b.bufferSize)}
	sub.ch <- &SubscriptionEvent{Type: EventTypeFull, Payload: b.last.Clone(), SentAt: time.Now().UnixNano()}

	id := b.nextID
	b.nextID++
	b.subscribers[id] = sub
	b.logger.Debug("stream subscriber added", "subscriber", id, "subscribers", len(b.subscribers))

	return sub.ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subscribers, id)
	}
}

// Snapshot returns a copy of the last broadcast state.
func (b *Broadcaster) Snapshot() *engine.State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last.Clone()
}
