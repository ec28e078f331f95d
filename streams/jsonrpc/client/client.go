package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defistate/defistate-vault-go/differ"
	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/patcher"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second

	// RpcNamespace is the namespace under which the vault API is registered.
	RpcNamespace                  = "vault"
	StateStreamSubscriptionMethod = "subscribeStateStream"
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the client.
type Config struct {
	URL        string
	Logger     Logger
	BufferSize uint
	// StatePatcher defaults to patcher.Patch.
	StatePatcher StatePatcherFunc
}

func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.BufferSize < 1 {
		return errors.New("config: BufferSize must be greater than 0")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// -----------------------------------------------------------------------------
// StreamProcessor
// -----------------------------------------------------------------------------

// StreamProcessor rebuilds the pool state from a stream of full snapshots and
// diffs. It knows nothing about the transport the messages arrive on.
type StreamProcessor struct {
	lastState    *engine.State
	statePatcher StatePatcherFunc
	stateCh      chan *engine.State
	logger       Logger
}

// NewStreamProcessor creates a processor. A nil statePatcher means patcher.Patch.
func NewStreamProcessor(logger Logger, bufferSize uint, statePatcher StatePatcherFunc) *StreamProcessor {
	if statePatcher == nil {
		statePatcher = patcher.Patch
	}
	return &StreamProcessor{
		logger:       logger,
		stateCh:      make(chan *engine.State, bufferSize),
		statePatcher: statePatcher,
	}
}

// State returns a read-only channel for receiving new states.
func (sp *StreamProcessor) State() <-chan *engine.State {
	return sp.stateCh
}

// ProcessMessage decodes one subscription event and publishes the resulting state.
func (sp *StreamProcessor) ProcessMessage(rawData json.RawMessage) error {
	start := time.Now()
	var event SubscriptionEvent
	if err := json.Unmarshal(rawData, &event); err != nil {
		return fmt.Errorf("failed to unmarshal subscription event: %w", err)
	}

	switch event.Type {
	case EventTypeFull:
		return sp.handleFullState(event, start)
	case EventTypeDiff:
		return sp.handleDiff(event, start)
	default:
		return fmt.Errorf("received unknown event type: %s", event.Type)
	}
}

func (sp *StreamProcessor) handleFullState(event SubscriptionEvent, start time.Time) error {
	var state engine.State
	if err := json.Unmarshal(event.Payload, &state); err != nil {
		return fmt.Errorf("failed to unmarshal full state payload: %w", err)
	}
	if state.Pools == nil {
		state.Pools = map[engine.AssetID]engine.PoolState{}
	}

	sp.logMetrics(&state, time.Since(start), event.SentAt, EventTypeFull)
	sp.publish(&state)
	return nil
}

func (sp *StreamProcessor) handleDiff(event SubscriptionEvent, start time.Time) error {
	var diff differ.StateDiff
	if err := json.Unmarshal(event.Payload, &diff); err != nil {
		return fmt.Errorf("failed to unmarshal diff payload: %w", err)
	}

	if sp.lastState == nil {
		return fmt.Errorf("received diff before full state; from_sequence: %d, to_sequence: %d", diff.FromSequence, diff.ToSequence)
	}

	if diff.FromSequence != sp.lastState.Sequence {
		// the server follows a gap with a full snapshot
		sp.logger.Warn(
			"Received out-of-order diff; discarding until next full state.",
			"last_known_sequence", sp.lastState.Sequence,
			"diff_from_sequence", diff.FromSequence,
			"diff_to_sequence", diff.ToSequence,
		)
		return nil
	}

	newState, err := sp.statePatcher(sp.lastState, &diff)
	if err != nil {
		return fmt.Errorf("failed to patch state: %w", err)
	}

	sp.logMetrics(newState, time.Since(start), event.SentAt, EventTypeDiff)
	sp.publish(newState)
	return nil
}

func (sp *StreamProcessor) publish(state *engine.State) {
	sp.lastState = state
	sp.stateCh <- state
}

func (sp *StreamProcessor) logMetrics(state *engine.State, processingDur time.Duration, sentAt int64, stateType string) {
	clientFinishTime := time.Now()
	clientStartTime := clientFinishTime.Add(-processingDur)
	transportTime := clientStartTime.Sub(time.Unix(0, sentAt))
	totalLatency := clientFinishTime.Sub(time.Unix(0, int64(state.Timestamp)))

	sp.logger.Debug("State Processed",
		"sequence", state.Sequence,
		"type", stateType,
		"pools", len(state.Pools),
		"latency_total_ms", totalLatency.Milliseconds(),
		"latency_transport_ms", transportTime.Milliseconds(),
		"latency_proc_ms", processingDur.Milliseconds(),
	)
}

// -----------------------------------------------------------------------------
// Client (Networking Wrapper)
// -----------------------------------------------------------------------------

// Client keeps a subscription to the vault state stream alive and feeds it to
// a StreamProcessor.
type Client struct {
	processor *StreamProcessor
	errCh     chan error
	logger    Logger
}

// NewClient starts streaming in the background until ctx is canceled.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	client := &Client{
		processor: NewStreamProcessor(cfg.Logger, cfg.BufferSize, cfg.StatePatcher),
		errCh:     make(chan error, 1),
		logger:    cfg.Logger,
	}

	go client.run(ctx, cfg.URL)
	return client, nil
}

// State delegates to the processor's state channel.
func (c *Client) State() <-chan *engine.State {
	return c.processor.State()
}

// Err is closed when the client stops.
func (c *Client) Err() <-chan error {
	return c.errCh
}

func (c *Client) run(ctx context.Context, url string) {
	defer close(c.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			c.logger.Info("Client context canceled, shutting down.")
			return
		}

		c.logger.Info("Attempting to connect to RPC server", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			c.logger.Error("Failed to connect to RPC server, will retry...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		c.logger.Info("Successfully connected to RPC server.")
		reconnectDelay = initialReconnectDelay

		err = c.subscribeAndProcess(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.logger.Info("Context canceled, shutting down.")
				return
			}
			c.logger.Error("Subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			if !sleep(ctx, reconnectDelay) {
				return
			}
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (c *Client) subscribeAndProcess(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	rawCh := make(chan json.RawMessage)
	sub, err := rpcClient.Subscribe(ctx, RpcNamespace, rawCh, StateStreamSubscriptionMethod)
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	c.logger.Info("Successfully subscribed. Waiting for data...")
	for {
		select {
		case rawData := <-rawCh:
			if err := c.processor.ProcessMessage(rawData); err != nil {
				c.logger.Error("Error processing message", "error", err)
			}
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			c.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
