package storage

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/defistate/defistate-vault-go/engine"
	"github.com/defistate/defistate-vault-go/events"
	"github.com/defistate/defistate-vault-go/protocols/shareregistry"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*EventStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "vault.db")
	store, err := NewEventStore(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, dbPath
}

func TestEventStore_SaveAndLoad(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	account := common.HexToAddress("0x00000000000000000000000000000000000a11ce")

	records := []events.Record{
		{Seq: 1, Timestamp: 1000, Event: events.Registered{Asset: 1, ShareAsset: 101}},
		{Seq: 2, Timestamp: 2000, Event: events.Deposited{Account: account, Asset: 1, Amount: uint256.NewInt(100), Minted: uint256.NewInt(100)}},
		{Seq: 3, Timestamp: 3000, Event: events.Liquidated{
			ID:         uuid.New(),
			TargetUser: account,
			PayAsset:   1,
			PayAmount:  uint256.NewInt(10),
			GetAsset:   2,
			GetAmount:  uint256.NewInt(21),
		}},
	}
	for _, rec := range records {
		require.NoError(t, store.SaveEvent(ctx, rec))
	}

	loaded, err := store.LoadEvents(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, records, loaded)

	tail, err := store.LoadEvents(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, events.KindLiquidated, tail[0].Event.Kind())

	t.Run("Duplicate sequence is rejected", func(t *testing.T) {
		err := store.SaveEvent(ctx, records[0])
		assert.Error(t, err)
	})
}

func TestEventStore_LastSeq(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	seq, err := store.LastSeq(ctx)
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, store.SaveEvent(ctx, events.Record{Seq: 7, Timestamp: 1, Event: events.Registered{Asset: 1, ShareAsset: 101}}))
	seq, err = store.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seq)
}

func TestEventStore_Registrations(t *testing.T) {
	store, dbPath := newTestStore(t)
	ctx := context.Background()

	entries, err := store.LoadRegistrations(ctx)
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)

	require.NoError(t, store.SaveRegistration(ctx, shareregistry.Entry{Asset: 2, ShareAsset: 102}))
	require.NoError(t, store.SaveRegistration(ctx, shareregistry.Entry{Asset: 2, ShareAsset: 102}))
	require.NoError(t, store.SaveEvent(ctx, events.Record{Seq: 1, Timestamp: 1, Event: events.Registered{Asset: 1, ShareAsset: 101}}))

	t.Run("Survives reopening", func(t *testing.T) {
		require.NoError(t, store.Close())
		reopened, err := NewEventStore(dbPath)
		require.NoError(t, err)
		defer reopened.Close()

		entries, err := reopened.LoadRegistrations(ctx)
		require.NoError(t, err)
		assert.Equal(t, []shareregistry.Entry{
			{Asset: 1, ShareAsset: 101},
			{Asset: 2, ShareAsset: 102},
		}, entries)

		system, err := shareregistry.NewSystemFromEntries(entries)
		require.NoError(t, err)
		share, err := system.ShareAssetOf(1)
		require.NoError(t, err)
		assert.Equal(t, engine.AssetID(101), share)
	})
}

func TestEventStore_Handler(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := events.NewBus(0)
	bus.Subscribe(store.Handler(ctx, logger))

	bus.Emit(events.Registered{Asset: 1, ShareAsset: 101})
	bus.Emit(events.Registered{Asset: 2, ShareAsset: 102})

	seq, err := store.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	entries, err := store.LoadRegistrations(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
