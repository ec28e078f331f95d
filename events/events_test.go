package events

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus(t *testing.T) {
	t.Run("Stamps increasing sequence numbers", func(t *testing.T) {
		bus := NewBus(41)
		rec := bus.Emit(Registered{Asset: 1, ShareAsset: 101})
		assert.Equal(t, uint64(42), rec.Seq)
		assert.NotZero(t, rec.Timestamp)
		assert.Equal(t, uint64(42), bus.Seq())
	})

	t.Run("Delivers to handlers in subscription order", func(t *testing.T) {
		bus := NewBus(0)
		var order []string
		bus.Subscribe(func(Record) { order = append(order, "first") })
		bus.Subscribe(func(Record) { order = append(order, "second") })

		bus.Emit(Registered{Asset: 1, ShareAsset: 101})
		assert.Equal(t, []string{"first", "second"}, order)
	})

	t.Run("Unsubscribe stops delivery", func(t *testing.T) {
		bus := NewBus(0)
		rec := &Recorder{}
		unsubscribe := bus.Subscribe(rec.Handle)

		bus.Emit(Registered{Asset: 1, ShareAsset: 101})
		unsubscribe()
		bus.Emit(Registered{Asset: 2, ShareAsset: 102})

		require.Len(t, rec.Records(), 1)
		assert.Equal(t, uint64(2), bus.Seq(), "sequence advances without subscribers")
	})

	t.Run("Concurrent emitters observe a total order", func(t *testing.T) {
		bus := NewBus(0)
		rec := &Recorder{}
		bus.Subscribe(rec.Handle)

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					bus.Emit(Registered{Asset: 1, ShareAsset: 101})
				}
			}()
		}
		wg.Wait()

		records := rec.Records()
		require.Len(t, records, 800)
		for i, r := range records {
			assert.Equal(t, uint64(i+1), r.Seq)
		}
	})
}

func TestRecordJSON(t *testing.T) {
	account := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	id := uuid.New()

	records := []Record{
		{Seq: 1, Timestamp: 10, Event: Registered{Asset: 1, ShareAsset: 101}},
		{Seq: 2, Timestamp: 20, Event: Deposited{Account: account, Asset: 1, Amount: uint256.NewInt(100), Minted: uint256.NewInt(100)}},
		{Seq: 3, Timestamp: 30, Event: Withdrawn{Account: account, Asset: 1, ShareAmount: uint256.NewInt(50), Payout: uint256.NewInt(49)}},
		{Seq: 4, Timestamp: 35, Event: Borrowed{Asset: 1, Amount: uint256.NewInt(15)}},
		{Seq: 5, Timestamp: 40, Event: Liquidated{
			ID:         id,
			TargetUser: account,
			PayAsset:   1,
			PayAmount:  uint256.NewInt(10),
			GetAsset:   2,
			GetAmount:  uint256.NewInt(21),
			// BorrowAmount unset, decodes back to nil
		}},
	}

	data, err := json.Marshal(records)
	require.NoError(t, err)

	var decoded []Record
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, records, decoded)

	liq, ok := decoded[4].Event.(Liquidated)
	require.True(t, ok)
	assert.Equal(t, id, liq.ID)

	t.Run("Unknown kind is rejected", func(t *testing.T) {
		var r Record
		err := json.Unmarshal([]byte(`{"seq":1,"kind":"minted","payload":{}}`), &r)
		assert.Error(t, err)
	})

	t.Run("Record without event cannot be encoded", func(t *testing.T) {
		_, err := json.Marshal(Record{Seq: 1})
		assert.Error(t, err)
	})
}

func TestLogHandler(t *testing.T) {
	var buf bytes.Buffer
	bus := NewBus(0)
	bus.Subscribe(LogHandler(slog.New(slog.NewTextHandler(&buf, nil))))

	bus.Emit(Borrowed{Asset: 1, Amount: uint256.NewInt(15)})
	assert.Contains(t, buf.String(), "seq=1")
	assert.Contains(t, buf.String(), "kind=borrowed")
}
