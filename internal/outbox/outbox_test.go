package outbox

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestOutbox(t *testing.T, now *time.Time) *Outbox {
	t.Helper()
	o, err := New(filepath.Join(t.TempDir(), "journal", "outbox.jsonl"), time.Hour)
	require.NoError(t, err)
	o.now = func() time.Time { return *now }
	return o
}

func TestOutboxAppendsTypedEntries(t *testing.T) {
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	o := newTestOutbox(t, &now)

	require.NoError(t, o.WriteOrder(Order{Symbol: "AAPL", Side: SideBuy, Quantity: 5, IdempotencyKey: "k1"}))
	require.NoError(t, o.WriteFill(Fill{Symbol: "AAPL", Side: SideBuy, Quantity: 5, Price: 101.5, OrderID: "sim-000001"}))
	require.NoError(t, o.WriteTrade(TradeRecord{OrderID: "sim-000001", Symbol: "AAPL", RealizedPnL: 12.5}))

	all, err := o.Entries("")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"order", "fill", "trade"}, []string{all[0].Type, all[1].Type, all[2].Type})

	var fill Fill
	require.NoError(t, json.Unmarshal(all[1].Data, &fill))
	assert.Equal(t, 101.5, fill.Price)
	assert.True(t, now.Equal(all[1].Event))
}

func TestHasRecentOrderRespectsWindow(t *testing.T) {
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	o := newTestOutbox(t, &now)

	found, err := o.HasRecentOrder("k1")
	require.NoError(t, err)
	assert.False(t, found, "missing journal is empty")

	require.NoError(t, o.WriteOrder(Order{Symbol: "AAPL", IdempotencyKey: "k1"}))
	found, _ = o.HasRecentOrder("k1")
	assert.True(t, found)
	found, _ = o.HasRecentOrder("k2")
	assert.False(t, found)

	now = now.Add(2 * time.Hour)
	found, _ = o.HasRecentOrder("k1")
	assert.False(t, found)
}

func TestWriteSignalIsUniquePerKey(t *testing.T) {
	now := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	o := newTestOutbox(t, &now)
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	rec := SignalRecord{Symbol: "AAPL", Timestamp: day, Strategy: "SMA_RSI", Direction: "buy", Strength: 0.6}

	wrote, err := o.WriteSignal(rec)
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = o.WriteSignal(rec)
	require.NoError(t, err)
	assert.False(t, wrote)

	rec.Timestamp = day.AddDate(0, 0, 1)
	wrote, _ = o.WriteSignal(rec)
	assert.True(t, wrote)

	signals, err := o.Entries("signal")
	require.NoError(t, err)
	assert.Len(t, signals, 2)
}

func TestGenerateIdempotencyKey(t *testing.T) {
	at := time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	a := GenerateIdempotencyKey("aapl", SideBuy, 10, at)
	assert.Equal(t, a, GenerateIdempotencyKey("AAPL", SideBuy, 10, at))
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, GenerateIdempotencyKey("AAPL", SideSell, 10, at))
	assert.NotEqual(t, a, GenerateIdempotencyKey("AAPL", SideBuy, 10, at.Add(time.Second)))
}
