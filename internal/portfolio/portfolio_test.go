package portfolio

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/trading-bot/internal/outbox"
)

var t0 = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func fill(side outbox.Side, qty int, price float64, at time.Time) outbox.Fill {
	return outbox.Fill{Symbol: "AAPL", Side: side, Quantity: qty, Price: price, OrderID: "sim-1", Status: "filled", Strategy: "SMA_RSI", Timestamp: at}
}

func TestReconcileRoundTrip(t *testing.T) {
	start := EquitySnapshot{Timestamp: t0, Cash: 100000, Equity: 100000, TotalValue: 100000}

	buy, err := Reconcile(fill(outbox.SideBuy, 10, 100, t0.Add(time.Minute)), nil, start, nil)
	require.NoError(t, err)
	assert.Equal(t, 10, buy.Position.Quantity)
	assert.Equal(t, 100.0, buy.Position.AvgEntryPrice)
	assert.Equal(t, 99000.0, buy.Equity.Cash)
	assert.Equal(t, 100000.0, buy.Equity.Equity)

	sell, err := Reconcile(fill(outbox.SideSell, 10, 110, t0.Add(2*time.Minute)), &buy.Position, buy.Equity, []Position{buy.Position})
	require.NoError(t, err)
	assert.True(t, sell.Closed)
	assert.Equal(t, 0, sell.Position.Quantity)
	assert.Equal(t, 100100.0, sell.Equity.Cash, "cash up exactly 100 overall")
	assert.Equal(t, 100100.0, sell.Equity.Equity)
	assert.Equal(t, 100.0, sell.RealizedPnL)
}

func TestReconcileWeightedAverage(t *testing.T) {
	start := EquitySnapshot{Cash: 10000}
	first, err := Reconcile(fill(outbox.SideBuy, 10, 100, t0), nil, start, nil)
	require.NoError(t, err)

	second, err := Reconcile(fill(outbox.SideBuy, 10, 120, t0.Add(time.Minute)), &first.Position, first.Equity, []Position{first.Position})
	require.NoError(t, err)
	assert.Equal(t, 20, second.Position.Quantity)
	assert.Equal(t, 110.0, second.Position.AvgEntryPrice)
	assert.Equal(t, 7800.0, second.Equity.Cash)
	assert.Equal(t, 200.0, second.Position.UnrealizedPnL)
	assert.Equal(t, 120.0, second.Position.CurrentPrice)
	assert.Equal(t, 7800.0+20*120, second.Equity.Equity)
}

func TestReconcilePartialSellKeepsAverage(t *testing.T) {
	prev := Position{Symbol: "AAPL", Quantity: 20, AvgEntryPrice: 110, CurrentPrice: 115}
	r, err := Reconcile(fill(outbox.SideSell, 5, 120, t0), &prev, EquitySnapshot{Cash: 5000}, []Position{prev})
	require.NoError(t, err)

	assert.False(t, r.Closed)
	assert.Equal(t, 15, r.Position.Quantity)
	assert.Equal(t, 110.0, r.Position.AvgEntryPrice)
	assert.Equal(t, 150.0, r.Position.UnrealizedPnL)
	assert.Equal(t, 50.0, r.RealizedPnL)
	assert.Equal(t, 50.0, r.Position.RealizedPnL)
	assert.Equal(t, 5600.0, r.Equity.Cash)
}

func TestReconcileEquityUsesOtherPositionsLastPrice(t *testing.T) {
	msft := Position{Symbol: "MSFT", Quantity: 3, AvgEntryPrice: 300, CurrentPrice: 310}
	closed := Position{Symbol: "V", Quantity: 0, CurrentPrice: 250}
	r, err := Reconcile(fill(outbox.SideBuy, 2, 50, t0), nil, EquitySnapshot{Cash: 1000}, []Position{msft, closed})
	require.NoError(t, err)
	assert.Equal(t, 900.0, r.Equity.Cash)
	assert.Equal(t, 900.0+3*310+2*50, r.Equity.Equity)
	assert.Equal(t, r.Equity.Equity, r.Equity.TotalValue)
}

func TestReconcileErrors(t *testing.T) {
	held := Position{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100}
	tests := []struct {
		name string
		fill outbox.Fill
		prev *Position
	}{
		{"sell without position", fill(outbox.SideSell, 1, 100, t0), nil},
		{"sell more than held", fill(outbox.SideSell, 11, 100, t0), &held},
		{"zero quantity", fill(outbox.SideBuy, 0, 100, t0), nil},
		{"zero price", fill(outbox.SideBuy, 1, 0, t0), nil},
		{"unknown side", fill("hold", 1, 100, t0), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Reconcile(tt.fill, tt.prev, EquitySnapshot{Cash: 1000}, nil)
			assert.Error(t, err)
		})
	}
}

func TestMarkToMarket(t *testing.T) {
	got := markToMarket(decimal.NewFromInt(100), []Position{
		{Symbol: "A", Quantity: 2, CurrentPrice: 10},
		{Symbol: "B", Quantity: 0, CurrentPrice: 99},
	})
	assert.Equal(t, 120.0, got.InexactFloat64())
}

func TestFileStorePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "ledger.json")

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, ok, err := s.LatestEquity(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.AppendEquity(ctx, EquitySnapshot{Timestamp: t0, Cash: 100000, Equity: 100000}))
	assert.Error(t, s.AppendEquity(ctx, EquitySnapshot{Timestamp: t0, Cash: 1}), "snapshots are unique by timestamp")
	require.NoError(t, s.UpsertPosition(ctx, Position{Symbol: "MSFT", Quantity: 3, AvgEntryPrice: 300}))
	require.NoError(t, s.UpsertPosition(ctx, Position{Symbol: "AAPL", Quantity: 10, AvgEntryPrice: 100}))
	require.NoError(t, s.RecordTrade(ctx, outbox.TradeRecord{OrderID: "sim-1", Symbol: "AAPL", Quantity: 10}))

	wrote, err := s.RecordSignal(ctx, outbox.SignalRecord{Symbol: "AAPL", Timestamp: t0, Strategy: "SMA_RSI"})
	require.NoError(t, err)
	assert.True(t, wrote)
	wrote, _ = s.RecordSignal(ctx, outbox.SignalRecord{Symbol: "AAPL", Timestamp: t0, Strategy: "SMA_RSI"})
	assert.False(t, wrote)

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	open, err := reopened.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "AAPL", open[0].Symbol)

	snap, ok, err := reopened.LatestEquity(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 100000.0, snap.Cash)
	assert.Len(t, reopened.Trades(), 1)

	require.NoError(t, reopened.ClosePosition(ctx, "AAPL"))
	open, _ = reopened.OpenPositions(ctx)
	assert.Len(t, open, 1)
}
