package broker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/trading-bot/internal/outbox"
)

var testCreds = Credentials{APIKey: "test_key", SecretKey: "test_secret"}

func buyOrder(qty int) outbox.Order {
	return outbox.Order{Symbol: "AAPL", Side: outbox.SideBuy, Quantity: qty, ReferencePrice: 100, Strategy: "SMA_RSI", IdempotencyKey: "abc123"}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		order outbox.Order
		creds Credentials
		field string
	}{
		{"zero shares", buyOrder(0), testCreds, "quantity"},
		{"over ceiling", buyOrder(10001), testCreds, "quantity"},
		{"bad side", outbox.Order{Symbol: "AAPL", Side: "short", Quantity: 1}, testCreds, "side"},
		{"no symbol", outbox.Order{Side: outbox.SideBuy, Quantity: 1}, testCreds, "symbol"},
		{"no credentials", buyOrder(1), Credentials{APIKey: "k"}, "credentials"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.order, MaxOrderShares, tt.creds)
			require.Error(t, err)
			assert.True(t, IsOrderValidation(err))
			var ove *OrderValidationError
			require.ErrorAs(t, err, &ove)
			assert.Equal(t, tt.field, ove.Field)
		})
	}

	assert.NoError(t, Validate(buyOrder(1), MaxOrderShares, testCreds))
	assert.NoError(t, Validate(buyOrder(10000), MaxOrderShares, testCreds))
}

func TestSimBrokerSlippageAgainstTrader(t *testing.T) {
	sim := NewSimBroker(1, 5, 7)

	for i := 0; i < 50; i++ {
		buy, err := sim.Submit(context.Background(), buyOrder(10))
		require.NoError(t, err)
		assert.GreaterOrEqual(t, buy.Price, 100.01)
		assert.LessOrEqual(t, buy.Price, 100.05)

		sell := buyOrder(10)
		sell.Side = outbox.SideSell
		f, err := sim.Submit(context.Background(), sell)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, f.Price, 99.95)
		assert.LessOrEqual(t, f.Price, 99.99)
	}
}

func TestSimBrokerWithoutReferencePrice(t *testing.T) {
	sim := NewSimBroker(1, 5, 7)
	o := buyOrder(3)
	o.ReferencePrice = 0

	f, err := sim.Submit(context.Background(), o)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, f.Price, 100.0)
	assert.LessOrEqual(t, f.Price, 110.0)
	assert.Equal(t, "sim-000001", f.OrderID)
	assert.Equal(t, "filled", f.Status)
	assert.Equal(t, 3, f.Quantity)

	f, _ = sim.Submit(context.Background(), o)
	assert.Equal(t, "sim-000002", f.OrderID)
}

func TestAlpacaSubmitMapsFill(t *testing.T) {
	var got alpacaOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/orders", r.URL.Path)
		assert.Equal(t, "test_key", r.Header.Get("APCA-API-KEY-ID"))
		assert.Equal(t, "test_secret", r.Header.Get("APCA-API-SECRET-KEY"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ord-1","status":"filled","filled_avg_price":"187.42","created_at":"2024-03-04T15:00:00Z"}`))
	}))
	defer srv.Close()

	a := NewAlpacaBroker(srv.URL, testCreds, time.Second)
	fill, err := a.Submit(context.Background(), buyOrder(5))
	require.NoError(t, err)

	assert.Equal(t, alpacaOrderRequest{Symbol: "AAPL", Qty: "5", Side: "buy", Type: "market", TimeInForce: "day", ClientOrderID: "abc123"}, got)
	assert.Equal(t, "ord-1", fill.OrderID)
	assert.Equal(t, 187.42, fill.Price)
	assert.Equal(t, "filled", fill.Status)
	assert.Equal(t, time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), fill.Timestamp)
}

func TestAlpacaMissingPriceIsSynthesized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ord-2","status":"accepted","filled_avg_price":null}`))
	}))
	defer srv.Close()

	fill, err := NewAlpacaBroker(srv.URL, testCreds, time.Second).Submit(context.Background(), buyOrder(1))
	require.NoError(t, err)
	assert.Equal(t, 100.0, fill.Price, "zero-slippage synthesis at the reference price")
	assert.Equal(t, "accepted", fill.Status)
}

func TestAlpacaFailuresAreValidationErrors(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"message":"insufficient buying power"}`, http.StatusForbidden)
		}))
		defer srv.Close()

		_, err := NewAlpacaBroker(srv.URL, testCreds, time.Second).Submit(context.Background(), buyOrder(1))
		var ove *OrderValidationError
		require.ErrorAs(t, err, &ove)
		assert.Equal(t, http.StatusForbidden, ove.StatusCode)
		assert.Contains(t, ove.Reason, "insufficient buying power")
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		_, err := NewAlpacaBroker(srv.URL, testCreds, 20*time.Millisecond).Submit(context.Background(), buyOrder(1))
		assert.True(t, IsOrderValidation(err))
	})
}

func TestAlpacaOrderStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/orders/ord-9", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"ord-9","status":"partially_filled","filled_qty":"3","filled_avg_price":12.5}`))
	}))
	defer srv.Close()

	st, err := NewAlpacaBroker(srv.URL, testCreds, time.Second).OrderStatus(context.Background(), "ord-9")
	require.NoError(t, err)
	assert.Equal(t, "partially_filled", st.Status)
	assert.Equal(t, flexFloat(3), st.FilledQty)
	assert.Equal(t, flexFloat(12.5), st.FilledAvgPrice)
}

type memJournal struct {
	orders []outbox.Order
	fills  []outbox.Fill
}

func (m *memJournal) WriteOrder(o outbox.Order) error {
	m.orders = append(m.orders, o)
	return nil
}

func (m *memJournal) WriteFill(f outbox.Fill) error {
	m.fills = append(m.fills, f)
	return nil
}

func TestExecutorRejectsBeforeSubmitting(t *testing.T) {
	j := &memJournal{}
	ex := NewExecutor(NewSimBroker(1, 5, 1), testCreds, 0, j)

	_, err := ex.Execute(context.Background(), buyOrder(10001))
	assert.True(t, IsOrderValidation(err))
	assert.Empty(t, j.orders)

	fill, err := ex.Execute(context.Background(), buyOrder(10))
	require.NoError(t, err)
	assert.Len(t, j.orders, 1)
	assert.Equal(t, []outbox.Fill{fill}, j.fills)
	assert.Equal(t, "sim", ex.Mode())
}

func TestExecutorRefusesResubmittedKey(t *testing.T) {
	j, err := outbox.New(filepath.Join(t.TempDir(), "outbox.jsonl"), time.Hour)
	require.NoError(t, err)
	ex := NewExecutor(NewSimBroker(1, 5, 1), testCreds, 0, j)

	_, err = ex.Execute(context.Background(), buyOrder(10))
	require.NoError(t, err)

	_, err = ex.Execute(context.Background(), buyOrder(10))
	var ove *OrderValidationError
	require.ErrorAs(t, err, &ove)
	assert.Equal(t, "idempotency_key", ove.Field)

	fills, err := j.Entries("fill")
	require.NoError(t, err)
	assert.Len(t, fills, 1)
}
