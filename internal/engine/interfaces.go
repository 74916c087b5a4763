package engine

import (
	"context"

	"github.com/Rajchodisetti/trading-bot/internal/adapters"
	"github.com/Rajchodisetti/trading-bot/internal/outbox"
)

// MarketData yields a validated series, or false to skip the symbol.
// *adapters.Fetcher satisfies it.
type MarketData interface {
	Fetch(ctx context.Context, symbol string) (adapters.PriceSeries, bool)
}

// Executor validates and places an order. *broker.Executor satisfies it.
type Executor interface {
	Execute(ctx context.Context, order outbox.Order) (outbox.Fill, error)
}

// Journal mirrors signals and trades to the append-only outbox.
type Journal interface {
	WriteSignal(rec outbox.SignalRecord) (bool, error)
	WriteTrade(rec outbox.TradeRecord) error
}

// Alerter tracks consecutive cycle failures. *alerts.Monitor satisfies it.
type Alerter interface {
	RecordSuccess()
	RecordFailure(ctx context.Context, errMsg string) bool
}
