package portfolio

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Rajchodisetti/trading-bot/internal/outbox"
)

// Position is keyed by symbol and owned by the reconciler.
type Position struct {
	Symbol        string    `json:"symbol"`
	Quantity      int       `json:"quantity"`
	AvgEntryPrice float64   `json:"average_entry_price"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	RealizedPnL   float64   `json:"realized_pnl"` // accumulated from partial sells while open
	Timestamp     time.Time `json:"timestamp"`
}

func (p Position) Open() bool { return p.Quantity > 0 }

// EquitySnapshot is append-only; a correction is a new snapshot.
type EquitySnapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	Cash       float64   `json:"cash"`
	Equity     float64   `json:"equity"`
	TotalValue float64   `json:"total_value"`
}

// Reconciliation is the ledger effect of one fill.
type Reconciliation struct {
	Position    Position
	Equity      EquitySnapshot
	RealizedPnL float64
	Closed      bool // quantity reached zero; the caller removes the row
}

// Reconcile applies fill to the previous position for its symbol (nil when
// none) and to the previous equity snapshot. open lists every currently
// open position; the traded symbol is marked at the fill price and the rest
// keep their last known price.
func Reconcile(fill outbox.Fill, prev *Position, prevEquity EquitySnapshot, open []Position) (Reconciliation, error) {
	if fill.Quantity <= 0 {
		return Reconciliation{}, fmt.Errorf("reconcile %s: non-positive fill quantity %d", fill.Symbol, fill.Quantity)
	}
	if fill.Price <= 0 {
		return Reconciliation{}, fmt.Errorf("reconcile %s: non-positive fill price %v", fill.Symbol, fill.Price)
	}
	if prev != nil && !prev.Open() {
		prev = nil
	}

	qty := decimal.NewFromInt(int64(fill.Quantity))
	price := decimal.NewFromFloat(fill.Price)
	notional := qty.Mul(price)
	cash := decimal.NewFromFloat(prevEquity.Cash)

	var (
		pos      Position
		realized decimal.Decimal
		closed   bool
	)
	switch fill.Side {
	case outbox.SideBuy:
		cash = cash.Sub(notional)
		if prev == nil {
			pos = Position{Symbol: fill.Symbol, Quantity: fill.Quantity, AvgEntryPrice: fill.Price}
		} else {
			oldQty := decimal.NewFromInt(int64(prev.Quantity))
			oldCost := oldQty.Mul(decimal.NewFromFloat(prev.AvgEntryPrice))
			newQty := oldQty.Add(qty)
			pos = *prev
			pos.Quantity = prev.Quantity + fill.Quantity
			pos.AvgEntryPrice = oldCost.Add(notional).Div(newQty).InexactFloat64()
		}
	case outbox.SideSell:
		if prev == nil {
			return Reconciliation{}, fmt.Errorf("reconcile %s: sell without open position", fill.Symbol)
		}
		if fill.Quantity > prev.Quantity {
			return Reconciliation{}, fmt.Errorf("reconcile %s: sell %d exceeds held %d", fill.Symbol, fill.Quantity, prev.Quantity)
		}
		cash = cash.Add(notional)
		realized = price.Sub(decimal.NewFromFloat(prev.AvgEntryPrice)).Mul(qty)
		pos = *prev
		pos.Quantity = prev.Quantity - fill.Quantity
		pos.RealizedPnL = decimal.NewFromFloat(prev.RealizedPnL).Add(realized).InexactFloat64()
		closed = pos.Quantity == 0
	default:
		return Reconciliation{}, fmt.Errorf("reconcile %s: unknown side %q", fill.Symbol, fill.Side)
	}

	pos.CurrentPrice = fill.Price
	pos.Timestamp = fill.Timestamp
	pos.UnrealizedPnL = price.Sub(decimal.NewFromFloat(pos.AvgEntryPrice)).
		Mul(decimal.NewFromInt(int64(pos.Quantity))).InexactFloat64()

	marked := make([]Position, 0, len(open)+1)
	for _, p := range open {
		if p.Symbol != fill.Symbol {
			marked = append(marked, p)
		}
	}
	if !closed {
		marked = append(marked, pos)
	}
	equity := markToMarket(cash, marked).InexactFloat64()

	return Reconciliation{
		Position: pos,
		Equity: EquitySnapshot{
			Timestamp:  fill.Timestamp,
			Cash:       cash.InexactFloat64(),
			Equity:     equity,
			TotalValue: equity,
		},
		RealizedPnL: realized.InexactFloat64(),
		Closed:      closed,
	}, nil
}

// markToMarket values open positions at their CurrentPrice on top of cash.
func markToMarket(cash decimal.Decimal, positions []Position) decimal.Decimal {
	total := cash
	for _, p := range positions {
		if p.Open() {
			total = total.Add(decimal.NewFromInt(int64(p.Quantity)).Mul(decimal.NewFromFloat(p.CurrentPrice)))
		}
	}
	return total
}
