package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/config"
	"github.com/Rajchodisetti/trading-bot/internal/observ"
	"github.com/Rajchodisetti/trading-bot/internal/outbox"
)

// Broker turns a validated order into a fill.
type Broker interface {
	Name() string
	Submit(ctx context.Context, order outbox.Order) (outbox.Fill, error)
}

// Journal records orders and fills as they happen. *outbox.Outbox satisfies it.
type Journal interface {
	WriteOrder(outbox.Order) error
	WriteFill(outbox.Fill) error
}

// duplicateChecker is implemented by journals that can spot a resubmitted
// idempotency key.
type duplicateChecker interface {
	HasRecentOrder(idempotencyKey string) (bool, error)
}

// Executor validates orders, submits them and journals the result.
type Executor struct {
	broker    Broker
	creds     Credentials
	maxShares int
	journal   Journal
}

func NewExecutor(b Broker, creds Credentials, maxShares int, journal Journal) *Executor {
	if maxShares <= 0 {
		maxShares = MaxOrderShares
	}
	return &Executor{broker: b, creds: creds, maxShares: maxShares, journal: journal}
}

// NewFromConfig picks the simulated or Alpaca broker per cfg.Mode.
func NewFromConfig(cfg config.Broker, maxShares int, journal Journal) (*Executor, error) {
	creds := Credentials{APIKey: cfg.APIKey, SecretKey: cfg.SecretKey}
	var b Broker
	switch strings.ToLower(cfg.Mode) {
	case "", "sim":
		b = NewSimBroker(cfg.SlippageBpsMin, cfg.SlippageBpsMax, time.Now().UnixNano())
	case "alpaca":
		b = NewAlpacaBroker(cfg.BaseURL, creds, time.Duration(cfg.TimeoutSeconds)*time.Second)
	default:
		return nil, fmt.Errorf("unknown broker mode %q", cfg.Mode)
	}
	return NewExecutor(b, creds, maxShares, journal), nil
}

func (e *Executor) Mode() string { return e.broker.Name() }

// Execute validates and submits order. Validation and broker refusals come
// back as *OrderValidationError.
func (e *Executor) Execute(ctx context.Context, order outbox.Order) (outbox.Fill, error) {
	if err := Validate(order, e.maxShares, e.creds); err != nil {
		observ.Warn("order_invalid", map[string]any{"symbol": order.Symbol, "side": order.Side, "shares": order.Quantity, "error": err.Error()})
		return outbox.Fill{}, err
	}
	if d, ok := e.journal.(duplicateChecker); ok {
		dup, err := d.HasRecentOrder(order.IdempotencyKey)
		if err != nil {
			observ.Error("journal_read_failed", err, map[string]any{"symbol": order.Symbol})
		} else if dup {
			return outbox.Fill{}, invalid("idempotency_key", "order %s already submitted", order.IdempotencyKey)
		}
	}
	if e.journal != nil {
		if err := e.journal.WriteOrder(order); err != nil {
			observ.Error("journal_write_failed", err, map[string]any{"type": "order", "symbol": order.Symbol})
		}
	}

	start := time.Now()
	fill, err := e.broker.Submit(ctx, order)
	if err != nil {
		observ.Error("order_failed", err, map[string]any{"symbol": order.Symbol, "side": order.Side, "shares": order.Quantity, "broker": e.broker.Name()})
		return outbox.Fill{}, err
	}
	observ.RecordOrder(string(order.Side), e.broker.Name())
	observ.Log("order_filled", map[string]any{
		"symbol":     fill.Symbol,
		"side":       fill.Side,
		"shares":     fill.Quantity,
		"price":      fill.Price,
		"order_id":   fill.OrderID,
		"status":     fill.Status,
		"latency_ms": time.Since(start).Milliseconds(),
	})

	if e.journal != nil {
		if err := e.journal.WriteFill(fill); err != nil {
			observ.Error("journal_write_failed", err, map[string]any{"type": "fill", "symbol": fill.Symbol})
		}
	}
	return fill, nil
}
