package outbox

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

func (s Side) Valid() bool { return s == SideBuy || s == SideSell }

// Order is a request handed to a broker.
type Order struct {
	Symbol         string    `json:"symbol"`
	Side           Side      `json:"side"`
	Quantity       int       `json:"quantity"`
	ReferencePrice float64   `json:"reference_price,omitempty"` // last close, used by the simulator
	Strategy       string    `json:"strategy"`
	IdempotencyKey string    `json:"idempotency_key"`
	Timestamp      time.Time `json:"timestamp"`
}

// Fill is immutable once created and is the unit the ledger reconciles.
type Fill struct {
	Symbol    string    `json:"symbol"`
	Side      Side      `json:"side"`
	Quantity  int       `json:"quantity"`
	Price     float64   `json:"price"`
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	Strategy  string    `json:"strategy"`
	Timestamp time.Time `json:"timestamp"`
}

// SignalRecord is the persisted form of a generated signal. Records are
// unique by (symbol, timestamp, strategy).
type SignalRecord struct {
	Symbol    string    `json:"symbol"`
	Timestamp time.Time `json:"timestamp"`
	Strategy  string    `json:"strategy"`
	Direction string    `json:"direction"`
	Strength  float64   `json:"strength"`
	Price     float64   `json:"price"`
	Fallback  bool      `json:"used_fallback_strategy"`
}

// TradeRecord is written once per reconciled fill.
type TradeRecord struct {
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        Side      `json:"side"`
	Quantity    int       `json:"quantity"`
	Price       float64   `json:"price"`
	Timestamp   time.Time `json:"timestamp"`
	Strategy    string    `json:"strategy"`
	Status      string    `json:"status"`
	RealizedPnL float64   `json:"realized_pnl"`
}

type Entry struct {
	Type  string          `json:"type"`
	Data  json.RawMessage `json:"data"`
	Event time.Time       `json:"event"`
}

// Outbox is an append-only JSONL journal of orders, fills, signals and trades.
type Outbox struct {
	mu           sync.Mutex
	path         string
	dedupeWindow time.Duration
	now          func() time.Time
}

func New(path string, dedupeWindow time.Duration) (*Outbox, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create outbox dir: %w", err)
	}
	return &Outbox{
		path:         path,
		dedupeWindow: dedupeWindow,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

func (o *Outbox) Path() string { return o.path }

func (o *Outbox) WriteOrder(order Order) error { return o.append("order", order) }

func (o *Outbox) WriteFill(fill Fill) error { return o.append("fill", fill) }

func (o *Outbox) WriteTrade(trade TradeRecord) error { return o.append("trade", trade) }

// WriteSignal appends rec unless a record with the same key is already in
// the journal. It reports whether a line was written.
func (o *Outbox) WriteSignal(rec SignalRecord) (bool, error) {
	dup := false
	err := o.scan(func(e Entry) bool {
		if e.Type != "signal" {
			return true
		}
		var prev SignalRecord
		if json.Unmarshal(e.Data, &prev) != nil {
			return true
		}
		if prev.Symbol == rec.Symbol && prev.Strategy == rec.Strategy && prev.Timestamp.Equal(rec.Timestamp) {
			dup = true
			return false
		}
		return true
	})
	if err != nil || dup {
		return false, err
	}
	return true, o.append("signal", rec)
}

func (o *Outbox) append(typ string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", typ, err)
	}
	line, err := json.Marshal(Entry{Type: typ, Data: data, Event: o.now()})
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	f, err := os.OpenFile(o.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// HasRecentOrder reports whether an order with idempotencyKey was journaled
// within the dedupe window.
func (o *Outbox) HasRecentOrder(idempotencyKey string) (bool, error) {
	cutoff := o.now().Add(-o.dedupeWindow)
	found := false
	err := o.scan(func(e Entry) bool {
		if e.Type != "order" || e.Event.Before(cutoff) {
			return true
		}
		var order Order
		if json.Unmarshal(e.Data, &order) != nil {
			return true
		}
		if order.IdempotencyKey == idempotencyKey {
			found = true
			return false
		}
		return true
	})
	return found, err
}

// Entries returns every journal entry of the given type, oldest first.
func (o *Outbox) Entries(typ string) ([]Entry, error) {
	var out []Entry
	err := o.scan(func(e Entry) bool {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
		return true
	})
	return out, err
}

// scan calls fn for each well-formed line until fn returns false.
func (o *Outbox) scan(fn func(Entry) bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := os.Open(o.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var e Entry
		if json.Unmarshal(sc.Bytes(), &e) != nil {
			continue
		}
		if !fn(e) {
			break
		}
	}
	return sc.Err()
}
