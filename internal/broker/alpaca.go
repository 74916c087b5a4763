package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/Rajchodisetti/trading-bot/internal/outbox"
)

const defaultAlpacaURL = "https://paper-api.alpaca.markets"

// AlpacaBroker submits market orders to the Alpaca trading API.
type AlpacaBroker struct {
	client   *resty.Client
	fallback *SimBroker
	now      func() time.Time
}

type alpacaOrderRequest struct {
	Symbol        string `json:"symbol"`
	Qty           string `json:"qty"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	TimeInForce   string `json:"time_in_force"`
	ClientOrderID string `json:"client_order_id,omitempty"`
}

// OrderStatus is the subset of the broker's order object the bot consumes.
type OrderStatus struct {
	ID             string    `json:"id"`
	ClientOrderID  string    `json:"client_order_id"`
	Symbol         string    `json:"symbol"`
	Side           string    `json:"side"`
	Status         string    `json:"status"`
	FilledQty      flexFloat `json:"filled_qty"`
	FilledAvgPrice flexFloat `json:"filled_avg_price"`
	LimitPrice     flexFloat `json:"limit_price"`
	CreatedAt      time.Time `json:"created_at"`
}

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

func NewAlpacaBroker(baseURL string, creds Credentials, timeout time.Duration) *AlpacaBroker {
	if baseURL == "" {
		baseURL = defaultAlpacaURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetHeader("APCA-API-KEY-ID", creds.APIKey).
		SetHeader("APCA-API-SECRET-KEY", creds.SecretKey)
	return &AlpacaBroker{
		client:   client,
		fallback: NewSimBroker(0, 0, time.Now().UnixNano()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (a *AlpacaBroker) Name() string { return "alpaca" }

// Submit posts a day market order. The idempotency key becomes the
// client_order_id so a resubmitted order is refused by the broker.
func (a *AlpacaBroker) Submit(ctx context.Context, order outbox.Order) (outbox.Fill, error) {
	body := alpacaOrderRequest{
		Symbol:        order.Symbol,
		Qty:           strconv.Itoa(order.Quantity),
		Side:          string(order.Side),
		Type:          "market",
		TimeInForce:   "day",
		ClientOrderID: order.IdempotencyKey,
	}
	var status OrderStatus
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&status).
		Post("/v2/orders")
	if err != nil {
		return outbox.Fill{}, &OrderValidationError{Field: "transport", Reason: err.Error()}
	}
	if !successful(resp) {
		return outbox.Fill{}, &OrderValidationError{
			Field:      "broker",
			Reason:     truncate(strings.TrimSpace(resp.String()), 200),
			StatusCode: resp.StatusCode(),
		}
	}

	price := float64(status.FilledAvgPrice)
	if price <= 0 {
		price = float64(status.LimitPrice)
	}
	if price <= 0 {
		synth, _ := a.fallback.Submit(ctx, order)
		price = synth.Price
	}
	ts := status.CreatedAt.UTC()
	if status.CreatedAt.IsZero() {
		ts = a.now()
	}
	id := status.ID
	if id == "" {
		id = order.IdempotencyKey
	}
	return outbox.Fill{
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     price,
		OrderID:   id,
		Status:    status.Status,
		Strategy:  order.Strategy,
		Timestamp: ts,
	}, nil
}

// OrderStatus fetches the broker's current view of an order.
func (a *AlpacaBroker) OrderStatus(ctx context.Context, id string) (OrderStatus, error) {
	var status OrderStatus
	resp, err := a.client.R().
		SetContext(ctx).
		SetPathParam("id", id).
		SetResult(&status).
		Get("/v2/orders/{id}")
	if err != nil {
		return OrderStatus{}, &OrderValidationError{Field: "transport", Reason: err.Error()}
	}
	if !successful(resp) {
		return OrderStatus{}, &OrderValidationError{Field: "broker", Reason: truncate(resp.String(), 200), StatusCode: resp.StatusCode()}
	}
	return status, nil
}

func successful(resp *resty.Response) bool {
	return resp.StatusCode() >= 200 && resp.StatusCode() < 300
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ json.Unmarshaler = (*flexFloat)(nil)
