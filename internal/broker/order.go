package broker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Rajchodisetti/trading-bot/internal/outbox"
)

// MaxOrderShares is the fat-finger ceiling applied to every order.
const MaxOrderShares = 10000

// OrderValidationError means the order was malformed or the broker refused
// it. It is distinct from transport-level retries: the cycle that raised it
// fails without re-submitting.
type OrderValidationError struct {
	Field      string
	Reason     string
	StatusCode int // broker HTTP status, 0 when not applicable
}

func (e *OrderValidationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("order rejected (%s, http %d): %s", e.Field, e.StatusCode, e.Reason)
	}
	return fmt.Sprintf("invalid order (%s): %s", e.Field, e.Reason)
}

func IsOrderValidation(err error) bool {
	var ove *OrderValidationError
	return errors.As(err, &ove)
}

func invalid(field, format string, args ...any) *OrderValidationError {
	return &OrderValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Credentials identify the trading account.
type Credentials struct {
	APIKey    string
	SecretKey string
}

func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.SecretKey) != ""
}

// Validate enforces the pre-submission invariants on an order.
func Validate(o outbox.Order, maxShares int, creds Credentials) error {
	if maxShares <= 0 {
		maxShares = MaxOrderShares
	}
	switch {
	case strings.TrimSpace(o.Symbol) == "":
		return invalid("symbol", "empty symbol")
	case o.Quantity <= 0:
		return invalid("quantity", "shares must be positive, got %d", o.Quantity)
	case o.Quantity > maxShares:
		return invalid("quantity", "shares %d exceed ceiling %d", o.Quantity, maxShares)
	case !o.Side.Valid():
		return invalid("side", "unknown side %q", o.Side)
	case !creds.Configured():
		return invalid("credentials", "broker credentials not configured")
	}
	return nil
}
