package risk

import "fmt"

// Rejection reasons. A rejected trade is a successful no-op, never an error.
const (
	ReasonNoPosition        = "sell_without_position"
	ReasonInsufficientCash  = "insufficient_cash"
	ReasonNonPositiveShares = "non_positive_shares"
)

// Decision is the outcome of the pre-trade guard.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Quantity int    `json:"quantity"` // possibly clipped
	Clipped  bool   `json:"clipped"`
	Reason   string `json:"reason,omitempty"`
}

func (d Decision) String() string {
	if d.Allowed {
		return fmt.Sprintf("allowed qty=%d clipped=%t", d.Quantity, d.Clipped)
	}
	return "rejected: " + d.Reason
}

// CheckSell clips a sell to the held quantity and rejects a sell with no
// open position.
func CheckSell(requested, held int) Decision {
	switch {
	case held <= 0:
		return Decision{Reason: ReasonNoPosition}
	case requested <= 0:
		return Decision{Reason: ReasonNonPositiveShares}
	case requested > held:
		return Decision{Allowed: true, Quantity: held, Clipped: true}
	}
	return Decision{Allowed: true, Quantity: requested}
}

// CheckBuy rejects a buy whose cost exceeds the latest cash balance.
func CheckBuy(requested int, price, cash float64) Decision {
	if requested <= 0 {
		return Decision{Reason: ReasonNonPositiveShares}
	}
	if float64(requested)*price > cash {
		return Decision{Reason: ReasonInsufficientCash}
	}
	return Decision{Allowed: true, Quantity: requested}
}
