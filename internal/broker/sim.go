package broker

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/outbox"
)

// SimBroker fills every order immediately at the reference price moved
// against the trader by a random slippage.
type SimBroker struct {
	mu             sync.Mutex
	rng            *rand.Rand
	slippageBpsMin int
	slippageBpsMax int
	seq            int
	now            func() time.Time
}

func NewSimBroker(slippageBpsMin, slippageBpsMax int, seed int64) *SimBroker {
	if slippageBpsMin < 0 {
		slippageBpsMin = 0
	}
	if slippageBpsMax < slippageBpsMin {
		slippageBpsMax = slippageBpsMin
	}
	return &SimBroker{
		rng:            rand.New(rand.NewSource(seed)),
		slippageBpsMin: slippageBpsMin,
		slippageBpsMax: slippageBpsMax,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

func (s *SimBroker) Name() string { return "sim" }

func (s *SimBroker) Submit(ctx context.Context, order outbox.Order) (outbox.Fill, error) {
	if err := ctx.Err(); err != nil {
		return outbox.Fill{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var price float64
	if order.ReferencePrice > 0 {
		bps := s.slippageBpsMin + s.rng.Intn(s.slippageBpsMax-s.slippageBpsMin+1)
		mult := 1.0 + float64(bps)/10000.0
		if order.Side == outbox.SideBuy {
			price = order.ReferencePrice * mult
		} else {
			price = order.ReferencePrice / mult
		}
	} else {
		price = 100 + s.rng.Float64()*10
	}

	s.seq++
	return outbox.Fill{
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     math.Round(price*100) / 100,
		OrderID:   fmt.Sprintf("sim-%06d", s.seq),
		Status:    "filled",
		Strategy:  order.Strategy,
		Timestamp: s.now(),
	}, nil
}
