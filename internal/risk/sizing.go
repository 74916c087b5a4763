package risk

import (
	"fmt"
	"math"

	"github.com/Rajchodisetti/trading-bot/internal/decision"
)

// SizerConfig holds the fixed-fractional sizing parameters.
type SizerConfig struct {
	RiskPerTrade     float64 `yaml:"risk_per_trade"`     // fraction of equity at risk, e.g. 0.02
	StopLossFraction float64 `yaml:"stop_loss_fraction"` // assumed stop distance, e.g. 0.05
	MaxOpenPositions int     `yaml:"max_open_positions"` // hard cap on concurrent positions
}

func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		RiskPerTrade:     0.02,
		StopLossFraction: 0.05,
		MaxOpenPositions: 3,
	}
}

// PositionSizing is derived purely from equity, price and direction.
type PositionSizing struct {
	Shares           int     `json:"shares"`
	RiskBudget       float64 `json:"risk_budget"`
	StopLossFraction float64 `json:"stop_loss_fraction"`
	MaxNotional      float64 `json:"max_notional"`
}

type Sizer struct {
	cfg SizerConfig
}

func NewSizer(cfg SizerConfig) *Sizer {
	def := DefaultSizerConfig()
	if cfg.RiskPerTrade <= 0 {
		cfg.RiskPerTrade = def.RiskPerTrade
	}
	if cfg.StopLossFraction <= 0 {
		cfg.StopLossFraction = def.StopLossFraction
	}
	if cfg.MaxOpenPositions <= 0 {
		cfg.MaxOpenPositions = def.MaxOpenPositions
	}
	return &Sizer{cfg: cfg}
}

// Size returns false when there is nothing to size: a hold signal, or the
// open position cap already reached. Signal strength does not affect size.
func (s *Sizer) Size(sig decision.Signal, equity float64, openPositions int, price float64) (PositionSizing, bool, error) {
	if sig.Direction == decision.Hold || sig.Direction == "" {
		return PositionSizing{}, false, nil
	}
	if openPositions >= s.cfg.MaxOpenPositions {
		return PositionSizing{}, false, nil
	}
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return PositionSizing{}, false, fmt.Errorf("size %s: invalid price %v", sig.Symbol, price)
	}
	if equity < 0 || math.IsNaN(equity) {
		return PositionSizing{}, false, fmt.Errorf("size %s: invalid equity %v", sig.Symbol, equity)
	}

	budget := equity * s.cfg.RiskPerTrade
	notional := budget / s.cfg.StopLossFraction
	return PositionSizing{
		Shares:           int(math.Floor(notional / price)),
		RiskBudget:       budget,
		StopLossFraction: s.cfg.StopLossFraction,
		MaxNotional:      notional,
	}, true, nil
}
