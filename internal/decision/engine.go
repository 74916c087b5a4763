package decision

import (
	"math"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/adapters"
)

// Strategy tags every signal and trade this generator produces.
const Strategy = "SMA_RSI"

type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
	Hold Direction = "hold"
)

// Sufficiency records how much history the series offered.
type Sufficiency struct {
	Has20d    bool `json:"has_20d"`
	Has50d    bool `json:"has_50d"`
	Has14d    bool `json:"has_14d"`
	TotalDays int  `json:"total_days"`
}

// Signal lives for one cycle only; it is never persisted as-is.
type Signal struct {
	Symbol               string
	Direction            Direction
	RawDirection         Direction // before the no-short override
	Strength             float64   // [0..1], 4 decimals
	UsedFallbackStrategy bool
	Sufficiency          Sufficiency
	FastMA               float64 // may be NaN
	SlowMA               float64 // may be NaN
	RSI                  float64 // may be NaN
	Price                float64 // last close
	Timestamp            time.Time
}

type Config struct {
	FastWindow         int     // e.g., 20
	SlowWindow         int     // e.g., 50
	FallbackFastWindow int     // e.g., 10
	FallbackSlowWindow int     // e.g., 20
	RSIPeriod          int     // e.g., 14
	Overbought         float64 // buys suppressed at or above
	Oversold           float64 // sells suppressed at or below
}

func DefaultConfig() Config {
	return Config{
		FastWindow:         20,
		SlowWindow:         50,
		FallbackFastWindow: 10,
		FallbackSlowWindow: 20,
		RSIPeriod:          14,
		Overbought:         70,
		Oversold:           30,
	}
}

// Generate runs the default SMA crossover with RSI filter.
func Generate(series adapters.PriceSeries, existingQty int) (Signal, bool) {
	return DefaultConfig().Generate(series, existingQty)
}

// Generate derives a signal from series. It returns false only when the
// series is empty or a bar lacks a usable close; short history degrades to
// the fallback windows instead.
func (c Config) Generate(series adapters.PriceSeries, existingQty int) (Signal, bool) {
	if len(series.Bars) == 0 {
		return Signal{}, false
	}
	closes := series.Closes()
	for _, v := range closes {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return Signal{}, false
		}
	}

	n := len(closes)
	suff := Sufficiency{
		Has20d:    n >= 20,
		Has50d:    n >= c.SlowWindow,
		Has14d:    n >= c.RSIPeriod,
		TotalDays: n,
	}

	fastN, slowN, fallback := c.FastWindow, c.SlowWindow, false
	if !suff.Has50d {
		fastN, slowN, fallback = c.FallbackFastWindow, c.FallbackSlowWindow, true
	}
	fast := SMA(closes, fastN)
	slow := SMA(closes, slowN)
	rsi := RSI(closes, c.RSIPeriod)

	raw := Hold
	switch {
	case fast > slow && rsi < c.Overbought:
		raw = Buy
	case fast < slow && rsi > c.Oversold:
		raw = Sell
	}

	dir := raw
	if raw == Sell && existingQty <= 0 {
		dir = Hold
	}

	last := series.Bars[n-1]
	return Signal{
		Symbol:               series.Symbol,
		Direction:            dir,
		RawDirection:         raw,
		Strength:             strength(dir, fast, slow, rsi, fallback),
		UsedFallbackStrategy: fallback,
		Sufficiency:          suff,
		FastMA:               fast,
		SlowMA:               slow,
		RSI:                  rsi,
		Price:                last.Close,
		Timestamp:            last.Date,
	}, true
}

// strength: buy/sell start at 0.5 and gain up to 0.4 as RSI moves from 50
// toward 30 (buy) or 70 (sell), plus up to 0.1 for moving-average spread.
// The spread bonus needs the full 20/50 pair, so fallback signals never get
// it. Hold scores 0.3-0.7 by closeness of RSI to 50. Without RSI every
// direction scores a flat 0.5.
func strength(dir Direction, fast, slow, rsi float64, fallback bool) float64 {
	if math.IsNaN(rsi) {
		return 0.5
	}
	var s float64
	switch dir {
	case Buy, Sell:
		tilt := (50 - rsi) / 20
		if dir == Sell {
			tilt = (rsi - 50) / 20
		}
		s = 0.5 + 0.4*clamp(tilt, 0, 1)
		if !fallback && !math.IsNaN(fast) && !math.IsNaN(slow) && slow > 0 {
			s += math.Min(math.Abs(fast-slow)/slow*10, 0.1)
		}
	default:
		s = 0.3 + 0.4*(1-clamp(math.Abs(rsi-50)/50, 0, 1))
	}
	return math.Round(clamp(s, 0, 1)*10000) / 10000
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
