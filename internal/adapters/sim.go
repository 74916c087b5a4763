package adapters

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"
)

// SimProvider generates random-walk daily bars for offline runs.
type SimProvider struct {
	bars       int
	baseQuotes map[string]baseQuote
	now        func() time.Time
}

type baseQuote struct {
	BasePrice  float64
	Volatility float64 // daily volatility as decimal (0.02 = 2%)
	Volume     int64
}

func NewSimProvider(bars int) *SimProvider {
	if bars <= 0 {
		bars = 100
	}
	return &SimProvider{
		bars: bars,
		baseQuotes: map[string]baseQuote{
			"AAPL": {BasePrice: 206.80, Volatility: 0.025, Volume: 15000000},
			"MSFT": {BasePrice: 415.75, Volatility: 0.022, Volume: 12000000},
			"JNJ":  {BasePrice: 152.40, Volatility: 0.012, Volume: 7000000},
			"UNH":  {BasePrice: 510.30, Volatility: 0.018, Volume: 3500000},
			"V":    {BasePrice: 276.10, Volatility: 0.015, Volume: 6000000},
			"NVDA": {BasePrice: 450.00, Volatility: 0.035, Volume: 10000000},
		},
		now: time.Now,
	}
}

func (s *SimProvider) Name() string { return "sim" }

// Fetch is deterministic per (symbol, day) so repeated calls within a day
// agree with each other.
func (s *SimProvider) Fetch(ctx context.Context, symbol string) (PriceSeries, error) {
	symbol = NormalizeSymbol(symbol)
	if err := ctx.Err(); err != nil {
		return PriceSeries{}, NewTransientError(s.Name(), symbol, "cancelled", err)
	}
	if symbol == "" {
		return PriceSeries{}, NewStructuralError(s.Name(), symbol, "empty symbol", nil)
	}

	base, ok := s.baseQuotes[symbol]
	if !ok {
		base = baseQuote{BasePrice: 100, Volatility: 0.02, Volume: 1000000}
	}

	today := s.now().UTC().Truncate(24 * time.Hour)
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol + today.Format("2006-01-02")))
	random := rand.New(rand.NewSource(int64(h.Sum64())))

	bars := make([]Bar, 0, s.bars)
	price := base.BasePrice
	day := today.AddDate(0, 0, -s.bars*7/5-2)
	for len(bars) < s.bars {
		day = day.AddDate(0, 0, 1)
		if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		open := price
		change := random.NormFloat64() * base.Volatility
		closePx := math.Max(0.01, open*(1+change))
		high := math.Max(open, closePx) * (1 + math.Abs(random.NormFloat64())*base.Volatility/4)
		low := math.Min(open, closePx) * (1 - math.Abs(random.NormFloat64())*base.Volatility/4)
		vol := int64(float64(base.Volume) * (0.6 + random.Float64()*0.8))
		bars = append(bars, Bar{
			Date:   day,
			Open:   round2(open),
			High:   round2(high),
			Low:    math.Max(0.01, round2(low)),
			Close:  round2(closePx),
			Volume: vol,
		})
		price = closePx
	}

	return PriceSeries{Symbol: symbol, Bars: bars, Source: s.Name(), FetchedAt: s.now()}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
