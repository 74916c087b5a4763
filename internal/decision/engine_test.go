package decision

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/trading-bot/internal/adapters"
)

var start = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

// zigzag alternates +up and -down moves from first.
func zigzag(n int, first, up, down float64) []float64 {
	out := make([]float64, n)
	p := first
	for i := range out {
		out[i] = p
		if i%2 == 0 {
			p += up
		} else {
			p -= down
		}
	}
	return out
}

func series(closes []float64) adapters.PriceSeries {
	return adapters.PriceSeries{Symbol: "AAPL", Bars: adapters.CloseBars(start, closes)}
}

func TestSMA(t *testing.T) {
	assert.Equal(t, 4.0, SMA([]float64{1, 2, 3, 4, 5}, 3))
	assert.True(t, math.IsNaN(SMA([]float64{1, 2}, 3)))
	assert.True(t, math.IsNaN(SMA([]float64{1, 2}, 0)))
}

func TestRSI(t *testing.T) {
	closes := zigzag(15, 100, 2, 1) // 7 gains of 2, 7 losses of 1
	assert.InDelta(t, 66.6667, RSI(closes, 14), 1e-4)

	up := make([]float64, 15)
	for i := range up {
		up[i] = float64(100 + i)
	}
	assert.Equal(t, 100.0, RSI(up, 14))

	flat := make([]float64, 15)
	for i := range flat {
		flat[i] = 50
	}
	assert.True(t, math.IsNaN(RSI(flat, 14)))
	assert.True(t, math.IsNaN(RSI(up[:14], 14)), "needs period+1 closes")
}

func TestGenerateFullWindows(t *testing.T) {
	sig, ok := Generate(series(zigzag(60, 100, 2, 1)), 0)
	require.True(t, ok)

	assert.Equal(t, Buy, sig.Direction)
	assert.False(t, sig.UsedFallbackStrategy)
	assert.Equal(t, Sufficiency{Has20d: true, Has50d: true, Has14d: true, TotalDays: 60}, sig.Sufficiency)
	assert.Greater(t, sig.FastMA, sig.SlowMA)
	assert.InDelta(t, 0.6, sig.Strength, 1e-9, "RSI above 50 adds nothing; spread bonus is capped at 0.1")
	assert.Equal(t, sig.Price, series(zigzag(60, 100, 2, 1)).Bars[59].Close)
}

func TestGenerateFallbackWindows(t *testing.T) {
	for _, n := range []int{20, 35, 49} {
		sig, ok := Generate(series(zigzag(n, 100, 2, 1)), 0)
		require.True(t, ok)
		assert.True(t, sig.UsedFallbackStrategy, "n=%d", n)
		assert.True(t, sig.Sufficiency.Has20d)
		assert.False(t, sig.Sufficiency.Has50d)
		assert.Equal(t, SMA(zigzag(n, 100, 2, 1), 10), sig.FastMA)
		assert.Equal(t, SMA(zigzag(n, 100, 2, 1), 20), sig.SlowMA)
		assert.Equal(t, Buy, sig.Direction, "n=%d", n)
		assert.InDelta(t, 66.6667, sig.RSI, 1e-4)
		assert.Equal(t, 0.5, sig.Strength, "no spread bonus without the 50-day average")
	}
}

func TestGenerateShortHistoryStillReturnsSignal(t *testing.T) {
	for _, n := range []int{1, 5, 13} {
		sig, ok := Generate(series(zigzag(n, 100, 2, 1)), 0)
		require.True(t, ok, "n=%d", n)
		assert.Equal(t, Sufficiency{TotalDays: n}, sig.Sufficiency)
		assert.True(t, sig.UsedFallbackStrategy)
		assert.Equal(t, Hold, sig.Direction)
		assert.Equal(t, 0.5, sig.Strength, "NaN RSI hold is neutral")
	}
}

func TestGenerateSellRequiresPosition(t *testing.T) {
	// -2 then +1: a grinding downtrend
	down := series(zigzag(60, 200, -2, -1))

	held, ok := Generate(down, 10)
	require.True(t, ok)
	assert.Equal(t, Sell, held.Direction)
	assert.InDelta(t, 33.3333, held.RSI, 1e-4)

	flat, ok := Generate(down, 0)
	require.True(t, ok)
	assert.Equal(t, Hold, flat.Direction)
	assert.Equal(t, Sell, flat.RawDirection)
	assert.GreaterOrEqual(t, flat.Strength, 0.3)
	assert.LessOrEqual(t, flat.Strength, 0.7)
}

func TestGenerateOverboughtSuppressesBuy(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	sig, ok := Generate(series(closes), 0)
	require.True(t, ok)
	assert.Equal(t, 100.0, sig.RSI)
	assert.Equal(t, Hold, sig.Direction)
	assert.Equal(t, 0.3, sig.Strength)
}

func TestGenerateStructuralFailures(t *testing.T) {
	_, ok := Generate(adapters.PriceSeries{Symbol: "AAPL"}, 0)
	assert.False(t, ok)

	s := series([]float64{1, 2, 3})
	s.Bars[1].Close = math.NaN()
	_, ok = Generate(s, 0)
	assert.False(t, ok)
}

func TestStrengthAlwaysBounded(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		n := 1 + r.Intn(80)
		closes := make([]float64, n)
		p := 50 + r.Float64()*100
		for j := range closes {
			p = math.Max(1, p*(1+r.NormFloat64()*0.05))
			closes[j] = p
		}
		sig, ok := Generate(series(closes), r.Intn(3))
		require.True(t, ok)
		assert.GreaterOrEqual(t, sig.Strength, 0.0)
		assert.LessOrEqual(t, sig.Strength, 1.0)
		assert.Equal(t, sig.Strength, math.Round(sig.Strength*10000)/10000)
	}
}

func TestStrengthTerms(t *testing.T) {
	tests := []struct {
		name            string
		dir             Direction
		fast, slow, rsi float64
		fallback        bool
		want            float64
	}{
		{"buy at oversold edge", Buy, 100, 100, 30, false, 0.9},
		{"buy deep oversold capped", Buy, 102, 100, 10, false, 1.0},
		{"sell at overbought edge", Sell, 100, 100, 70, false, 0.9},
		{"sell small spread", Sell, 99.5, 100, 60, false, 0.75},
		{"buy nan rsi", Buy, 110, 100, math.NaN(), false, 0.5},
		{"hold nan rsi", Hold, 110, 100, math.NaN(), false, 0.5},
		{"buy nan averages", Buy, math.NaN(), math.NaN(), 40, false, 0.7},
		{"fallback buy skips spread", Buy, 113.5, 111, 66.67, true, 0.5},
		{"fallback sell skips spread", Sell, 90, 100, 60, true, 0.7},
		{"hold neutral", Hold, 100, 100, 50, false, 0.7},
		{"hold extreme", Hold, 100, 100, 100, false, 0.3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, strength(tt.dir, tt.fast, tt.slow, tt.rsi, tt.fallback), 1e-9)
		})
	}
}
