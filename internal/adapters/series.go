package adapters

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Bar is one daily OHLCV observation.
type Bar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceSeries is an ascending, duplicate-free run of daily bars for one symbol.
type PriceSeries struct {
	Symbol    string    `json:"symbol"`
	Bars      []Bar     `json:"bars"`
	Source    string    `json:"source"`     // provider name that produced the bars
	FetchedAt time.Time `json:"fetched_at"` // when the live fetch completed
	Stale     bool      `json:"stale"`      // served from the fallback tier
}

func (s PriceSeries) Len() int {
	return len(s.Bars)
}

// Closes returns the close column in date order.
func (s PriceSeries) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Last returns the most recent bar.
func (s PriceSeries) Last() (Bar, bool) {
	if len(s.Bars) == 0 {
		return Bar{}, false
	}
	return s.Bars[len(s.Bars)-1], true
}

// NormalizeSymbol upper-cases and trims a ticker.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// SortBars orders bars by date ascending in place.
func SortBars(bars []Bar) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date.Before(bars[j].Date) })
}

// ValidateSeries is fail-closed: a series with any non-positive field, an
// unordered or duplicated date, or no rows is rejected rather than repaired.
func ValidateSeries(s *PriceSeries) error {
	if s == nil {
		return NewStructuralError("", "", "series is nil", nil)
	}
	s.Symbol = NormalizeSymbol(s.Symbol)
	if s.Symbol == "" {
		return NewStructuralError(s.Source, s.Symbol, "empty symbol", nil)
	}
	if len(s.Bars) == 0 {
		return NewStructuralError(s.Source, s.Symbol, "series has no rows", nil)
	}

	for i, b := range s.Bars {
		if b.Date.IsZero() {
			return NewStructuralError(s.Source, s.Symbol, fmt.Sprintf("bar %d has no date", i), nil)
		}
		if !positive(b.Open) || !positive(b.High) || !positive(b.Low) || !positive(b.Close) {
			return NewStructuralError(s.Source, s.Symbol,
				fmt.Sprintf("bar %s has non-positive price: o=%.4f h=%.4f l=%.4f c=%.4f",
					b.Date.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close), nil)
		}
		if b.Volume <= 0 {
			return NewStructuralError(s.Source, s.Symbol,
				fmt.Sprintf("bar %s has non-positive volume %d", b.Date.Format("2006-01-02"), b.Volume), nil)
		}
		if i > 0 {
			prev := s.Bars[i-1].Date
			if !b.Date.After(prev) {
				if sameDay(prev, b.Date) {
					return NewStructuralError(s.Source, s.Symbol,
						fmt.Sprintf("duplicate date %s", b.Date.Format("2006-01-02")), nil)
				}
				return NewStructuralError(s.Source, s.Symbol,
					fmt.Sprintf("dates out of order at %s", b.Date.Format("2006-01-02")), nil)
			}
		}
	}
	return nil
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
