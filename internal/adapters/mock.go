package adapters

import (
	"context"
	"sync"
	"time"
)

// MockProvider returns scripted results for tests. Each call pops the next
// queued response for the symbol; once the queue is drained the last
// response repeats.
type MockProvider struct {
	name string

	mu        sync.Mutex
	responses map[string][]mockResponse
	calls     map[string]int
}

type mockResponse struct {
	series PriceSeries
	err    error
}

func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:      name,
		responses: make(map[string][]mockResponse),
		calls:     make(map[string]int),
	}
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Fetch(ctx context.Context, symbol string) (PriceSeries, error) {
	symbol = NormalizeSymbol(symbol)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[symbol]++

	if err := ctx.Err(); err != nil {
		return PriceSeries{}, NewTransientError(m.name, symbol, "cancelled", err)
	}

	queue := m.responses[symbol]
	if len(queue) == 0 {
		return PriceSeries{}, NewStructuralError(m.name, symbol, "symbol not found in mock data", nil)
	}
	r := queue[0]
	if len(queue) > 1 {
		m.responses[symbol] = queue[1:]
	}
	if r.err != nil {
		return PriceSeries{}, r.err
	}
	s := r.series
	s.Symbol = symbol
	s.Source = m.name
	s.Bars = append([]Bar(nil), r.series.Bars...)
	return s, nil
}

// AddSeries queues a successful response.
func (m *MockProvider) AddSeries(symbol string, bars []Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbol = NormalizeSymbol(symbol)
	m.responses[symbol] = append(m.responses[symbol], mockResponse{series: PriceSeries{Bars: bars}})
}

// AddError queues a failing response.
func (m *MockProvider) AddError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbol = NormalizeSymbol(symbol)
	m.responses[symbol] = append(m.responses[symbol], mockResponse{err: err})
}

// Calls reports how many times Fetch ran for symbol.
func (m *MockProvider) Calls(symbol string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[NormalizeSymbol(symbol)]
}

// TrendBars builds n weekday bars starting at start whose closes step by
// delta from first. Useful for driving crossover signals.
func TrendBars(start time.Time, n int, first, delta float64) []Bar {
	bars := make([]Bar, 0, n)
	day := start.UTC().Truncate(24 * time.Hour)
	price := first
	for len(bars) < n {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			bars = append(bars, Bar{
				Date:   day,
				Open:   price,
				High:   price * 1.01,
				Low:    price * 0.99,
				Close:  price,
				Volume: 1000000,
			})
			price += delta
		}
		day = day.AddDate(0, 0, 1)
	}
	return bars
}

// CloseBars builds weekday bars with the given closes.
func CloseBars(start time.Time, closes []float64) []Bar {
	bars := make([]Bar, 0, len(closes))
	day := start.UTC().Truncate(24 * time.Hour)
	for len(bars) < len(closes) {
		if wd := day.Weekday(); wd != time.Saturday && wd != time.Sunday {
			c := closes[len(bars)]
			bars = append(bars, Bar{Date: day, Open: c, High: c * 1.01, Low: c * 0.99, Close: c, Volume: 1000000})
		}
		day = day.AddDate(0, 0, 1)
	}
	return bars
}
