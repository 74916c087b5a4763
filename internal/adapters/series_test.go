package adapters

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func TestValidateSeries(t *testing.T) {
	good := CloseBars(day0, []float64{10, 11, 12})

	tests := []struct {
		name    string
		mutate  func(s *PriceSeries)
		wantErr bool
	}{
		{"valid", func(s *PriceSeries) {}, false},
		{"empty", func(s *PriceSeries) { s.Bars = nil }, true},
		{"empty symbol", func(s *PriceSeries) { s.Symbol = "  " }, true},
		{"zero close", func(s *PriceSeries) { s.Bars[1].Close = 0 }, true},
		{"negative open", func(s *PriceSeries) { s.Bars[0].Open = -1 }, true},
		{"zero volume", func(s *PriceSeries) { s.Bars[2].Volume = 0 }, true},
		{"duplicate date", func(s *PriceSeries) { s.Bars[2].Date = s.Bars[1].Date }, true},
		{"out of order", func(s *PriceSeries) { s.Bars[0], s.Bars[2] = s.Bars[2], s.Bars[0] }, true},
		{"missing date", func(s *PriceSeries) { s.Bars[0].Date = time.Time{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := PriceSeries{Symbol: "aapl", Source: "test", Bars: append([]Bar(nil), good...)}
			tt.mutate(&s)
			err := ValidateSeries(&s)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsStructural(err), "want structural, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "AAPL", s.Symbol)
		})
	}
}

func TestSeriesAccessors(t *testing.T) {
	s := PriceSeries{Bars: CloseBars(day0, []float64{1, 2, 3})}
	assert.Equal(t, []float64{1, 2, 3}, s.Closes())
	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 3.0, last.Close)

	_, ok = PriceSeries{}.Last()
	assert.False(t, ok)
}

func TestClassifyResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   ErrorKind
		ok     bool
	}{
		{"ok", 200, `[{"close":1}]`, "", true},
		{"429", 429, ``, KindRateLimited, false},
		{"403", 403, `{"detail":"forbidden"}`, KindRateLimited, false},
		{"quota body", 200, `{"Information":"Our standard API rate limit is 25 requests per day."}`, KindRateLimited, false},
		{"tiingo allocation", 200, `{"detail":"Error: You have run over your hourly request allocation."}`, KindRateLimited, false},
		{"server error", 503, `oops`, KindTransient, false},
		{"not found", 404, `{"detail":"Error: Ticker 'ZZZZ' not found"}`, KindStructural, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classifyResponse("p", "AAPL", tt.status, []byte(tt.body))
			if tt.ok {
				assert.Nil(t, err)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Kind)
		})
	}
}

func TestKindOfUnwraps(t *testing.T) {
	base := NewRateLimitError("p", "AAPL", "slow down")
	wrapped := errors.Join(errors.New("context"), base)
	assert.True(t, IsRateLimited(wrapped))
	assert.Equal(t, KindTransient, KindOf(errors.New("plain")))
	assert.False(t, IsRateLimited(nil))
}
