package adapters

import (
	"context"
	"strings"
	"time"

	"github.com/piquette/finance-go/chart"
	"github.com/piquette/finance-go/datetime"
)

// chartFunc loads daily bars between start and end.
type chartFunc func(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error)

// YahooProvider is the keyless last-resort source.
type YahooProvider struct {
	lookbackDays int
	now          func() time.Time
	chart        chartFunc
}

func NewYahooProvider(lookbackDays int) *YahooProvider {
	if lookbackDays <= 0 {
		lookbackDays = 100
	}
	return &YahooProvider{
		lookbackDays: lookbackDays,
		now:          time.Now,
		chart:        financeGoChart,
	}
}

func (y *YahooProvider) Name() string { return "yahoo" }

func (y *YahooProvider) Fetch(ctx context.Context, symbol string) (PriceSeries, error) {
	symbol = NormalizeSymbol(symbol)
	end := y.now().UTC()
	start := end.AddDate(0, 0, -y.lookbackDays)

	bars, err := y.chart(ctx, symbol, start, end)
	if err != nil {
		if ctx.Err() != nil {
			return PriceSeries{}, NewTransientError(y.Name(), symbol, "cancelled", ctx.Err())
		}
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "429") || hasRateLimitMarker([]byte(msg)) {
			return PriceSeries{}, NewRateLimitError(y.Name(), symbol, err.Error())
		}
		return PriceSeries{}, NewTransientError(y.Name(), symbol, "chart request failed", err)
	}
	if len(bars) == 0 {
		return PriceSeries{}, NewStructuralError(y.Name(), symbol, "no rows returned", nil)
	}
	SortBars(bars)
	return PriceSeries{Symbol: symbol, Bars: bars, Source: y.Name(), FetchedAt: y.now()}, nil
}

func financeGoChart(ctx context.Context, symbol string, start, end time.Time) ([]Bar, error) {
	params := &chart.Params{
		Symbol:   symbol,
		Start:    datetime.New(&start),
		End:      datetime.New(&end),
		Interval: datetime.OneDay,
	}

	iter := chart.Get(params)
	var bars []Bar
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bar := iter.Bar()
		bars = append(bars, Bar{
			Date:   time.Unix(int64(bar.Timestamp), 0).UTC(),
			Open:   bar.Open.InexactFloat64(),
			High:   bar.High.InexactFloat64(),
			Low:    bar.Low.InexactFloat64(),
			Close:  bar.Close.InexactFloat64(),
			Volume: int64(bar.Volume),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return bars, nil
}
