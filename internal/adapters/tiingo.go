package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// TiingoProvider is the primary daily-bar source.
type TiingoProvider struct {
	apiKey  string
	client  *resty.Client
	limiter *rate.Limiter
	config  HTTPConfig
	now     func() time.Time
}

type tiingoBar struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

func NewTiingoProvider(apiKey string, config HTTPConfig) (*TiingoProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Tiingo API key is required")
	}
	config.setDefaults("https://api.tiingo.com")
	return &TiingoProvider{
		apiKey:  apiKey,
		client:  newRestClient(config),
		limiter: newLimiter(config.RateLimitPerMinute),
		config:  config,
		now:     time.Now,
	}, nil
}

func (t *TiingoProvider) Name() string { return "tiingo" }

func (t *TiingoProvider) Fetch(ctx context.Context, symbol string) (PriceSeries, error) {
	symbol = NormalizeSymbol(symbol)
	start := t.now().UTC().AddDate(0, 0, -t.config.LookbackDays).Format("2006-01-02")

	req := t.client.R().
		SetPathParam("symbol", strings.ToLower(symbol)).
		SetQueryParams(map[string]string{
			"token":     t.apiKey,
			"startDate": start,
			"format":    "json",
		})
	body, err := getJSON(ctx, t.Name(), symbol, t.limiter, req, "/tiingo/daily/{symbol}/prices")
	if err != nil {
		return PriceSeries{}, err
	}

	var rows []tiingoBar
	if err := json.Unmarshal(body, &rows); err != nil {
		return PriceSeries{}, NewStructuralError(t.Name(), symbol, "failed to parse response", err)
	}
	if len(rows) == 0 {
		return PriceSeries{}, NewStructuralError(t.Name(), symbol, "no rows returned", nil)
	}

	bars := make([]Bar, 0, len(rows))
	for _, r := range rows {
		d, err := time.Parse(time.RFC3339, r.Date)
		if err != nil {
			return PriceSeries{}, NewStructuralError(t.Name(), symbol, "bad date "+r.Date, err)
		}
		bars = append(bars, Bar{Date: d.UTC(), Open: r.Open, High: r.High, Low: r.Low, Close: r.Close, Volume: r.Volume})
	}
	SortBars(bars)

	return PriceSeries{Symbol: symbol, Bars: bars, Source: t.Name(), FetchedAt: t.now()}, nil
}
