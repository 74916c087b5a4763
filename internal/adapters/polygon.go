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

// PolygonProvider reads daily aggregates. It is optional and only joins the
// chain when a key is configured.
type PolygonProvider struct {
	apiKey  string
	client  *resty.Client
	limiter *rate.Limiter
	config  HTTPConfig
	now     func() time.Time
}

type polygonAggsResponse struct {
	Status  string `json:"status"`
	Results []struct {
		O float64 `json:"o"`
		H float64 `json:"h"`
		L float64 `json:"l"`
		C float64 `json:"c"`
		V float64 `json:"v"`
		T int64   `json:"t"` // bar start, unix ms
	} `json:"results"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewPolygonProvider(apiKey string, config HTTPConfig) (*PolygonProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Polygon API key is required")
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 5 // free tier
	}
	config.setDefaults("https://api.polygon.io")
	return &PolygonProvider{
		apiKey:  apiKey,
		client:  newRestClient(config),
		limiter: newLimiter(config.RateLimitPerMinute),
		config:  config,
		now:     time.Now,
	}, nil
}

func (p *PolygonProvider) Name() string { return "polygon" }

func (p *PolygonProvider) Fetch(ctx context.Context, symbol string) (PriceSeries, error) {
	symbol = NormalizeSymbol(symbol)
	end := p.now().UTC()
	start := end.AddDate(0, 0, -p.config.LookbackDays)

	req := p.client.R().
		SetPathParams(map[string]string{
			"symbol": polygonSymbol(symbol),
			"from":   start.Format("2006-01-02"),
			"to":     end.Format("2006-01-02"),
		}).
		SetQueryParams(map[string]string{
			"adjusted": "true",
			"sort":     "asc",
			"apiKey":   p.apiKey,
		})
	body, err := getJSON(ctx, p.Name(), symbol, p.limiter, req, "/v2/aggs/ticker/{symbol}/range/1/day/{from}/{to}")
	if err != nil {
		return PriceSeries{}, err
	}

	var response polygonAggsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return PriceSeries{}, NewStructuralError(p.Name(), symbol, "failed to parse response", err)
	}
	if response.Status != "OK" && response.Status != "DELAYED" {
		msg := response.Error
		if msg == "" {
			msg = response.Message
		}
		if msg == "" {
			msg = "non-OK status: " + response.Status
		}
		return PriceSeries{}, NewStructuralError(p.Name(), symbol, msg, nil)
	}
	if len(response.Results) == 0 {
		return PriceSeries{}, NewStructuralError(p.Name(), symbol, "no rows returned", nil)
	}

	bars := make([]Bar, 0, len(response.Results))
	for _, r := range response.Results {
		bars = append(bars, Bar{
			Date:   time.UnixMilli(r.T).UTC(),
			Open:   r.O,
			High:   r.H,
			Low:    r.L,
			Close:  r.C,
			Volume: int64(r.V),
		})
	}
	SortBars(bars)
	return PriceSeries{Symbol: symbol, Bars: bars, Source: p.Name(), FetchedAt: p.now()}, nil
}

// polygonSymbol maps class-share spellings onto Polygon's dotted form.
func polygonSymbol(symbol string) string {
	switch {
	case strings.Contains(symbol, "BRK-A"):
		return "BRK.A"
	case strings.Contains(symbol, "BRK-B"):
		return "BRK.B"
	case strings.HasSuffix(symbol, ".US"):
		return strings.TrimSuffix(symbol, ".US")
	default:
		return symbol
	}
}
