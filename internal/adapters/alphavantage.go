package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

// AlphaVantageProvider serves TIME_SERIES_DAILY and rotates across several
// API keys. A key that reports a quota condition is skipped for the rest of
// the call; the next key is tried immediately without backoff.
type AlphaVantageProvider struct {
	keys    []string
	client  *resty.Client
	limiter *rate.Limiter
	config  HTTPConfig
	now     func() time.Time

	mu      sync.Mutex
	current int // index of the key the next call starts with
}

type avDailyResponse struct {
	Series       map[string]map[string]string `json:"Time Series (Daily)"`
	ErrorMessage string                       `json:"Error Message"`
	Information  string                       `json:"Information"`
	Note         string                       `json:"Note"`
}

func NewAlphaVantageProvider(keys []string, config HTTPConfig) (*AlphaVantageProvider, error) {
	usable := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			usable = append(usable, k)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("Alpha Vantage API key is required")
	}
	if config.RateLimitPerMinute <= 0 {
		config.RateLimitPerMinute = 5 * len(usable) // free tier limit per key
	}
	config.setDefaults("https://www.alphavantage.co")
	return &AlphaVantageProvider{
		keys:    usable,
		client:  newRestClient(config),
		limiter: newLimiter(config.RateLimitPerMinute),
		config:  config,
		now:     time.Now,
	}, nil
}

func (av *AlphaVantageProvider) Name() string { return "alphavantage" }

// KeyCount reports how many keys are in rotation.
func (av *AlphaVantageProvider) KeyCount() int { return len(av.keys) }

func (av *AlphaVantageProvider) Fetch(ctx context.Context, symbol string) (PriceSeries, error) {
	symbol = NormalizeSymbol(symbol)

	av.mu.Lock()
	start := av.current
	av.mu.Unlock()

	n := len(av.keys)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		series, err := av.fetchWithKey(ctx, symbol, av.keys[idx])
		if err == nil || !IsRateLimited(err) {
			av.setCurrent(idx)
			return series, err
		}
		observ.Warn("alphavantage_key_rate_limited", map[string]any{
			"symbol":    symbol,
			"key_index": idx,
			"keys":      n,
		})
	}

	// Every key is exhausted; start the next call on a different key.
	av.setCurrent((start + 1) % n)
	return PriceSeries{}, NewRateLimitError(av.Name(), symbol, fmt.Sprintf("all %d keys rate limited", n))
}

func (av *AlphaVantageProvider) setCurrent(idx int) {
	av.mu.Lock()
	av.current = idx
	av.mu.Unlock()
}

func (av *AlphaVantageProvider) fetchWithKey(ctx context.Context, symbol, key string) (PriceSeries, error) {
	req := av.client.R().SetQueryParams(map[string]string{
		"function":   "TIME_SERIES_DAILY",
		"symbol":     symbol,
		"outputsize": "compact",
		"apikey":     key,
	})
	body, err := getJSON(ctx, av.Name(), symbol, av.limiter, req, "/query")
	if err != nil {
		return PriceSeries{}, err
	}

	var response avDailyResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return PriceSeries{}, NewStructuralError(av.Name(), symbol, "failed to parse response", err)
	}
	if response.ErrorMessage != "" {
		return PriceSeries{}, NewStructuralError(av.Name(), symbol, response.ErrorMessage, nil)
	}
	if response.Information != "" {
		// Quota and premium-endpoint messages arrive here with HTTP 200
		return PriceSeries{}, NewRateLimitError(av.Name(), symbol, response.Information)
	}
	if response.Note != "" {
		return PriceSeries{}, NewRateLimitError(av.Name(), symbol, response.Note)
	}
	if len(response.Series) == 0 {
		return PriceSeries{}, NewStructuralError(av.Name(), symbol, "no time series returned", nil)
	}

	bars, err := parseAVSeries(response.Series)
	if err != nil {
		return PriceSeries{}, NewStructuralError(av.Name(), symbol, "bad bar", err)
	}
	cutoff := av.now().UTC().AddDate(0, 0, -av.config.LookbackDays)
	kept := bars[:0]
	for _, b := range bars {
		if !b.Date.Before(cutoff) {
			kept = append(kept, b)
		}
	}
	if len(kept) == 0 {
		return PriceSeries{}, NewStructuralError(av.Name(), symbol, "no rows inside lookback window", nil)
	}

	return PriceSeries{Symbol: symbol, Bars: kept, Source: av.Name(), FetchedAt: av.now()}, nil
}

// parseAVSeries converts the numbered-key map ("1. open" ...) into sorted bars.
func parseAVSeries(raw map[string]map[string]string) ([]Bar, error) {
	bars := make([]Bar, 0, len(raw))
	for day, fields := range raw {
		d, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("date %q: %w", day, err)
		}
		b := Bar{Date: d}
		for key, dst := range map[string]*float64{
			"1. open":  &b.Open,
			"2. high":  &b.High,
			"3. low":   &b.Low,
			"4. close": &b.Close,
		} {
			v, err := strconv.ParseFloat(fields[key], 64)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", day, key, err)
			}
			*dst = v
		}
		vol, err := strconv.ParseInt(fields["5. volume"], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s volume: %w", day, err)
		}
		b.Volume = vol
		bars = append(bars, b)
	}
	SortBars(bars)
	return bars, nil
}
