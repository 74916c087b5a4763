package adapters

import (
	"fmt"
	"strings"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/config"
	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

// BuildProviders instantiates the configured chain in order. Providers whose
// credentials are missing are skipped with a log line rather than failing
// startup; an empty chain is an error.
func BuildProviders(cfg config.Providers, testMode bool) ([]Provider, error) {
	httpCfg := func(baseURL string) HTTPConfig {
		return HTTPConfig{
			BaseURL:            baseURL,
			TimeoutSeconds:     cfg.TimeoutSeconds,
			RateLimitPerMinute: cfg.RateLimitPerMinute,
			LookbackDays:       cfg.LookbackDays,
		}
	}

	var out []Provider
	for _, name := range cfg.Order {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "tiingo":
			p, err := NewTiingoProvider(cfg.Tiingo.APIKey, httpCfg(cfg.Tiingo.BaseURL))
			if err != nil {
				logSkipped(name, err)
				continue
			}
			out = append(out, p)

		case "alphavantage":
			c := httpCfg(cfg.AlphaVantage.BaseURL)
			c.RateLimitPerMinute = 0 // derive from key count
			p, err := NewAlphaVantageProvider(cfg.AlphaVantage.APIKeys, c)
			if err != nil {
				logSkipped(name, err)
				continue
			}
			out = append(out, p)

		case "polygon":
			c := httpCfg(cfg.Polygon.BaseURL)
			c.RateLimitPerMinute = 0
			p, err := NewPolygonProvider(cfg.Polygon.APIKey, c)
			if err != nil {
				logSkipped(name, err)
				continue
			}
			out = append(out, p)

		case "yahoo":
			if cfg.Yahoo.Disabled {
				logSkipped(name, fmt.Errorf("disabled in config"))
				continue
			}
			out = append(out, NewYahooProvider(cfg.LookbackDays))

		case "sim":
			out = append(out, NewSimProvider(cfg.LookbackDays))

		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	if testMode && len(out) == 0 {
		observ.Log("provider_chain_fallback", map[string]any{
			"fallback_to": "sim",
			"reason":      "test mode without live providers",
		})
		out = append(out, NewSimProvider(cfg.LookbackDays))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no usable market data providers in %v", cfg.Order)
	}

	names := make([]string, len(out))
	for i, p := range out {
		names[i] = p.Name()
	}
	observ.Log("provider_chain_built", map[string]any{"providers": names})
	return out, nil
}

// NewFetcherFromConfig wires cache, retry policy and provider chain.
func NewFetcherFromConfig(root config.Root) (*Fetcher, error) {
	providers, err := BuildProviders(root.Providers, root.TestMode)
	if err != nil {
		return nil, err
	}
	cache := NewSeriesCache(
		time.Duration(root.Cache.TTLSeconds)*time.Second,
		time.Duration(root.Cache.FallbackHours)*time.Hour,
	)
	retry := DefaultRetryPolicy()
	if n := root.Providers.RetryAttempts; n > 0 {
		retry.Attempts = n
	}
	if ms := root.Providers.BackoffBaseMs; ms > 0 {
		retry.BaseDelay = time.Duration(ms) * time.Millisecond
	}
	if ms := root.Providers.BackoffMaxMs; ms > 0 {
		retry.MaxDelay = time.Duration(ms) * time.Millisecond
	}
	return NewFetcher(cache, retry, providers...), nil
}

func logSkipped(name string, err error) {
	observ.Log("provider_skipped", map[string]any{
		"provider": name,
		"reason":   err.Error(),
	})
}
