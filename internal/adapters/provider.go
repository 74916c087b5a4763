package adapters

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// Provider produces a daily price series for a symbol. Implementations must
// return *FetchError on failure so the fetcher can decide between retrying,
// rotating and advancing.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (PriceSeries, error)
}

// HTTPConfig is shared by the REST daily-bar providers.
type HTTPConfig struct {
	BaseURL            string
	TimeoutSeconds     int
	RateLimitPerMinute int
	LookbackDays       int
}

func (c *HTTPConfig) setDefaults(baseURL string) {
	if c.BaseURL == "" {
		c.BaseURL = baseURL
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.LookbackDays <= 0 {
		c.LookbackDays = 100
	}
}

func newRestClient(cfg HTTPConfig) *resty.Client {
	client := resty.New()
	client.SetBaseURL(cfg.BaseURL)
	client.SetTimeout(time.Duration(cfg.TimeoutSeconds) * time.Second)
	client.SetHeader("Accept", "application/json")
	return client
}

func newLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), 1)
}

// getJSON performs a paced GET and returns the body of a usable response.
// Network failures are transient; status and body markers are classified by
// classifyResponse.
func getJSON(ctx context.Context, provider, symbol string, limiter *rate.Limiter, req *resty.Request, path string) ([]byte, error) {
	if err := limiter.Wait(ctx); err != nil {
		return nil, NewTransientError(provider, symbol, "rate limiter wait cancelled", err)
	}
	resp, err := req.SetContext(ctx).Get(path)
	if err != nil {
		return nil, NewTransientError(provider, symbol, "request failed", err)
	}
	body := resp.Body()
	if ferr := classifyResponse(provider, symbol, resp.StatusCode(), body); ferr != nil {
		return nil, ferr
	}
	return body, nil
}
