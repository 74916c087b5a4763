package adapters

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

// RetryPolicy bounds the per-provider retry of transient failures.
type RetryPolicy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second}
}

// Fetcher walks an ordered provider chain behind a two-tier cache.
type Fetcher struct {
	providers []Provider
	health    map[string]*ProviderHealth
	cache     *SeriesCache
	retry     RetryPolicy
}

func NewFetcher(cache *SeriesCache, retry RetryPolicy, providers ...Provider) *Fetcher {
	if retry.Attempts <= 0 {
		retry.Attempts = 1
	}
	health := make(map[string]*ProviderHealth, len(providers))
	for _, p := range providers {
		health[p.Name()] = NewProviderHealth(p.Name())
	}
	return &Fetcher{
		providers: providers,
		health:    health,
		cache:     cache,
		retry:     retry,
	}
}

// Fetch returns a validated series for symbol. The boolean is false when no
// provider produced data and no fallback entry is young enough; callers skip
// the symbol for this cycle in that case.
func (f *Fetcher) Fetch(ctx context.Context, symbol string) (PriceSeries, bool) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		observ.Warn("fetch_invalid_symbol", nil)
		return PriceSeries{}, false
	}

	if s, ok := f.cache.Get(symbol); ok {
		observ.Log("fetch_cache_hit", map[string]any{
			"symbol": symbol,
			"source": s.Source,
			"bars":   s.Len(),
		})
		return s, true
	}

	for _, p := range f.providers {
		series, err := f.fetchWithRetry(ctx, p, symbol)
		if err == nil {
			f.cache.Set(symbol, series)
			observ.Log("fetch_success", map[string]any{
				"symbol":   symbol,
				"provider": p.Name(),
				"bars":     series.Len(),
			})
			return series, true
		}
		observ.Warn("fetch_provider_failed", map[string]any{
			"symbol":   symbol,
			"provider": p.Name(),
			"kind":     KindOf(err),
			"error":    err.Error(),
		})
		if ctx.Err() != nil {
			break
		}
	}

	if s, age, ok := f.cache.GetFallback(symbol); ok {
		observ.Warn("fetch_stale_fallback", map[string]any{
			"symbol":      symbol,
			"source":      s.Source,
			"age_seconds": int(age.Seconds()),
		})
		return s, true
	}

	observ.Warn("fetch_no_data", map[string]any{
		"symbol":    symbol,
		"providers": len(f.providers),
	})
	return PriceSeries{}, false
}

// fetchWithRetry retries transient failures with exponential backoff. Rate
// limits and structural errors end the attempt on this provider at once.
func (f *Fetcher) fetchWithRetry(ctx context.Context, p Provider, symbol string) (PriceSeries, error) {
	h := f.health[p.Name()]
	var series PriceSeries

	op := func() error {
		start := time.Now()
		s, err := p.Fetch(ctx, symbol)
		if err == nil {
			err = ValidateSeries(&s)
		}
		if err != nil {
			h.RecordError(err)
			if k := KindOf(err); k == KindRateLimited || k == KindStructural {
				return backoff.Permanent(err)
			}
			return err
		}
		h.RecordSuccess(time.Since(start))
		series = s
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = f.retry.BaseDelay
	b.MaxInterval = f.retry.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.retry.Attempts-1)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		observ.Warn("fetch_retry", map[string]any{
			"symbol":   symbol,
			"provider": p.Name(),
			"wait_ms":  wait.Milliseconds(),
			"error":    err.Error(),
		})
	})
	return series, err
}

// ProviderNames lists the chain in priority order.
func (f *Fetcher) ProviderNames() []string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return names
}

func (f *Fetcher) HealthSnapshot() map[string]HealthSnapshot {
	out := make(map[string]HealthSnapshot, len(f.health))
	for name, h := range f.health {
		out[name] = h.Snapshot()
	}
	return out
}

// Cleanup drops cache entries that neither tier can serve anymore.
func (f *Fetcher) Cleanup() int {
	return f.cache.Cleanup()
}
