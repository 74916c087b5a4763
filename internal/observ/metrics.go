package observ

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "fetch_attempts_total", Help: "Provider fetch attempts by result"},
		[]string{"provider", "result"},
	)
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cache_lookups_total", Help: "Series cache lookups by tier and result"},
		[]string{"tier", "result"},
	)
	CycleOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "cycle_outcomes_total", Help: "Trading cycle outcomes"},
		[]string{"outcome"},
	)
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cycle_duration_seconds",
		Help:    "Wall time of one trading cycle",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
	ConsecutiveFailures = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cycle_consecutive_failures",
		Help: "Cycles failed in a row",
	})
	AlertsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alerts_sent_total", Help: "Failure alerts emitted by sink"},
		[]string{"sink"},
	)
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Orders submitted"},
		[]string{"side", "mode"},
	)
	Equity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "account_equity_usd",
		Help: "Most recent equity snapshot",
	})
)

func init() {
	prometheus.MustRegister(FetchAttempts, CacheLookups, CycleOutcomes, CycleDuration,
		ConsecutiveFailures, AlertsSent, OrdersTotal, Equity)
}

func RecordFetch(provider, result string) {
	FetchAttempts.WithLabelValues(provider, result).Inc()
}

func RecordCacheLookup(tier, result string) {
	CacheLookups.WithLabelValues(tier, result).Inc()
}

func RecordCycle(outcome string, d time.Duration) {
	CycleOutcomes.WithLabelValues(outcome).Inc()
	CycleDuration.Observe(d.Seconds())
}

func SetConsecutiveFailures(n int) {
	ConsecutiveFailures.Set(float64(n))
}

func RecordAlert(sink string) {
	AlertsSent.WithLabelValues(sink).Inc()
}

func RecordOrder(side, mode string) {
	OrdersTotal.WithLabelValues(side, mode).Inc()
}

func SetEquity(v float64) {
	Equity.Set(v)
}

// Handler serves the default prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
