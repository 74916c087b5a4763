package adapters

import (
	"sync"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

// ProviderStatus represents the health state of a data provider
type ProviderStatus string

const (
	ProviderStatusHealthy  ProviderStatus = "healthy"
	ProviderStatusDegraded ProviderStatus = "degraded"
	ProviderStatusFailed   ProviderStatus = "failed"
)

// ProviderHealth tracks provider reliability across fetches.
type ProviderHealth struct {
	mu                sync.RWMutex
	name              string
	status            ProviderStatus
	lastSuccessful    time.Time
	lastError         time.Time
	lastErrorKind     ErrorKind
	errorCount        int64
	successCount      int64
	consecutiveErrors int
	latencyAvg        time.Duration

	maxConsecutiveErrors int
}

// HealthSnapshot is the JSON view exposed on the status endpoint.
type HealthSnapshot struct {
	Status            ProviderStatus `json:"status"`
	ConsecutiveErrors int            `json:"consecutive_errors"`
	SuccessCount      int64          `json:"success_count"`
	ErrorCount        int64          `json:"error_count"`
	LastErrorKind     ErrorKind      `json:"last_error_kind,omitempty"`
	LastSuccessful    *time.Time     `json:"last_successful,omitempty"`
	LastError         *time.Time     `json:"last_error,omitempty"`
	LatencyAvgMs      int64          `json:"latency_avg_ms"`
}

func NewProviderHealth(name string) *ProviderHealth {
	return &ProviderHealth{
		name:                 name,
		status:               ProviderStatusHealthy,
		maxConsecutiveErrors: 5,
	}
}

// RecordSuccess records a successful fetch
func (ph *ProviderHealth) RecordSuccess(latency time.Duration) {
	ph.mu.Lock()
	defer ph.mu.Unlock()

	ph.lastSuccessful = time.Now()
	ph.successCount++
	ph.consecutiveErrors = 0
	if ph.latencyAvg == 0 {
		ph.latencyAvg = latency
	} else {
		ph.latencyAvg = time.Duration(0.9*float64(ph.latencyAvg) + 0.1*float64(latency))
	}
	ph.setStatus(ProviderStatusHealthy)
	observ.RecordFetch(ph.name, "success")
}

// RecordError records a failed fetch attempt
func (ph *ProviderHealth) RecordError(err error) {
	ph.mu.Lock()
	defer ph.mu.Unlock()

	ph.lastError = time.Now()
	ph.lastErrorKind = KindOf(err)
	ph.errorCount++
	ph.consecutiveErrors++

	if ph.consecutiveErrors >= ph.maxConsecutiveErrors {
		ph.setStatus(ProviderStatusFailed)
	} else {
		ph.setStatus(ProviderStatusDegraded)
	}
	observ.RecordFetch(ph.name, string(ph.lastErrorKind))
}

func (ph *ProviderHealth) setStatus(s ProviderStatus) {
	if ph.status == s {
		return
	}
	observ.Log("provider_status_change", map[string]any{
		"provider":           ph.name,
		"from":               ph.status,
		"to":                 s,
		"consecutive_errors": ph.consecutiveErrors,
	})
	ph.status = s
}

// GetStatus returns the current provider status
func (ph *ProviderHealth) GetStatus() ProviderStatus {
	ph.mu.RLock()
	defer ph.mu.RUnlock()
	return ph.status
}

func (ph *ProviderHealth) Snapshot() HealthSnapshot {
	ph.mu.RLock()
	defer ph.mu.RUnlock()
	return HealthSnapshot{
		Status:            ph.status,
		ConsecutiveErrors: ph.consecutiveErrors,
		SuccessCount:      ph.successCount,
		ErrorCount:        ph.errorCount,
		LastErrorKind:     ph.lastErrorKind,
		LastSuccessful:    optionalTime(ph.lastSuccessful),
		LastError:         optionalTime(ph.lastError),
		LatencyAvgMs:      ph.latencyAvg.Milliseconds(),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
