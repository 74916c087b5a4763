package alerts

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

// Monitor counts consecutive failed cycles and raises an alert once the
// count reaches the threshold, at most once per cooldown window. Counters
// and timestamps are atomics so status readers never wait on a sink.
type Monitor struct {
	mu        sync.Mutex // serializes the cooldown decision, never held across Send
	threshold int
	cooldown  time.Duration
	sinks     []Sink
	now       func() time.Time

	consecutive atomic.Int64
	lastSuccess atomic.Int64 // unix nanos, 0 = never
	lastAlert   atomic.Int64
}

// MonitorStatus is a point-in-time copy for status reporting.
type MonitorStatus struct {
	ConsecutiveFailures int        `json:"consecutive_failures"`
	Threshold           int        `json:"max_consecutive_failures"`
	LastSuccess         *time.Time `json:"last_success_time,omitempty"`
	LastAlert           *time.Time `json:"last_alert_time,omitempty"`
	WebhookConfigured   bool       `json:"webhook_configured"`
}

// NewMonitor tries sinks in order; a LogSink is always appended as the
// last resort.
func NewMonitor(threshold int, cooldown time.Duration, sinks ...Sink) *Monitor {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = time.Hour
	}
	return &Monitor{
		threshold: threshold,
		cooldown:  cooldown,
		sinks:     append(append([]Sink(nil), sinks...), LogSink{}),
		now:       time.Now,
	}
}

// NewMonitorFromURL wires a webhook sink when url is set.
func NewMonitorFromURL(url string, threshold int, cooldown time.Duration) *Monitor {
	if strings.TrimSpace(url) == "" {
		return NewMonitor(threshold, cooldown)
	}
	return NewMonitor(threshold, cooldown, NewWebhookSink(url, 10*time.Second))
}

func (m *Monitor) RecordSuccess() {
	if prev := m.consecutive.Swap(0); prev > 0 {
		observ.Log("failure_counter_reset", map[string]any{"previous": prev})
	}
	m.lastSuccess.Store(m.now().UnixNano())
	observ.SetConsecutiveFailures(0)
}

// RecordFailure bumps the counter and reports whether an alert went out.
// Sinks run after the cooldown slot is claimed and without any lock held.
func (m *Monitor) RecordFailure(ctx context.Context, errMsg string) bool {
	n := int(m.consecutive.Add(1))
	observ.SetConsecutiveFailures(n)
	observ.Warn("cycle_failure_recorded", map[string]any{"consecutive": n, "error": errMsg})

	if n < m.threshold {
		return false
	}

	m.mu.Lock()
	now := m.now()
	if last := m.lastAlert.Load(); last != 0 {
		if elapsed := now.Sub(time.Unix(0, last)); elapsed < m.cooldown {
			m.mu.Unlock()
			observ.Log("alert_suppressed", map[string]any{"consecutive": n, "cooldown_remaining_s": int((m.cooldown - elapsed).Seconds())})
			return false
		}
	}
	m.lastAlert.Store(now.UnixNano())
	msg := m.message(now, n, errMsg)
	m.mu.Unlock()

	for _, sink := range m.sinks {
		if err := sink.Send(ctx, msg); err != nil {
			observ.Error("alert_sink_failed", err, map[string]any{"sink": sink.Name()})
			continue
		}
		observ.RecordAlert(sink.Name())
		break
	}
	return true
}

func (m *Monitor) message(now time.Time, consecutive int, errMsg string) string {
	since := "unknown"
	if last := m.lastSuccess.Load(); last != 0 {
		since = fmt.Sprintf("%.1f", now.Sub(time.Unix(0, last)).Hours())
	}
	if errMsg == "" {
		errMsg = "No specific error message"
	}
	env := os.Getenv("SERVICE_NAME")
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf("TRADING BOT FAILURE ALERT\nTime: %s\nConsecutive failures: %d\nHours since last success: %s\nLatest error: %s\nEnvironment: %s",
		now.UTC().Format("2006-01-02 15:04:05 UTC"), consecutive, since, errMsg, env)
}

// Status reads atomics only; it is safe to call from the health responder
// while an alert is being delivered.
func (m *Monitor) Status() MonitorStatus {
	return MonitorStatus{
		ConsecutiveFailures: m.ConsecutiveFailures(),
		Threshold:           m.threshold,
		LastSuccess:         nanosToTime(m.lastSuccess.Load()),
		LastAlert:           nanosToTime(m.lastAlert.Load()),
		WebhookConfigured:   len(m.sinks) > 1,
	}
}

func (m *Monitor) ConsecutiveFailures() int {
	return int(m.consecutive.Load())
}

func nanosToTime(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
