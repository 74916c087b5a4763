package engine

import (
	"sync/atomic"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/adapters"
	"github.com/Rajchodisetti/trading-bot/internal/alerts"
)

const (
	StatusStarting = "starting"
	StatusRunning  = "running"
	StatusSleeping = "sleeping"
	StatusStopped  = "stopped"
)

// Status is written by the worker and read by the HTTP responder. Every
// field is an atomic so readers never block the trading loop.
type Status struct {
	state           atomic.Pointer[string]
	cyclesCompleted atomic.Int64
	lastCycle       atomic.Int64 // unix nanos, 0 = never
	nextCycle       atomic.Int64
	marketOpen      atomic.Bool
	startedAt       time.Time

	alertState func() alerts.MonitorStatus
	health     func() map[string]adapters.HealthSnapshot
}

// StatusView is the JSON shape served on /health and /status.
type StatusView struct {
	Status              string                             `json:"status"`
	CyclesCompleted     int64                              `json:"cycles_completed"`
	LastCycleTime       *time.Time                         `json:"last_cycle_time"`
	NextCycleTime       *time.Time                         `json:"next_cycle_time"`
	MarketOpen          bool                               `json:"market_open"`
	UptimeStart         time.Time                          `json:"uptime_start"`
	ConsecutiveFailures int                                `json:"consecutive_failures"`
	Alerts              *alerts.MonitorStatus              `json:"alerts,omitempty"`
	Providers           map[string]adapters.HealthSnapshot `json:"providers,omitempty"`
}

// NewStatus reads alert and provider state through the given callbacks,
// either of which may be nil. Both must be lock-free on the hot path.
func NewStatus(alertState func() alerts.MonitorStatus, health func() map[string]adapters.HealthSnapshot) *Status {
	s := &Status{startedAt: time.Now().UTC(), alertState: alertState, health: health}
	s.setState(StatusStarting)
	return s
}

func (s *Status) setState(v string) { s.state.Store(&v) }

func (s *Status) State() string {
	if p := s.state.Load(); p != nil {
		return *p
	}
	return StatusStarting
}

func (s *Status) setMarketOpen(open bool) { s.marketOpen.Store(open) }

func (s *Status) recordSweep(at time.Time) {
	s.cyclesCompleted.Add(1)
	s.lastCycle.Store(at.UnixNano())
}

func (s *Status) setNextCycle(at time.Time) { s.nextCycle.Store(at.UnixNano()) }

func (s *Status) CyclesCompleted() int64 { return s.cyclesCompleted.Load() }

func (s *Status) Snapshot() StatusView {
	v := StatusView{
		Status:          s.State(),
		CyclesCompleted: s.cyclesCompleted.Load(),
		LastCycleTime:   nanosToTime(s.lastCycle.Load()),
		NextCycleTime:   nanosToTime(s.nextCycle.Load()),
		MarketOpen:      s.marketOpen.Load(),
		UptimeStart:     s.startedAt,
	}
	if s.alertState != nil {
		a := s.alertState()
		v.ConsecutiveFailures = a.ConsecutiveFailures
		v.Alerts = &a
	}
	if s.health != nil {
		v.Providers = s.health()
	}
	return v
}

// StatusSnapshot satisfies observ.StatusSource.
func (s *Status) StatusSnapshot() any { return s.Snapshot() }

func nanosToTime(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
