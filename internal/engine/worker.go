package engine

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/market"
	"github.com/Rajchodisetti/trading-bot/internal/observ"
)

type WorkerConfig struct {
	Symbols        []string
	Interval       time.Duration
	MaxLoops       int           // 0 = run until cancelled
	ErrorCooldown  time.Duration // wait after a sweep with any failed cycle
	ClosedSleepMax time.Duration // cap on one closed-market sleep
	IgnoreHours    bool          // sweep regardless of the calendar
}

// Worker is the single background loop: gate on market hours, sweep every
// symbol sequentially, sleep, repeat.
type Worker struct {
	orch     *Orchestrator
	calendar *market.Calendar
	cfg      WorkerConfig
	status   *Status
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) bool
}

func NewWorker(orch *Orchestrator, cal *market.Calendar, cfg WorkerConfig, status *Status) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 300 * time.Second
	}
	if cfg.ErrorCooldown <= 0 {
		cfg.ErrorCooldown = 60 * time.Second
	}
	if cfg.ClosedSleepMax <= 0 {
		cfg.ClosedSleepMax = 30 * time.Minute
	}
	if status == nil {
		status = NewStatus(nil, nil)
	}
	return &Worker{
		orch:     orch,
		calendar: cal,
		cfg:      cfg,
		status:   status,
		now:      func() time.Time { return time.Now().UTC() },
		sleep:    sleepCtx,
	}
}

func (w *Worker) Status() *Status { return w.status }

// Run loops until ctx is cancelled or MaxLoops sweeps have completed. A
// sweep already in progress always finishes.
func (w *Worker) Run(ctx context.Context) error {
	w.status.setState(StatusRunning)
	defer w.status.setState(StatusStopped)

	started := w.now()
	sweeps := 0
	observ.Log("worker_start", map[string]any{
		"symbols":    w.cfg.Symbols,
		"interval_s": int(w.cfg.Interval.Seconds()),
		"max_loops":  w.cfg.MaxLoops,
	})

	for ctx.Err() == nil {
		now := w.now()
		open := w.cfg.IgnoreHours || w.calendar.IsOpen(now)
		w.status.setMarketOpen(open)

		if !open {
			wait := w.calendar.UntilOpen(now)
			if wait > w.cfg.ClosedSleepMax {
				wait = w.cfg.ClosedSleepMax
			}
			w.status.setState(StatusSleeping)
			w.status.setNextCycle(now.Add(wait))
			observ.Log("market_closed", map[string]any{
				"session":   w.calendar.Session(now),
				"next_open": w.calendar.NextOpen(now),
				"sleep_s":   int(wait.Seconds()),
			})
			if !w.sleep(ctx, wait) {
				break
			}
			continue
		}

		w.status.setState(StatusRunning)
		sweeps++
		results, err := w.Sweep(ctx)
		w.status.recordSweep(now)
		observ.Log("sweep_done", map[string]any{"sweep": sweeps, "symbols": len(results), "failed": countFailed(results)})

		if w.cfg.MaxLoops > 0 && sweeps >= w.cfg.MaxLoops {
			observ.Log("worker_max_loops", map[string]any{"max_loops": w.cfg.MaxLoops})
			break
		}

		wait := w.cfg.Interval
		if failed := countFailed(results); err != nil || failed > 0 {
			if err != nil {
				observ.Error("sweep_failed", err, nil)
			}
			observ.Log("error_cooldown", map[string]any{"failed": failed, "cooldown_s": int(w.cfg.ErrorCooldown.Seconds())})
			wait = w.cfg.ErrorCooldown
		}
		w.status.setState(StatusSleeping)
		w.status.setNextCycle(now.Add(wait))
		if !w.sleep(ctx, wait) {
			break
		}
	}

	observ.Log("worker_stop", map[string]any{
		"sweeps":    sweeps,
		"runtime_s": int(w.now().Sub(started).Seconds()),
	})
	return nil
}

// Sweep runs one cycle per symbol, in order. Per-symbol failures are
// handled by the orchestrator; an error here means the sweep itself broke.
func (w *Worker) Sweep(ctx context.Context) (results []Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			observ.Error("sweep_panic", fmt.Errorf("%v", r), map[string]any{"stack": string(debug.Stack())})
			err = fmt.Errorf("sweep panic: %v", r)
		}
	}()
	// a started cycle runs to completion even if shutdown arrives meanwhile
	cycleCtx := context.WithoutCancel(ctx)
	for _, sym := range w.cfg.Symbols {
		if ctx.Err() != nil {
			break
		}
		results = append(results, w.orch.RunCycle(cycleCtx, sym))
	}
	return results, nil
}

func countFailed(results []Result) int {
	n := 0
	for _, r := range results {
		if r.Outcome == OutcomeFailed {
			n++
		}
	}
	return n
}

// sleepCtx waits d or until ctx is done; false means shutdown.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
