package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/adapters"
	"github.com/Rajchodisetti/trading-bot/internal/alerts"
	"github.com/Rajchodisetti/trading-bot/internal/broker"
	"github.com/Rajchodisetti/trading-bot/internal/config"
	"github.com/Rajchodisetti/trading-bot/internal/decision"
	"github.com/Rajchodisetti/trading-bot/internal/engine"
	"github.com/Rajchodisetti/trading-bot/internal/market"
	"github.com/Rajchodisetti/trading-bot/internal/observ"
	"github.com/Rajchodisetti/trading-bot/internal/outbox"
	"github.com/Rajchodisetti/trading-bot/internal/portfolio"
	"github.com/Rajchodisetti/trading-bot/internal/risk"
	"github.com/Rajchodisetti/trading-bot/internal/storage/sqlite"
)

// app holds every long-lived component of one process.
type app struct {
	cfg      config.Root
	fetcher  *adapters.Fetcher
	ledger   portfolio.Store
	journal  *outbox.Outbox
	executor *broker.Executor
	monitor  *alerts.Monitor
	orch     *engine.Orchestrator
	status   *engine.Status
	calendar *market.Calendar
}

func newApp(cfg config.Root) (*app, error) {
	fetcher, err := adapters.NewFetcherFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("market data: %w", err)
	}
	ledger, err := openLedger(cfg.Storage)
	if err != nil {
		return nil, err
	}
	journal, err := outbox.New(cfg.Storage.JournalPath, 24*time.Hour)
	if err != nil {
		ledger.Close()
		return nil, err
	}
	executor, err := broker.NewFromConfig(cfg.Broker, cfg.Risk.MaxOrderShares, journal)
	if err != nil {
		ledger.Close()
		return nil, err
	}
	cal, err := market.NewCalendar()
	if err != nil {
		ledger.Close()
		return nil, fmt.Errorf("market calendar: %w", err)
	}

	monitor := alerts.NewMonitorFromURL(cfg.Alerts.WebhookURL, cfg.Alerts.FailureThreshold,
		time.Duration(cfg.Alerts.CooldownSeconds)*time.Second)

	orch := engine.NewOrchestrator(engine.Deps{
		Data:      fetcher,
		Generator: decision.DefaultConfig(),
		Sizer: risk.NewSizer(risk.SizerConfig{
			RiskPerTrade:     cfg.Risk.RiskPerTrade,
			StopLossFraction: cfg.Risk.StopLossFraction,
			MaxOpenPositions: cfg.Risk.MaxOpenPositions,
		}),
		Executor:       executor,
		Ledger:         ledger,
		Journal:        journal,
		Alerts:         monitor,
		StartingEquity: cfg.StartingEquity,
		Retry: engine.RetryPolicy{
			Retries: cfg.Loop.CycleRetries,
			Base:    time.Duration(cfg.Loop.CycleBackoffBaseMs) * time.Millisecond,
		},
	})

	observ.Log("app_ready", map[string]any{
		"symbols":   cfg.Symbols,
		"providers": fetcher.ProviderNames(),
		"broker":    executor.Mode(),
		"storage":   cfg.Storage.Backend,
		"journal":   journal.Path(),
		"test_mode": cfg.TestMode,
	})

	return &app{
		cfg:      cfg,
		fetcher:  fetcher,
		ledger:   ledger,
		journal:  journal,
		executor: executor,
		monitor:  monitor,
		orch:     orch,
		status:   engine.NewStatus(monitor.Status, fetcher.HealthSnapshot),
		calendar: cal,
	}, nil
}

func openLedger(cfg config.Storage) (portfolio.Store, error) {
	switch cfg.Backend {
	case "file":
		return portfolio.NewFileStore(cfg.StatePath)
	case "sqlite", "":
		return sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func (a *app) worker(cfg engine.WorkerConfig) *engine.Worker {
	return engine.NewWorker(a.orch, a.calendar, cfg, a.status)
}

func (a *app) workerConfig() engine.WorkerConfig {
	l := a.cfg.Loop
	return engine.WorkerConfig{
		Symbols:        a.cfg.Symbols,
		Interval:       time.Duration(l.IntervalSeconds) * time.Second,
		MaxLoops:       l.MaxLoops,
		ErrorCooldown:  time.Duration(l.ErrorCooldownSeconds) * time.Second,
		ClosedSleepMax: time.Duration(l.ClosedSleepMaxSeconds) * time.Second,
	}
}

// sweepCache drops expired fallback entries until ctx is done.
func (a *app) sweepCache(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := a.fetcher.Cleanup(); n > 0 {
				observ.Log("cache_cleanup", map[string]any{"evicted": n})
			}
		}
	}
}

// trades lists recorded trades newest first, whichever backend holds them.
func (a *app) trades(ctx context.Context, limit int) ([]outbox.TradeRecord, error) {
	switch l := a.ledger.(type) {
	case *sqlite.Store:
		return l.ListTrades(ctx, limit)
	case *portfolio.FileStore:
		all := l.Trades()
		out := make([]outbox.TradeRecord, 0, len(all))
		for i := len(all) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			out = append(out, all[i])
		}
		return out, nil
	default:
		return nil, errors.New("ledger backend cannot list trades")
	}
}

func (a *app) Close() error {
	return a.ledger.Close()
}
