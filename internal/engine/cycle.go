package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Rajchodisetti/trading-bot/internal/broker"
	"github.com/Rajchodisetti/trading-bot/internal/decision"
	"github.com/Rajchodisetti/trading-bot/internal/observ"
	"github.com/Rajchodisetti/trading-bot/internal/outbox"
	"github.com/Rajchodisetti/trading-bot/internal/portfolio"
	"github.com/Rajchodisetti/trading-bot/internal/risk"
)

type Stage string

const (
	StageFetch     Stage = "FETCH"
	StageSignal    Stage = "SIGNAL"
	StageSize      Stage = "SIZE"
	StageGuard     Stage = "GUARD"
	StageExecute   Stage = "EXECUTE"
	StageReconcile Stage = "RECONCILE"
	StageDone      Stage = "DONE"
)

// Outcome names how a cycle ended. Everything except OutcomeFailed is a
// successful cycle as far as the failure counter is concerned.
type Outcome string

const (
	OutcomeTraded        Outcome = "traded"
	OutcomeNoData        Outcome = "no_data"
	OutcomeNoSignal      Outcome = "no_signal"
	OutcomeHold          Outcome = "hold"
	OutcomeNotSized      Outcome = "not_sized"
	OutcomeZeroShares    Outcome = "zero_shares"
	OutcomeGuardRejected Outcome = "guard_rejected"
	OutcomeFailed        Outcome = "failed"
)

// Result describes one pass over one symbol.
type Result struct {
	Symbol      string
	Outcome     Outcome
	LastStage   Stage // last stage entered before DONE
	Reason      string
	Signal      *decision.Signal
	Sizing      *risk.PositionSizing
	Fill        *outbox.Fill
	Position    *portfolio.Position
	Equity      *portfolio.EquitySnapshot
	RealizedPnL float64
	Attempts    int
	Stale       bool
	Err         error
}

// RetryPolicy wraps a whole cycle: Retries extra attempts, doubling from Base.
type RetryPolicy struct {
	Retries int
	Base    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Retries: 3, Base: time.Second}
}

// Orchestrator runs the per-symbol state machine
// FETCH -> SIGNAL -> SIZE -> GUARD -> EXECUTE -> RECONCILE -> DONE.
type Orchestrator struct {
	data           MarketData
	generator      decision.Config
	sizer          *risk.Sizer
	executor       Executor
	ledger         portfolio.Store
	journal        Journal
	alerts         Alerter
	startingEquity float64
	retry          RetryPolicy
	now            func() time.Time
}

type Deps struct {
	Data           MarketData
	Generator      decision.Config
	Sizer          *risk.Sizer
	Executor       Executor
	Ledger         portfolio.Store
	Journal        Journal // optional
	Alerts         Alerter
	StartingEquity float64
	Retry          RetryPolicy
}

func NewOrchestrator(d Deps) *Orchestrator {
	if d.Generator == (decision.Config{}) {
		d.Generator = decision.DefaultConfig()
	}
	if d.Sizer == nil {
		d.Sizer = risk.NewSizer(risk.DefaultSizerConfig())
	}
	if d.Retry == (RetryPolicy{}) {
		d.Retry = DefaultRetryPolicy()
	}
	if d.Retry.Base <= 0 {
		d.Retry.Base = time.Second
	}
	if d.Retry.Retries < 0 {
		d.Retry.Retries = 0
	}
	if d.StartingEquity <= 0 {
		d.StartingEquity = 100000
	}
	return &Orchestrator{
		data:           d.Data,
		generator:      d.Generator,
		sizer:          d.Sizer,
		executor:       d.Executor,
		ledger:         d.Ledger,
		journal:        d.Journal,
		alerts:         d.Alerts,
		startingEquity: d.StartingEquity,
		retry:          d.Retry,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// RunCycle makes one pass for symbol. Expected skips end the pass without
// retry; unexpected errors and panics are retried with backoff, except
// order validation failures which are final. It never panics.
func (o *Orchestrator) RunCycle(ctx context.Context, symbol string) Result {
	started := o.now()
	var (
		res     Result
		pending *pendingFill
	)
	attempts := 0

	op := func() (err error) {
		attempts++
		defer func() {
			if r := recover(); r != nil {
				observ.Error("cycle_panic", fmt.Errorf("%v", r), map[string]any{
					"symbol": symbol,
					"stage":  res.LastStage,
					"stack":  string(debug.Stack()),
				})
				err = fmt.Errorf("panic in %s stage: %v", res.LastStage, r)
			}
		}()
		res = Result{Symbol: symbol}
		err = o.attempt(ctx, &res, started, &pending)
		if err != nil && broker.IsOrderValidation(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.retry.Base
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = o.retry.Base * 8
	b.MaxElapsedTime = 0
	b.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.retry.Retries)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		observ.Warn("cycle_retry", map[string]any{
			"symbol":  symbol,
			"stage":   res.LastStage,
			"attempt": attempts,
			"wait_ms": wait.Milliseconds(),
			"error":   err.Error(),
		})
	})

	res.Symbol = symbol
	res.Attempts = attempts
	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
		res.Outcome = OutcomeFailed
		res.Err = err
		observ.Error("cycle_failed", err, map[string]any{"symbol": symbol, "stage": res.LastStage, "attempts": attempts})
		if o.alerts != nil {
			o.alerts.RecordFailure(ctx, fmt.Sprintf("%s: %v", symbol, err))
		}
	} else if o.alerts != nil {
		o.alerts.RecordSuccess()
	}

	observ.RecordCycle(string(res.Outcome), o.now().Sub(started))
	observ.Log("cycle_done", map[string]any{
		"symbol":   symbol,
		"outcome":  res.Outcome,
		"stage":    res.LastStage,
		"reason":   res.Reason,
		"attempts": attempts,
	})
	return res
}

func (o *Orchestrator) enter(res *Result, stage Stage) {
	res.LastStage = stage
	observ.Log("cycle_stage", map[string]any{"symbol": res.Symbol, "stage": stage})
}

func skip(res *Result, outcome Outcome, reason string) error {
	res.Outcome = outcome
	res.Reason = reason
	observ.Log("cycle_skip", map[string]any{"symbol": res.Symbol, "stage": res.LastStage, "outcome": outcome, "reason": reason})
	return nil
}

// pendingFill carries an executed order across retries together with the
// ledger writes already applied for it.
type pendingFill struct {
	fill         outbox.Fill
	rec          *portfolio.Reconciliation
	positionDone bool
	equityDone   bool
}

// attempt runs the stages once. A fill obtained by an earlier attempt is
// reconciled directly instead of placing the order again.
func (o *Orchestrator) attempt(ctx context.Context, res *Result, cycleStart time.Time, pending **pendingFill) error {
	symbol := res.Symbol

	if p := *pending; p != nil {
		fill := p.fill
		res.Fill = &fill
		observ.Log("cycle_resume_reconcile", map[string]any{"symbol": symbol, "order_id": fill.OrderID})
		if err := o.reconcile(ctx, res, p); err != nil {
			return err
		}
		*pending = nil
		res.Outcome = OutcomeTraded
		return nil
	}

	o.enter(res, StageFetch)
	series, ok := o.data.Fetch(ctx, symbol)
	if !ok {
		return skip(res, OutcomeNoData, "no provider data")
	}
	res.Stale = series.Stale

	o.enter(res, StageSignal)
	open, err := o.ledger.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("read positions: %w", err)
	}
	held := 0
	for _, p := range open {
		if p.Symbol == series.Symbol {
			held = p.Quantity
		}
	}
	sig, ok := o.generator.Generate(series, held)
	if !ok {
		return skip(res, OutcomeNoSignal, "series unusable for signal")
	}
	res.Signal = &sig
	o.recordSignal(ctx, sig)
	if sig.Direction == decision.Hold {
		return skip(res, OutcomeHold, fmt.Sprintf("raw=%s rsi=%.2f", sig.RawDirection, sig.RSI))
	}

	o.enter(res, StageSize)
	snap, err := o.latestEquity(ctx)
	if err != nil {
		return err
	}
	sizing, ok, err := o.sizer.Size(sig, snap.Equity, len(open), sig.Price)
	if err != nil {
		return err
	}
	if !ok {
		return skip(res, OutcomeNotSized, fmt.Sprintf("open_positions=%d", len(open)))
	}
	res.Sizing = &sizing
	if sizing.Shares <= 0 {
		return skip(res, OutcomeZeroShares, fmt.Sprintf("max_notional=%.2f price=%.2f", sizing.MaxNotional, sig.Price))
	}

	o.enter(res, StageGuard)
	side := outbox.SideBuy
	var verdict risk.Decision
	if sig.Direction == decision.Sell {
		side = outbox.SideSell
		verdict = risk.CheckSell(sizing.Shares, held)
	} else {
		verdict = risk.CheckBuy(sizing.Shares, sig.Price, snap.Cash)
	}
	if !verdict.Allowed {
		observ.Log("trade_prevented", map[string]any{
			"symbol": symbol,
			"side":   side,
			"shares": sizing.Shares,
			"held":   held,
			"cash":   snap.Cash,
			"reason": verdict.Reason,
		})
		return skip(res, OutcomeGuardRejected, verdict.Reason)
	}
	if verdict.Clipped {
		observ.Log("sell_clipped", map[string]any{"symbol": symbol, "requested": sizing.Shares, "held": held})
	}

	o.enter(res, StageExecute)
	order := outbox.Order{
		Symbol:         series.Symbol,
		Side:           side,
		Quantity:       verdict.Quantity,
		ReferencePrice: sig.Price,
		Strategy:       decision.Strategy,
		IdempotencyKey: outbox.GenerateIdempotencyKey(series.Symbol, side, verdict.Quantity, cycleStart),
		Timestamp:      o.now(),
	}
	fill, err := o.executor.Execute(ctx, order)
	if err != nil {
		return err
	}
	res.Fill = &fill
	*pending = &pendingFill{fill: fill}

	if err := o.reconcile(ctx, res, *pending); err != nil {
		return err
	}
	*pending = nil
	res.Outcome = OutcomeTraded
	return nil
}

// reconcile folds the fill into the ledger. The reconciliation is computed
// once per fill; a retry only replays the writes that have not landed yet.
func (o *Orchestrator) reconcile(ctx context.Context, res *Result, p *pendingFill) error {
	o.enter(res, StageReconcile)
	fill := p.fill

	if p.rec == nil {
		open, err := o.ledger.OpenPositions(ctx)
		if err != nil {
			return fmt.Errorf("read positions: %w", err)
		}
		var prev *portfolio.Position
		for i := range open {
			if open[i].Symbol == fill.Symbol {
				prev = &open[i]
			}
		}
		snap, err := o.latestEquity(ctx)
		if err != nil {
			return err
		}
		rec, err := portfolio.Reconcile(fill, prev, snap, open)
		if err != nil {
			return err
		}
		rec.Equity.Timestamp = o.snapshotTime(snap.Timestamp)
		p.rec = &rec
	}
	rec := *p.rec

	if !p.positionDone {
		var err error
		if rec.Closed {
			err = o.ledger.ClosePosition(ctx, fill.Symbol)
		} else {
			err = o.ledger.UpsertPosition(ctx, rec.Position)
		}
		if err != nil {
			return fmt.Errorf("write position: %w", err)
		}
		p.positionDone = true
	}
	if !p.equityDone {
		if err := o.ledger.AppendEquity(ctx, rec.Equity); err != nil {
			return fmt.Errorf("append equity: %w", err)
		}
		p.equityDone = true
	}

	trade := outbox.TradeRecord{
		OrderID:     fill.OrderID,
		Symbol:      fill.Symbol,
		Side:        fill.Side,
		Quantity:    fill.Quantity,
		Price:       fill.Price,
		Timestamp:   fill.Timestamp,
		Strategy:    fill.Strategy,
		Status:      fill.Status,
		RealizedPnL: rec.RealizedPnL,
	}
	if err := o.ledger.RecordTrade(ctx, trade); err != nil {
		observ.Error("trade_record_failed", err, map[string]any{"order_id": fill.OrderID})
	}
	if o.journal != nil {
		if err := o.journal.WriteTrade(trade); err != nil {
			observ.Error("journal_write_failed", err, map[string]any{"type": "trade", "order_id": fill.OrderID})
		}
	}

	observ.SetEquity(rec.Equity.Equity)
	observ.Log("ledger_reconciled", map[string]any{
		"symbol":       fill.Symbol,
		"side":         fill.Side,
		"quantity":     rec.Position.Quantity,
		"avg_price":    rec.Position.AvgEntryPrice,
		"cash":         rec.Equity.Cash,
		"equity":       rec.Equity.Equity,
		"realized_pnl": rec.RealizedPnL,
		"closed":       rec.Closed,
	})

	res.Position = &rec.Position
	res.Equity = &rec.Equity
	res.RealizedPnL = rec.RealizedPnL
	return nil
}

// latestEquity seeds the ledger with the starting equity on first use.
func (o *Orchestrator) latestEquity(ctx context.Context) (portfolio.EquitySnapshot, error) {
	snap, ok, err := o.ledger.LatestEquity(ctx)
	if err != nil {
		return portfolio.EquitySnapshot{}, fmt.Errorf("read equity: %w", err)
	}
	if ok {
		return snap, nil
	}
	snap = portfolio.EquitySnapshot{
		Timestamp:  o.now(),
		Cash:       o.startingEquity,
		Equity:     o.startingEquity,
		TotalValue: o.startingEquity,
	}
	if err := o.ledger.AppendEquity(ctx, snap); err != nil {
		return portfolio.EquitySnapshot{}, fmt.Errorf("seed equity: %w", err)
	}
	observ.Log("equity_seeded", map[string]any{"starting_equity": o.startingEquity})
	return snap, nil
}

// snapshotTime keeps snapshot timestamps strictly increasing.
func (o *Orchestrator) snapshotTime(prev time.Time) time.Time {
	t := o.now()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func (o *Orchestrator) recordSignal(ctx context.Context, sig decision.Signal) {
	rec := outbox.SignalRecord{
		Symbol:    sig.Symbol,
		Timestamp: sig.Timestamp,
		Strategy:  decision.Strategy,
		Direction: string(sig.Direction),
		Strength:  sig.Strength,
		Price:     sig.Price,
		Fallback:  sig.UsedFallbackStrategy,
	}
	if _, err := o.ledger.RecordSignal(ctx, rec); err != nil {
		observ.Error("signal_record_failed", err, map[string]any{"symbol": sig.Symbol})
	}
	if o.journal != nil {
		if _, err := o.journal.WriteSignal(rec); err != nil {
			observ.Error("journal_write_failed", err, map[string]any{"type": "signal", "symbol": sig.Symbol})
		}
	}
	observ.Log("signal_generated", map[string]any{
		"symbol":    sig.Symbol,
		"direction": sig.Direction,
		"raw":       sig.RawDirection,
		"strength":  sig.Strength,
		"fallback":  sig.UsedFallbackStrategy,
		"rsi":       nanToNil(sig.RSI),
		"fast_ma":   nanToNil(sig.FastMA),
		"slow_ma":   nanToNil(sig.SlowMA),
		"price":     sig.Price,
	})
}

// nanToNil keeps NaN out of JSON log lines.
func nanToNil(v float64) any {
	if v != v {
		return nil
	}
	return v
}
