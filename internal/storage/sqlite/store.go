package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Rajchodisetti/trading-bot/internal/outbox"
	"github.com/Rajchodisetti/trading-bot/internal/portfolio"
)

// Store is the relational ledger: positions upserted by symbol, equity
// snapshots, signals and trades append-only.
type Store struct {
	db *sql.DB
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer; the worker is serialized anyway
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS positions (
    symbol TEXT PRIMARY KEY,
    quantity INTEGER NOT NULL,
    average_entry_price REAL NOT NULL,
    current_price REAL NOT NULL,
    unrealized_pnl REAL NOT NULL DEFAULT 0,
    realized_pnl REAL NOT NULL DEFAULT 0,
    timestamp TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS equity_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL UNIQUE,
    cash REAL NOT NULL,
    equity REAL NOT NULL,
    total_value REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS signals (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    symbol TEXT NOT NULL,
    timestamp TEXT NOT NULL,
    strategy TEXT NOT NULL,
    direction TEXT NOT NULL,
    strength REAL NOT NULL,
    price REAL NOT NULL,
    used_fallback INTEGER NOT NULL DEFAULT 0,
    UNIQUE(symbol, timestamp, strategy)
);

CREATE TABLE IF NOT EXISTS trades (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    order_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    price REAL NOT NULL,
    timestamp TEXT NOT NULL,
    strategy TEXT NOT NULL,
    status TEXT NOT NULL,
    realized_pnl REAL NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_trades_symbol_ts ON trades(symbol, timestamp);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func (s *Store) OpenPositions(ctx context.Context) ([]portfolio.Position, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT symbol, quantity, average_entry_price, current_price, unrealized_pnl, realized_pnl, timestamp
FROM positions
WHERE quantity > 0
ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []portfolio.Position
	for rows.Next() {
		var (
			p  portfolio.Position
			ts string
		)
		if err := rows.Scan(&p.Symbol, &p.Quantity, &p.AvgEntryPrice, &p.CurrentPrice, &p.UnrealizedPnL, &p.RealizedPnL, &ts); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		if p.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("position %s timestamp: %w", p.Symbol, err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) LatestEquity(ctx context.Context) (portfolio.EquitySnapshot, bool, error) {
	var (
		snap portfolio.EquitySnapshot
		ts   string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT timestamp, cash, equity, total_value
FROM equity_snapshots
ORDER BY id DESC
LIMIT 1`).Scan(&ts, &snap.Cash, &snap.Equity, &snap.TotalValue)
	if errors.Is(err, sql.ErrNoRows) {
		return portfolio.EquitySnapshot{}, false, nil
	}
	if err != nil {
		return portfolio.EquitySnapshot{}, false, fmt.Errorf("query equity: %w", err)
	}
	if snap.Timestamp, err = parseTime(ts); err != nil {
		return portfolio.EquitySnapshot{}, false, fmt.Errorf("equity timestamp: %w", err)
	}
	return snap, true, nil
}

func (s *Store) UpsertPosition(ctx context.Context, p portfolio.Position) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO positions (symbol, quantity, average_entry_price, current_price, unrealized_pnl, realized_pnl, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol) DO UPDATE SET
    quantity=excluded.quantity,
    average_entry_price=excluded.average_entry_price,
    current_price=excluded.current_price,
    unrealized_pnl=excluded.unrealized_pnl,
    realized_pnl=excluded.realized_pnl,
    timestamp=excluded.timestamp
`, p.Symbol, p.Quantity, p.AvgEntryPrice, p.CurrentPrice, p.UnrealizedPnL, p.RealizedPnL, formatTime(p.Timestamp))
	if err != nil {
		return fmt.Errorf("upsert position %s: %w", p.Symbol, err)
	}
	return nil
}

func (s *Store) ClosePosition(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("close position %s: %w", symbol, err)
	}
	return nil
}

func (s *Store) AppendEquity(ctx context.Context, snap portfolio.EquitySnapshot) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO equity_snapshots (timestamp, cash, equity, total_value)
VALUES (?, ?, ?, ?)`, formatTime(snap.Timestamp), snap.Cash, snap.Equity, snap.TotalValue)
	if err != nil {
		return fmt.Errorf("append equity: %w", err)
	}
	return nil
}

// RecordSignal reports false when (symbol, timestamp, strategy) already exists.
func (s *Store) RecordSignal(ctx context.Context, rec outbox.SignalRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO signals (symbol, timestamp, strategy, direction, strength, price, used_fallback)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(symbol, timestamp, strategy) DO NOTHING`,
		rec.Symbol, formatTime(rec.Timestamp), rec.Strategy, rec.Direction, rec.Strength, rec.Price, rec.Fallback)
	if err != nil {
		return false, fmt.Errorf("record signal %s: %w", rec.Symbol, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) RecordTrade(ctx context.Context, rec outbox.TradeRecord) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO trades (order_id, symbol, side, quantity, price, timestamp, strategy, status, realized_pnl)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.OrderID, rec.Symbol, string(rec.Side), rec.Quantity, rec.Price, formatTime(rec.Timestamp), rec.Strategy, rec.Status, rec.RealizedPnL)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", rec.OrderID, err)
	}
	return nil
}

// ListTrades returns the most recent trades, newest first.
func (s *Store) ListTrades(ctx context.Context, limit int) ([]outbox.TradeRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT order_id, symbol, side, quantity, price, timestamp, strategy, status, realized_pnl
FROM trades
ORDER BY id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	var out []outbox.TradeRecord
	for rows.Next() {
		var (
			rec  outbox.TradeRecord
			side string
			ts   string
		)
		if err := rows.Scan(&rec.OrderID, &rec.Symbol, &side, &rec.Quantity, &rec.Price, &ts, &rec.Strategy, &rec.Status, &rec.RealizedPnL); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		rec.Side = outbox.Side(side)
		if rec.Timestamp, err = parseTime(ts); err != nil {
			return nil, fmt.Errorf("trade %s timestamp: %w", rec.OrderID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

var _ portfolio.Store = (*Store)(nil)
