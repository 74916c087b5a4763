package portfolio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Rajchodisetti/trading-bot/internal/outbox"
)

// Store is the ledger persistence boundary. Positions are upserted by
// symbol; equity snapshots, signals and trades are append-only.
type Store interface {
	OpenPositions(ctx context.Context) ([]Position, error)
	LatestEquity(ctx context.Context) (EquitySnapshot, bool, error)
	UpsertPosition(ctx context.Context, p Position) error
	ClosePosition(ctx context.Context, symbol string) error
	AppendEquity(ctx context.Context, s EquitySnapshot) error
	RecordSignal(ctx context.Context, rec outbox.SignalRecord) (bool, error)
	RecordTrade(ctx context.Context, rec outbox.TradeRecord) error
	Close() error
}

// State is the on-disk document of a FileStore.
type State struct {
	Version   int64                 `json:"version"`
	UpdatedAt string                `json:"updated_at"`
	Positions map[string]Position   `json:"positions"`
	Equity    []EquitySnapshot      `json:"equity"`
	Signals   []outbox.SignalRecord `json:"signals"`
	Trades    []outbox.TradeRecord  `json:"trades"`
}

// FileStore keeps the ledger in a single JSON file, rewritten atomically
// after each mutation.
type FileStore struct {
	filePath string
	state    State
	mu       sync.RWMutex
}

// NewFileStore loads filePath, creating an empty ledger when it does not exist.
func NewFileStore(filePath string) (*FileStore, error) {
	m := &FileStore{
		filePath: filePath,
		state:    State{Positions: make(map[string]Position)},
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *FileStore) load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(filepath.Dir(m.filePath), 0755); err != nil {
				return fmt.Errorf("failed to create ledger dir: %w", err)
			}
			return m.saveUnsafe()
		}
		return fmt.Errorf("failed to read ledger state: %w", err)
	}
	if err := json.Unmarshal(data, &m.state); err != nil {
		return fmt.Errorf("failed to unmarshal ledger state: %w", err)
	}
	if m.state.Positions == nil {
		m.state.Positions = make(map[string]Position)
	}
	return nil
}

// saveUnsafe writes without acquiring the lock.
func (m *FileStore) saveUnsafe() error {
	m.state.Version++
	m.state.UpdatedAt = time.Now().UTC().Format(time.RFC3339)

	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ledger state: %w", err)
	}

	tempPath := m.filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp ledger state: %w", err)
	}
	if err := os.Rename(tempPath, m.filePath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename ledger state: %w", err)
	}
	return nil
}

func (m *FileStore) OpenPositions(ctx context.Context) ([]Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Position, 0, len(m.state.Positions))
	for _, p := range m.state.Positions {
		if p.Open() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (m *FileStore) LatestEquity(ctx context.Context) (EquitySnapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.state.Equity) == 0 {
		return EquitySnapshot{}, false, nil
	}
	return m.state.Equity[len(m.state.Equity)-1], true, nil
}

func (m *FileStore) UpsertPosition(ctx context.Context, p Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Positions[p.Symbol] = p
	return m.saveUnsafe()
}

func (m *FileStore) ClosePosition(ctx context.Context, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.Positions[symbol]; !ok {
		return nil
	}
	delete(m.state.Positions, symbol)
	return m.saveUnsafe()
}

// AppendEquity rejects a snapshot whose timestamp is already recorded.
func (m *FileStore) AppendEquity(ctx context.Context, s EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, prev := range m.state.Equity {
		if prev.Timestamp.Equal(s.Timestamp) {
			return fmt.Errorf("equity snapshot at %s already exists", s.Timestamp.Format(time.RFC3339Nano))
		}
	}
	m.state.Equity = append(m.state.Equity, s)
	return m.saveUnsafe()
}

func (m *FileStore) RecordSignal(ctx context.Context, rec outbox.SignalRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, prev := range m.state.Signals {
		if prev.Symbol == rec.Symbol && prev.Strategy == rec.Strategy && prev.Timestamp.Equal(rec.Timestamp) {
			return false, nil
		}
	}
	m.state.Signals = append(m.state.Signals, rec)
	return true, m.saveUnsafe()
}

func (m *FileStore) RecordTrade(ctx context.Context, rec outbox.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Trades = append(m.state.Trades, rec)
	return m.saveUnsafe()
}

// Trades returns a copy of every recorded trade, oldest first.
func (m *FileStore) Trades() []outbox.TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]outbox.TradeRecord(nil), m.state.Trades...)
}

func (m *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
