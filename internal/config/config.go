package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Tiingo struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type AlphaVantage struct {
	APIKeys []string `yaml:"api_keys"`
	BaseURL string   `yaml:"base_url"`
}

type Polygon struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type Yahoo struct {
	Disabled bool `yaml:"disabled"`
}

type Providers struct {
	Order              []string     `yaml:"order"` // tiingo | alphavantage | yahoo | polygon | sim
	LookbackDays       int          `yaml:"lookback_days"`
	TimeoutSeconds     int          `yaml:"timeout_seconds"`
	RateLimitPerMinute int          `yaml:"rate_limit_per_minute"`
	RetryAttempts      int          `yaml:"retry_attempts"`
	BackoffBaseMs      int          `yaml:"backoff_base_ms"`
	BackoffMaxMs       int          `yaml:"backoff_max_ms"`
	Tiingo             Tiingo       `yaml:"tiingo"`
	AlphaVantage       AlphaVantage `yaml:"alphavantage"`
	Polygon            Polygon      `yaml:"polygon"`
	Yahoo              Yahoo        `yaml:"yahoo"`
}

type Cache struct {
	TTLSeconds    int `yaml:"ttl_seconds"`
	FallbackHours int `yaml:"fallback_hours"`
}

type Risk struct {
	RiskPerTrade     float64 `yaml:"risk_per_trade"`
	StopLossFraction float64 `yaml:"stop_loss_fraction"`
	MaxOpenPositions int     `yaml:"max_open_positions"`
	MaxOrderShares   int     `yaml:"max_order_shares"`
}

type Broker struct {
	Mode           string `yaml:"mode"` // sim | alpaca
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	SecretKey      string `yaml:"secret_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	SlippageBpsMin int    `yaml:"slippage_bps_min"`
	SlippageBpsMax int    `yaml:"slippage_bps_max"`
}

type Storage struct {
	Backend     string `yaml:"backend"` // sqlite | file
	SQLitePath  string `yaml:"sqlite_path"`
	StatePath   string `yaml:"state_path"`
	JournalPath string `yaml:"journal_path"`
}

type Alerts struct {
	WebhookURL       string `yaml:"webhook_url"`
	FailureThreshold int    `yaml:"failure_threshold"`
	CooldownSeconds  int    `yaml:"cooldown_seconds"`
}

type Loop struct {
	IntervalSeconds       int `yaml:"interval_seconds"`
	MaxLoops              int `yaml:"max_loops"`
	ErrorCooldownSeconds  int `yaml:"error_cooldown_seconds"`
	ClosedSleepMaxSeconds int `yaml:"closed_sleep_max_seconds"`
	CycleRetries          int `yaml:"cycle_retries"`
	CycleBackoffBaseMs    int `yaml:"cycle_backoff_base_ms"`
}

type Server struct {
	Addr string `yaml:"addr"`
}

type Root struct {
	TestMode       bool      `yaml:"test_mode"`
	Symbols        []string  `yaml:"symbols"`
	StartingEquity float64   `yaml:"starting_equity"`
	Providers      Providers `yaml:"providers"`
	Cache          Cache     `yaml:"cache"`
	Risk           Risk      `yaml:"risk"`
	Broker         Broker    `yaml:"broker"`
	Storage        Storage   `yaml:"storage"`
	Alerts         Alerts    `yaml:"alerts"`
	Loop           Loop      `yaml:"loop"`
	Server         Server    `yaml:"server"`
}

var DefaultSymbols = []string{"AAPL", "MSFT", "JNJ", "UNH", "V"}

// Load reads .env (if present), then the YAML file at path (skipped when path
// is empty), then environment overrides, then fills defaults and validates.
func Load(path string) (Root, error) {
	var c Root
	_ = godotenv.Load()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(&c); err != nil {
		return c, err
	}
	applyDefaults(&c)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func applyDefaults(c *Root) {
	if len(c.Symbols) == 0 {
		c.Symbols = append([]string(nil), DefaultSymbols...)
	}
	c.Symbols = NormalizeSymbols(c.Symbols)
	if c.StartingEquity == 0 {
		c.StartingEquity = 100000
	}

	p := &c.Providers
	if len(p.Order) == 0 {
		p.Order = []string{"tiingo", "alphavantage", "yahoo"}
	}
	if p.LookbackDays == 0 {
		p.LookbackDays = 100
	}
	if p.TimeoutSeconds == 0 {
		p.TimeoutSeconds = 30
	}
	if p.RateLimitPerMinute == 0 {
		p.RateLimitPerMinute = 60
	}
	if p.RetryAttempts == 0 {
		p.RetryAttempts = 3
	}
	if p.BackoffBaseMs == 0 {
		p.BackoffBaseMs = 2000
	}
	if p.BackoffMaxMs == 0 {
		p.BackoffMaxMs = 10000
	}
	if p.Tiingo.BaseURL == "" {
		p.Tiingo.BaseURL = "https://api.tiingo.com"
	}
	if p.AlphaVantage.BaseURL == "" {
		p.AlphaVantage.BaseURL = "https://www.alphavantage.co"
	}
	if p.Polygon.BaseURL == "" {
		p.Polygon.BaseURL = "https://api.polygon.io"
	}

	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 300
	}
	if c.Cache.FallbackHours == 0 {
		c.Cache.FallbackHours = 24
	}

	if c.Risk.RiskPerTrade == 0 {
		c.Risk.RiskPerTrade = 0.02
	}
	if c.Risk.StopLossFraction == 0 {
		c.Risk.StopLossFraction = 0.05
	}
	if c.Risk.MaxOpenPositions == 0 {
		c.Risk.MaxOpenPositions = 3
	}
	if c.Risk.MaxOrderShares == 0 {
		c.Risk.MaxOrderShares = 10000
	}

	if c.Broker.Mode == "" {
		c.Broker.Mode = "sim"
	}
	if c.Broker.BaseURL == "" {
		c.Broker.BaseURL = "https://paper-api.alpaca.markets"
	}
	if c.Broker.TimeoutSeconds == 0 {
		c.Broker.TimeoutSeconds = 10
	}
	if c.Broker.SlippageBpsMin == 0 {
		c.Broker.SlippageBpsMin = 1
	}
	if c.Broker.SlippageBpsMax == 0 {
		c.Broker.SlippageBpsMax = 5
	}
	if c.TestMode {
		if c.Broker.APIKey == "" {
			c.Broker.APIKey = "test_key"
		}
		if c.Broker.SecretKey == "" {
			c.Broker.SecretKey = "test_secret"
		}
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "sqlite"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/tradebot.db"
	}
	if c.Storage.StatePath == "" {
		c.Storage.StatePath = "data/portfolio_state.json"
	}
	if c.Storage.JournalPath == "" {
		c.Storage.JournalPath = "data/outbox.jsonl"
	}

	if c.Alerts.FailureThreshold == 0 {
		c.Alerts.FailureThreshold = 3
	}
	if c.Alerts.CooldownSeconds == 0 {
		c.Alerts.CooldownSeconds = 3600
	}

	l := &c.Loop
	if l.IntervalSeconds == 0 {
		l.IntervalSeconds = 300
	}
	if l.ErrorCooldownSeconds == 0 {
		l.ErrorCooldownSeconds = 60
	}
	if l.ClosedSleepMaxSeconds == 0 {
		l.ClosedSleepMaxSeconds = 1800
	}
	if l.CycleRetries == 0 {
		l.CycleRetries = 3
	}
	if l.CycleBackoffBaseMs == 0 {
		l.CycleBackoffBaseMs = 1000
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
}

// Validate rejects configurations the trading loop cannot run with.
func (c Root) Validate() error {
	var errs []error
	if len(c.Symbols) == 0 {
		errs = append(errs, errors.New("at least one symbol is required"))
	}
	if c.StartingEquity <= 0 {
		errs = append(errs, fmt.Errorf("starting_equity must be positive, got %.2f", c.StartingEquity))
	}
	if c.Loop.IntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("interval_seconds must be >= 0, got %d", c.Loop.IntervalSeconds))
	}
	switch c.Broker.Mode {
	case "sim", "alpaca":
	default:
		errs = append(errs, fmt.Errorf("unknown broker mode %q", c.Broker.Mode))
	}
	switch c.Storage.Backend {
	case "sqlite", "file":
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage.Backend))
	}
	if !c.TestMode && (c.Broker.APIKey == "" || c.Broker.SecretKey == "") {
		errs = append(errs, errors.New("ALPACA_API_KEY and ALPACA_SECRET_KEY are required outside test mode"))
	}
	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade >= 1 {
		errs = append(errs, fmt.Errorf("risk_per_trade must be in (0,1), got %v", c.Risk.RiskPerTrade))
	}
	if c.Risk.StopLossFraction <= 0 || c.Risk.StopLossFraction >= 1 {
		errs = append(errs, fmt.Errorf("stop_loss_fraction must be in (0,1), got %v", c.Risk.StopLossFraction))
	}
	return errors.Join(errs...)
}

// NormalizeSymbols upper-cases, trims and de-duplicates while keeping order.
func NormalizeSymbols(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// SplitList parses a comma-separated env value.
func SplitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
