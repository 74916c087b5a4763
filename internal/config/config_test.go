package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsInTestMode(t *testing.T) {
	t.Setenv("TEST_MODE", "true")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT", "JNJ", "UNH", "V"}, c.Symbols)
	assert.Equal(t, 300, c.Loop.IntervalSeconds)
	assert.Equal(t, 100000.0, c.StartingEquity)
	assert.Equal(t, 300, c.Cache.TTLSeconds)
	assert.Equal(t, 24, c.Cache.FallbackHours)
	assert.Equal(t, []string{"tiingo", "alphavantage", "yahoo"}, c.Providers.Order)
	assert.Equal(t, 3, c.Providers.RetryAttempts)
	assert.Equal(t, 3, c.Risk.MaxOpenPositions)
	assert.Equal(t, 10000, c.Risk.MaxOrderShares)
	assert.Equal(t, 3, c.Alerts.FailureThreshold)
	assert.Equal(t, 3600, c.Alerts.CooldownSeconds)
	assert.Equal(t, "test_key", c.Broker.APIKey)
	assert.Equal(t, "sim", c.Broker.Mode)
}

func TestLoadRequiresBrokerCredentialsOutsideTestMode(t *testing.T) {
	t.Setenv("TEST_MODE", "false")
	t.Setenv("ALPACA_API_KEY", "")
	t.Setenv("ALPACA_SECRET_KEY", "")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ALPACA_API_KEY")
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yml := `
symbols: [aapl, msft]
starting_equity: 50000
providers:
  order: [alphavantage, yahoo]
  alphavantage:
    api_keys: [k1]
broker:
  api_key: yaml-key
  secret_key: yaml-secret
loop:
  interval_seconds: 60
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0644))

	t.Setenv("TEST_MODE", "")
	t.Setenv("TRADING_SYMBOLS", "v, jnj ,V")
	t.Setenv("ALPHA_VANTAGE_API_KEYS", "a,b,c")
	t.Setenv("TRADING_INTERVAL", "")

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"V", "JNJ"}, c.Symbols)
	assert.Equal(t, 50000.0, c.StartingEquity)
	assert.Equal(t, []string{"alphavantage", "yahoo"}, c.Providers.Order)
	assert.Equal(t, []string{"a", "b", "c"}, c.Providers.AlphaVantage.APIKeys)
	assert.Equal(t, 60, c.Loop.IntervalSeconds)
	assert.Equal(t, "yaml-key", c.Broker.APIKey)
}

func TestLoadRejectsBadEnvNumbers(t *testing.T) {
	t.Setenv("TEST_MODE", "true")
	t.Setenv("TRADING_INTERVAL", "five")

	_, err := Load("")
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := Root{TestMode: true}
	applyDefaults(&base)
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*Root)
	}{
		{"unknown broker", func(c *Root) { c.Broker.Mode = "ib" }},
		{"unknown storage", func(c *Root) { c.Storage.Backend = "postgres" }},
		{"negative equity", func(c *Root) { c.StartingEquity = -1 }},
		{"no symbols", func(c *Root) { c.Symbols = nil }},
		{"risk out of range", func(c *Root) { c.Risk.RiskPerTrade = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestNormalizeSymbols(t *testing.T) {
	assert.Equal(t, []string{"AAPL", "MSFT"}, NormalizeSymbols([]string{" aapl", "", "MSFT", "Aapl"}))
}
