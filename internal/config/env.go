package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

func applyEnv(c *Root) error {
	if v := os.Getenv("TRADING_SYMBOLS"); v != "" {
		c.Symbols = SplitList(v)
	}
	if v := os.Getenv("TRADING_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRADING_INTERVAL: %w", err)
		}
		c.Loop.IntervalSeconds = n
	}
	if v := os.Getenv("STARTING_EQUITY"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("STARTING_EQUITY: %w", err)
		}
		c.StartingEquity = f
	}
	if v := os.Getenv("TEST_MODE"); v != "" {
		b, err := strconv.ParseBool(strings.ToLower(v))
		if err != nil {
			return fmt.Errorf("TEST_MODE: %w", err)
		}
		c.TestMode = b
	}

	if v := os.Getenv("TIINGO_API_KEY"); v != "" {
		c.Providers.Tiingo.APIKey = v
	}
	if v := os.Getenv("ALPHA_VANTAGE_API_KEYS"); v != "" {
		c.Providers.AlphaVantage.APIKeys = SplitList(v)
	} else if v := os.Getenv("ALPHA_VANTAGE_API_KEY"); v != "" {
		c.Providers.AlphaVantage.APIKeys = SplitList(v)
	}
	if v := os.Getenv("POLYGON_API_KEY"); v != "" {
		c.Providers.Polygon.APIKey = v
	}

	if v := os.Getenv("BROKER_MODE"); v != "" {
		c.Broker.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		c.Broker.APIKey = v
	}
	if v := os.Getenv("ALPACA_SECRET_KEY"); v != "" {
		c.Broker.SecretKey = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		c.Broker.BaseURL = v
	}

	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		c.Alerts.WebhookURL = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.Storage.SQLitePath = v
	}
	return nil
}
