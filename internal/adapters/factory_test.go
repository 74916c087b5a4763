package adapters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rajchodisetti/trading-bot/internal/config"
)

func TestBuildProvidersSkipsMissingCredentials(t *testing.T) {
	cfg := config.Providers{
		Order:        []string{"tiingo", "alphavantage", "yahoo"},
		AlphaVantage: config.AlphaVantage{APIKeys: []string{"a", "b"}},
	}
	providers, err := BuildProviders(cfg, false)
	require.NoError(t, err)

	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name()
	}
	assert.Equal(t, []string{"alphavantage", "yahoo"}, names)
}

func TestBuildProvidersErrors(t *testing.T) {
	_, err := BuildProviders(config.Providers{Order: []string{"bloomberg"}}, false)
	assert.Error(t, err)

	_, err = BuildProviders(config.Providers{Order: []string{"tiingo"}}, false)
	assert.Error(t, err, "chain without any usable provider")
}

func TestBuildProvidersTestModeFallsBackToSim(t *testing.T) {
	providers, err := BuildProviders(config.Providers{Order: []string{"tiingo"}}, true)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "sim", providers[0].Name())
}
