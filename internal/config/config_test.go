package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "https://api.rainforestapi.com", cfg.Amazon.BaseURL)
	assert.Equal(t, float64(5), cfg.Ebay.RatePerSec)
	assert.Equal(t, 500*time.Millisecond, cfg.Pipeline.StepInterval)
	assert.Equal(t, 20, cfg.Pipeline.ProgressStep)
	assert.Equal(t, 10, cfg.Pipeline.MaxConcurrentRuns)
	assert.Equal(t, 10, cfg.Research.MaxListingsPerPlatform)
	assert.Equal(t, 0.25, cfg.Monitoring.FailRateWarn)
	assert.Equal(t, 5*time.Minute, cfg.Monitoring.CheckInterval)
	assert.Empty(t, cfg.Anthropic.Key)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("WISEBUY_STORE_DRIVER", "sqlite")
	t.Setenv("WISEBUY_LOG_LEVEL", "debug")
	t.Setenv("WISEBUY_EBAY_KEY", "ebay-oauth-token")
	t.Setenv("WISEBUY_PIPELINE_MAX_CONCURRENT_RUNS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "ebay-oauth-token", cfg.Ebay.Key)
	assert.Equal(t, 3, cfg.Pipeline.MaxConcurrentRuns)
}

func TestValidate_PostgresRequiresDatabaseURL(t *testing.T) {
	cfg := &Config{
		Store:     StoreConfig{Driver: "postgres"},
		Anthropic: AnthropicConfig{Key: "sk-test"},
	}
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")

	cfg.Store.DatabaseURL = "postgres://localhost/wisebuy"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidate_RequiresAnAcquisitionPath(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: "sqlite"}}
	err := cfg.Validate("pipeline")
	require.Error(t, err)

	cfg.Ebay.Key = "token"
	assert.NoError(t, cfg.Validate("pipeline"))

	cfg.Ebay.Key = ""
	cfg.Anthropic.Key = "sk-test"
	assert.NoError(t, cfg.Validate("pipeline"))
}

func TestValidate_UnknownModeSkipsChecks(t *testing.T) {
	cfg := &Config{Store: StoreConfig{Driver: "postgres"}}
	assert.NoError(t, cfg.Validate("monitor"))
}

func TestMarketplaceConfigured(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.MarketplaceConfigured())

	cfg.Anthropic.Key = "sk-test"
	assert.False(t, cfg.MarketplaceConfigured())

	cfg.Amazon.Key = "rainforest-key"
	assert.True(t, cfg.MarketplaceConfigured())
}
