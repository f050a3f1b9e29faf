package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/errors"
	"autotrader/internal/models"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"BYBIT_API_KEY", "BYBIT_API_SECRET", "ALLOW_LIVE_TRADING", "TRADING_MODE", "TRADING_SYMBOLS"} {
		t.Setenv(k, "")
	}
}

func TestLoadWritesTemplateAndAppliesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.Equal(t, models.ModePaper, cfg.Trading.Mode)
	assert.Equal(t, 15*time.Minute, cfg.Trading.LoopInterval)
	assert.Equal(t, 300, cfg.Data.Lookback)
	assert.Equal(t, 2, cfg.Portfolio.MaxActivePositions)
	assert.InDelta(t, 0.25, cfg.Portfolio.AllocationPct, 1e-12)
	assert.Equal(t, 30*time.Minute, cfg.Cooldown())
}

func TestLoadReadsFileAndEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	body := `
[trading]
mode = "shadow"
symbols = ["BTC/USDT"]
starting_balance = 1000.0

[portfolio]
max_active_positions = 4
allocation_pct = 0.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644))
	t.Setenv("TRADING_SYMBOLS", "btc/usdt, eth/usdt")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, models.ModeShadow, cfg.Trading.Mode)
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT"}, cfg.Trading.Symbols)
	assert.Equal(t, 1000.0, cfg.Trading.StartingBalance)
	// clamped to the number of symbols, then allocation to 1/max_active
	assert.Equal(t, 2, cfg.Portfolio.MaxActivePositions)
	assert.InDelta(t, 0.5, cfg.Portfolio.AllocationPct, 1e-12)
}

func TestLoadReadsDotEnv(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("BYBIT_API_KEY")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BYBIT_API_KEY=from-dotenv\n"), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.Credentials.APIKey)
	os.Unsetenv("BYBIT_API_KEY")
}

func TestLoadRejectsMalformedDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("BYBIT-API-KEY=oops\n"), 0600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ".env")
}

func TestNormalizeClampsAllocation(t *testing.T) {
	cfg := Default()
	cfg.Trading.Symbols = []string{"A/USDT", "B/USDT", "C/USDT", "D/USDT", "E/USDT"}
	cfg.Portfolio.MaxActivePositions = 5
	cfg.Portfolio.AllocationPct = 0.3
	cfg.Normalize()

	assert.InDelta(t, 0.2, cfg.Portfolio.AllocationPct, 1e-12)
	assert.LessOrEqual(t, float64(cfg.Portfolio.MaxActivePositions)*cfg.Portfolio.AllocationPct, 1.0+1e-12)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"bad mode", func(c *Config) { c.Trading.Mode = "yolo" }},
		{"no symbols", func(c *Config) { c.Trading.Symbols = nil }},
		{"symbol without slash", func(c *Config) { c.Trading.Symbols = []string{"BTCUSDT"} }},
		{"risk too high", func(c *Config) { c.Risk.RiskPerTrade = 0.06 }},
		{"risk zero", func(c *Config) { c.Risk.RiskPerTrade = 0 }},
		{"notional above one", func(c *Config) { c.Risk.MaxPositionNotionalPct = 1.5 }},
		{"short above long", func(c *Config) { c.Strategy.ProbLong = 0.5; c.Strategy.ProbShort = 0.5 }},
		{"long out of range", func(c *Config) { c.Strategy.ProbLong = 0.95 }},
		{"short lookback", func(c *Config) { c.Data.Lookback = 100 }},
		{"zero active", func(c *Config) { c.Portfolio.MaxActivePositions = 0 }},
		{"min balance above start", func(c *Config) { c.Trading.MinBalance = 600 }},
		{"negative top k", func(c *Config) { c.Portfolio.TopK = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
		})
	}
}

func TestValidateLiveSafety(t *testing.T) {
	cfg := Default()
	cfg.Trading.Mode = models.ModeLive

	err := cfg.Validate()
	assert.True(t, errors.Is(err, errors.ErrLiveNotUnlocked))

	cfg.Credentials.LiveUnlock = LiveUnlockToken
	err = cfg.Validate()
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid), "missing credentials")

	cfg.Credentials.APIKey = "k"
	cfg.Credentials.APISecret = "s"
	assert.NoError(t, cfg.Validate())

	cfg.Trading.AllowShort = true
	assert.True(t, errors.Is(cfg.Validate(), errors.ErrConfigInvalid))
}
