// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"autotrader/internal/errors"
	"autotrader/internal/logging"
	"autotrader/internal/models"
)

// LiveUnlockToken must be present in ALLOW_LIVE_TRADING before live orders are sent.
const LiveUnlockToken = "YES_I_UNDERSTAND"

// MinLookback is the smallest candle window that warms up every indicator.
const MinLookback = 220

// Config holds all application configuration.
type Config struct {
	Trading       TradingConfig      `mapstructure:"trading"`
	Risk          RiskConfig         `mapstructure:"risk"`
	Supervisor    SupervisorConfig   `mapstructure:"supervisor"`
	Strategy      StrategyConfig     `mapstructure:"strategy"`
	Portfolio     PortfolioConfig    `mapstructure:"portfolio"`
	Data          DataConfig         `mapstructure:"data"`
	Storage       StorageConfig      `mapstructure:"storage"`
	Metrics       MetricsConfig      `mapstructure:"metrics"`
	Logging       logging.LogConfig  `mapstructure:"logging"`
	Notifications NotificationConfig `mapstructure:"notifications"`
	Credentials   Credentials        `mapstructure:"-" json:"-"` // Loaded from the environment
}

// TradingConfig holds execution-mode configuration.
type TradingConfig struct {
	Mode            models.Mode   `mapstructure:"mode"` // paper, shadow, live
	Symbols         []string      `mapstructure:"symbols"`
	Timeframe       string        `mapstructure:"timeframe"`
	LoopInterval    time.Duration `mapstructure:"loop_interval"`
	StartingBalance float64       `mapstructure:"starting_balance"`
	MinBalance      float64       `mapstructure:"min_balance"`
	CooldownMinutes int           `mapstructure:"cooldown_minutes"`
	AllowShort      bool          `mapstructure:"allow_short"`
	Testnet         bool          `mapstructure:"testnet"`
}

// RiskConfig holds per-trade and per-symbol risk configuration.
type RiskConfig struct {
	RiskPerTrade           float64 `mapstructure:"risk_per_trade"`
	MaxPositionNotionalPct float64 `mapstructure:"max_position_notional_pct"`
	StopLossPct            float64 `mapstructure:"stop_loss_pct"`
	TrailingPct            float64 `mapstructure:"trailing_pct"`
	TakeProfitRR           float64 `mapstructure:"take_profit_rr"`
	BreakevenRR            float64 `mapstructure:"breakeven_rr"`
	MaxHoldCandles         int     `mapstructure:"max_hold_candles"`
	WeakExitProb           float64 `mapstructure:"weak_exit_prob"`

	MaxDailyLossPct      float64 `mapstructure:"max_daily_loss_pct"`
	MaxWeeklyLossPct     float64 `mapstructure:"max_weekly_loss_pct"`
	MaxTradesPerDay      int     `mapstructure:"max_trades_per_day"`
	MaxConsecutiveLosses int     `mapstructure:"max_consecutive_losses"`

	PortfolioDailyDrawdownPct     float64 `mapstructure:"portfolio_daily_drawdown_pct"`
	PortfolioMaxConsecutiveLosses int     `mapstructure:"portfolio_max_consecutive_losses"`
	GlobalMaxDrawdownPct          float64 `mapstructure:"global_max_drawdown_pct"`
}

// SupervisorConfig holds adaptive risk-scaling configuration.
type SupervisorConfig struct {
	Window        int     `mapstructure:"window"`
	MaxDrawdown   float64 `mapstructure:"max_drawdown"`
	MinWinRate    float64 `mapstructure:"min_win_rate"`
	StrongWinRate float64 `mapstructure:"strong_win_rate"`
}

// StrategyConfig holds signal-generation configuration.
type StrategyConfig struct {
	ProbLong            float64 `mapstructure:"prob_long"`
	ProbShort           float64 `mapstructure:"prob_short"`
	MinADX              float64 `mapstructure:"min_adx"`
	MinATRPct           float64 `mapstructure:"min_atr_pct"`
	UseDynamicThreshold bool    `mapstructure:"use_dynamic_threshold"`
	UseRegimeFilter     bool    `mapstructure:"use_regime_filter"`
	UseEnsemble         bool    `mapstructure:"use_ensemble"`
	ContextSymbol       string  `mapstructure:"context_symbol"`
	ModelsDir           string  `mapstructure:"models_dir"`
}

// PortfolioConfig holds multi-symbol orchestration configuration.
type PortfolioConfig struct {
	MaxActivePositions   int           `mapstructure:"max_active_positions"`
	AllocationPct        float64       `mapstructure:"allocation_pct"`
	MaxConsecutiveErrors int           `mapstructure:"max_consecutive_errors"`
	TopK                 int           `mapstructure:"top_k"` // 0 keeps every admitted symbol
	RefreshInterval      time.Duration `mapstructure:"refresh_interval"`
	MinF1                float64       `mapstructure:"min_f1"`
	MinPrecision         float64       `mapstructure:"min_precision"`
	MinRecall            float64       `mapstructure:"min_recall"`
}

// DataConfig holds market-data retrieval configuration.
type DataConfig struct {
	Lookback      int           `mapstructure:"lookback"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	ReplayDir     string        `mapstructure:"replay_dir"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	DBPath      string `mapstructure:"db_path"`
	TradeLog    string `mapstructure:"trade_log"`
	DailyReport string `mapstructure:"daily_report"`
}

// MetricsConfig holds Prometheus exporter configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Level    string         `mapstructure:"level"` // all, trades_only, errors_only
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// Credentials holds exchange API credentials.
type Credentials struct {
	APIKey     string
	APISecret  string
	LiveUnlock string
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/autotrader"
	}
	return filepath.Join(home, ".config", "autotrader")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	if err := loadDotEnv(configDir); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a normalised configuration with every default applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	cfg.Normalize()
	return cfg
}

// loadDotEnv reads the config dir's .env and then the working directory's.
// Existing environment variables win over .env entries. A file that exists
// but does not parse is an error: it usually holds the credentials.
func loadDotEnv(configDir string) error {
	for _, path := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}
	}
	return nil
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// Config file not found, write a template and run on defaults
		if err := createTemplateConfig(configDir, name); err != nil {
			return err
		}
	}

	return v.Unmarshal(target)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("trading.mode", string(models.ModePaper))
	v.SetDefault("trading.symbols", []string{"BTC/USDT", "ETH/USDT", "SOL/USDT"})
	v.SetDefault("trading.timeframe", "15m")
	v.SetDefault("trading.loop_interval", "15m")
	v.SetDefault("trading.starting_balance", 500.0)
	v.SetDefault("trading.min_balance", 100.0)
	v.SetDefault("trading.cooldown_minutes", 30)
	v.SetDefault("trading.allow_short", false)
	v.SetDefault("trading.testnet", false)

	v.SetDefault("risk.risk_per_trade", 0.01)
	v.SetDefault("risk.max_position_notional_pct", 0.20)
	v.SetDefault("risk.stop_loss_pct", 0.01)
	v.SetDefault("risk.trailing_pct", 0.0075)
	v.SetDefault("risk.take_profit_rr", 2.0)
	v.SetDefault("risk.breakeven_rr", 1.0)
	v.SetDefault("risk.max_hold_candles", 20)
	v.SetDefault("risk.weak_exit_prob", 0.40)
	v.SetDefault("risk.max_daily_loss_pct", 0.03)
	v.SetDefault("risk.max_weekly_loss_pct", 0.06)
	v.SetDefault("risk.max_trades_per_day", 10)
	v.SetDefault("risk.max_consecutive_losses", 3)
	v.SetDefault("risk.portfolio_daily_drawdown_pct", 0.02)
	v.SetDefault("risk.portfolio_max_consecutive_losses", 3)
	v.SetDefault("risk.global_max_drawdown_pct", 0.08)

	v.SetDefault("supervisor.window", 20)
	v.SetDefault("supervisor.max_drawdown", 0.03)
	v.SetDefault("supervisor.min_win_rate", 0.40)
	v.SetDefault("supervisor.strong_win_rate", 0.60)

	v.SetDefault("strategy.prob_long", 0.52)
	v.SetDefault("strategy.prob_short", 0.48)
	v.SetDefault("strategy.min_adx", 8.0)
	v.SetDefault("strategy.min_atr_pct", 0.001)
	v.SetDefault("strategy.use_dynamic_threshold", true)
	v.SetDefault("strategy.use_regime_filter", true)
	v.SetDefault("strategy.use_ensemble", false)
	v.SetDefault("strategy.context_symbol", "BTC/USDT")
	v.SetDefault("strategy.models_dir", "models")

	v.SetDefault("portfolio.max_active_positions", 2)
	v.SetDefault("portfolio.allocation_pct", 0.25)
	v.SetDefault("portfolio.max_consecutive_errors", 5)
	v.SetDefault("portfolio.top_k", 0)
	v.SetDefault("portfolio.refresh_interval", "60m")
	v.SetDefault("portfolio.min_f1", 0.10)
	v.SetDefault("portfolio.min_precision", 0.10)
	v.SetDefault("portfolio.min_recall", 0.10)

	v.SetDefault("data.lookback", 300)
	v.SetDefault("data.retry_attempts", 3)
	v.SetDefault("data.retry_delay", "2s")
	v.SetDefault("data.replay_dir", "")

	v.SetDefault("storage.db_path", filepath.Join("data", "trader.db"))
	v.SetDefault("storage.trade_log", filepath.Join("logs", "trades.csv"))
	v.SetDefault("storage.daily_report", filepath.Join("logs", "daily_report.csv"))

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")

	defaults := logging.DefaultLogConfig()
	v.SetDefault("logging.level", defaults.Level)
	v.SetDefault("logging.console", defaults.Console)
	v.SetDefault("logging.file", defaults.File)
	v.SetDefault("logging.file_path", defaults.FilePath)
	v.SetDefault("logging.max_size", defaults.MaxSize)
	v.SetDefault("logging.max_backups", defaults.MaxBackups)
	v.SetDefault("logging.max_age", defaults.MaxAge)

	v.SetDefault("notifications.enabled", false)
	v.SetDefault("notifications.level", "all")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		cfg.Credentials.APIKey = v
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		cfg.Credentials.APISecret = v
	}
	cfg.Credentials.LiveUnlock = os.Getenv("ALLOW_LIVE_TRADING")

	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = models.Mode(strings.ToLower(v))
	}
	if v := os.Getenv("TRADING_SYMBOLS"); v != "" {
		var symbols []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
		cfg.Trading.Symbols = symbols
	}

	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Notifications.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Notifications.Telegram.ChatID = v
	}
}

// Normalize clamps derived portfolio settings: the active-position cap never
// exceeds the symbol count and max_active × allocation never exceeds 100%.
func (c *Config) Normalize() {
	p := &c.Portfolio
	if n := len(c.Trading.Symbols); n > 0 && p.MaxActivePositions > n {
		p.MaxActivePositions = n
	}
	if p.MaxActivePositions >= 1 && float64(p.MaxActivePositions)*p.AllocationPct > 1.0 {
		p.AllocationPct = 1.0 / float64(p.MaxActivePositions)
	}
}

// Validate rejects unsafe or inconsistent settings.
func (c *Config) Validate() error {
	t := c.Trading
	if !t.Mode.Valid() {
		return errors.NewValidationError("trading.mode", t.Mode, "must be paper, shadow or live")
	}
	if len(t.Symbols) == 0 {
		return errors.NewValidationError("trading.symbols", t.Symbols, "at least one symbol required")
	}
	for _, s := range t.Symbols {
		if !strings.Contains(s, "/") {
			return errors.NewValidationError("trading.symbols", s, "symbols must look like BASE/QUOTE")
		}
	}
	if t.Timeframe == "" {
		return errors.NewValidationError("trading.timeframe", t.Timeframe, "required")
	}
	if t.LoopInterval <= 0 {
		return errors.NewValidationError("trading.loop_interval", t.LoopInterval, "must be positive")
	}
	if t.StartingBalance <= 0 {
		return errors.NewValidationError("trading.starting_balance", t.StartingBalance, "must be positive")
	}
	if t.MinBalance < 0 || t.MinBalance >= t.StartingBalance {
		return errors.NewValidationError("trading.min_balance", t.MinBalance, "must be in [0, starting_balance)")
	}
	if t.CooldownMinutes < 0 {
		return errors.NewValidationError("trading.cooldown_minutes", t.CooldownMinutes, "must be non-negative")
	}

	r := c.Risk
	if r.RiskPerTrade <= 0 || r.RiskPerTrade > 0.05 {
		return errors.NewValidationError("risk.risk_per_trade", r.RiskPerTrade, "must be in (0, 0.05]")
	}
	if r.MaxPositionNotionalPct <= 0 || r.MaxPositionNotionalPct > 1 {
		return errors.NewValidationError("risk.max_position_notional_pct", r.MaxPositionNotionalPct, "must be in (0, 1]")
	}
	if r.StopLossPct <= 0 || r.StopLossPct >= 0.5 {
		return errors.NewValidationError("risk.stop_loss_pct", r.StopLossPct, "must be in (0, 0.5)")
	}
	if r.TrailingPct < 0 || r.TrailingPct >= 0.5 {
		return errors.NewValidationError("risk.trailing_pct", r.TrailingPct, "must be in [0, 0.5)")
	}
	if r.TakeProfitRR < 0 || r.BreakevenRR < 0 {
		return errors.NewValidationError("risk.take_profit_rr", r.TakeProfitRR, "reward ratios must be non-negative")
	}
	if r.MaxDailyLossPct <= 0 || r.MaxDailyLossPct >= 1 {
		return errors.NewValidationError("risk.max_daily_loss_pct", r.MaxDailyLossPct, "must be in (0, 1)")
	}
	if r.MaxConsecutiveLosses < 1 || r.PortfolioMaxConsecutiveLosses < 1 {
		return errors.NewValidationError("risk.max_consecutive_losses", r.MaxConsecutiveLosses, "must be at least 1")
	}
	if r.GlobalMaxDrawdownPct <= 0 || r.GlobalMaxDrawdownPct >= 1 {
		return errors.NewValidationError("risk.global_max_drawdown_pct", r.GlobalMaxDrawdownPct, "must be in (0, 1)")
	}

	s := c.Strategy
	if s.ProbLong < 0.5 || s.ProbLong > 0.9 {
		return errors.NewValidationError("strategy.prob_long", s.ProbLong, "must be in [0.5, 0.9]")
	}
	if s.ProbShort < 0.1 || s.ProbShort > 0.5 {
		return errors.NewValidationError("strategy.prob_short", s.ProbShort, "must be in [0.1, 0.5]")
	}
	if s.ProbShort >= s.ProbLong {
		return errors.NewValidationError("strategy.prob_short", s.ProbShort, "must be below prob_long")
	}

	p := c.Portfolio
	if p.MaxActivePositions < 1 {
		return errors.NewValidationError("portfolio.max_active_positions", p.MaxActivePositions, "must be at least 1")
	}
	if p.AllocationPct <= 0 || p.AllocationPct > 1 {
		return errors.NewValidationError("portfolio.allocation_pct", p.AllocationPct, "must be in (0, 1]")
	}
	if p.MaxConsecutiveErrors < 1 {
		return errors.NewValidationError("portfolio.max_consecutive_errors", p.MaxConsecutiveErrors, "must be at least 1")
	}
	if p.TopK < 0 {
		return errors.NewValidationError("portfolio.top_k", p.TopK, "must be non-negative")
	}

	if c.Data.Lookback < MinLookback {
		return errors.NewValidationError("data.lookback", c.Data.Lookback, fmt.Sprintf("must be at least %d", MinLookback))
	}
	if c.Data.RetryAttempts < 1 {
		return errors.NewValidationError("data.retry_attempts", c.Data.RetryAttempts, "must be at least 1")
	}

	if c.Supervisor.Window < 1 {
		return errors.NewValidationError("supervisor.window", c.Supervisor.Window, "must be at least 1")
	}

	if t.Mode == models.ModeLive {
		if t.AllowShort {
			return errors.NewValidationError("trading.allow_short", t.AllowShort, "spot live trading cannot short")
		}
		if c.Credentials.LiveUnlock != LiveUnlockToken {
			return errors.Wrap(errors.ErrLiveNotUnlocked, "set ALLOW_LIVE_TRADING="+LiveUnlockToken)
		}
		if c.Credentials.APIKey == "" || c.Credentials.APISecret == "" {
			return errors.NewValidationError("credentials", "", "live mode requires BYBIT_API_KEY and BYBIT_API_SECRET")
		}
	}

	return nil
}

// IsLive returns true when real orders are sent to the exchange.
func (c *Config) IsLive() bool {
	return c.Trading.Mode == models.ModeLive
}

// Cooldown returns the post-exit re-entry cooldown.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Trading.CooldownMinutes) * time.Minute
}
