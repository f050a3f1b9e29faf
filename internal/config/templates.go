package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# autotrader configuration
# Credentials are read from the environment (or a .env file next to this one):
#   BYBIT_API_KEY, BYBIT_API_SECRET, ALLOW_LIVE_TRADING=YES_I_UNDERSTAND

[trading]
# Execution mode: "paper", "shadow" or "live"
mode = "paper"
symbols = ["BTC/USDT", "ETH/USDT", "SOL/USDT"]
timeframe = "15m"
loop_interval = "15m"
starting_balance = 500.0
# Kill switch: equity below this stops the process
min_balance = 100.0
cooldown_minutes = 30
# Shorting is only simulated; live spot trading rejects it
allow_short = false
testnet = false

[risk]
risk_per_trade = 0.01
max_position_notional_pct = 0.20
stop_loss_pct = 0.01
trailing_pct = 0.0075
take_profit_rr = 2.0
breakeven_rr = 1.0
max_hold_candles = 20
weak_exit_prob = 0.40
max_daily_loss_pct = 0.03
max_weekly_loss_pct = 0.06
max_trades_per_day = 10
max_consecutive_losses = 3
portfolio_daily_drawdown_pct = 0.02
portfolio_max_consecutive_losses = 3
global_max_drawdown_pct = 0.08

[supervisor]
window = 20
max_drawdown = 0.03
min_win_rate = 0.40
strong_win_rate = 0.60

[strategy]
prob_long = 0.52
prob_short = 0.48
min_adx = 8.0
min_atr_pct = 0.001
use_dynamic_threshold = true
use_regime_filter = true
use_ensemble = false
context_symbol = "BTC/USDT"
models_dir = "models"

[portfolio]
max_active_positions = 2
allocation_pct = 0.25
max_consecutive_errors = 5
# 0 trades every admitted symbol
top_k = 0
refresh_interval = "60m"
min_f1 = 0.10
min_precision = 0.10
min_recall = 0.10

[data]
lookback = 300
retry_attempts = 3
retry_delay = "2s"
# Directory of <BASE_QUOTE>_<timeframe>.csv candle files for replay runs
replay_dir = ""

[storage]
db_path = "data/trader.db"
trade_log = "logs/trades.csv"
daily_report = "logs/daily_report.csv"

[metrics]
enabled = false
addr = ":9090"

[logging]
level = "info"
console = true
file = true
file_path = "logs/trader.log"

[notifications]
enabled = false
# Notification level: all, trades_only, errors_only
level = "all"

[notifications.webhook]
enabled = false
url = ""

[notifications.telegram]
enabled = false
bot_token = ""
chat_id = ""
`

func createTemplateConfig(configDir, name string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, name+".toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
