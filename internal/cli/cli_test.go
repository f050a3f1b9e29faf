package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/journal"
	"autotrader/internal/models"
	"autotrader/internal/store"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"BYBIT_API_KEY", "BYBIT_API_SECRET", "ALLOW_LIVE_TRADING", "TRADING_MODE", "TRADING_SYMBOLS", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID"} {
		t.Setenv(k, "")
	}
}

// writeConfig writes a quiet paper config rooted in dir; extra is appended
// verbatim.
func writeConfig(t *testing.T, dir, extra string) {
	t.Helper()
	body := fmt.Sprintf(`
[trading]
symbols = ["BTC/USDT"]

[strategy]
models_dir = %q
use_dynamic_threshold = false
use_regime_filter = false
min_adx = 0.0
min_atr_pct = 0.0

[storage]
db_path = %q
trade_log = %q
daily_report = %q

[logging]
console = false
file = false
%s`,
		filepath.Join(dir, "models"),
		filepath.Join(dir, "trader.db"),
		filepath.Join(dir, "trades.csv"),
		filepath.Join(dir, "daily_report.csv"),
		extra)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0644))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := NewRootCmd(nil, zerolog.Nop())
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, Version, got["version"])
}

func TestConfigValidate(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")

	out, err := execute(t, "config", "validate", "--config", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration is valid")
}

func TestConfigRejectsUnsafeSettings(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")
	f, err := os.OpenFile(filepath.Join(dir, "config.toml"), os.O_APPEND|os.O_WRONLY, 0644)
	require.NoError(t, err)
	_, err = f.WriteString("\n[risk]\nrisk_per_trade = 0.5\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = execute(t, "config", "show", "--config", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "risk_per_trade")
}

func TestConfigShow(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")

	out, err := execute(t, "config", "show", "--config", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "BTC/USDT")
	assert.Contains(t, out, "paper")
}

func recordTrades(t *testing.T, path string) {
	t.Helper()
	j, err := journal.NewCSVJournal(path)
	require.NoError(t, err)
	day := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	for i, pnl := range []float64{5, -2, 3} {
		require.NoError(t, j.RecordTrade(context.Background(), models.Trade{
			ID:           fmt.Sprintf("t%d", i),
			Timestamp:    day.Add(time.Duration(10+i) * time.Hour),
			EntryTime:    day.Add(time.Duration(9+i) * time.Hour),
			Symbol:       "BTC/USDT",
			Side:         models.SideLong,
			Mode:         models.ModePaper,
			Quantity:     0.01,
			EntryPrice:   60000,
			ExitPrice:    60000 + pnl*100,
			PnL:          pnl,
			BalanceAfter: 500 + pnl,
			ExitReason:   models.ExitTakeProfit,
		}))
	}
	require.NoError(t, j.Close())
}

func TestReportFromCSV(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")
	csvPath := filepath.Join(dir, "trades.csv")
	recordTrades(t, csvPath)

	out, err := execute(t, "report", "--config", dir, "--csv", csvPath, "--json")
	require.NoError(t, err)

	var got struct {
		Summary struct {
			Trades int
			Wins   int
			NetPnL float64
		} `json:"summary"`
		Daily []models.DailySummary `json:"daily"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 3, got.Summary.Trades)
	assert.Equal(t, 2, got.Summary.Wins)
	assert.InDelta(t, 6.0, got.Summary.NetPnL, 1e-9)
	require.Len(t, got.Daily, 1)
	assert.Equal(t, "2024-06-03", got.Daily[0].Date)
}

func TestReportDateFilter(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")
	csvPath := filepath.Join(dir, "trades.csv")
	recordTrades(t, csvPath)

	out, err := execute(t, "report", "--config", dir, "--csv", csvPath, "--from", "2024-06-04")
	require.NoError(t, err)
	assert.Contains(t, out, "No trades recorded")

	_, err = execute(t, "report", "--config", dir, "--csv", csvPath, "--from", "June")
	assert.Error(t, err)
}

func TestReportSaveWritesDailyReport(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")
	csvPath := filepath.Join(dir, "trades.csv")
	recordTrades(t, csvPath)

	out, err := execute(t, "report", "--config", dir, "--csv", csvPath, "--save")
	require.NoError(t, err)
	assert.Contains(t, out, "Saved 1 daily rows")

	rows, err := journal.ReadDailyReport(filepath.Join(dir, "daily_report.csv"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 3, rows[0].Trades)

	st, err := store.NewSQLiteStore(filepath.Join(dir, "trader.db"))
	require.NoError(t, err)
	defer st.Close()
	stored, err := st.DailySummaries(context.Background(), store.DateRange{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "BTC/USDT", stored[0].Symbol)
}

// writeModel exports a network that always scores sigmoid(2) ≈ 0.88.
func writeModel(t *testing.T, dir, symbol string) {
	t.Helper()
	modelDir := filepath.Join(dir, "models", models.DirSymbol(symbol))
	require.NoError(t, os.MkdirAll(modelDir, 0755))
	meta := map[string]interface{}{
		"model_name":      "mlp",
		"symbol":          symbol,
		"feature_columns": []string{"rsi"},
		"timeframe":       "15m",
		"horizon":         4,
		"metrics":         map[string]float64{"val_f1": 0.5, "val_precision": 0.5, "val_recall": 0.5},
	}
	weights := map[string]interface{}{
		"scaler": map[string][]float64{"mean": {0}, "scale": {1}},
		"layers": []map[string]interface{}{{"weights": [][]float64{{0}}, "bias": []float64{2}}},
	}
	for name, v := range map[string]interface{}{"metadata.json": meta, "weights.json": weights} {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(modelDir, name), data, 0644))
	}
}

func writeCandles(t *testing.T, dir, symbol string, n int) {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString("timestamp,open,high,low,close,volume\n")
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100 + float64(i)*0.05
		fmt.Fprintf(&buf, "%d,%.4f,%.4f,%.4f,%.4f,%d\n",
			start.Add(time.Duration(i)*15*time.Minute).Unix(), c-0.02, c+0.1, c-0.1, c, 1000)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, models.DirSymbol(symbol)+"_15m.csv"), buf.Bytes(), 0644))
}

func TestReplayRunsEngine(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")
	writeModel(t, dir, "BTC/USDT")
	candles := filepath.Join(dir, "candles")
	require.NoError(t, os.MkdirAll(candles, 0755))
	writeCandles(t, candles, "BTC/USDT", 400)
	tradeLog := filepath.Join(dir, "replay.csv")

	out, err := execute(t, "replay", "--config", dir, "--dir", candles, "--trade-log", tradeLog, "--json")
	require.NoError(t, err)

	var got struct {
		Summary struct{ Trades int } `json:"summary"`
		Equity  float64              `json:"equity"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Greater(t, got.Summary.Trades, 0)
	assert.Greater(t, got.Equity, 0.0)

	logged, err := journal.ReadTrades(tradeLog)
	require.NoError(t, err)
	assert.Len(t, logged, got.Summary.Trades)
	for _, tr := range logged {
		assert.Equal(t, models.ModePaper, tr.Mode)
	}
	assert.NoFileExists(t, filepath.Join(dir, "trader.db"), "replay never opens the live store")
}

func TestReplayNeedsDirectory(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")

	_, err := execute(t, "replay", "--config", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replay_dir")
}

func TestReplayRejectsUnadmittedModels(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	writeConfig(t, dir, "")
	candles := filepath.Join(dir, "candles")
	require.NoError(t, os.MkdirAll(candles, 0755))
	writeCandles(t, candles, "BTC/USDT", 400)

	_, err := execute(t, "replay", "--config", dir, "--dir", candles)
	require.Error(t, err)
}

func TestOutputJSONModeDropsStatusLines(t *testing.T) {
	var buf bytes.Buffer
	o := &Output{writer: &buf, jsonMode: true}
	o.Info("Replaying %d bars", 10)
	o.Warning("skipped")
	o.Success("done")
	assert.Empty(t, buf.String())

	require.NoError(t, o.JSON(map[string]int{"trades": 1}))
	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 1, got["trades"])

	buf.Reset()
	human := &Output{writer: &buf}
	human.Info("Replaying %d bars", 10)
	assert.Equal(t, "Replaying 10 bars\n", buf.String())
}
