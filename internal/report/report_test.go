package report

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"autotrader/internal/models"
	"autotrader/internal/performance"
	"autotrader/internal/portfolio"
)

func trades() []models.Trade {
	at := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	return []models.Trade{
		{ID: "1", Timestamp: at, Symbol: "BTC/USDT", Side: models.SideLong, Mode: models.ModePaper, Quantity: 0.01, EntryPrice: 100, ExitPrice: 110, PnL: 0.1, BalanceAfter: 500.1, ExitReason: models.ExitTakeProfit},
		{ID: "2", Timestamp: at.Add(time.Hour), Symbol: "ETH/USDT", Side: models.SideLong, Mode: models.ModePaper, Quantity: 1, EntryPrice: 50, ExitPrice: 49, PnL: -1, BalanceAfter: 499.1, ExitReason: models.ExitHardStop},
	}
}

func TestRenderDaily(t *testing.T) {
	var buf bytes.Buffer
	RenderDaily(&buf, performance.DailySummaries(trades()))
	out := buf.String()
	assert.Contains(t, out, "DAILY REPORT")
	assert.Contains(t, out, "BTC/USDT")
	assert.Contains(t, out, "-0.90", "footer sums net pnl")
}

func TestRenderTradesAndSummary(t *testing.T) {
	var buf bytes.Buffer
	RenderTrades(&buf, trades())
	RenderSummary(&buf, performance.Summarize(trades()))
	out := buf.String()
	assert.Contains(t, out, "take_profit")
	assert.Contains(t, out, "50.0%")
}

func TestRenderStatus(t *testing.T) {
	var buf bytes.Buffer
	RenderStatus(&buf, []portfolio.SymbolStatus{
		{Symbol: "BTC/USDT", Active: true, Balance: 500, Position: "LONG 0.1 @ 100"},
		{Symbol: "ETH/USDT", Disabled: true, Reason: "exchange down", Errors: 5},
		{Symbol: "SOL/USDT", Active: true, Blocked: true, BlockReason: "daily_loss"},
		{Symbol: "XRP/USDT"},
	})
	out := buf.String()
	assert.Contains(t, out, "disabled")
	assert.Contains(t, out, "exchange down")
	assert.Contains(t, out, "daily_loss")
	assert.Contains(t, out, "standby")
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "report.xlsx")
	require.NoError(t, WriteXLSX(path, trades()))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	rows, err := fx.GetRows(SheetTrades)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Exit Time", rows[0][0])
	assert.Equal(t, "BTC/USDT", rows[1][1])

	daily, err := fx.GetRows(SheetDaily)
	require.NoError(t, err)
	assert.Len(t, daily, 3)

	summary, err := fx.GetRows(SheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Trades", "2"}, summary[1])
}
