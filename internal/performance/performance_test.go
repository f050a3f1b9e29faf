package performance

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/models"
)

var day = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

// ledger turns pnls into trades with a running balance from 500.
func ledger(symbol string, start time.Time, pnls ...float64) []models.Trade {
	balance := 500.0
	out := make([]models.Trade, len(pnls))
	for i, p := range pnls {
		balance += p
		out[i] = models.Trade{
			Symbol:       symbol,
			Timestamp:    start.Add(time.Duration(i) * time.Hour),
			PnL:          p,
			BalanceAfter: balance,
			ExitReason:   models.ExitHardStop,
		}
		if p > 0 {
			out[i].ExitReason = models.ExitTakeProfit
		}
	}
	return out
}

func TestSummarize(t *testing.T) {
	s := Summarize(ledger("BTC/USDT", day, 10, -5, -5, 20))
	assert.Equal(t, 4, s.Trades)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 2, s.Losses)
	assert.InDelta(t, 0.5, s.WinRate, 1e-12)
	assert.InDelta(t, 15, s.AvgWin, 1e-12)
	assert.InDelta(t, 5, s.AvgLoss, 1e-12)
	assert.InDelta(t, 5, s.Expectancy, 1e-12)
	assert.InDelta(t, 20, s.NetPnL, 1e-12)
	// peak 510, trough 500
	assert.InDelta(t, 10.0/510, s.MaxDrawdown, 1e-12)
}

func TestSummarizeEmpty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestMaxDrawdownCountsFirstTradeLoss(t *testing.T) {
	assert.InDelta(t, 0.02, MaxDrawdown(ledger("BTC/USDT", day, -10)), 1e-12)
}

func TestDailySummaries(t *testing.T) {
	trades := append(ledger("ETH/USDT", day, 5, -2), ledger("BTC/USDT", day.Add(13*time.Hour), -1, -1, 3)...)

	got := DailySummaries(trades)
	require.Len(t, got, 3)

	assert.Equal(t, "2024-06-03", got[0].Date)
	assert.Equal(t, "BTC/USDT", got[0].Symbol)
	assert.Equal(t, 2, got[0].Trades, "first two BTC trades close on the 3rd")
	assert.Equal(t, "hard_stop=2", got[0].Notes)

	assert.Equal(t, "ETH/USDT", got[1].Symbol)
	assert.Equal(t, 0.5, got[1].WinRate)
	assert.Equal(t, 3.0, got[1].NetPnL)
	assert.Equal(t, "hard_stop=1 take_profit=1", got[1].Notes)

	assert.Equal(t, "2024-06-04", got[2].Date)
	assert.Equal(t, 1, got[2].Wins)
}

func TestProperty_WinsPlusLossesEqualsTrades(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("wins + losses == trades and drawdown within [0, 1]", prop.ForAll(
		func(pnls []float64) bool {
			s := Summarize(ledger("BTC/USDT", day, pnls...))
			return s.Wins+s.Losses == s.Trades &&
				s.MaxDrawdown >= 0 && s.MaxDrawdown <= 1 &&
				s.WinRate >= 0 && s.WinRate <= 1
		},
		gen.SliceOf(gen.Float64Range(-4, 4)),
	))

	properties.TestingRun(t)
}
