// Package performance summarises completed trades: win rate, expectancy,
// drawdown and the per-symbol daily report.
package performance

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"autotrader/internal/models"
)

// Summary is the aggregate of a set of trades.
type Summary struct {
	Trades      int
	Wins        int
	Losses      int
	WinRate     float64
	AvgWin      float64
	AvgLoss     float64 // positive magnitude
	Expectancy  float64
	NetPnL      float64
	MaxDrawdown float64 // fraction of the running balance peak
}

// Summarize aggregates trades in the order given. A trade with pnl <= 0
// counts as a loss.
func Summarize(trades []models.Trade) Summary {
	var s Summary
	if len(trades) == 0 {
		return s
	}

	var winSum, lossSum float64
	for _, t := range trades {
		s.NetPnL += t.PnL
		if t.IsWin() {
			s.Wins++
			winSum += t.PnL
		} else {
			s.Losses++
			lossSum += -t.PnL
		}
	}
	s.Trades = len(trades)
	s.WinRate = float64(s.Wins) / float64(s.Trades)
	if s.Wins > 0 {
		s.AvgWin = winSum / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = lossSum / float64(s.Losses)
	}
	s.Expectancy = s.WinRate*s.AvgWin - (1-s.WinRate)*s.AvgLoss
	s.MaxDrawdown = MaxDrawdown(trades)
	return s
}

// MaxDrawdown is the largest peak-to-trough fall of the balance after each
// trade, relative to the peak. The balance before the first trade seeds the peak.
func MaxDrawdown(trades []models.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	peak := trades[0].BalanceAfter - trades[0].PnL
	var maxDD float64
	for _, t := range trades {
		peak = math.Max(peak, t.BalanceAfter)
		if peak > 0 {
			maxDD = math.Max(maxDD, (peak-t.BalanceAfter)/peak)
		}
	}
	return maxDD
}

// DailySummaries groups trades by UTC exit date and symbol, sorted by date
// then symbol.
func DailySummaries(trades []models.Trade) []models.DailySummary {
	type key struct{ date, symbol string }
	groups := make(map[key][]models.Trade)
	var keys []key
	for _, t := range trades {
		k := key{t.Timestamp.UTC().Format("2006-01-02"), t.Symbol}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], t)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].date != keys[j].date {
			return keys[i].date < keys[j].date
		}
		return keys[i].symbol < keys[j].symbol
	})

	out := make([]models.DailySummary, 0, len(keys))
	for _, k := range keys {
		day := groups[k]
		sort.SliceStable(day, func(i, j int) bool { return day[i].Timestamp.Before(day[j].Timestamp) })
		s := Summarize(day)
		out = append(out, models.DailySummary{
			Date:        k.date,
			Symbol:      k.symbol,
			Trades:      s.Trades,
			Wins:        s.Wins,
			Losses:      s.Losses,
			WinRate:     round(s.WinRate, 3),
			NetPnL:      round(s.NetPnL, 4),
			MaxDrawdown: round(s.MaxDrawdown, 4),
			Notes:       exitNotes(day),
		})
	}
	return out
}

// exitNotes lists exit reasons by frequency, e.g. "hard_stop=2 take_profit=1".
func exitNotes(trades []models.Trade) string {
	counts := make(map[models.ExitReason]int)
	for _, t := range trades {
		if t.ExitReason != "" {
			counts[t.ExitReason]++
		}
	}
	reasons := make([]models.ExitReason, 0, len(counts))
	for r := range counts {
		reasons = append(reasons, r)
	}
	sort.Slice(reasons, func(i, j int) bool {
		if counts[reasons[i]] != counts[reasons[j]] {
			return counts[reasons[i]] > counts[reasons[j]]
		}
		return reasons[i] < reasons[j]
	})

	parts := make([]string, len(reasons))
	for i, r := range reasons {
		parts[i] = fmt.Sprintf("%s=%d", r, counts[r])
	}
	return strings.Join(parts, " ")
}

func round(v float64, places int) float64 {
	m := math.Pow(10, float64(places))
	return math.Round(v*m) / m
}
