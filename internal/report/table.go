// Package report renders trades, daily summaries and portfolio status as
// console tables and spreadsheets.
package report

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"autotrader/internal/models"
	"autotrader/internal/performance"
	"autotrader/internal/portfolio"
)

func newTable(w io.Writer, title string) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(title)
	t.SetStyle(table.StyleRounded)
	return t
}

// RenderDaily prints the per-symbol daily report.
func RenderDaily(w io.Writer, summaries []models.DailySummary) {
	t := newTable(w, "DAILY REPORT")
	t.AppendHeader(table.Row{"Date", "Symbol", "Trades", "Wins", "Losses", "Win Rate", "Net PnL", "Max DD", "Notes"})
	var trades int
	var net float64
	for _, d := range summaries {
		t.AppendRow(table.Row{
			d.Date, d.Symbol, d.Trades, d.Wins, d.Losses,
			pct(d.WinRate), money(d.NetPnL), pct(d.MaxDrawdown), d.Notes,
		})
		trades += d.Trades
		net += d.NetPnL
	}
	t.AppendFooter(table.Row{"", "Total", trades, "", "", "", money(net), "", ""})
	t.SetColumnConfigs(numericColumns(3, 4, 5, 6, 7, 8))
	t.Render()
}

// RenderTrades prints individual trades, oldest first.
func RenderTrades(w io.Writer, trades []models.Trade) {
	t := newTable(w, "TRADES")
	t.AppendHeader(table.Row{"Exit Time", "Symbol", "Side", "Qty", "Entry", "Exit", "PnL", "Balance", "P(up)", "Reason", "Mode"})
	for _, tr := range trades {
		t.AppendRow(table.Row{
			tr.Timestamp.UTC().Format("2006-01-02 15:04"),
			tr.Symbol, tr.Side,
			fmt.Sprintf("%.6f", tr.Quantity),
			fmt.Sprintf("%.4f", tr.EntryPrice),
			fmt.Sprintf("%.4f", tr.ExitPrice),
			money(tr.PnL), money(tr.BalanceAfter),
			fmt.Sprintf("%.3f", tr.ProbAtEntry),
			tr.ExitReason, tr.Mode,
		})
	}
	t.SetColumnConfigs(numericColumns(4, 5, 6, 7, 8, 9))
	t.Render()
}

// RenderSummary prints aggregate performance.
func RenderSummary(w io.Writer, s performance.Summary) {
	t := newTable(w, "PERFORMANCE")
	t.AppendRows([]table.Row{
		{"Trades", s.Trades},
		{"Wins / Losses", fmt.Sprintf("%d / %d", s.Wins, s.Losses)},
		{"Win Rate", pct(s.WinRate)},
		{"Avg Win", money(s.AvgWin)},
		{"Avg Loss", money(s.AvgLoss)},
		{"Expectancy", money(s.Expectancy)},
		{"Net PnL", money(s.NetPnL)},
		{"Max Drawdown", pct(s.MaxDrawdown)},
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 15, Align: text.AlignLeft},
		{Number: 2, WidthMin: 12, Align: text.AlignRight},
	})
	t.Render()
}

// RenderStatus prints the orchestrator's per-symbol state.
func RenderStatus(w io.Writer, status []portfolio.SymbolStatus) {
	t := newTable(w, "PORTFOLIO")
	t.AppendHeader(table.Row{"Symbol", "State", "Balance", "Errors", "Position / Reason"})
	for _, s := range status {
		state, detail := "active", s.Position
		switch {
		case s.Disabled:
			state, detail = "disabled", s.Reason
		case s.Blocked:
			state, detail = "blocked", s.BlockReason
		case !s.Active:
			state = "standby"
		}
		t.AppendRow(table.Row{s.Symbol, state, money(s.Balance), s.Errors, detail})
	}
	t.SetColumnConfigs(numericColumns(3, 4))
	t.Render()
}

func numericColumns(numbers ...int) []table.ColumnConfig {
	out := make([]table.ColumnConfig, len(numbers))
	for i, n := range numbers {
		out[i] = table.ColumnConfig{Number: n, Align: text.AlignRight}
	}
	return out
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func pct(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
