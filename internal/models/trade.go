package models

import "time"

// ExitReason records why a position was closed.
type ExitReason string

const (
	ExitHardStop   ExitReason = "hard_stop"
	ExitTrailing   ExitReason = "trailing_stop"
	ExitTakeProfit ExitReason = "take_profit"
	ExitMaxHold    ExitReason = "max_hold"
	ExitWeakSignal ExitReason = "weak_signal"
	ExitShutdown   ExitReason = "shutdown"
	ExitDisabled   ExitReason = "symbol_disabled"
)

// Trade represents a completed round trip. Trades are append-only.
type Trade struct {
	ID           string        `json:"id"`
	Timestamp    time.Time     `json:"time"`
	EntryTime    time.Time     `json:"entry_time"`
	Symbol       string        `json:"symbol"`
	Side         Side          `json:"side"`
	Mode         Mode          `json:"mode"`
	Quantity     float64       `json:"qty"`
	EntryPrice   float64       `json:"entry_price"`
	ExitPrice    float64       `json:"exit_price"`
	PnL          float64       `json:"pnl"`
	BalanceAfter float64       `json:"balance"`
	ProbAtEntry  float64       `json:"prob_up_entry"`
	ExitReason   ExitReason    `json:"exit_reason"`
	HoldDuration time.Duration `json:"hold_duration"`
}

// IsWin reports whether the trade closed with positive pnl.
func (t Trade) IsWin() bool {
	return t.PnL > 0
}

// DailySummary is the per-symbol, per-day performance record.
type DailySummary struct {
	Date        string  `json:"date" csv:"date"`
	Symbol      string  `json:"symbol" csv:"symbol"`
	Trades      int     `json:"trades" csv:"trades"`
	Wins        int     `json:"wins" csv:"wins"`
	Losses      int     `json:"losses" csv:"losses"`
	WinRate     float64 `json:"win_rate" csv:"win_rate"`
	NetPnL      float64 `json:"net_pnl" csv:"net_pnl"`
	MaxDrawdown float64 `json:"max_drawdown" csv:"max_drawdown"`
	Notes       string  `json:"notes" csv:"notes"`
}
