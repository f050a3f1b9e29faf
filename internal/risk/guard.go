package risk

import (
	"fmt"
	"sync"
	"time"
)

// MarketGuard is the portfolio-wide kill switch: it halts new entries for the
// rest of the day after a daily drawdown or a streak of losing trades.
type MarketGuard struct {
	mu sync.Mutex

	maxDailyDrawdown      float64
	maxConsecutiveLosses  int
	day                   string
	startingBalanceForDay float64
	consecutiveLosses     int
	disabled              bool
	reason                string
}

// NewMarketGuard creates a guard. Defaults are 2% daily drawdown and 3 losses.
func NewMarketGuard(maxDailyDrawdown float64, maxConsecutiveLosses int) *MarketGuard {
	if maxDailyDrawdown <= 0 {
		maxDailyDrawdown = 0.02
	}
	if maxConsecutiveLosses <= 0 {
		maxConsecutiveLosses = 3
	}
	return &MarketGuard{
		maxDailyDrawdown:     maxDailyDrawdown,
		maxConsecutiveLosses: maxConsecutiveLosses,
	}
}

// AllowTrading resets on a new day (anchoring the day on balance) and then
// evaluates the drawdown and loss-streak limits. A trip latches until the next day.
func (g *MarketGuard) AllowTrading(balance float64, today time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if day := dayKey(today); day != g.day {
		g.day = day
		g.startingBalanceForDay = balance
		g.consecutiveLosses = 0
		g.disabled = false
		g.reason = ""
	}

	if g.disabled {
		return false
	}

	if g.startingBalanceForDay <= 0 {
		g.trip("day anchor balance is not positive")
		return false
	}
	dd := (g.startingBalanceForDay - balance) / g.startingBalanceForDay
	if dd >= g.maxDailyDrawdown {
		g.trip(fmt.Sprintf("portfolio daily drawdown %.2f%%", dd*100))
		return false
	}
	if g.consecutiveLosses >= g.maxConsecutiveLosses {
		g.trip(fmt.Sprintf("%d consecutive portfolio losses", g.consecutiveLosses))
		return false
	}
	return true
}

// RegisterTrade tracks the portfolio loss streak.
func (g *MarketGuard) RegisterTrade(pnl float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if pnl < 0 {
		g.consecutiveLosses++
	} else {
		g.consecutiveLosses = 0
	}
}

// Reason returns why the guard tripped, or "".
func (g *MarketGuard) Reason() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reason
}

func (g *MarketGuard) trip(reason string) {
	g.disabled = true
	g.reason = reason
}
