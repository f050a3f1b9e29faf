package risk

import (
	"fmt"
	"sync"
	"time"
)

// Limits are the immutable loss and activity limits for one trading context.
// Zero MaxWeeklyLossPct or MaxTradesPerDay disables that check.
type Limits struct {
	MaxDailyLossPct      float64
	MaxWeeklyLossPct     float64
	MaxTradesPerDay      int
	MaxConsecutiveLosses int
}

// DefaultLimits returns the standard per-symbol limits.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyLossPct:      0.03,
		MaxWeeklyLossPct:     0.06,
		MaxTradesPerDay:      10,
		MaxConsecutiveLosses: 3,
	}
}

// StateSnapshot is a read-only copy of a State.
type StateSnapshot struct {
	StartingBalance    float64
	CurrentBalance     float64
	DayAnchor          string
	DailyStartBalance  float64
	WeeklyStartBalance float64
	DailyPnL           float64
	WeeklyPnL          float64
	ConsecutiveLosses  int
	TradesToday        int
	Blocked            bool
	BlockReason        string
}

// State is the balance and loss ledger of one trading context.
//
// The balance changes only through RegisterTrade. Once a limit trips, the
// state stays blocked until the next calendar day.
type State struct {
	mu sync.Mutex

	startingBalance float64
	currentBalance  float64

	day               string
	dailyStartBalance float64
	dailyPnL          float64
	tradesToday       int

	week               string
	weeklyStartBalance float64
	weeklyPnL          float64

	consecutiveLosses int
	blocked           bool
	blockReason       string
}

// NewState creates a ledger anchored on now's date.
func NewState(startingBalance float64, now time.Time) *State {
	return &State{
		startingBalance:    startingBalance,
		currentBalance:     startingBalance,
		day:                dayKey(now),
		dailyStartBalance:  startingBalance,
		week:               weekKey(now),
		weeklyStartBalance: startingBalance,
	}
}

// ResetIfNewDay re-anchors the daily counters when now falls on a new date and
// the weekly counters when it falls in a new ISO week. It reports whether a
// daily reset happened.
func (s *State) ResetIfNewDay(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	day := dayKey(now)
	if day == s.day {
		return false
	}

	s.day = day
	s.dailyStartBalance = s.currentBalance
	s.dailyPnL = 0
	s.tradesToday = 0
	s.consecutiveLosses = 0
	s.blocked = false
	s.blockReason = ""

	if week := weekKey(now); week != s.week {
		s.week = week
		s.weeklyStartBalance = s.currentBalance
		s.weeklyPnL = 0
	}
	return true
}

// RegisterTrade applies a realised pnl. It is applied even while blocked.
func (s *State) RegisterTrade(pnl float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.currentBalance += pnl
	s.dailyPnL += pnl
	s.weeklyPnL += pnl
	s.tradesToday++
	if pnl < 0 {
		s.consecutiveLosses++
	} else {
		s.consecutiveLosses = 0
	}
}

// TradingAllowed evaluates the limits, latching the blocked flag on the first
// breach.
func (s *State) TradingAllowed(limits Limits) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.blocked {
		return false
	}

	if reason := s.breach(limits); reason != "" {
		s.blocked = true
		s.blockReason = reason
		return false
	}
	return true
}

func (s *State) breach(limits Limits) string {
	if s.dailyStartBalance <= 0 {
		return "daily start balance is not positive"
	}
	dailyDD := (s.dailyStartBalance - s.currentBalance) / s.dailyStartBalance
	if dailyDD >= limits.MaxDailyLossPct {
		return fmt.Sprintf("daily loss %.2f%% >= %.2f%%", dailyDD*100, limits.MaxDailyLossPct*100)
	}
	if limits.MaxConsecutiveLosses > 0 && s.consecutiveLosses >= limits.MaxConsecutiveLosses {
		return fmt.Sprintf("%d consecutive losses", s.consecutiveLosses)
	}
	if limits.MaxWeeklyLossPct > 0 && s.weeklyStartBalance > 0 {
		weeklyDD := (s.weeklyStartBalance - s.currentBalance) / s.weeklyStartBalance
		if weeklyDD >= limits.MaxWeeklyLossPct {
			return fmt.Sprintf("weekly loss %.2f%% >= %.2f%%", weeklyDD*100, limits.MaxWeeklyLossPct*100)
		}
	}
	if limits.MaxTradesPerDay > 0 && s.tradesToday >= limits.MaxTradesPerDay {
		return fmt.Sprintf("%d trades today", s.tradesToday)
	}
	return ""
}

// CurrentBalance returns the ledger balance.
func (s *State) CurrentBalance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentBalance
}

// Blocked reports whether a limit has latched and why.
func (s *State) Blocked() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocked, s.blockReason
}

// Snapshot returns a copy of the ledger.
func (s *State) Snapshot() StateSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StateSnapshot{
		StartingBalance:    s.startingBalance,
		CurrentBalance:     s.currentBalance,
		DayAnchor:          s.day,
		DailyStartBalance:  s.dailyStartBalance,
		WeeklyStartBalance: s.weeklyStartBalance,
		DailyPnL:           s.dailyPnL,
		WeeklyPnL:          s.weeklyPnL,
		ConsecutiveLosses:  s.consecutiveLosses,
		TradesToday:        s.tradesToday,
		Blocked:            s.blocked,
		BlockReason:        s.blockReason,
	}
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

func weekKey(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}
