package broker

import (
	"fmt"
	"math"
	"time"

	"autotrader/internal/errors"
	"autotrader/internal/models"
	"autotrader/internal/risk"
)

// ExitRules configures stop placement and exit triggers for a position.
type ExitRules struct {
	StopLossPct    float64
	TrailingPct    float64
	TakeProfitRR   float64 // 0 disables take-profit
	BreakevenRR    float64 // 0 disables the breakeven shift
	MaxHoldCandles int     // 0 holds indefinitely
}

// DefaultExitRules mirrors the shipped risk defaults.
func DefaultExitRules() ExitRules {
	return ExitRules{
		StopLossPct:    0.01,
		TrailingPct:    0.0075,
		TakeProfitRR:   2.0,
		BreakevenRR:    1.0,
		MaxHoldCandles: 20,
	}
}

// Position is an open position on one symbol.
//
// The hard stop never moves. The trailing stop starts at the hard stop and
// only ever tightens: up for LONG, down for SHORT.
type Position struct {
	Symbol         string
	Side           models.Side
	EntryPrice     float64
	Quantity       float64
	EntryTime      time.Time
	BestPrice      float64
	HardStop       float64
	TrailingStop   float64
	TakeProfit     float64
	InitialRisk    float64
	HoldCandles    int
	LastBar        time.Time // open time of the newest candle counted
	BreakevenArmed bool
	ProbAtEntry    float64
	OrderID        string
}

// NewPosition validates an entry and places its stops.
func NewPosition(symbol string, side models.Side, price, qty float64, at time.Time, prob float64, rules ExitRules) (*Position, error) {
	if !side.Valid() {
		return nil, errors.Wrapf(errors.ErrInvalidOrder, "side %q", side)
	}
	if !(price > 0) || math.IsInf(price, 0) {
		return nil, errors.Wrapf(errors.ErrInvalidOrder, "price %v", price)
	}
	if !(qty > 0) || math.IsInf(qty, 0) {
		return nil, errors.Wrapf(errors.ErrInvalidOrder, "quantity %v", qty)
	}

	long := side == models.SideLong
	stop := risk.StopPrice(price, rules.StopLossPct, long)
	p := &Position{
		Symbol:       symbol,
		Side:         side,
		EntryPrice:   price,
		Quantity:     qty,
		EntryTime:    at,
		BestPrice:    price,
		HardStop:     stop,
		TrailingStop: stop,
		InitialRisk:  math.Abs(price - stop),
		ProbAtEntry:  prob,
	}
	if rules.TakeProfitRR > 0 && p.InitialRisk > 0 {
		p.TakeProfit = price + side.Sign()*rules.TakeProfitRR*p.InitialRisk
	}
	return p, nil
}

// Manage advances the position to price as of the candle opened at bar.
// The best price moves only in the favourable direction, the trailing stop
// follows it without loosening, and the stop shifts to breakeven once the
// move reaches BreakevenRR times the initial risk. HoldCandles counts
// distinct bars, so polling the same candle again does not age the position.
func (p *Position) Manage(price float64, bar time.Time, rules ExitRules) {
	if !(price > 0) {
		return
	}
	if bar.After(p.LastBar) {
		p.HoldCandles++
		p.LastBar = bar
	}

	if p.Side == models.SideLong {
		p.BestPrice = math.Max(p.BestPrice, price)
		if rules.TrailingPct > 0 {
			p.TrailingStop = math.Max(p.TrailingStop, p.BestPrice*(1-rules.TrailingPct))
		}
	} else {
		p.BestPrice = math.Min(p.BestPrice, price)
		if rules.TrailingPct > 0 {
			p.TrailingStop = math.Min(p.TrailingStop, p.BestPrice*(1+rules.TrailingPct))
		}
	}

	if !p.BreakevenArmed && rules.BreakevenRR > 0 && p.InitialRisk > 0 &&
		p.Excursion() >= rules.BreakevenRR*p.InitialRisk {
		p.BreakevenArmed = true
		p.tighten(p.EntryPrice)
	}
}

// ExitReason reports which exit, if any, price triggers. Stops are checked
// before take-profit and max hold.
func (p *Position) ExitReason(price float64, rules ExitRules) (models.ExitReason, bool) {
	long := p.Side == models.SideLong
	crossed := func(level float64) bool {
		if long {
			return price <= level
		}
		return price >= level
	}

	switch {
	case crossed(p.HardStop):
		return models.ExitHardStop, true
	case p.TrailingStop != p.HardStop && crossed(p.TrailingStop):
		return models.ExitTrailing, true
	case p.TakeProfit > 0 && p.reached(price, p.TakeProfit):
		return models.ExitTakeProfit, true
	case rules.MaxHoldCandles > 0 && p.HoldCandles >= rules.MaxHoldCandles:
		return models.ExitMaxHold, true
	}
	return "", false
}

// Excursion is the favourable move from entry to the best price.
func (p *Position) Excursion() float64 {
	return (p.BestPrice - p.EntryPrice) * p.Side.Sign()
}

// PnL is the realized profit of closing at price.
func (p *Position) PnL(price float64) float64 {
	return (price - p.EntryPrice) * p.Quantity * p.Side.Sign()
}

// Notional is the entry value of the position.
func (p *Position) Notional() float64 {
	return p.EntryPrice * p.Quantity
}

func (p *Position) String() string {
	return fmt.Sprintf("%s %s %g @ %g (stop %g, trail %g)", p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.HardStop, p.TrailingStop)
}

func (p *Position) tighten(level float64) {
	if p.Side == models.SideLong {
		p.TrailingStop = math.Max(p.TrailingStop, level)
	} else {
		p.TrailingStop = math.Min(p.TrailingStop, level)
	}
}

func (p *Position) reached(price, level float64) bool {
	if p.Side == models.SideLong {
		return price >= level
	}
	return price <= level
}
