// Package risk implements position sizing and the layered risk governors:
// per-context loss limits, the portfolio market guard and the adaptive supervisor.
package risk

import "math"

// Size converts a risk budget into a position quantity.
//
// risk_amount = balance × riskPct, quantity = risk_amount / |entry − stop|,
// clamped to balance/entry and balance×maxNotionalPct/entry. Degenerate input
// (non-positive or non-finite balance, entry, stop distance or notional cap)
// yields 0, meaning "do not trade".
func Size(balance, riskPct, entry, stop, maxNotionalPct float64) float64 {
	if !finite(balance, riskPct, entry, stop, maxNotionalPct) {
		return 0
	}
	if balance <= 0 || entry <= 0 || riskPct <= 0 || maxNotionalPct <= 0 {
		return 0
	}

	perUnitRisk := math.Abs(entry - stop)
	if perUnitRisk <= 0 {
		return 0
	}

	qty := balance * riskPct / perUnitRisk
	qty = math.Min(qty, balance/entry)
	qty = math.Min(qty, balance*maxNotionalPct/entry)
	if qty < 0 {
		return 0
	}
	return qty
}

// StopPrice returns the protective stop for a position entered at entry.
func StopPrice(entry, stopPct float64, long bool) float64 {
	if long {
		return entry * (1 - stopPct)
	}
	return entry * (1 + stopPct)
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
