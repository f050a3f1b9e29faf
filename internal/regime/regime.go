// Package regime classifies the market state of the latest feature row.
package regime

import "autotrader/internal/indicators"

// Regime is a coarse market state.
type Regime string

const (
	Trending Regime = "trending"
	Ranging  Regime = "ranging"
	Choppy   Regime = "choppy"
)

const (
	trendADX    = 25.0
	rangeADX    = 15.0
	trendATRPct = 0.002
)

// Detect classifies by trend strength and volatility: trending needs
// ADX >= 25 with ATR% >= 0.2%, ranging is ADX < 15, everything else is choppy.
func Detect(f indicators.Features) Regime {
	switch {
	case f.ADX14 >= trendADX && f.ATRPct >= trendATRPct:
		return Trending
	case f.ADX14 < rangeADX:
		return Ranging
	default:
		return Choppy
	}
}

// DetectTrend classifies by trend strength and direction: trending needs
// ADX >= 25 with price above the 200 EMA.
func DetectTrend(f indicators.Features) Regime {
	switch {
	case f.ADX14 >= trendADX && f.Close > f.EMA200:
		return Trending
	case f.ADX14 < rangeADX:
		return Ranging
	default:
		return Choppy
	}
}

// RiskMultiplier scales position risk for the regime.
func (r Regime) RiskMultiplier() float64 {
	switch r {
	case Trending:
		return 1.25
	case Ranging:
		return 0.75
	default:
		return 0.5
	}
}

// TradingAllowed is false in choppy markets.
func (r Regime) TradingAllowed() bool {
	return r != Choppy
}
