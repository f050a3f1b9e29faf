package regime

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"autotrader/internal/indicators"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name string
		f    indicators.Features
		want Regime
	}{
		{"trending", indicators.Features{ADX14: 30, ATRPct: 0.003}, Trending},
		{"strong but quiet", indicators.Features{ADX14: 30, ATRPct: 0.001}, Choppy},
		{"ranging", indicators.Features{ADX14: 10, ATRPct: 0.01}, Ranging},
		{"in between", indicators.Features{ADX14: 20, ATRPct: 0.01}, Choppy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Detect(tt.f))
		})
	}
}

func TestDetectTrend(t *testing.T) {
	assert.Equal(t, Trending, DetectTrend(indicators.Features{ADX14: 30, Close: 110, EMA200: 100}))
	assert.Equal(t, Choppy, DetectTrend(indicators.Features{ADX14: 30, Close: 90, EMA200: 100}))
	assert.Equal(t, Ranging, DetectTrend(indicators.Features{ADX14: 5, Close: 90, EMA200: 100}))
}

func TestModifiers(t *testing.T) {
	assert.Equal(t, 1.25, Trending.RiskMultiplier())
	assert.Equal(t, 0.75, Ranging.RiskMultiplier())
	assert.Equal(t, 0.5, Choppy.RiskMultiplier())
	assert.True(t, Trending.TradingAllowed())
	assert.True(t, Ranging.TradingAllowed())
	assert.False(t, Choppy.TradingAllowed())
}
