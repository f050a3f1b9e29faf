package strategy

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/errors"
	"autotrader/internal/indicators"
	"autotrader/internal/models"
	"autotrader/internal/regime"
)

type stubModel struct {
	p   float64
	f1  float64
	err error
}

func (m stubModel) PredictProba([]indicators.Features) (float64, error) { return m.p, m.err }
func (m stubModel) Quality() models.ModelQuality                       { return models.ModelQuality{F1: m.f1} }

// trendingRow is above the 200 EMA with a strong, volatile trend.
func trendingRow() indicators.Features {
	return indicators.Features{Close: 110, EMA200: 100, ADX14: 30, ATRPct: 0.004}
}

func TestDynamicThreshold(t *testing.T) {
	tests := []struct {
		name             string
		f1, adx, px, ema float64
		want             float64
	}{
		{"strong model", 0.35, 10, 110, 100, 0.50},
		{"good model", 0.25, 10, 110, 100, 0.52},
		{"fair model", 0.15, 10, 110, 100, 0.55},
		{"weak model", 0.05, 10, 110, 100, 0.58},
		{"trend discount", 0.35, 30, 110, 100, 0.485},
		{"below ema", 0.15, 10, 90, 100, 0.57},
		{"weak model below ema", 0.0, 10, 90, 100, 0.60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DynamicThreshold(tt.f1, tt.adx, tt.px, tt.ema), 1e-12)
		})
	}
}

func TestEvaluateLong(t *testing.T) {
	e := NewEngine(DefaultConfig(), stubModel{p: 0.60, f1: 0.25})

	d, err := e.Evaluate([]indicators.Features{trendingRow()})
	require.NoError(t, err)
	assert.Equal(t, SignalLong, d.Signal)
	assert.Equal(t, regime.Trending, d.Regime)
	assert.InDelta(t, 0.505, d.Threshold, 1e-12)
	assert.Equal(t, 110.0, d.Entry)
	assert.InDelta(t, 108.9, d.Stop, 1e-9)

	side, ok := d.Side()
	assert.True(t, ok)
	assert.Equal(t, models.SideLong, side)
	assert.Equal(t, 1.25, d.RiskMultiplier())
}

func TestEvaluateNoSignal(t *testing.T) {
	tests := []struct {
		name   string
		p      float64
		row    indicators.Features
		reason string
	}{
		{"ood high", 0.97, trendingRow(), ReasonOutOfDistribution},
		{"ood low", 0.01, trendingRow(), ReasonOutOfDistribution},
		{"quiet market", 0.7, indicators.Features{Close: 110, EMA200: 100, ADX14: 30, ATRPct: 0.0005}, ReasonLowVolatility},
		{"choppy", 0.7, indicators.Features{Close: 110, EMA200: 100, ADX14: 20, ATRPct: 0.004}, ReasonChoppy},
		{"no trend", 0.7, indicators.Features{Close: 110, EMA200: 100, ADX14: 5, ATRPct: 0.004}, ReasonWeakTrend},
		{"below threshold", 0.50, trendingRow(), ReasonBelowThreshold},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(DefaultConfig(), stubModel{p: tt.p, f1: 0.25})
			d, err := e.Evaluate([]indicators.Features{tt.row})
			require.NoError(t, err)
			assert.Equal(t, SignalNone, d.Signal)
			assert.Equal(t, tt.reason, d.Reason)
			_, ok := d.Side()
			assert.False(t, ok)
		})
	}
}

func TestEvaluateShortNeedsFlag(t *testing.T) {
	row := indicators.Features{Close: 90, EMA200: 100, ADX14: 30, ATRPct: 0.004}

	cfg := DefaultConfig()
	cfg.UseRegimeFilter = false
	d, err := NewEngine(cfg, stubModel{p: 0.2, f1: 0.25}).Evaluate([]indicators.Features{row})
	require.NoError(t, err)
	assert.Equal(t, SignalNone, d.Signal)

	cfg.AllowShort = true
	d, err = NewEngine(cfg, stubModel{p: 0.2, f1: 0.25}).Evaluate([]indicators.Features{row})
	require.NoError(t, err)
	assert.Equal(t, SignalShort, d.Signal)
	assert.InDelta(t, 90.9, d.Stop, 1e-9)
	assert.Equal(t, 1.0, d.RiskMultiplier(), "no regime scaling with the filter off")
}

func TestEvaluateStaticThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseDynamicThreshold = false
	cfg.ProbLong = 0.65
	e := NewEngine(cfg, stubModel{p: 0.60, f1: 0.5})

	d, err := e.Evaluate([]indicators.Features{trendingRow()})
	require.NoError(t, err)
	assert.Equal(t, 0.65, d.Threshold)
	assert.Equal(t, SignalNone, d.Signal)
}

func TestEvaluateErrors(t *testing.T) {
	e := NewEngine(DefaultConfig(), stubModel{err: errors.ErrModelUnavailable})

	_, err := e.Evaluate(nil)
	assert.ErrorIs(t, err, errors.ErrInsufficientData)

	_, err = e.Evaluate([]indicators.Features{trendingRow()})
	assert.ErrorIs(t, err, errors.ErrModelUnavailable)
}

func TestWeakExit(t *testing.T) {
	e := NewEngine(DefaultConfig(), stubModel{})
	assert.True(t, e.WeakExit(models.SideLong, 0.35))
	assert.False(t, e.WeakExit(models.SideLong, 0.45))
	assert.True(t, e.WeakExit(models.SideShort, 0.65))
	assert.False(t, e.WeakExit(models.SideShort, 0.55))
}

// Property: the dynamic threshold always stays within its clamp.
func TestProperty_DynamicThresholdBounded(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("threshold within [0.45, 0.62]", prop.ForAll(
		func(f1, adx, px, ema float64) bool {
			th := DynamicThreshold(f1, adx, px, ema)
			return th >= minThreshold && th <= maxThreshold
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 100),
		gen.Float64Range(1, 1e5),
		gen.Float64Range(1, 1e5),
	))

	properties.TestingRun(t)
}
