package indicators

import (
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/internal/models"
)

func trendingCandles(n int, start, step float64) []models.Candle {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Candle, n)
	price := start
	for i := range out {
		open := price
		price += step
		out[i] = models.Candle{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      open,
			High:      math.Max(open, price) + 0.5,
			Low:       math.Min(open, price) - 0.5,
			Close:     price,
			Volume:    1000 + float64(i%5)*100,
		}
	}
	return out
}

func TestEMAOfConstantSeries(t *testing.T) {
	values := make([]float64, 50)
	for i := range values {
		values[i] = 42
	}
	ema := CalculateEMA(values, 9)
	require.Len(t, ema, 50)
	assert.InDelta(t, 42.0, ema[49], 1e-9)
	assert.Nil(t, CalculateEMA(values[:5], 9))
}

func TestRSIUptrendIsHigh(t *testing.T) {
	rsi, err := NewRSI(14).Calculate(trendingCandles(60, 100, 1))
	require.NoError(t, err)
	assert.Equal(t, 100.0, rsi[59])

	_, err = NewRSI(14).Calculate(trendingCandles(10, 100, 1))
	assert.ErrorIs(t, err, ErrInsufficientData)
}

func TestADXStrongTrend(t *testing.T) {
	res, err := NewADX(14).Calculate(trendingCandles(120, 100, 2))
	require.NoError(t, err)
	assert.Greater(t, res.ADX[119], 25.0)
	assert.Greater(t, res.PlusDI[119], res.MinusDI[119])
}

func TestComputeWarmup(t *testing.T) {
	_, err := Compute(trendingCandles(MinCandles-1, 100, 0.1))
	assert.ErrorIs(t, err, ErrInsufficientData)

	rows, err := Compute(trendingCandles(300, 100, 0.1))
	require.NoError(t, err)
	assert.Len(t, rows, 300-199)

	last, ok := Last(rows)
	require.True(t, ok)
	assert.Greater(t, last.EMA200, 0.0)
	assert.Greater(t, last.ATRPct, 0.0)
	assert.Greater(t, last.VolumeRatio, 0.0)
	v, ok := last.Column("ema_fast")
	assert.True(t, ok)
	assert.Equal(t, last.EMA9, v)
	_, ok = last.Column("unknown")
	assert.False(t, ok)
}

func candleGen() gopter.Gen {
	return gen.Struct(reflect.TypeOf(models.Candle{}), map[string]gopter.Gen{
		"Open":   gen.Float64Range(100.0, 1000.0),
		"High":   gen.Float64Range(100.0, 1000.0),
		"Low":    gen.Float64Range(100.0, 1000.0),
		"Close":  gen.Float64Range(100.0, 1000.0),
		"Volume": gen.Float64Range(1, 1e6),
	}).Map(func(c models.Candle) models.Candle {
		c.High = math.Max(c.High, math.Max(c.Open, c.Close))
		c.Low = math.Min(c.Low, math.Min(c.Open, c.Close))
		return c
	})
}

// Property: RSI and ADX stay within [0, 100] and ATR is never negative.
func TestProperty_IndicatorBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())
	properties := gopter.NewProperties(parameters)

	properties.Property("bounded oscillators", prop.ForAll(
		func(candles []models.Candle) bool {
			rsi, err := NewRSI(14).Calculate(candles)
			if err != nil {
				return false
			}
			adx, err := NewADX(14).Calculate(candles)
			if err != nil {
				return false
			}
			atr, err := NewATR(14).Calculate(candles)
			if err != nil {
				return false
			}
			for i := range candles {
				if rsi[i] < 0 || rsi[i] > 100 || adx.ADX[i] < 0 || adx.ADX[i] > 100+1e-9 || atr[i] < 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(60, candleGen()),
	))

	properties.TestingRun(t)
}
