package indicators

import (
	"time"

	"autotrader/internal/models"
)

// MinCandles is the warm-up the pipeline needs before it emits any row.
const MinCandles = 220

const (
	volWindow    = 20
	volumeWindow = 20
	slowEMA      = 200
)

// Features is one fully warmed-up row of the indicator pipeline.
type Features struct {
	Timestamp   time.Time
	Close       float64
	EMA9        float64
	EMA21       float64
	EMA200      float64
	RSI14       float64
	ATR14       float64
	ATRPct      float64
	ADX14       float64
	PlusDI      float64
	MinusDI     float64
	Return      float64
	Volatility  float64
	VolumeRatio float64
}

// Column returns the feature named by a model's feature_columns entry.
func (f Features) Column(name string) (float64, bool) {
	switch name {
	case "close":
		return f.Close, true
	case "ema_fast", "ema9":
		return f.EMA9, true
	case "ema_slow", "ema21":
		return f.EMA21, true
	case "ema200":
		return f.EMA200, true
	case "rsi", "rsi14":
		return f.RSI14, true
	case "atr", "atr14":
		return f.ATR14, true
	case "atr_pct":
		return f.ATRPct, true
	case "adx", "adx14":
		return f.ADX14, true
	case "plus_di":
		return f.PlusDI, true
	case "minus_di":
		return f.MinusDI, true
	case "ret":
		return f.Return, true
	case "vol":
		return f.Volatility, true
	case "volume_ratio":
		return f.VolumeRatio, true
	}
	return 0, false
}

// Compute runs the full pipeline and returns only the rows where every
// indicator is defined, oldest first.
func Compute(candles []models.Candle) ([]Features, error) {
	if len(candles) < MinCandles {
		return nil, ErrInsufficientData
	}

	closes := closePrices(candles)
	ema9 := CalculateEMA(closes, 9)
	ema21 := CalculateEMA(closes, 21)
	ema200 := CalculateEMA(closes, slowEMA)

	rsi, err := NewRSI(14).Calculate(candles)
	if err != nil {
		return nil, err
	}
	atr, err := NewATR(14).Calculate(candles)
	if err != nil {
		return nil, err
	}
	adx, err := NewADX(14).Calculate(candles)
	if err != nil {
		return nil, err
	}

	rets := Returns(candles)
	vol := RollingVolatility(rets, volWindow)
	volMA := rollingMean(volumes(candles), volumeWindow)

	start := slowEMA - 1
	out := make([]Features, 0, len(candles)-start)
	for i := start; i < len(candles); i++ {
		c := candles[i]
		f := Features{
			Timestamp:  c.Timestamp,
			Close:      c.Close,
			EMA9:       ema9[i],
			EMA21:      ema21[i],
			EMA200:     ema200[i],
			RSI14:      rsi[i],
			ATR14:      atr[i],
			ADX14:      adx.ADX[i],
			PlusDI:     adx.PlusDI[i],
			MinusDI:    adx.MinusDI[i],
			Return:     rets[i],
			Volatility: vol[i],
		}
		if c.Close > 0 {
			f.ATRPct = atr[i] / c.Close
		}
		if volMA[i] > 0 {
			f.VolumeRatio = c.Volume / volMA[i]
		}
		out = append(out, f)
	}
	return out, nil
}

// Last returns the most recent row.
func Last(rows []Features) (Features, bool) {
	if len(rows) == 0 {
		return Features{}, false
	}
	return rows[len(rows)-1], true
}
