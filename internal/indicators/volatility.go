package indicators

import (
	"fmt"

	"autotrader/internal/models"
)

// ATR calculates the Average True Range.
type ATR struct {
	period int
}

// NewATR creates a new ATR indicator.
func NewATR(period int) *ATR {
	return &ATR{period: period}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR_%d", a.period)
}

func (a *ATR) Period() int {
	return a.period
}

func (a *ATR) Calculate(candles []models.Candle) ([]float64, error) {
	if a.period <= 0 {
		return nil, ErrInvalidPeriod
	}
	if len(candles) < a.period+1 {
		return nil, ErrInsufficientData
	}

	n := len(candles)
	result := make([]float64, n)
	tr := make([]float64, n)

	// First TR is just high - low
	tr[0] = candles[0].High - candles[0].Low
	for i := 1; i < n; i++ {
		tr[i] = trueRange(candles[i], candles[i-1])
	}

	result[a.period-1] = mean(tr[:a.period])
	for i := a.period; i < n; i++ {
		result[i] = (result[i-1]*float64(a.period-1) + tr[i]) / float64(a.period)
	}

	return result, nil
}

// Returns calculates simple close-to-close returns; the first entry is zero.
func Returns(candles []models.Candle) []float64 {
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		if prev := candles[i-1].Close; prev != 0 {
			out[i] = candles[i].Close/prev - 1
		}
	}
	return out
}

// RollingVolatility is the trailing standard deviation of returns.
func RollingVolatility(returns []float64, period int) []float64 {
	out := make([]float64, len(returns))
	if period <= 0 {
		return out
	}
	for i := period - 1; i < len(returns); i++ {
		out[i] = stdDev(returns[i-period+1 : i+1])
	}
	return out
}
