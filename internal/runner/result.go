package runner

import (
	"context"
	"time"

	"autotrader/internal/errors"
	"autotrader/internal/models"
	"autotrader/internal/regime"
)

// Status tags the outcome of one cycle. The orchestrator decides what to do
// next from the tag alone.
type Status string

const (
	StatusOK        Status = "ok"
	StatusNoSignal  Status = "no_signal"
	StatusBlocked   Status = "blocked"
	StatusRetryable Status = "retryable"
	StatusPermanent Status = "permanent"
	StatusFatal     Status = "fatal"
)

// IsError reports whether the status counts against the symbol.
func (s Status) IsError() bool {
	return s == StatusRetryable || s == StatusPermanent || s == StatusFatal
}

// EntryIntent is an entry the runner wants to make. The orchestrator sizes
// and admits it in the commit phase.
type EntryIntent struct {
	Symbol         string
	Side           models.Side
	Price          float64
	Stop           float64
	Probability    float64
	Threshold      float64
	RiskMultiplier float64
	Regime         regime.Regime
	Time           time.Time
	Bar            time.Time // open time of the candle that produced the signal
}

// CycleResult is what one evaluation produced.
type CycleResult struct {
	Symbol string
	Status Status
	Reason string
	Err    error
	Price  float64
	Prob   float64
	Trade  *models.Trade // exit completed this cycle
	Intent *EntryIntent  // proposed entry, only when flat
}

func errorResult(symbol string, err error) CycleResult {
	return CycleResult{Symbol: symbol, Status: Classify(err), Reason: err.Error(), Err: err}
}

// Classify maps an error to a cycle status.
func Classify(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, errors.ErrKillSwitch):
		return StatusFatal
	case errors.Is(err, errors.ErrInsufficientData):
		return StatusNoSignal
	case errors.Is(err, context.Canceled):
		return StatusRetryable
	case errors.Is(err, errors.ErrPermanent),
		errors.Is(err, errors.ErrModelUnavailable),
		errors.Is(err, errors.ErrSymbolNotFound):
		return StatusPermanent
	default:
		return StatusRetryable
	}
}
