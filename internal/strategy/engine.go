// Package strategy turns a feature window and a model probability into an
// entry decision.
package strategy

import (
	"math"

	"autotrader/internal/errors"
	"autotrader/internal/indicators"
	"autotrader/internal/model"
	"autotrader/internal/models"
	"autotrader/internal/regime"
	"autotrader/internal/risk"
)

// Signal is the engine's verdict for one cycle.
type Signal string

const (
	SignalNone  Signal = "none"
	SignalLong  Signal = "long"
	SignalShort Signal = "short"
)

// Reasons attached to a no-signal decision.
const (
	ReasonOutOfDistribution = "probability out of distribution"
	ReasonLowVolatility     = "atr below minimum"
	ReasonWeakTrend         = "adx below minimum"
	ReasonChoppy            = "choppy regime"
	ReasonBelowThreshold    = "probability below threshold"
)

// Probability bounds outside which model output is not trusted.
const (
	minTrustedProb = 0.05
	maxTrustedProb = 0.95
)

// Dynamic threshold bounds.
const (
	minThreshold = 0.45
	maxThreshold = 0.62
)

// Config controls signal generation.
type Config struct {
	ProbLong            float64
	ProbShort           float64
	MinADX              float64
	MinATRPct           float64
	StopLossPct         float64
	WeakExitProb        float64
	UseDynamicThreshold bool
	UseRegimeFilter     bool
	AllowShort          bool
}

// DefaultConfig mirrors the shipped configuration defaults.
func DefaultConfig() Config {
	return Config{
		ProbLong:            0.52,
		ProbShort:           0.48,
		MinADX:              8,
		MinATRPct:           0.001,
		StopLossPct:         0.01,
		WeakExitProb:        0.40,
		UseDynamicThreshold: true,
		UseRegimeFilter:     true,
	}
}

// Decision is the outcome of one evaluation. Entry and Stop are set only for
// a long or short signal and form the sizing request for the runner.
type Decision struct {
	Signal    Signal
	Prob      float64
	Threshold float64
	Regime    regime.Regime
	RiskScale float64
	Reason    string
	Entry     float64
	Stop      float64
	Features  indicators.Features
}

// Side maps the signal to a position side.
func (d Decision) Side() (models.Side, bool) {
	switch d.Signal {
	case SignalLong:
		return models.SideLong, true
	case SignalShort:
		return models.SideShort, true
	}
	return "", false
}

// RiskMultiplier is the regime scaling for the decision, 1 when the regime
// filter is off.
func (d Decision) RiskMultiplier() float64 {
	if d.RiskScale <= 0 {
		return 1
	}
	return d.RiskScale
}

// Engine scores the latest feature row with a model.
type Engine struct {
	cfg   Config
	model model.Model
}

// NewEngine creates an engine for one symbol's model.
func NewEngine(cfg Config, m model.Model) *Engine {
	return &Engine{cfg: cfg, model: m}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Probability scores rows without applying entry gates.
func (e *Engine) Probability(rows []indicators.Features) (float64, error) {
	if len(rows) == 0 {
		return 0, errors.ErrInsufficientData
	}
	return e.model.PredictProba(rows)
}

// Evaluate produces an entry decision from the feature window. Model
// failures are returned as errors; data-quality rejections are a
// SignalNone decision with a reason.
func (e *Engine) Evaluate(rows []indicators.Features) (Decision, error) {
	last, ok := indicators.Last(rows)
	if !ok {
		return Decision{Signal: SignalNone}, errors.ErrInsufficientData
	}

	p, err := e.model.PredictProba(rows)
	if err != nil {
		return Decision{Signal: SignalNone}, err
	}

	d := Decision{
		Signal:   SignalNone,
		Prob:     p,
		Regime:   regime.Detect(last),
		Features: last,
	}

	if math.IsNaN(p) || p < minTrustedProb || p > maxTrustedProb {
		d.Reason = ReasonOutOfDistribution
		return d, nil
	}
	if last.ATRPct < e.cfg.MinATRPct {
		d.Reason = ReasonLowVolatility
		return d, nil
	}

	d.Threshold = e.threshold(last)

	if e.cfg.UseRegimeFilter && !d.Regime.TradingAllowed() {
		d.Reason = ReasonChoppy
		return d, nil
	}
	if last.ADX14 < e.cfg.MinADX {
		d.Reason = ReasonWeakTrend
		return d, nil
	}

	switch {
	case p >= d.Threshold:
		d.Signal = SignalLong
	case e.cfg.AllowShort && p <= e.shortThreshold(d.Threshold) && last.Close < last.EMA200:
		d.Signal = SignalShort
	default:
		d.Reason = ReasonBelowThreshold
		return d, nil
	}

	if e.cfg.UseRegimeFilter {
		d.RiskScale = d.Regime.RiskMultiplier()
	}
	d.Entry = last.Close
	d.Stop = risk.StopPrice(last.Close, e.cfg.StopLossPct, d.Signal == SignalLong)
	return d, nil
}

// WeakExit reports whether p no longer supports a position on side.
func (e *Engine) WeakExit(side models.Side, p float64) bool {
	if e.cfg.WeakExitProb <= 0 {
		return false
	}
	if side == models.SideShort {
		return p > 1-e.cfg.WeakExitProb
	}
	return p < e.cfg.WeakExitProb
}

func (e *Engine) threshold(f indicators.Features) float64 {
	if !e.cfg.UseDynamicThreshold {
		return e.cfg.ProbLong
	}
	return DynamicThreshold(e.model.Quality().F1, f.ADX14, f.Close, f.EMA200)
}

func (e *Engine) shortThreshold(long float64) float64 {
	if !e.cfg.UseDynamicThreshold {
		return e.cfg.ProbShort
	}
	return 1 - long
}

// DynamicThreshold derives the long entry threshold from model F1, loosened
// in strong trends and tightened below the 200 EMA.
func DynamicThreshold(f1, adx, close, ema200 float64) float64 {
	var t float64
	switch {
	case f1 >= 0.30:
		t = 0.50
	case f1 >= 0.20:
		t = 0.52
	case f1 >= 0.10:
		t = 0.55
	default:
		t = 0.58
	}
	if adx >= 25 {
		t -= 0.015
	}
	if close < ema200 {
		t += 0.02
	}
	return math.Max(minThreshold, math.Min(maxThreshold, t))
}
