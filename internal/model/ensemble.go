package model

import (
	"fmt"

	"autotrader/internal/errors"
	"autotrader/internal/indicators"
	"autotrader/internal/models"
	"autotrader/internal/regime"
)

// Ensemble blends a symbol model with a market-context model, weighting the
// symbol model more heavily the cleaner the regime.
//
// The context model scores the context symbol's own feature rows, which the
// caller supplies through the context function on each prediction.
type Ensemble struct {
	primary Model
	context Model
	rows    func() []indicators.Features
}

// NewEnsemble combines primary with a context model. contextRows returns the
// latest context-symbol features; nil or empty rows fall back to primary alone.
func NewEnsemble(primary, context Model, contextRows func() []indicators.Features) *Ensemble {
	return &Ensemble{primary: primary, context: context, rows: contextRows}
}

// blendWeights returns the (primary, context) blend for r.
func blendWeights(r regime.Regime) (float64, float64) {
	switch r {
	case regime.Trending:
		return 0.7, 0.3
	case regime.Ranging:
		return 0.85, 0.15
	default:
		return 0.6, 0.4
	}
}

// PredictProba blends both models by the regime of the primary rows.
func (e *Ensemble) PredictProba(rows []indicators.Features) (float64, error) {
	p, err := e.primary.PredictProba(rows)
	if err != nil {
		return 0, err
	}
	if e.context == nil || e.rows == nil {
		return p, nil
	}
	ctxRows := e.rows()
	if len(ctxRows) == 0 {
		return p, nil
	}
	c, err := e.context.PredictProba(ctxRows)
	if err != nil {
		return 0, errors.Wrap(err, "context model")
	}

	last, _ := indicators.Last(rows)
	wp, wc := blendWeights(regime.DetectTrend(last))
	blended := wp*p + wc*c
	if blended < 0 || blended > 1 {
		return 0, fmt.Errorf("ensemble probability %.4f out of range", blended)
	}
	return blended, nil
}

// Quality reports the primary model's metrics.
func (e *Ensemble) Quality() models.ModelQuality {
	return e.primary.Quality()
}
