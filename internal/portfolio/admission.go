package portfolio

import (
	"fmt"

	"autotrader/internal/errors"
	"autotrader/internal/model"
	"autotrader/internal/models"
)

// Candidate is a symbol with a loaded model.
type Candidate struct {
	Symbol  string
	Model   model.Model
	Quality models.ModelQuality
}

// Rejection records why a symbol was not admitted.
type Rejection struct {
	Symbol string
	Reason string
}

// Admit keeps the candidates whose model meets every quality minimum. It
// fails with ErrNoAdmissibleSymbols when nothing passes.
func Admit(candidates []Candidate, th model.Thresholds) ([]Candidate, []Rejection, error) {
	var admitted []Candidate
	var rejected []Rejection
	for _, c := range candidates {
		if th.Admit(c.Quality) {
			admitted = append(admitted, c)
			continue
		}
		rejected = append(rejected, Rejection{
			Symbol: c.Symbol,
			Reason: fmt.Sprintf("f1=%.3f precision=%.3f recall=%.3f below minimums (%.2f/%.2f/%.2f)",
				c.Quality.F1, c.Quality.Precision, c.Quality.Recall, th.MinF1, th.MinPrecision, th.MinRecall),
		})
	}
	if len(admitted) == 0 {
		return nil, rejected, errors.ErrNoAdmissibleSymbols
	}
	return admitted, rejected, nil
}
